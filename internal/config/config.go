package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"raftcore/internal/raft"
)

var ErrPeerNotFound = errors.New("peer not found")

// Peer is one node of the cluster file
type Peer struct {
	ID      raft.PeerID `yaml:"id"`
	Address string      `yaml:"address"`
}

// Range bounds the randomized election timeout
type Range struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// Cluster is the static description of a cluster, shared by all of its nodes. Durations are written as strings
// such as "150ms".
type Cluster struct {
	// Dir holds one log database per node
	Dir               string        `yaml:"dir"`
	Peers             []Peer        `yaml:"peers"`
	ElectionTimeout   Range         `yaml:"election_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// VoteCounting is "delivered" (default) or "granted"
	VoteCounting string `yaml:"vote_counting"`
	// LogLevel is a zap level name. Defaults to "info".
	LogLevel string `yaml:"log_level"`
}

// ReadConfig loads and validates a cluster file
func ReadConfig(file string) (*Cluster, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var c Cluster
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return &c, nil
}

// Validate checks the cluster description. Errors wrap raft.ErrInvalidConfig.
func (c *Cluster) Validate() error {
	if len(c.Peers) == 0 {
		return fmt.Errorf("%w: no peers", raft.ErrInvalidConfig)
	}
	seen := make(map[raft.PeerID]bool, len(c.Peers))
	for _, p := range c.Peers {
		// Id 0 can never grant a vote
		if p.ID == raft.InvalidID {
			return fmt.Errorf("%w: peer id must be positive", raft.ErrInvalidConfig)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: peer %d is listed twice", raft.ErrInvalidConfig, p.ID)
		}
		seen[p.ID] = true
		if p.Address == "" {
			return fmt.Errorf("%w: peer %d has no address", raft.ErrInvalidConfig, p.ID)
		}
	}

	if c.ElectionTimeout.Min < 0 || c.ElectionTimeout.Max < 0 || c.HeartbeatInterval < 0 {
		return fmt.Errorf("%w: durations must not be negative", raft.ErrInvalidConfig)
	}
	if c.ElectionTimeout.Max != 0 && c.ElectionTimeout.Max < c.ElectionTimeout.Min {
		return fmt.Errorf("%w: election timeout max %v is below min %v", raft.ErrInvalidConfig,
			c.ElectionTimeout.Max, c.ElectionTimeout.Min)
	}
	if c.HeartbeatInterval != 0 && c.ElectionTimeout.Min != 0 && c.HeartbeatInterval >= c.ElectionTimeout.Min {
		return fmt.Errorf("%w: heartbeat interval %v must be below the election timeout %v", raft.ErrInvalidConfig,
			c.HeartbeatInterval, c.ElectionTimeout.Min)
	}

	if _, err := c.Counting(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Peer returns the entry of the given peer
func (c *Cluster) Peer(id raft.PeerID) (Peer, error) {
	for _, p := range c.Peers {
		if p.ID == id {
			return p, nil
		}
	}
	return Peer{}, fmt.Errorf("%w: %d", ErrPeerNotFound, id)
}

// Links returns every other peer, in file order
func (c *Cluster) Links(id raft.PeerID) []raft.PeerID {
	links := make([]raft.PeerID, 0, len(c.Peers))
	for _, p := range c.Peers {
		if p.ID != id {
			links = append(links, p.ID)
		}
	}
	return links
}

func (c *Cluster) Counting() (raft.VoteCounting, error) {
	return raft.ParseVoteCounting(c.VoteCounting)
}

func (c *Cluster) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("%w: %v", raft.ErrInvalidConfig, err)
	}
	return lvl, nil
}
