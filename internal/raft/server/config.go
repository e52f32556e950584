package server

import (
	"fmt"
	"time"

	"google.golang.org/grpc"

	"raftcore/internal/pubsub"
	"raftcore/internal/raft"
)

// DefaultHeartbeatInterval keeps heartbeats well below the minimum election timeout
const DefaultHeartbeatInterval = 50 * time.Millisecond

// PeerAddr is the id and address of another server in the cluster
type PeerAddr struct {
	ID      raft.PeerID
	Address Address
}

// ServerConfig configures a Server
type ServerConfig struct {
	ID raft.PeerID
	// Peers are linked in order. An entry carrying ID is ignored.
	Peers []PeerAddr

	// The election timeout is picked at random in [ElectionTimeoutMin, ElectionTimeoutMax] every time the timer is
	// armed. Both default to the raft package bounds.
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	// HeartbeatInterval defaults to DefaultHeartbeatInterval
	HeartbeatInterval time.Duration

	VoteCounting raft.VoteCounting
	Logger       raft.Logger
	Metrics      raft.MetricsCollector
	LogStore     raft.LogStore
	// PubSub carries both the peer's and the server's events. If nil the server creates and owns one.
	PubSub *pubsub.PubSubClient
	// DialOptions are added to every outbound connection
	DialOptions []grpc.DialOption
	// ServerOptions are added to the gRPC server
	ServerOptions []grpc.ServerOption
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: server config is nil", raft.ErrInvalidConfig)
	}
	if cfg.ElectionTimeoutMin < 0 || cfg.ElectionTimeoutMax < 0 || cfg.HeartbeatInterval < 0 {
		return fmt.Errorf("%w: durations must not be negative", raft.ErrInvalidConfig)
	}
	if cfg.ElectionTimeoutMax != 0 && cfg.ElectionTimeoutMax < cfg.ElectionTimeoutMin {
		return fmt.Errorf("%w: election timeout max %v is below min %v", raft.ErrInvalidConfig,
			cfg.ElectionTimeoutMax, cfg.ElectionTimeoutMin)
	}
	seen := make(map[raft.PeerID]bool, len(cfg.Peers))
	for _, p := range cfg.Peers {
		if seen[p.ID] {
			return fmt.Errorf("%w: peer %d is listed twice", raft.ErrInvalidConfig, p.ID)
		}
		seen[p.ID] = true
		if p.ID != cfg.ID && p.Address == "" {
			return fmt.Errorf("%w: peer %d has no address", raft.ErrInvalidConfig, p.ID)
		}
	}
	return nil
}

// withServerDefaults fills unset fields without mutating cfg
func withServerDefaults(cfg *ServerConfig) ServerConfig {
	c := *cfg
	if c.ElectionTimeoutMin == 0 {
		c.ElectionTimeoutMin = raft.MinElectionTimeout
	}
	if c.ElectionTimeoutMax == 0 {
		c.ElectionTimeoutMax = max(raft.MaxElectionTimeout, c.ElectionTimeoutMin)
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Logger == nil {
		c.Logger = raft.DefaultConfig().Logger
	}
	return c
}
