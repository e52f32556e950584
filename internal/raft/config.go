package raft

import (
	"context"
	"fmt"
	"time"

	"raftcore/internal/pubsub"
)

// Transport delivers a Message to a linked peer and returns that peer's Response. A nil error means the message
// was delivered and accepted; protocol rejections come back as the receiver's error (ErrInvalidTerm, ErrNoQuorum,
// ErrOffline), transport failures as any other error.
type Transport interface {
	Deliver(ctx context.Context, to PeerID, msg Message) (Response, error)
}

// LogStore holds a peer's append-only log. Entries are never removed or reordered.
type LogStore interface {
	Append(entry LogEntry) error
	Entries() ([]LogEntry, error)
}

// Logger interface for logging. *zap.SugaredLogger satisfies it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// noopLogger is the default Logger
type noopLogger struct{}

func (noopLogger) Debugf(_ string, _ ...interface{}) {}
func (noopLogger) Infof(_ string, _ ...interface{})  {}
func (noopLogger) Warnf(_ string, _ ...interface{})  {}
func (noopLogger) Errorf(_ string, _ ...interface{}) {}

// MetricsCollector is an optional interface for collecting protocol metrics
type MetricsCollector interface {
	RecordElection()
	RecordElectionWon()
	RecordElectionAborted()
	RecordElectionDuration(duration time.Duration)
	RecordRequestVote()
	RecordVoteCounted()
	RecordHeartbeat()
	RecordIgnoredTimeout()
	RecordRejection(kind string)
}

type noopMetrics struct{}

func (noopMetrics) RecordElection()                      {}
func (noopMetrics) RecordElectionWon()                   {}
func (noopMetrics) RecordElectionAborted()               {}
func (noopMetrics) RecordElectionDuration(time.Duration) {}
func (noopMetrics) RecordRequestVote()                   {}
func (noopMetrics) RecordVoteCounted()                   {}
func (noopMetrics) RecordHeartbeat()                     {}
func (noopMetrics) RecordIgnoredTimeout()                {}
func (noopMetrics) RecordRejection(string)               {}

// VoteCounting decides which vote request outcomes a candidate counts as votes.
type VoteCounting int

const (
	// CountDelivered counts every vote request that was delivered without error, whether or not the receiver
	// explicitly granted it. A same-term request is accepted as a no-op and therefore counts.
	CountDelivered VoteCounting = iota
	// CountGranted counts only responses with VoteGranted set.
	CountGranted
)

func (v VoteCounting) String() string {
	switch v {
	case CountDelivered:
		return "delivered"
	case CountGranted:
		return "granted"
	default:
		return "unknown"
	}
}

// ParseVoteCounting is the inverse of VoteCounting.String. The empty string selects CountDelivered.
func ParseVoteCounting(s string) (VoteCounting, error) {
	switch s {
	case "", "delivered":
		return CountDelivered, nil
	case "granted":
		return CountGranted, nil
	default:
		return 0, fmt.Errorf("%w: unknown vote counting %q", ErrInvalidConfig, s)
	}
}

// Config configures a Peer. Every field is optional.
type Config struct {
	// Logger for protocol decisions. Defaults to a no-op logger.
	Logger Logger
	// Metrics receives protocol counters. Defaults to a no-op collector.
	Metrics MetricsCollector
	// Events, if set, receives ElectionStarted, ElectionWon, SteppedDown and TermAdvanced events.
	Events *pubsub.PubSubClient
	// LogStore backs the peer's log. Defaults to an in-memory log.
	LogStore LogStore
	// VoteCounting selects how solicited votes are counted. Defaults to CountDelivered.
	VoteCounting VoteCounting
}

// DefaultConfig returns a Config with every optional collaborator set to its default
func DefaultConfig() *Config {
	return &Config{
		Logger:       noopLogger{},
		Metrics:      noopMetrics{},
		LogStore:     newMemoryLog(),
		VoteCounting: CountDelivered,
	}
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if cfg.VoteCounting != CountDelivered && cfg.VoteCounting != CountGranted {
		return fmt.Errorf("%w: unknown vote counting %d", ErrInvalidConfig, cfg.VoteCounting)
	}
	return nil
}

// withDefaults fills unset collaborators without mutating cfg.
func withDefaults(cfg *Config) Config {
	c := *cfg
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
	if c.LogStore == nil {
		c.LogStore = newMemoryLog()
	}
	return c
}
