package raft

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"raftcore/internal/pubsub"
)

// unreachable is the Transport of a peer that was never wired to a cluster.
type unreachable struct{}

func (unreachable) Deliver(_ context.Context, to PeerID, _ Message) (Response, error) {
	return Response{}, fmt.Errorf("%w: no transport to reach peer %d", ErrOffline, to)
}

// Peer is one participant of the cluster. It owns its identity, role, term, known leader and log, and is mutated
// only through Connect, OnTimeout and OnRcvMessage (HandleMessage).
type Peer struct {
	// Set once by NewWithConfig and never written again, so it is read without mu
	id PeerID

	// Protects state, links and transport
	mu sync.Mutex

	state State
	// Linked peers in the order votes are solicited. Never contains the peer itself or duplicates.
	links     []PeerID
	transport Transport

	log          LogStore
	logger       Logger
	metrics      MetricsCollector
	events       *pubsub.PubSubClient
	voteCounting VoteCounting
}

// New creates a Follower at term 0 with no leader, an empty in-memory log and no links.
func New(id PeerID) *Peer {
	p, _ := NewWithConfig(id, DefaultConfig())
	return p
}

// NewWithConfig creates a Peer like New, wired to the collaborators in cfg. Unset collaborators get defaults.
func NewWithConfig(id PeerID, cfg *Config) (*Peer, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	c := withDefaults(cfg)

	return &Peer{
		id:    id,
		state: State{
			ID:   id,
			Role: Follower,
		},
		transport:    unreachable{},
		log:          c.LogStore,
		logger:       c.Logger,
		metrics:      c.Metrics,
		events:       c.Events,
		voteCounting: c.VoteCounting,
	}, nil
}

// Connect records peers as links of p, in order. It is additive; p's own id and peers that are already linked
// are skipped. It must be called before the peer takes part in the protocol.
func (p *Peer) Connect(peers ...PeerID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range peers {
		if id == p.id || slices.Contains(p.links, id) {
			continue
		}
		p.links = append(p.links, id)
	}
}

// SetTransport sets how p reaches its links.
func (p *Peer) SetTransport(t Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t == nil {
		t = unreachable{}
	}
	p.transport = t
}

func (p *Peer) ID() PeerID {
	return p.id
}

func (p *Peer) Role() Role {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Role
}

func (p *Peer) Term() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Term
}

// CurrentLeader returns the peer p believes is leader, if any.
func (p *Peer) CurrentLeader() (PeerID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Leader()
}

// TimeoutFlag is toggled on every accepted ReplicateOrHeartbeat. Observers compare it over time to tell whether
// the leader was heard from.
func (p *Peer) TimeoutFlag() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.TimeoutFlag
}

// Links returns a copy of p's links in solicitation order.
func (p *Peer) Links() []PeerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.links)
}

// Logs returns a copy of p's log.
func (p *Peer) Logs() ([]LogEntry, error) {
	return p.log.Entries()
}

// Snapshot returns a copy of p's observable state.
func (p *Peer) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// snapshotLocked copies the state, including the leader pointer. Callers hold p.mu.
func (p *Peer) snapshotLocked() State {
	s := p.state
	if s.CurrentLeader != nil {
		leader := *s.CurrentLeader
		s.CurrentLeader = &leader
	}
	return s
}

func (p *Peer) appendLog(entry LogEntry) error {
	if err := p.log.Append(entry); err != nil {
		return fmt.Errorf("failed to append log entry for peer %d: %w", p.id, err)
	}
	return nil
}
