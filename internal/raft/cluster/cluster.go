// Package cluster keeps a set of peers in one process and routes their messages. Peers refer to each other only
// by PeerID; the Cluster owns them and acts as every peer's raft.Transport.
package cluster

import (
	"context"
	"fmt"
	"sync"

	"raftcore/internal/raft"
)

// Cluster is an in-process arena of peers.
//
// Driver entry points (Timeout and Send) are serialized by a cluster-wide mutex, so at most one external call drives
// the peers at a time. Deliveries nested inside a driver call do not take it.
type Cluster struct {
	driver sync.Mutex

	mu      sync.RWMutex
	cfg     raft.Config
	peers   map[raft.PeerID]*raft.Peer
	order   []raft.PeerID
	offline map[raft.PeerID]bool
}

var _ raft.Transport = (*Cluster)(nil)

// New creates an empty cluster. cfg is shared by every peer added later, except for LogStore: each peer gets its
// own in-memory log. A nil cfg uses the defaults.
func New(cfg *raft.Config) *Cluster {
	c := &Cluster{
		peers:   make(map[raft.PeerID]*raft.Peer),
		offline: make(map[raft.PeerID]bool),
	}
	if cfg != nil {
		c.cfg = *cfg
	}
	c.cfg.LogStore = nil
	return c
}

// Add creates one peer per id. Peers are not linked; see Connect and ConnectAll.
func (c *Cluster) Add(ids ...raft.PeerID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		if _, ok := c.peers[id]; ok {
			return fmt.Errorf("peer %d already exists", id)
		}
		cfg := c.cfg
		p, err := raft.NewWithConfig(id, &cfg)
		if err != nil {
			return fmt.Errorf("failed to create peer %d: %w", id, err)
		}
		p.SetTransport(c)
		c.peers[id] = p
		c.order = append(c.order, id)
	}
	return nil
}

// ConnectAll links every peer to every other peer, in the order they were added
func (c *Cluster) ConnectAll() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, id := range c.order {
		c.peers[id].Connect(c.order...)
	}
}

// Connect adds links from the peer id to the given peers
func (c *Cluster) Connect(id raft.PeerID, links ...raft.PeerID) error {
	p, err := c.Peer(id)
	if err != nil {
		return err
	}
	for _, l := range links {
		if _, err := c.Peer(l); err != nil {
			return err
		}
	}
	p.Connect(links...)
	return nil
}

// Peer returns the peer with the given id
func (c *Cluster) Peer(id raft.PeerID) (*raft.Peer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.peers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", raft.ErrUnknownPeer, id)
	}
	return p, nil
}

// Peers returns every peer in the order they were added
func (c *Cluster) Peers() []*raft.Peer {
	c.mu.RLock()
	defer c.mu.RUnlock()

	peers := make([]*raft.Peer, 0, len(c.order))
	for _, id := range c.order {
		peers = append(peers, c.peers[id])
	}
	return peers
}

// Len returns the number of peers in the cluster
func (c *Cluster) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Partition makes the peer unreachable: deliveries to it fail with raft.ErrOffline until Heal is called. The peer
// can still be driven and can still send.
func (c *Cluster) Partition(id raft.PeerID) error {
	return c.setOffline(id, true)
}

// Heal makes a partitioned peer reachable again
func (c *Cluster) Heal(id raft.PeerID) error {
	return c.setOffline(id, false)
}

func (c *Cluster) setOffline(id raft.PeerID, offline bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.peers[id]; !ok {
		return fmt.Errorf("%w: %d", raft.ErrUnknownPeer, id)
	}
	c.offline[id] = offline
	return nil
}

// Deliver routes msg to the peer to and returns its response
func (c *Cluster) Deliver(_ context.Context, to raft.PeerID, msg raft.Message) (raft.Response, error) {
	c.mu.RLock()
	p, ok := c.peers[to]
	offline := c.offline[to]
	c.mu.RUnlock()

	if !ok {
		return raft.Response{}, fmt.Errorf("%w: %d", raft.ErrUnknownPeer, to)
	}
	if offline {
		return raft.Response{}, fmt.Errorf("%w: peer %d is partitioned", raft.ErrOffline, to)
	}
	return p.HandleMessage(msg)
}

// Timeout drives OnTimeout on the peer id
func (c *Cluster) Timeout(ctx context.Context, id raft.PeerID) error {
	p, err := c.Peer(id)
	if err != nil {
		return err
	}

	c.driver.Lock()
	defer c.driver.Unlock()
	return p.OnTimeout(ctx)
}

// Send delivers msg to the peer id as if it came from msg.From
func (c *Cluster) Send(id raft.PeerID, msg raft.Message) error {
	p, err := c.Peer(id)
	if err != nil {
		return err
	}

	c.driver.Lock()
	defer c.driver.Unlock()
	return p.OnRcvMessage(msg)
}

// Leader returns the first peer, in insertion order, whose role is Leader
func (c *Cluster) Leader() (*raft.Peer, bool) {
	for _, p := range c.Peers() {
		if p.Role() == raft.Leader {
			return p, true
		}
	}
	return nil, false
}
