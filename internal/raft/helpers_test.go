package raft

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// testNet routes messages between peers in the same process, in the same way the cluster arena does.
type testNet struct {
	peers   map[PeerID]*Peer
	offline map[PeerID]bool
}

func (n *testNet) Deliver(_ context.Context, to PeerID, msg Message) (Response, error) {
	if n.offline[to] {
		return Response{}, ErrOffline
	}
	p, ok := n.peers[to]
	if !ok {
		return Response{}, ErrUnknownPeer
	}
	return p.HandleMessage(msg)
}

// newTestNet creates one peer per id and links every peer to all the others, in the order given.
func newTestNet(t *testing.T, cfg *Config, ids ...PeerID) (*testNet, []*Peer) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zaptest.NewLogger(t).Sugar()
	}

	net := &testNet{
		peers:   make(map[PeerID]*Peer),
		offline: make(map[PeerID]bool),
	}
	peers := make([]*Peer, 0, len(ids))
	for _, id := range ids {
		c := *cfg
		c.LogStore = nil
		p, err := NewWithConfig(id, &c)
		require.NoError(t, err)
		p.SetTransport(net)
		net.peers[id] = p
		peers = append(peers, p)
	}
	for _, p := range peers {
		p.Connect(ids...)
	}
	return net, peers
}

func mustLogs(t *testing.T, p *Peer) []LogEntry {
	t.Helper()
	logs, err := p.Logs()
	require.NoError(t, err)
	return logs
}

func leaderOf(t *testing.T, p *Peer) PeerID {
	t.Helper()
	leader, ok := p.CurrentLeader()
	require.True(t, ok, "peer %d has no leader", p.ID())
	return leader
}

// failingLog is a LogStore whose appends always fail
type failingLog struct{}

var errDiskFull = errors.New("disk full")

func (failingLog) Append(LogEntry) error        { return errDiskFull }
func (failingLog) Entries() ([]LogEntry, error) { return nil, nil }
