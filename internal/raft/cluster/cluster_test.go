package cluster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"raftcore/internal/pubsub"
	"raftcore/internal/raft"
	"raftcore/internal/raft/mocks"
)

func newCluster(t *testing.T, ids ...raft.PeerID) *Cluster {
	t.Helper()
	c := New(&raft.Config{Logger: zaptest.NewLogger(t).Sugar()})
	require.NoError(t, c.Add(ids...))
	c.ConnectAll()
	return c
}

func mustPeer(t *testing.T, c *Cluster, id raft.PeerID) *raft.Peer {
	t.Helper()
	p, err := c.Peer(id)
	require.NoError(t, err)
	return p
}

func TestCluster_TwoPeerElection(t *testing.T) {
	c := newCluster(t, 0, 1)

	require.NoError(t, c.Timeout(context.Background(), 0))

	a, b := mustPeer(t, c, 0), mustPeer(t, c, 1)
	assert.Equal(t, raft.Leader, a.Role())
	assert.Equal(t, raft.Follower, b.Role())
	leader, ok := b.CurrentLeader()
	require.True(t, ok)
	assert.Equal(t, raft.PeerID(0), leader)

	l, ok := c.Leader()
	require.True(t, ok)
	assert.Equal(t, raft.PeerID(0), l.ID())
}

func TestCluster_Add(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Add(3, 1, 2))
	assert.Equal(t, 3, c.Len())

	ids := make([]raft.PeerID, 0)
	for _, p := range c.Peers() {
		ids = append(ids, p.ID())
	}
	assert.Equal(t, []raft.PeerID{3, 1, 2}, ids)

	t.Run("rejects duplicates", func(t *testing.T) {
		assert.Error(t, c.Add(4, 1))
	})

	t.Run("peers get their own log", func(t *testing.T) {
		shared := mocks.NewMockLogStore()
		c := New(&raft.Config{LogStore: shared})
		require.NoError(t, c.Add(1, 2))
		require.NoError(t, c.Send(1, raft.NewReplicateOrHeartbeat(2, "only for 1")))

		assert.Zero(t, shared.AppendCallCount)
		logs, err := mustPeer(t, c, 2).Logs()
		require.NoError(t, err)
		assert.Empty(t, logs)
	})

	t.Run("invalid config", func(t *testing.T) {
		c := New(&raft.Config{VoteCounting: raft.VoteCounting(9)})
		assert.ErrorIs(t, c.Add(1), raft.ErrInvalidConfig)
	})
}

func TestCluster_ConnectAll(t *testing.T) {
	c := newCluster(t, 2, 0, 1)
	assert.Equal(t, []raft.PeerID{0, 1}, mustPeer(t, c, 2).Links())
	assert.Equal(t, []raft.PeerID{2, 1}, mustPeer(t, c, 0).Links())
	assert.Equal(t, []raft.PeerID{2, 0}, mustPeer(t, c, 1).Links())
}

func TestCluster_Connect(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Add(1, 2, 3))

	require.NoError(t, c.Connect(1, 3))
	assert.Equal(t, []raft.PeerID{3}, mustPeer(t, c, 1).Links())
	assert.Empty(t, mustPeer(t, c, 3).Links())

	assert.ErrorIs(t, c.Connect(9, 1), raft.ErrUnknownPeer)
	assert.ErrorIs(t, c.Connect(1, 9), raft.ErrUnknownPeer)
}

func TestCluster_UnknownPeer(t *testing.T) {
	c := newCluster(t, 1)

	_, err := c.Peer(5)
	assert.ErrorIs(t, err, raft.ErrUnknownPeer)
	_, err = c.Deliver(context.Background(), 5, raft.NewRequestVotes(1, 1))
	assert.ErrorIs(t, err, raft.ErrUnknownPeer)
	assert.ErrorIs(t, c.Timeout(context.Background(), 5), raft.ErrUnknownPeer)
	assert.ErrorIs(t, c.Send(5, raft.NewRequestVotes(1, 1)), raft.ErrUnknownPeer)
	assert.ErrorIs(t, c.Partition(5), raft.ErrUnknownPeer)
}

func TestCluster_Send(t *testing.T) {
	c := newCluster(t, 0, 1)

	require.NoError(t, c.Send(1, raft.NewReplicateOrHeartbeat(0, "new log entry")))
	logs, err := mustPeer(t, c, 1).Logs()
	require.NoError(t, err)
	assert.Equal(t, []raft.LogEntry{"new log entry"}, logs)

	assert.ErrorIs(t, c.Send(1, raft.NewRequestVotes(0, 0)), raft.ErrOffline)
}

func TestCluster_PartitionAndHeal(t *testing.T) {
	c := newCluster(t, 1, 2, 3)
	require.NoError(t, c.Partition(2))
	require.NoError(t, c.Partition(3))

	_, err := c.Deliver(context.Background(), 2, raft.NewRequestVotes(1, 1))
	assert.ErrorIs(t, err, raft.ErrOffline)

	require.NoError(t, c.Timeout(context.Background(), 1))
	assert.Equal(t, raft.Candidate, mustPeer(t, c, 1).Role())

	require.NoError(t, c.Heal(2))
	require.NoError(t, c.Timeout(context.Background(), 2))
	assert.Equal(t, raft.Leader, mustPeer(t, c, 2).Role())
	// The announcement makes the stuck candidate step down
	assert.Equal(t, raft.Follower, mustPeer(t, c, 1).Role())
	assert.Equal(t, uint64(0), mustPeer(t, c, 3).Term())
}

func TestCluster_SingleDriver(t *testing.T) {
	c := newCluster(t, 1, 2, 3, 4, 5)

	var wg sync.WaitGroup
	for _, p := range c.Peers() {
		wg.Add(2)
		go func(id raft.PeerID) {
			defer wg.Done()
			_ = c.Timeout(context.Background(), id)
		}(p.ID())
		go func(id raft.PeerID) {
			defer wg.Done()
			_ = c.Send(id, raft.NewReplicateOrHeartbeat(1, "entry"))
		}(p.ID())
	}
	wg.Wait()

	leaders := 0
	for _, p := range c.Peers() {
		if p.Role() == raft.Leader {
			leaders++
		}
	}
	assert.LessOrEqual(t, leaders, 1)
}

func TestCluster_MetricsAndEvents(t *testing.T) {
	metrics := mocks.NewMockMetricsCollector()
	events := pubsub.NewPubSub()
	defer events.ForceShutdown()

	won := make(chan *pubsub.Event[raft.ElectionPayload], 10)
	pubsub.Subscribe(events, raft.ElectionWon, won, pubsub.SubscriptionOptions{})
	steppedDown := make(chan *pubsub.Event[raft.LeaderPayload], 10)
	pubsub.Subscribe(events, raft.SteppedDown, steppedDown, pubsub.SubscriptionOptions{})

	c := New(&raft.Config{Metrics: metrics, Events: events})
	require.NoError(t, c.Add(1, 2, 3))
	c.ConnectAll()

	require.NoError(t, c.Timeout(context.Background(), 1))
	assert.ErrorIs(t, c.Timeout(context.Background(), 1), raft.ErrAlreadyElected)
	// Peer 2 is at term 1 now, so term 0 is simply stale there. Only a peer still at term 0 reports Offline.
	assert.ErrorIs(t, c.Send(2, raft.NewRequestVotes(3, 0)), raft.ErrInvalidTerm)
	require.NoError(t, c.Add(4))
	assert.ErrorIs(t, c.Send(4, raft.NewRequestVotes(3, 0)), raft.ErrOffline)

	select {
	case ev := <-won:
		assert.Equal(t, raft.ElectionPayload{Peer: 1, Term: 1, Votes: 3}, ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("no ElectionWon event")
	}

	require.NoError(t, c.Send(1, raft.NewReplicateOrHeartbeat(3, "usurper")))
	select {
	case ev := <-steppedDown:
		assert.Equal(t, raft.LeaderPayload{Peer: 1, From: raft.Leader, Leader: 3}, ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("no SteppedDown event")
	}

	assert.Equal(t, 1, metrics.ElectionCount)
	assert.Equal(t, 1, metrics.ElectionsWon)
	assert.Equal(t, 2, metrics.RequestVoteCount)
	assert.Equal(t, 2, metrics.VotesCounted)
	assert.Equal(t, 2, metrics.HeartbeatCount)
	assert.Equal(t, 1, metrics.Rejections("InvalidTerm"))
	assert.Equal(t, 1, metrics.Rejections("Offline"))
	assert.Len(t, metrics.ElectionDurations, 1)
}
