package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessage_ReplicateOrHeartbeat(t *testing.T) {
	t.Run("follower replicates leader logs", func(t *testing.T) {
		b := New(1)
		leader := PeerID(0)
		b.state.CurrentLeader = &leader

		require.NoError(t, b.OnRcvMessage(NewReplicateOrHeartbeat(0, "new log entry")))

		logs := mustLogs(t, b)
		require.Len(t, logs, 1)
		assert.Equal(t, LogEntry("new log entry"), logs[0])
	})

	for _, role := range []Role{Follower, Candidate, Leader} {
		t.Run("steps down from "+role.String(), func(t *testing.T) {
			p := New(2)
			p.state.Role = role
			p.state.Term = 4

			resp, err := p.HandleMessage(NewReplicateOrHeartbeat(3, "entry"))
			require.NoError(t, err)

			assert.Equal(t, uint64(4), resp.Term)
			assert.False(t, resp.VoteGranted)
			assert.Equal(t, Follower, p.Role())
			assert.Equal(t, PeerID(3), leaderOf(t, p))
		})
	}

	t.Run("accepted regardless of term", func(t *testing.T) {
		p := New(2)
		p.state.Term = 10

		require.NoError(t, p.OnRcvMessage(NewReplicateOrHeartbeat(3, "old leader")))
		assert.Equal(t, uint64(10), p.Term())
		assert.Equal(t, PeerID(3), leaderOf(t, p))
	})

	t.Run("toggles the timeout flag", func(t *testing.T) {
		p := New(2)
		require.NoError(t, p.OnRcvMessage(NewReplicateOrHeartbeat(3, "a")))
		assert.True(t, p.TimeoutFlag())
		require.NoError(t, p.OnRcvMessage(NewReplicateOrHeartbeat(3, "b")))
		assert.False(t, p.TimeoutFlag())
		assert.Equal(t, []LogEntry{"a", "b"}, mustLogs(t, p))
	})

	t.Run("log failure leaves state unchanged", func(t *testing.T) {
		p, err := NewWithConfig(2, &Config{LogStore: failingLog{}})
		require.NoError(t, err)
		p.state.Role = Candidate

		err = p.OnRcvMessage(NewReplicateOrHeartbeat(3, "entry"))
		assert.ErrorIs(t, err, errDiskFull)
		assert.Equal(t, Candidate, p.Role())
		assert.False(t, p.TimeoutFlag())
		_, ok := p.CurrentLeader()
		assert.False(t, ok)
	})
}

func TestHandleMessage_RequestVotes(t *testing.T) {
	t.Run("grants a higher term", func(t *testing.T) {
		p := New(1)

		resp, err := p.HandleMessage(NewRequestVotes(2, 3))
		require.NoError(t, err)

		assert.True(t, resp.VoteGranted)
		assert.Equal(t, uint64(3), resp.Term)
		assert.Equal(t, uint64(3), p.Term())
		assert.Equal(t, Follower, p.Role())
		assert.Equal(t, []LogEntry{"[logterm: 3] cast vote for 2 at term 3"}, mustLogs(t, p))
	})

	t.Run("invalid voter identity adopts the term but rejects", func(t *testing.T) {
		p := New(InvalidID)

		resp, err := p.HandleMessage(NewRequestVotes(2, 1))
		assert.ErrorIs(t, err, ErrNoQuorum)

		assert.False(t, resp.VoteGranted)
		assert.Equal(t, uint64(1), p.Term())
		assert.Equal(t, []LogEntry{"[logterm: 1] rejected vote for 2 at term 1"}, mustLogs(t, p))
	})

	t.Run("stale term is rejected and state is unchanged", func(t *testing.T) {
		for _, role := range []Role{Follower, Candidate, Leader} {
			p := New(1)
			leader := PeerID(4)
			p.state = State{ID: 1, Role: role, Term: 5, CurrentLeader: &leader, TimeoutFlag: true}
			before := p.Snapshot()

			resp, err := p.HandleMessage(NewRequestVotes(2, 3))
			assert.ErrorIs(t, err, ErrInvalidTerm)

			assert.False(t, resp.VoteGranted)
			assert.Equal(t, before, p.Snapshot())
			assert.Equal(t, []LogEntry{
				"ignored a message with lower term from 2 with term 5 and sender term 3",
			}, mustLogs(t, p))
		}
	})

	t.Run("term zero is offline", func(t *testing.T) {
		p := New(1)

		_, err := p.HandleMessage(NewRequestVotes(2, 0))
		assert.ErrorIs(t, err, ErrOffline)

		assert.Equal(t, uint64(0), p.Term())
		assert.Empty(t, mustLogs(t, p))
	})

	t.Run("same term is accepted without a grant", func(t *testing.T) {
		p := New(1)
		p.state.Term = 2
		p.state.Role = Candidate

		resp, err := p.HandleMessage(NewRequestVotes(2, 2))
		require.NoError(t, err)

		assert.False(t, resp.VoteGranted)
		assert.Equal(t, uint64(2), p.Term())
		assert.Equal(t, Candidate, p.Role())
		assert.Empty(t, mustLogs(t, p))
	})

	t.Run("a leader keeps its role when adopting a higher term", func(t *testing.T) {
		p := New(1)
		p.state.Role = Leader
		p.state.Term = 1

		require.NoError(t, p.OnRcvMessage(NewRequestVotes(2, 2)))
		assert.Equal(t, Leader, p.Role())
		assert.Equal(t, uint64(2), p.Term())
	})

	t.Run("log failure leaves the term unchanged", func(t *testing.T) {
		p, err := NewWithConfig(1, &Config{LogStore: failingLog{}})
		require.NoError(t, err)

		_, err = p.HandleMessage(NewRequestVotes(2, 3))
		assert.ErrorIs(t, err, errDiskFull)
		assert.Equal(t, uint64(0), p.Term())
	})
}

func TestHandleMessage_UnknownType(t *testing.T) {
	p := New(1)
	_, err := p.HandleMessage(Message{Type: MessageType(9), From: 2})
	assert.ErrorIs(t, err, ErrUnknownMessage)
}
