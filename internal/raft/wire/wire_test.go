package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"

	"raftcore/internal/raft"
)

func TestCodec_Registered(t *testing.T) {
	codec := encoding.GetCodec(Name)
	require.NotNil(t, codec)
	assert.Equal(t, Name, codec.Name())
}

func TestCodec_RejectsForeignValues(t *testing.T) {
	_, err := Codec{}.Marshal("not a message")
	assert.ErrorIs(t, err, errNotMessage)

	var s string
	assert.ErrorIs(t, Codec{}.Unmarshal(nil, &s), errNotMessage)
}

func TestDeliverRequest(t *testing.T) {
	msgs := []raft.Message{
		raft.NewRequestVotes(3, 7),
		raft.NewReplicateOrHeartbeat(1, "new leader 1 at term 2"),
		raft.NewReplicateOrHeartbeat(0, ""),
	}
	for _, msg := range msgs {
		t.Run(msg.String(), func(t *testing.T) {
			data, err := Codec{}.Marshal(NewDeliverRequest("req-1", msg))
			require.NoError(t, err)

			var got DeliverRequest
			require.NoError(t, Codec{}.Unmarshal(data, &got))
			assert.Equal(t, "req-1", got.RequestID)
			assert.Equal(t, msg, got.Message())
		})
	}
}

func TestDeliverResponse_Errors(t *testing.T) {
	t.Run("granted vote", func(t *testing.T) {
		r := NewDeliverResponse(raft.Response{Term: 4, VoteGranted: true}, nil)
		var got DeliverResponse
		require.NoError(t, got.UnmarshalWire(r.MarshalWire()))

		resp, err := got.Result()
		require.NoError(t, err)
		assert.Equal(t, raft.Response{Term: 4, VoteGranted: true}, resp)
	})

	for _, sentinel := range []error{raft.ErrInvalidTerm, raft.ErrNoQuorum, raft.ErrOffline, raft.ErrNotLeader} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			r := NewDeliverResponse(raft.Response{Term: 2}, sentinel)
			var got DeliverResponse
			require.NoError(t, got.UnmarshalWire(r.MarshalWire()))

			_, err := got.Result()
			assert.ErrorIs(t, err, sentinel)
		})
	}

	t.Run("already elected keeps the leader", func(t *testing.T) {
		r := NewErrorResponse(&raft.AlreadyElectedError{Leader: 5})
		var got ErrorResponse
		require.NoError(t, got.UnmarshalWire(r.MarshalWire()))

		assert.Equal(t, &raft.AlreadyElectedError{Leader: 5}, got.Err())
	})

	t.Run("nil error", func(t *testing.T) {
		var got ErrorResponse
		require.NoError(t, got.UnmarshalWire(NewErrorResponse(nil).MarshalWire()))
		assert.NoError(t, got.Err())
	})
}

func TestStateResponse(t *testing.T) {
	leader := raft.PeerID(0)
	s := raft.State{ID: 2, Role: raft.Follower, Term: 3, CurrentLeader: &leader, TimeoutFlag: true}
	r := NewStateResponse(s, []raft.PeerID{0, 1, 300}, []raft.LogEntry{"a", "", "c"})

	var got StateResponse
	require.NoError(t, got.UnmarshalWire(r.MarshalWire()))

	assert.Equal(t, s, got.State())
	assert.Equal(t, []uint64{0, 1, 300}, got.Links)
	assert.Equal(t, []string{"a", "", "c"}, got.Logs)

	t.Run("no leader", func(t *testing.T) {
		r := NewStateResponse(raft.State{ID: 1}, nil, nil)
		var got StateResponse
		require.NoError(t, got.UnmarshalWire(r.MarshalWire()))

		_, ok := got.State().Leader()
		assert.False(t, ok)
		assert.Empty(t, got.Links)
	})

	t.Run("unpacked links", func(t *testing.T) {
		var b []byte
		b = protowire.AppendTag(b, 7, protowire.VarintType)
		b = protowire.AppendVarint(b, 4)
		b = protowire.AppendTag(b, 7, protowire.VarintType)
		b = protowire.AppendVarint(b, 5)

		var got StateResponse
		require.NoError(t, got.UnmarshalWire(b))
		assert.Equal(t, []uint64{4, 5}, got.Links)
	})
}

func TestBroadcast(t *testing.T) {
	req := &BroadcastRequest{RequestID: "id", Entry: "heartbeat"}
	var gotReq BroadcastRequest
	require.NoError(t, gotReq.UnmarshalWire(req.MarshalWire()))
	assert.Equal(t, *req, gotReq)

	resp := &BroadcastResponse{Acked: 2, ErrorKind: "NotLeader"}
	var gotResp BroadcastResponse
	require.NoError(t, gotResp.UnmarshalWire(resp.MarshalWire()))
	assert.Equal(t, *resp, gotResp)
}

func TestDecode(t *testing.T) {
	t.Run("skips unknown fields", func(t *testing.T) {
		b := (&TimeoutRequest{RequestID: "x"}).MarshalWire()
		b = protowire.AppendTag(b, 99, protowire.BytesType)
		b = protowire.AppendString(b, "future field")
		b = protowire.AppendTag(b, 100, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, 1)

		var got TimeoutRequest
		require.NoError(t, got.UnmarshalWire(b))
		assert.Equal(t, "x", got.RequestID)
	})

	t.Run("rejects a mismatched wire type", func(t *testing.T) {
		b := protowire.AppendTag(nil, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)

		var got TimeoutRequest
		assert.ErrorIs(t, got.UnmarshalWire(b), errWireType)
	})

	t.Run("rejects truncated input", func(t *testing.T) {
		b := (&DeliverRequest{Entry: "truncated"}).MarshalWire()

		var got DeliverRequest
		assert.Error(t, got.UnmarshalWire(b[:len(b)-2]))
	})

	t.Run("resets the target", func(t *testing.T) {
		got := DeliverRequest{Term: 9, Entry: "stale"}
		require.NoError(t, got.UnmarshalWire(nil))
		assert.Equal(t, DeliverRequest{}, got)
	})
}
