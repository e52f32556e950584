package wire

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"

	"raftcore/internal/raft"
)

// DeliverRequest carries one protocol message to the receiving peer.
//
//	message DeliverRequest {
//	  string request_id = 1;
//	  uint64 type = 2;
//	  uint64 from = 3;
//	  uint64 term = 4;
//	  string entry = 5;
//	}
type DeliverRequest struct {
	RequestID string
	Type      uint64
	From      uint64
	Term      uint64
	Entry     string
}

// NewDeliverRequest wraps msg for the wire
func NewDeliverRequest(requestID string, msg raft.Message) *DeliverRequest {
	return &DeliverRequest{
		RequestID: requestID,
		Type:      uint64(msg.Type),
		From:      uint64(msg.From),
		Term:      msg.Term,
		Entry:     string(msg.Entry),
	}
}

// Message converts the request back into a protocol message
func (r *DeliverRequest) Message() raft.Message {
	return raft.Message{
		Type:  raft.MessageType(r.Type),
		From:  raft.PeerID(r.From),
		Term:  r.Term,
		Entry: raft.LogEntry(r.Entry),
	}
}

func (r *DeliverRequest) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, r.RequestID)
	b = appendUint64(b, 2, r.Type)
	b = appendUint64(b, 3, r.From)
	b = appendUint64(b, 4, r.Term)
	b = appendString(b, 5, r.Entry)
	return b
}

func (r *DeliverRequest) UnmarshalWire(b []byte) error {
	*r = DeliverRequest{}
	return decode(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &r.RequestID)
		case 2:
			return consumeUint64(typ, b, &r.Type)
		case 3:
			return consumeUint64(typ, b, &r.From)
		case 4:
			return consumeUint64(typ, b, &r.Term)
		case 5:
			return consumeString(typ, b, &r.Entry)
		}
		return 0, nil
	})
}

// DeliverResponse is the receiver's Response. A protocol rejection travels as ErrorKind, so the sender gets back
// the same sentinel error the receiver returned.
//
//	message DeliverResponse {
//	  uint64 term = 1;
//	  bool vote_granted = 2;
//	  string error_kind = 3;
//	  uint64 leader = 4;
//	}
type DeliverResponse struct {
	Term        uint64
	VoteGranted bool
	ErrorKind   string
	Leader      uint64
}

// NewDeliverResponse encodes the outcome of raft.Peer.HandleMessage. err must be a protocol error, see
// raft.ErrorKind.
func NewDeliverResponse(resp raft.Response, err error) *DeliverResponse {
	r := &DeliverResponse{
		Term:        resp.Term,
		VoteGranted: resp.VoteGranted,
		ErrorKind:   raft.ErrorKind(err),
	}
	if leader, ok := leaderOf(err); ok {
		r.Leader = uint64(leader)
	}
	return r
}

// Result decodes the response into what the receiving peer returned
func (r *DeliverResponse) Result() (raft.Response, error) {
	return raft.Response{Term: r.Term, VoteGranted: r.VoteGranted},
		raft.ErrorFromKind(r.ErrorKind, raft.PeerID(r.Leader))
}

func (r *DeliverResponse) MarshalWire() []byte {
	var b []byte
	b = appendUint64(b, 1, r.Term)
	b = appendBool(b, 2, r.VoteGranted)
	b = appendString(b, 3, r.ErrorKind)
	b = appendUint64(b, 4, r.Leader)
	return b
}

func (r *DeliverResponse) UnmarshalWire(b []byte) error {
	*r = DeliverResponse{}
	return decode(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint64(typ, b, &r.Term)
		case 2:
			return consumeBool(typ, b, &r.VoteGranted)
		case 3:
			return consumeString(typ, b, &r.ErrorKind)
		case 4:
			return consumeUint64(typ, b, &r.Leader)
		}
		return 0, nil
	})
}

// TimeoutRequest asks a peer to run OnTimeout.
//
//	message TimeoutRequest {
//	  string request_id = 1;
//	}
type TimeoutRequest struct {
	RequestID string
}

func (r *TimeoutRequest) MarshalWire() []byte {
	return appendString(nil, 1, r.RequestID)
}

func (r *TimeoutRequest) UnmarshalWire(b []byte) error {
	*r = TimeoutRequest{}
	return decode(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeString(typ, b, &r.RequestID)
		}
		return 0, nil
	})
}

// ErrorResponse carries the outcome of an operation that only returns an error.
//
//	message ErrorResponse {
//	  string error_kind = 1;
//	  uint64 leader = 2;
//	}
type ErrorResponse struct {
	ErrorKind string
	Leader    uint64
}

func NewErrorResponse(err error) *ErrorResponse {
	r := &ErrorResponse{ErrorKind: raft.ErrorKind(err)}
	if leader, ok := leaderOf(err); ok {
		r.Leader = uint64(leader)
	}
	return r
}

func (r *ErrorResponse) Err() error {
	return raft.ErrorFromKind(r.ErrorKind, raft.PeerID(r.Leader))
}

func (r *ErrorResponse) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, r.ErrorKind)
	b = appendUint64(b, 2, r.Leader)
	return b
}

func (r *ErrorResponse) UnmarshalWire(b []byte) error {
	*r = ErrorResponse{}
	return decode(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &r.ErrorKind)
		case 2:
			return consumeUint64(typ, b, &r.Leader)
		}
		return 0, nil
	})
}

// BroadcastRequest asks a Leader to replicate an entry to its links.
//
//	message BroadcastRequest {
//	  string request_id = 1;
//	  string entry = 2;
//	}
type BroadcastRequest struct {
	RequestID string
	Entry     string
}

func (r *BroadcastRequest) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, r.RequestID)
	b = appendString(b, 2, r.Entry)
	return b
}

func (r *BroadcastRequest) UnmarshalWire(b []byte) error {
	*r = BroadcastRequest{}
	return decode(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &r.RequestID)
		case 2:
			return consumeString(typ, b, &r.Entry)
		}
		return 0, nil
	})
}

// BroadcastResponse reports how many links accepted a broadcast.
//
//	message BroadcastResponse {
//	  uint64 acked = 1;
//	  string error_kind = 2;
//	}
type BroadcastResponse struct {
	Acked     uint64
	ErrorKind string
}

func (r *BroadcastResponse) MarshalWire() []byte {
	var b []byte
	b = appendUint64(b, 1, r.Acked)
	b = appendString(b, 2, r.ErrorKind)
	return b
}

func (r *BroadcastResponse) UnmarshalWire(b []byte) error {
	*r = BroadcastResponse{}
	return decode(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint64(typ, b, &r.Acked)
		case 2:
			return consumeString(typ, b, &r.ErrorKind)
		}
		return 0, nil
	})
}

// StateRequest asks a peer for a snapshot of its state. It has no fields.
type StateRequest struct{}

func (*StateRequest) MarshalWire() []byte { return nil }

func (r *StateRequest) UnmarshalWire(b []byte) error {
	return decode(b, func(protowire.Number, protowire.Type, []byte) (int, error) { return 0, nil })
}

// StateResponse is a snapshot of a peer's state, its links and its log.
//
//	message StateResponse {
//	  uint64 id = 1;
//	  uint64 role = 2;
//	  uint64 term = 3;
//	  bool has_leader = 4;
//	  uint64 leader = 5;
//	  bool timeout_flag = 6;
//	  repeated uint64 links = 7;
//	  repeated string logs = 8;
//	}
type StateResponse struct {
	ID          uint64
	Role        uint64
	Term        uint64
	HasLeader   bool
	Leader      uint64
	TimeoutFlag bool
	Links       []uint64
	Logs        []string
}

// NewStateResponse encodes a peer snapshot together with its links and log
func NewStateResponse(s raft.State, links []raft.PeerID, logs []raft.LogEntry) *StateResponse {
	r := &StateResponse{
		ID:          uint64(s.ID),
		Role:        uint64(s.Role),
		Term:        s.Term,
		TimeoutFlag: s.TimeoutFlag,
	}
	if leader, ok := s.Leader(); ok {
		r.HasLeader = true
		r.Leader = uint64(leader)
	}
	for _, l := range links {
		r.Links = append(r.Links, uint64(l))
	}
	for _, e := range logs {
		r.Logs = append(r.Logs, string(e))
	}
	return r
}

// State converts the response back into a raft.State
func (r *StateResponse) State() raft.State {
	s := raft.State{
		ID:          raft.PeerID(r.ID),
		Role:        raft.Role(r.Role),
		Term:        r.Term,
		TimeoutFlag: r.TimeoutFlag,
	}
	if r.HasLeader {
		leader := raft.PeerID(r.Leader)
		s.CurrentLeader = &leader
	}
	return s
}

func (r *StateResponse) MarshalWire() []byte {
	var b []byte
	b = appendUint64(b, 1, r.ID)
	b = appendUint64(b, 2, r.Role)
	b = appendUint64(b, 3, r.Term)
	b = appendBool(b, 4, r.HasLeader)
	b = appendUint64(b, 5, r.Leader)
	b = appendBool(b, 6, r.TimeoutFlag)
	b = appendPacked(b, 7, r.Links)
	for _, e := range r.Logs {
		// Empty entries are still entries
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendString(b, e)
	}
	return b
}

func (r *StateResponse) UnmarshalWire(b []byte) error {
	*r = StateResponse{}
	return decode(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeUint64(typ, b, &r.ID)
		case 2:
			return consumeUint64(typ, b, &r.Role)
		case 3:
			return consumeUint64(typ, b, &r.Term)
		case 4:
			return consumeBool(typ, b, &r.HasLeader)
		case 5:
			return consumeUint64(typ, b, &r.Leader)
		case 6:
			return consumeBool(typ, b, &r.TimeoutFlag)
		case 7:
			return consumeUint64s(typ, b, &r.Links)
		case 8:
			var e string
			n, err := consumeString(typ, b, &e)
			if err != nil {
				return 0, err
			}
			r.Logs = append(r.Logs, e)
			return n, nil
		}
		return 0, nil
	})
}

func leaderOf(err error) (raft.PeerID, bool) {
	var elected *raft.AlreadyElectedError
	if errors.As(err, &elected) {
		return elected.Leader, true
	}
	return 0, false
}
