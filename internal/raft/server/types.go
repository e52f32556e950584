package server

import (
	"raftcore/internal/pubsub"
	"raftcore/internal/raft"
)

// Address is the network address of a peer's gRPC server
type Address string

// Server events share the pubsub client with the peer's own events, so they start at raft.FirstFreeEventType.
const (
	// ServerShutDown event is sent when the server is shutting down. The payload for this event is an empty struct.
	ServerShutDown pubsub.EventType = raft.FirstFreeEventType + iota
	// ElectionTimeoutExpired is sent when no ReplicateOrHeartbeat was received over an election timeout. The payload
	// is the time the timer fired.
	ElectionTimeoutExpired
)

type serverCtx struct {
	ID   raft.PeerID
	Addr Address
}
