package server

import (
	"context"
	"fmt"

	"raftcore/internal"
	"raftcore/internal/raft"
)

var (
	requestIDKey  = internal.NewKey[string]("requestID")
	serverIDKey   = internal.NewKey[raft.PeerID]("serverID")
	serverAddrKey = internal.NewKey[Address]("serverAddr")
)

// SetRequestID tags ctx with the id of the delivery it serves, so log lines on both ends can be correlated
func SetRequestID(ctx context.Context, id string) context.Context {
	return requestIDKey.With(ctx, id)
}

func GetRequestID(ctx context.Context) (string, bool) {
	return requestIDKey.From(ctx)
}

func SetServerID(ctx context.Context, id raft.PeerID) context.Context {
	return serverIDKey.With(ctx, id)
}

func GetServerID(ctx context.Context) (raft.PeerID, bool) {
	return serverIDKey.From(ctx)
}

func SetServerAddr(ctx context.Context, addr Address) context.Context {
	return serverAddrKey.With(ctx, addr)
}

func GetServerAddr(ctx context.Context) (Address, bool) {
	return serverAddrKey.From(ctx)
}

// logPrefix renders the "[SERVER-<id>@<addr>] [REQ-<id>]" prefix from what the interceptors stored on ctx
func logPrefix(ctx context.Context) string {
	id, _ := GetServerID(ctx)
	addr, ok := GetServerAddr(ctx)
	if !ok {
		addr = "?"
	}
	reqID, ok := GetRequestID(ctx)
	if !ok {
		reqID = "-"
	}
	return fmt.Sprintf("[SERVER-%d@%s] [REQ-%s]", id, addr, reqID)
}
