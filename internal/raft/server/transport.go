package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"raftcore/internal/raft"
	"raftcore/internal/raft/wire"
)

const (
	// RPCTimeout is the maximum time to wait for a single delivery attempt. Broadcast time should be an order of
	// magnitude less than the election timeout (150-300ms), so a 50ms timeout leaves a comfortable margin.
	RPCTimeout = 50 * time.Millisecond

	// MaxDeliverRetries is the number of attempts per delivery. 3 attempts × 50ms stays within the election timeout;
	// a delivery that still fails simply does not count as a vote.
	MaxDeliverRetries = 3

	// RetryBackoffBase is the base duration for the linear backoff between retries
	RetryBackoffBase = 10 * time.Millisecond

	// MaxRetryBackoff is the maximum backoff duration between retries
	MaxRetryBackoff = 100 * time.Millisecond
)

// Transport is a raft.Transport over gRPC. Only transport failures are retried: a response carrying a protocol
// error is returned as is.
type Transport struct {
	// A map to store the underlying grpc.ClientConn for each peer. It is a map[raft.PeerID]*grpc.ClientConn.
	// sync.Map provides thread-safe access to the map, and is optimized for read operations, reducing the overhead of
	// manual locks
	clientsConnPool *sync.Map
	dialOpts        []grpc.DialOption
	logger          raft.Logger
}

var _ raft.Transport = (*Transport)(nil)

// getClientConn retrieves a grpc.ClientConn for the given peer from the connection pool
func (t *Transport) getClientConn(peerID raft.PeerID) (*grpc.ClientConn, error) {
	clientConn, ok := t.clientsConnPool.Load(peerID)
	if !ok {
		return nil, fmt.Errorf("%w: no gRPC client connection for peer %d", raft.ErrUnknownPeer, peerID)
	}

	// We must type assert the value returned by Load, as it is of type `any` by default
	conn, ok := clientConn.(*grpc.ClientConn)
	if !ok {
		return nil, fmt.Errorf("invalid clientConn type for peer %d. Type is %T", peerID, clientConn)
	}

	return conn, nil
}

// Deliver sends msg to the peer to and returns that peer's Response
func (t *Transport) Deliver(ctx context.Context, to raft.PeerID, msg raft.Message) (raft.Response, error) {
	conn, err := t.getClientConn(to)
	if err != nil {
		return raft.Response{}, err
	}

	// Create the client on the fly. This is just a wrapper around the connection
	client := NewPeerServiceClient(conn)

	reqID := uuid.NewString()
	ctx = SetRequestID(ctx, reqID)
	req := wire.NewDeliverRequest(reqID, msg)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < MaxDeliverRetries; attempt++ {
		attempts++
		// Create a new context with timeout for each attempt
		rpcCtx, cancel := context.WithTimeout(ctx, RPCTimeout)
		resp, err := client.Deliver(rpcCtx, req)
		cancel()

		if err == nil {
			return resp.Result()
		}
		lastErr = err

		// The receiver understood the request and refused it, retrying cannot help
		if status.Code(err) == codes.InvalidArgument {
			break
		}

		// Check if parent context is cancelled (e.g., server shutting down)
		select {
		case <-ctx.Done():
			return raft.Response{}, fmt.Errorf("deliver %v to %d cancelled: %w", msg.Type, to, ctx.Err())
		default:
		}

		// Don't sleep after the last attempt
		if attempt < MaxDeliverRetries-1 {
			backoff := RetryBackoffBase * time.Duration(attempt+1)
			if backoff > MaxRetryBackoff {
				backoff = MaxRetryBackoff
			}
			time.Sleep(backoff)
		}
	}

	// Give up - log once here
	t.logger.Debugf("[TRANSPORT] [REQ-%s] Deliver %v to %d failed after %d attempts: %v",
		reqID, msg.Type, to, attempts, lastErr)
	return raft.Response{}, fmt.Errorf("deliver to %d failed after %d attempts: %w", to, attempts, lastErr)
}

// AddPeer registers the peer's address with the resolver and opens a gRPC channel to it. The channel connects
// lazily, so the peer does not need to be up yet.
func (t *Transport) AddPeer(peerID raft.PeerID, peerAddr Address) error {
	// Check if connection already exists
	if _, err := t.getClientConn(peerID); err == nil {
		return nil
	}

	RegisterResolverPeer(peerID, peerAddr)

	conn, err := grpc.NewClient(resolverTarget(peerID), t.dialOpts...)
	if err != nil {
		return fmt.Errorf("failed to establish gRPC connection to peer %d: %w", peerID, err)
	}

	t.clientsConnPool.Store(peerID, conn)
	t.logger.Debugf("[TRANSPORT] Added gRPC connection for peer %d at %s", peerID, peerAddr)
	return nil
}

// CloseAllClients closes all gRPC client connections initiated by the server
func (t *Transport) CloseAllClients() {
	// Range is a thread-safe way to iterate over a sync.Map.
	t.clientsConnPool.Range(func(key, value any) bool {
		if conn, ok := value.(*grpc.ClientConn); ok {
			if err := conn.Close(); err != nil {
				t.logger.Warnf("[TRANSPORT] Failed to close connection to %v: %v", key, err)
			}
		}
		t.clientsConnPool.Delete(key)
		// Return true to continue the iteration.
		return true
	})
	t.logger.Debugf("[TRANSPORT] All gRPC client connections closed")
}

// NewTransport creates a transport with no peers. dialOpts are appended to the defaults (insecure credentials and
// the wire codec), so tests can swap in an in-memory dialer.
func NewTransport(logger raft.Logger, dialOpts ...grpc.DialOption) *Transport {
	if logger == nil {
		logger = raft.DefaultConfig().Logger
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(wire.Name)),
	}
	return &Transport{
		clientsConnPool: &sync.Map{},
		dialOpts:        append(opts, dialOpts...),
		logger:          logger,
	}
}
