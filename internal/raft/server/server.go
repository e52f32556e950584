package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"raftcore/internal/pubsub"
	"raftcore/internal/raft"
	"raftcore/internal/raft/wire"
)

// Server runs one raft.Peer behind a gRPC endpoint. Inbound Deliver calls reach the peer's message handler, and the
// peer reaches its links through a gRPC Transport. Background jobs drive elections and heartbeats.
type Server struct {
	// The ID of the peer in the cluster
	ID raft.PeerID
	// The network address of the server. It is known once the server is started.
	Address Address

	peer *raft.Peer
	// Transport is the transport layer used for sending messages to the links
	transport *Transport
	// The other servers in the cluster, in link order
	peers []PeerAddr
	// The underlying gRPC server used for receiving messages
	grpcServer *grpc.Server
	// electionTimeoutTimer fires when no ReplicateOrHeartbeat was received over an election timeout. It is created
	// on Start.
	electionTimeoutTimer *time.Timer
	timerMu              sync.Mutex
	// pubSub is used to send events about the state of the server to subscribed listeners
	pubSub     *pubsub.PubSubClient
	ownsPubSub bool

	cfg    ServerConfig
	logger raft.Logger

	// Guards starting the jobs against a concurrent shutdown
	lifecycleMu sync.Mutex
	stopped     bool
	jobs        sync.WaitGroup
}

var _ PeerServiceServer = (*Server)(nil)

// NewServer creates a server and its peer, linked to every entry of cfg.Peers. Nothing is started.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if err := validateServerConfig(cfg); err != nil {
		return nil, err
	}
	c := withServerDefaults(cfg)

	s := &Server{
		ID:     c.ID,
		pubSub: c.PubSub,
		cfg:    c,
		logger: c.Logger,
	}
	if s.pubSub == nil {
		s.pubSub = pubsub.NewPubSub()
		s.ownsPubSub = true
	}

	peer, err := raft.NewWithConfig(c.ID, &raft.Config{
		Logger:       c.Logger,
		Metrics:      c.Metrics,
		Events:       s.pubSub,
		LogStore:     c.LogStore,
		VoteCounting: c.VoteCounting,
	})
	if err != nil {
		s.closePubSub()
		return nil, err
	}
	s.peer = peer

	s.transport = NewTransport(c.Logger, c.DialOptions...)
	for _, p := range c.Peers {
		if p.ID == c.ID {
			continue
		}
		if err := s.transport.AddPeer(p.ID, p.Address); err != nil {
			s.transport.CloseAllClients()
			s.closePubSub()
			return nil, err
		}
		s.peers = append(s.peers, p)
		peer.Connect(p.ID)
	}
	peer.SetTransport(s.transport)

	opts := append([]grpc.ServerOption{
		grpc.ConnectionTimeout(time.Second * 30),
		grpc.ChainUnaryInterceptor(s.contextInterceptor),
	}, c.ServerOptions...)
	s.grpcServer = grpc.NewServer(opts...)
	RegisterPeerServiceServer(s.grpcServer, s)

	return s, nil
}

// Peer returns the peer run by the server
func (s *Server) Peer() *raft.Peer {
	return s.peer
}

// contextInterceptor tags every inbound call's context with the server's identity
func (s *Server) contextInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	ctx = SetServerID(ctx, s.ID)
	ctx = SetServerAddr(ctx, s.Address)
	return handler(ctx, req)
}

// Deliver handles a protocol message from another peer
func (s *Server) Deliver(ctx context.Context, req *wire.DeliverRequest) (*wire.DeliverResponse, error) {
	ctx = SetRequestID(ctx, req.RequestID)
	msg := req.Message()

	resp, err := s.peer.HandleMessage(msg)
	if err != nil && raft.ErrorKind(err) == "" {
		return nil, s.internalError(ctx, err)
	}

	if err == nil && msg.Type == raft.ReplicateOrHeartbeatMsg {
		// Communication from a leader, the election timeout starts over
		s.resetElectionTimer()
	}
	return wire.NewDeliverResponse(resp, err), nil
}

// Timeout runs OnTimeout on the peer, as if its election timeout had expired
func (s *Server) Timeout(ctx context.Context, req *wire.TimeoutRequest) (*wire.ErrorResponse, error) {
	ctx = SetRequestID(ctx, req.RequestID)

	err := s.peer.OnTimeout(ctx)
	if err != nil && raft.ErrorKind(err) == "" {
		return nil, s.internalError(ctx, err)
	}
	return wire.NewErrorResponse(err), nil
}

// Broadcast makes a Leader replicate an entry to its links
func (s *Server) Broadcast(ctx context.Context, req *wire.BroadcastRequest) (*wire.BroadcastResponse, error) {
	ctx = SetRequestID(ctx, req.RequestID)

	acked, err := s.peer.Broadcast(ctx, raft.LogEntry(req.Entry))
	if err != nil && raft.ErrorKind(err) == "" {
		return nil, s.internalError(ctx, err)
	}
	return &wire.BroadcastResponse{Acked: uint64(acked), ErrorKind: raft.ErrorKind(err)}, nil
}

// GetState returns a snapshot of the peer, its links and its log
func (s *Server) GetState(ctx context.Context, _ *wire.StateRequest) (*wire.StateResponse, error) {
	logs, err := s.peer.Logs()
	if err != nil {
		return nil, s.internalError(ctx, err)
	}
	return wire.NewStateResponse(s.peer.Snapshot(), s.peer.Links(), logs), nil
}

// internalError maps an error that is not part of the protocol to a gRPC status
func (s *Server) internalError(ctx context.Context, err error) error {
	if errors.Is(err, raft.ErrUnknownMessage) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Errorf("%s %v", logPrefix(ctx), err)
	return status.Error(codes.Internal, err.Error())
}

func (s *Server) electionTimeout() time.Duration {
	return raft.ElectionTimeout(s.cfg.ElectionTimeoutMin, s.cfg.ElectionTimeoutMax)
}

func (s *Server) resetElectionTimer() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.electionTimeoutTimer != nil {
		s.electionTimeoutTimer.Reset(s.electionTimeout())
	}
}

// Start serves on lis and runs the background jobs. It blocks until the server is shut down, and fails with
// grpc.ErrServerStopped if it already was.
func (s *Server) Start(lis net.Listener) error {
	s.lifecycleMu.Lock()
	if s.stopped {
		s.lifecycleMu.Unlock()
		lis.Close()
		return grpc.ErrServerStopped
	}
	// Assign the address to the server, as the port may be randomly chosen
	s.Address = Address(lis.Addr().String())

	s.timerMu.Lock()
	s.electionTimeoutTimer = time.NewTimer(s.electionTimeout())
	s.timerMu.Unlock()

	ctx := serverCtx{ID: s.ID, Addr: s.Address}
	orchestrator := NewOrchestrator(s.pubSub, s.peer, s.cfg.ElectionTimeoutMax, s.logger)
	timeoutStop := newStopJobCh(s.pubSub)
	heartbeatStop := newStopJobCh(s.pubSub)

	s.jobs.Add(3)
	go func() {
		defer s.jobs.Done()
		orchestrator.Run()
	}()
	// Track ElectionTimeout on the background, while waiting for heartbeats from a leader
	go func() {
		defer s.jobs.Done()
		TrackElectionTimeoutJob(ctx, s.peer, s.electionTimeoutTimer, s.resetElectionTimer, s.pubSub, timeoutStop, s.logger)
	}()
	go func() {
		defer s.jobs.Done()
		HeartbeatJob(ctx, s.peer, s.cfg.HeartbeatInterval, heartbeatStop, s.logger)
	}()

	s.lifecycleMu.Unlock()

	s.logger.Infof("[SERVER-%d] Raft node running on %s with peers %v", s.ID, s.Address, s.peers)

	// This one blocks as under the hood there is a call to lis.Accept which is a blocking operation.
	return s.grpcServer.Serve(lis)
}

// StartServer starts the server on the given localhost port. Port 0 picks a free one.
func (s *Server) StartServer(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return err
	}
	return s.Start(lis)
}

// GracefulShutdown waits for pending calls to finish, then stops the jobs
func (s *Server) GracefulShutdown() {
	s.shutdown("gracefully", s.grpcServer.GracefulStop)
}

// ForceShutdown cancels pending calls, then stops the jobs. It also ends a GracefulShutdown that is still waiting.
func (s *Server) ForceShutdown() {
	s.shutdown("forcefully", s.grpcServer.Stop)
}

func (s *Server) shutdown(how string, stop func()) {
	s.lifecycleMu.Lock()
	if s.stopped {
		s.lifecycleMu.Unlock()
		// A forced shutdown still cuts a pending graceful one short
		stop()
		return
	}
	s.stopped = true
	s.lifecycleMu.Unlock()

	s.logger.Infof("[SERVER-%d] Shutting down %s", s.ID, how)
	// First, stop accepting new incoming requests, in order to prevent interrupting a pending response to a peer
	stop()
	// Then, close all outbound client connections
	s.transport.CloseAllClients()
	// Send a signal to all listeners that the server is shutting down
	pubsub.Publish(s.pubSub, pubsub.NewEvent(ServerShutDown, struct{}{}))
	s.jobs.Wait()
	s.closePubSub()
}

func (s *Server) closePubSub() {
	if s.ownsPubSub {
		s.pubSub.GracefulShutdown()
	}
}
