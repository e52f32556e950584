package server

import (
	"context"

	"google.golang.org/grpc"

	"raftcore/internal/raft/wire"
)

const (
	peerServiceName = "raftcore.PeerService"

	deliverFullMethodName   = "/" + peerServiceName + "/Deliver"
	timeoutFullMethodName   = "/" + peerServiceName + "/Timeout"
	broadcastFullMethodName = "/" + peerServiceName + "/Broadcast"
	getStateFullMethodName  = "/" + peerServiceName + "/GetState"
)

// PeerServiceServer is the server API of the peer service. Messages are encoded with the wire codec.
type PeerServiceServer interface {
	// Deliver hands a protocol message to the peer
	Deliver(context.Context, *wire.DeliverRequest) (*wire.DeliverResponse, error)
	// Timeout makes the peer act as if its election timeout expired
	Timeout(context.Context, *wire.TimeoutRequest) (*wire.ErrorResponse, error)
	// Broadcast makes a Leader replicate an entry to its links
	Broadcast(context.Context, *wire.BroadcastRequest) (*wire.BroadcastResponse, error)
	// GetState returns a snapshot of the peer
	GetState(context.Context, *wire.StateRequest) (*wire.StateResponse, error)
}

// RegisterPeerServiceServer registers srv on s
func RegisterPeerServiceServer(s grpc.ServiceRegistrar, srv PeerServiceServer) {
	s.RegisterService(&peerServiceDesc, srv)
}

var peerServiceDesc = grpc.ServiceDesc{
	ServiceName: peerServiceName,
	HandlerType: (*PeerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
		{MethodName: "Timeout", Handler: timeoutHandler},
		{MethodName: "Broadcast", Handler: broadcastHandler},
		{MethodName: "GetState", Handler: getStateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raftcore/peer_service",
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wire.DeliverRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deliverFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PeerServiceServer).Deliver(ctx, req.(*wire.DeliverRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func timeoutHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wire.TimeoutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).Timeout(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: timeoutFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PeerServiceServer).Timeout(ctx, req.(*wire.TimeoutRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func broadcastHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wire.BroadcastRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).Broadcast(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: broadcastFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PeerServiceServer).Broadcast(ctx, req.(*wire.BroadcastRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getStateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wire.StateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).GetState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStateFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PeerServiceServer).GetState(ctx, req.(*wire.StateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// PeerServiceClient is the client API of the peer service
type PeerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewPeerServiceClient(cc grpc.ClientConnInterface) *PeerServiceClient {
	return &PeerServiceClient{cc: cc}
}

// withCodec selects the wire codec for every call, whatever the connection's defaults are
func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(wire.Name)}, opts...)
}

func (c *PeerServiceClient) Deliver(ctx context.Context, in *wire.DeliverRequest, opts ...grpc.CallOption) (*wire.DeliverResponse, error) {
	out := new(wire.DeliverResponse)
	if err := c.cc.Invoke(ctx, deliverFullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PeerServiceClient) Timeout(ctx context.Context, in *wire.TimeoutRequest, opts ...grpc.CallOption) (*wire.ErrorResponse, error) {
	out := new(wire.ErrorResponse)
	if err := c.cc.Invoke(ctx, timeoutFullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PeerServiceClient) Broadcast(ctx context.Context, in *wire.BroadcastRequest, opts ...grpc.CallOption) (*wire.BroadcastResponse, error) {
	out := new(wire.BroadcastResponse)
	if err := c.cc.Invoke(ctx, broadcastFullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PeerServiceClient) GetState(ctx context.Context, in *wire.StateRequest, opts ...grpc.CallOption) (*wire.StateResponse, error) {
	out := new(wire.StateResponse)
	if err := c.cc.Invoke(ctx, getStateFullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
