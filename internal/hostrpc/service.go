package hostrpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName matches the spec's SshxService (§6).
const ServiceName = "shareterm.SshxService"

// Server is implemented by the coordinator-facing handler that backs the
// SshxService RPCs.
type Server interface {
	Open(context.Context, *OpenRequest) (*OpenResponse, error)
	Close(context.Context, *CloseRequest) (*CloseResponse, error)
	Channel(ChannelServerStream) error
}

// ChannelServerStream is the server side of the bidirectional Channel RPC.
type ChannelServerStream interface {
	Send(*ServerUpdate) error
	Recv() (*ClientUpdate, error)
	Context() context.Context
}

// ChannelClientStream is the host side of the bidirectional Channel RPC.
type ChannelClientStream interface {
	Send(*ClientUpdate) error
	Recv() (*ServerUpdate, error)
	Context() context.Context
	CloseSend() error
}

type channelServerStream struct {
	grpc.ServerStream
}

func (s *channelServerStream) Send(m *ServerUpdate) error { return s.ServerStream.SendMsg(m) }
func (s *channelServerStream) Recv() (*ClientUpdate, error) {
	m := new(ClientUpdate)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type channelClientStream struct {
	grpc.ClientStream
}

func (s *channelClientStream) Send(m *ClientUpdate) error { return s.ClientStream.SendMsg(m) }
func (s *channelClientStream) Recv() (*ServerUpdate, error) {
	m := new(ServerUpdate)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func openHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(OpenRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Open(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Open"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Open(ctx, req.(*OpenRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func closeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(CloseRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Close(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Close"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Close(ctx, req.(*CloseRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func channelHandler(srv any, stream grpc.ServerStream) error {
	return srv.(Server).Channel(&channelServerStream{ServerStream: stream})
}

// ServiceDesc is the hand-written analogue of what protoc-gen-go-grpc would
// emit from a .proto file — no .proto exists in this repo; the codec above
// lets grpc-go carry plain structs instead of generated proto.Message types.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Open", Handler: openHandler},
		{MethodName: "Close", Handler: closeHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Channel",
			Handler:       channelHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

// RegisterServer registers srv with s under the SshxService descriptor.
func RegisterServer(s *grpc.Server, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client is the host-side stub for SshxService.
type Client struct {
	cc *grpc.ClientConn
}

// NewClient wraps an existing connection. Callers dial with
// grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)) so every
// call on this stub negotiates the JSON codec.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

func (c *Client) Open(ctx context.Context, req *OpenRequest, opts ...grpc.CallOption) (*OpenResponse, error) {
	resp := new(OpenResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Open", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Close(ctx context.Context, req *CloseRequest, opts ...grpc.CallOption) (*CloseResponse, error) {
	resp := new(CloseResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Close", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Channel(ctx context.Context, opts ...grpc.CallOption) (ChannelClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/Channel", opts...)
	if err != nil {
		return nil, err
	}
	return &channelClientStream{ClientStream: stream}, nil
}
