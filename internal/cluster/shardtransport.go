package cluster

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// shardTransportServiceName is the gRPC full service name peers dial,
// mirroring how internal/api/grpc/server.go registers its RPC services
// against a fixed ServiceDesc built at init time rather than per-request.
const shardTransportServiceName = "entityrt.cluster.ShardTransport"

// ShardTransportServer is the peer-facing side of the cross-node shard
// transport: one long-lived bidirectional stream per peer connection,
// carrying wireFrame-encoded shardproto.Op values both ways. There is no
// .proto source behind this service: wrapperspb.BytesValue (a message type
// google.golang.org/protobuf ships pre-generated) is reused as the wire
// envelope, so the gRPC proto codec has a real proto.Message to marshal
// without this codebase needing to run protoc anywhere in its build.
type ShardTransportServer interface {
	Stream(ShardTransport_StreamServer) error
}

// UnimplementedShardTransportServer can be embedded to satisfy
// ShardTransportServer for forward compatibility, the same embedding idiom
// internal/api/grpc/server.go's Server uses for its own Unimplemented*
// types.
type UnimplementedShardTransportServer struct{}

func (UnimplementedShardTransportServer) Stream(ShardTransport_StreamServer) error {
	return nil
}

// ShardTransport_StreamServer is the server-side handle for one peer's
// bidirectional stream.
type ShardTransport_StreamServer interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ServerStream
}

type shardTransportStreamServer struct {
	grpc.ServerStream
}

func (x *shardTransportStreamServer) Send(m *wrapperspb.BytesValue) error {
	return x.ServerStream.SendMsg(m)
}

func (x *shardTransportStreamServer) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}

	return m, nil
}

func registerShardTransportServer(s grpc.ServiceRegistrar, srv ShardTransportServer) {
	s.RegisterService(&shardTransportServiceDesc, srv)
}

func shardTransportStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ShardTransportServer).Stream(&shardTransportStreamServer{stream})
}

var shardTransportServiceDesc = grpc.ServiceDesc{
	ServiceName: shardTransportServiceName,
	HandlerType: (*ShardTransportServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       shardTransportStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "internal/cluster/shardtransport.go",
}

// ShardTransportClient is the dialing side's handle on the service.
type ShardTransportClient interface {
	Stream(ctx context.Context, opts ...grpc.CallOption) (ShardTransport_StreamClient, error)
}

type shardTransportClient struct {
	cc grpc.ClientConnInterface
}

// NewShardTransportClient wraps an already-dialed connection.
func NewShardTransportClient(cc grpc.ClientConnInterface) ShardTransportClient {
	return &shardTransportClient{cc: cc}
}

func (c *shardTransportClient) Stream(ctx context.Context,
	opts ...grpc.CallOption,
) (ShardTransport_StreamClient, error) {

	stream, err := c.cc.NewStream(ctx, &shardTransportServiceDesc.Streams[0],
		"/"+shardTransportServiceName+"/Stream", opts...)
	if err != nil {
		return nil, err
	}

	return &shardTransportStreamClient{stream}, nil
}

// ShardTransport_StreamClient is the dialing side's handle on one stream.
type ShardTransport_StreamClient interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ClientStream
}

type shardTransportStreamClient struct {
	grpc.ClientStream
}

func (x *shardTransportStreamClient) Send(m *wrapperspb.BytesValue) error {
	return x.ClientStream.SendMsg(m)
}

func (x *shardTransportStreamClient) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}

	return m, nil
}
