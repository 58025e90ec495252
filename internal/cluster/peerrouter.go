package cluster

import (
	"context"
	"fmt"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/persistence"
	"github.com/entityrt/entityrt/internal/shard"
	"github.com/entityrt/entityrt/internal/shardproto"
)

// PeerRouterConfig parameterizes a PeerRouter.
type PeerRouterConfig struct {
	// Resolve answers "which node address owns this shard", typically
	// backed by a ClusterConfig's ShardsForKind.
	Resolve func(id entityid.ShardId) (NodeAddress, bool)

	// Codec frames/unframes shardproto.Op values. Use NewWireCodec.
	Codec *persistence.GobCodec

	// DialOptions are appended after this package's own keepalive
	// defaults, e.g. for TLS transport credentials in production.
	DialOptions []grpc.DialOption
}

// PeerRouter implements shard.PeerRouter over the gRPC peer-shard
// transport: RouteOp resolves target's owning node, lazily dials and opens
// one long-lived client stream per peer, and sends the encoded frame over
// it. It is the cross-node counterpart to shard.InProcessPeerRouter.
type PeerRouter struct {
	cfg PeerRouterConfig

	mu     sync.Mutex
	conns  map[NodeAddress]*grpc.ClientConn
	stream map[NodeAddress]ShardTransport_StreamClient
}

var _ shard.PeerRouter = (*PeerRouter)(nil)

// NewPeerRouter creates a PeerRouter with no open connections; they are
// established lazily on first use.
func NewPeerRouter(cfg PeerRouterConfig) *PeerRouter {
	return &PeerRouter{
		cfg:    cfg,
		conns:  make(map[NodeAddress]*grpc.ClientConn),
		stream: make(map[NodeAddress]ShardTransport_StreamClient),
	}
}

// RouteOp implements shard.PeerRouter.
func (r *PeerRouter) RouteOp(target entityid.ShardId, op shardproto.Op) {
	addr, ok := r.cfg.Resolve(target)
	if !ok {
		log.Warnf("cluster: no node hosts %s, dropping %T", target, op)
		return
	}

	data, err := EncodeFrame(r.cfg.Codec, target, op)
	if err != nil {
		log.Errorf("cluster: %v", err)
		return
	}

	stream, err := r.streamTo(addr)
	if err != nil {
		log.Errorf("cluster: dial %s: %v", addr, err)
		return
	}

	if err := stream.Send(&wrapperspb.BytesValue{Value: data}); err != nil {
		log.Warnf("cluster: send to %s failed, will redial: %v", addr, err)
		r.evict(addr)
	}
}

// Close tears down every open connection.
func (r *PeerRouter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for addr, conn := range r.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.conns, addr)
		delete(r.stream, addr)
	}

	return firstErr
}

func (r *PeerRouter) streamTo(addr NodeAddress) (ShardTransport_StreamClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stream[addr]; ok {
		return s, nil
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			PermitWithoutStream: true,
		}),
	}, r.cfg.DialOptions...)

	conn, err := grpc.NewClient(string(addr), opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	client := NewShardTransportClient(conn)

	stream, err := client.Stream(context.Background())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open stream to %s: %w", addr, err)
	}

	r.conns[addr] = conn
	r.stream[addr] = stream

	// This side never sends anything of interest back over a
	// client-initiated stream (replies travel as their own RouteOp call
	// on the receiving node's own PeerRouter), but the stream must still
	// be drained so a broken connection is detected and evicted instead
	// of silently wedging future sends.
	go r.drain(addr, stream)

	return stream, nil
}

func (r *PeerRouter) drain(addr NodeAddress, stream ShardTransport_StreamClient) {
	for {
		if _, err := stream.Recv(); err != nil {
			if err != io.EOF {
				log.Debugf("cluster: stream to %s closed: %v", addr, err)
			}
			r.evict(addr)
			return
		}
	}
}

func (r *PeerRouter) evict(addr NodeAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[addr]; ok {
		conn.Close()
	}
	delete(r.conns, addr)
	delete(r.stream, addr)
}

// ResolveViaClusterConfig builds a Resolve function for PeerRouterConfig
// backed by a live ClusterConfig, mapping a ShardId to
// cfg.ShardsForKind(kind)[index].
func ResolveViaClusterConfig(cfg ClusterConfig) func(entityid.ShardId) (NodeAddress, bool) {
	return func(id entityid.ShardId) (NodeAddress, bool) {
		if id.IsProxy() {
			return "", false
		}

		addrs := cfg.ShardsForKind(id.Kind)
		if id.Index < 0 || int(id.Index) >= len(addrs) {
			return "", false
		}

		return addrs[id.Index], true
	}
}
