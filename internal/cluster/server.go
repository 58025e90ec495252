package cluster

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/persistence"
	"github.com/entityrt/entityrt/internal/shard"
)

// ShardRegistry is the receiving side's lookup table from a locally-hosted
// ShardId to the shard.ShardRef that owns it, mirroring
// shard.InProcessPeerRouter's registry but used in the opposite direction:
// here it answers "which of my shards does this inbound frame belong to",
// not "which peer owns this remote id".
type ShardRegistry struct {
	mu     sync.RWMutex
	shards map[entityid.ShardId]shard.ShardRef
}

// NewShardRegistry creates an empty registry.
func NewShardRegistry() *ShardRegistry {
	return &ShardRegistry{shards: make(map[entityid.ShardId]shard.ShardRef)}
}

// Register makes ref reachable by its own ShardId.
func (r *ShardRegistry) Register(ref shard.ShardRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.shards[ref.ID()] = ref
}

// Unregister removes a shard, e.g. once it has fully stopped.
func (r *ShardRegistry) Unregister(id entityid.ShardId) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.shards, id)
}

func (r *ShardRegistry) lookup(id entityid.ShardId) (shard.ShardRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, ok := r.shards[id]
	return ref, ok
}

// ServerConfig parameterizes Server, mirroring
// internal/api/grpc/server.go's ServerConfig field-for-field for the
// keepalive knobs.
type ServerConfig struct {
	// ListenAddr is the address to listen on, e.g. "0.0.0.0:7946".
	ListenAddr string

	// ServerPingTime is the duration after which the server pings a
	// silent peer. Defaults to 5 minutes.
	ServerPingTime time.Duration

	// ServerPingTimeout is how long the server waits for a ping ack
	// before considering the connection dead. Defaults to 1 minute.
	ServerPingTimeout time.Duration

	// ClientPingMinWait is the minimum time between client pings.
	// Defaults to 5 seconds.
	ClientPingMinWait time.Duration

	// ClientAllowPingWithoutStream allows pings even without an active
	// stream.
	ClientAllowPingWithoutStream bool

	// Registry resolves an inbound frame's ShardId to a local ShardRef.
	Registry *ShardRegistry

	// Codec frames/unframes shardproto.Op values. Use NewWireCodec.
	Codec *persistence.GobCodec
}

// DefaultServerConfig returns a ServerConfig with the same keepalive
// defaults as internal/api/grpc/server.go's DefaultServerConfig.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:                   "0.0.0.0:7946",
		ServerPingTime:               5 * time.Minute,
		ServerPingTimeout:            1 * time.Minute,
		ClientPingMinWait:            5 * time.Second,
		ClientAllowPingWithoutStream: true,
	}
}

// Server is the receiving half of the peer-shard transport: it accepts a
// bidirectional stream per connected peer and, for each frame that
// arrives, looks up the target ShardId in Registry and Tells it the
// decoded Op.
type Server struct {
	UnimplementedShardTransportServer

	cfg ServerConfig

	grpcServer *grpc.Server
	listener   net.Listener

	mu      sync.RWMutex
	started bool
}

// NewServer constructs an unstarted Server.
func NewServer(cfg ServerConfig) *Server {
	return &Server{cfg: cfg}
}

// Start begins listening and serving.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("cluster: server already started")
	}

	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("cluster: listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = lis

	s.grpcServer = grpc.NewServer(s.buildServerOptions()...)
	registerShardTransportServer(s.grpcServer, s)

	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			log.Debugf("cluster: server stopped serving: %v", err)
		}
	}()

	s.started = true

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.grpcServer.GracefulStop()
	s.started = false
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// buildServerOptions mirrors internal/api/grpc/server.go's keepalive
// wiring, minus the unary/stream interceptor chain that package needs for
// request validation: peer-shard frames have no per-call auth or shutdown
// gate of their own, since a closed listener already stops new streams.
func (s *Server) buildServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    s.cfg.ServerPingTime,
			Timeout: s.cfg.ServerPingTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             s.cfg.ClientPingMinWait,
			PermitWithoutStream: s.cfg.ClientAllowPingWithoutStream,
		}),
	}
}

// Stream implements ShardTransportServer: it decodes every inbound frame
// and Tells it to whichever local shard Registry says owns it, for as long
// as the peer keeps the stream open.
func (s *Server) Stream(stream ShardTransport_StreamServer) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		targetShard, op, err := DecodeFrame(s.cfg.Codec, msg.GetValue())
		if err != nil {
			log.Warnf("cluster: dropping undecodable frame: %v", err)
			continue
		}

		ref, ok := s.cfg.Registry.lookup(targetShard)
		if !ok {
			log.Warnf("cluster: no local shard %s for inbound %T", targetShard, op)
			continue
		}

		ref.Tell(op)
	}
}
