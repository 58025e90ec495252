package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entityrt/entityrt/internal/adminui"
	baseactor "github.com/entityrt/entityrt/internal/baselib/actor"
	"github.com/entityrt/entityrt/internal/build"
	"github.com/entityrt/entityrt/internal/cluster"
	"github.com/entityrt/entityrt/internal/config"
	"github.com/entityrt/entityrt/internal/dispatch"
	"github.com/entityrt/entityrt/internal/entityactor"
	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/metrics"
	"github.com/entityrt/entityrt/internal/shard"
	"github.com/entityrt/entityrt/internal/sharding"
)

func main() {
	opts, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logRotator := build.NewRotatingLogWriter()
	if err := logRotator.InitLogRotator(&build.LogRotatorConfig{
		LogDir:         "./logs",
		MaxLogFiles:    build.DefaultMaxLogFiles,
		MaxLogFileSize: build.DefaultMaxLogFileSize,
	}); err != nil {
		log.Printf("Failed to init log rotator: %v (continuing without file logging)", err)
		logRotator = nil
	} else {
		defer logRotator.Close()
	}

	var handlers []btclog.Handler
	handlers = append(handlers, btclog.NewDefaultHandler(os.Stderr))
	if logRotator != nil {
		handlers = append(handlers, btclog.NewDefaultHandler(io.Writer(logRotator)))
	}
	combined := build.NewHandlerSet(handlers...)

	combined.SetLevel(logLevelFromName(opts.LogLevel))

	rootLogger := btclog.NewSLogger(combined)

	baseactor.UseLogger(rootLogger.WithPrefix("ACTR"))
	entityactor.UseLogger(rootLogger.WithPrefix("ENTA"))
	shard.UseLogger(rootLogger.WithPrefix("SHRD"))
	cluster.UseLogger(rootLogger.WithPrefix("CLUS"))
	adminui.UseLogger(rootLogger.WithPrefix("ADMN"))

	log.Printf("entityrtd starting: node=%s cluster=%s nats=%s",
		opts.NodeAddress, opts.ClusterListenAddr, opts.NATSURL)

	reg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down", sig)
		cancel()
	}()

	clusterCfg, err := cluster.NewNATSClusterConfig(cluster.NATSConfig{
		URL:             opts.NATSURL,
		MaxReconnects:   opts.NATSMaxReconnects,
		ReconnectWait:   opts.NATSReconnectWait,
		ReconnectJitter: time.Second,
		MaxPingsOut:     2,
		PingInterval:    30 * time.Second,
		Shards: map[entityid.Kind][]cluster.NodeAddress{
			systemKind: {cluster.NodeAddress(opts.NodeAddress)},
		},
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS membership bus: %v", err)
	}
	defer clusterCfg.Close()

	go watchMembership(ctx, clusterCfg, recorder)

	codec := cluster.NewWireCodec()
	registry := cluster.NewShardRegistry()

	transportCfg := cluster.DefaultServerConfig()
	transportCfg.ListenAddr = opts.ClusterListenAddr
	transportCfg.Registry = registry
	transportCfg.Codec = codec

	transportSrv := cluster.NewServer(transportCfg)
	if err := transportSrv.Start(); err != nil {
		log.Fatalf("Failed to start peer-shard transport: %v", err)
	}
	defer transportSrv.Stop()
	log.Printf("Peer-shard transport listening on %s", transportSrv.Addr())

	peerRouter := cluster.NewPeerRouter(cluster.PeerRouterConfig{
		Resolve: cluster.ResolveViaClusterConfig(clusterCfg),
		Codec:   codec,
	})
	defer peerRouter.Close()

	strategy := sharding.NewModulo(systemKind, 1)

	sh := shard.New(ctx, shard.Config[systemState]{
		ShardID:                entityid.ShardId{Kind: systemKind, Index: 0},
		Strategy:               strategy,
		Peers:                  peerRouter,
		NewState:               newSystemState,
		Dispatcher:             buildSystemDispatcher(),
		ShutdownPolicy:         entityactor.Never(),
		MaxConcurrentShutdowns: opts.MaxConcurrentShutdowns,
		EntityMailboxSize:      opts.EntityMailboxSize,
		ShardMailboxSize:       opts.ShardMailboxSize,
		EntityInitTimeout:      opts.EntityInitTimeout,
		Metrics:                recorder,
	})
	registry.Register(sh)
	defer registry.Unregister(sh.ID())

	statsSource := &shardStatsSource{shards: []entityid.ShardId{sh.ID()}}
	hub := adminui.NewHub(statsSource, 5*time.Second)
	go hub.Run()
	defer hub.Stop()

	var servers []*http.Server

	if opts.MetricsListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{Addr: opts.MetricsListenAddr, Handler: mux}
		servers = append(servers, metricsSrv)

		go func() {
			log.Printf("Metrics server listening on %s", opts.MetricsListenAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	if opts.AdminUIListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", adminui.NewServer(hub))
		adminSrv := &http.Server{Addr: opts.AdminUIListenAddr, Handler: mux}
		servers = append(servers, adminSrv)

		go func() {
			log.Printf("Admin UI listening on %s", opts.AdminUIListenAddr)
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Admin UI server error: %v", err)
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}

	sh.Stop(shutdownCtx)

	log.Println("entityrtd stopped")
}

// watchMembership relays cluster membership events into the metrics
// registry's node-joined/node-lost counters.
func watchMembership(ctx context.Context, clusterCfg *cluster.NATSClusterConfig, recorder *metrics.Recorder) {
	events, err := clusterCfg.Events(ctx)
	if err != nil {
		log.Printf("Failed to subscribe to membership events: %v", err)
		return
	}

	for ev := range events {
		switch ev.Kind {
		case cluster.NodeJoined:
			recorder.RecordNodeJoined()
		case cluster.NodeLost:
			recorder.RecordNodeLost()
		}
	}
}

// shardStatsSource adapts a node's own shard identities into an
// adminui.StatsSource. Per-shard counters are served in depth by the
// Prometheus /metrics endpoint; this just identifies which shards a
// console should expect to see there.
type shardStatsSource struct {
	shards []entityid.ShardId
}

func (s *shardStatsSource) Snapshot() []adminui.ShardStats {
	out := make([]adminui.ShardStats, 0, len(s.shards))
	for _, id := range s.shards {
		out = append(out, adminui.ShardStats{
			Kind:  string(id.Kind),
			Index: id.Index,
		})
	}
	return out
}

// logLevelFromName maps a RuntimeOptions.LogLevel name (already validated
// by config.Validate) to its btclog.Level.
func logLevelFromName(name string) btclog.Level {
	switch name {
	case "trace":
		return btclog.LevelTrace
	case "debug":
		return btclog.LevelDebug
	case "warn":
		return btclog.LevelWarn
	case "error":
		return btclog.LevelError
	case "critical":
		return btclog.LevelCritical
	case "off":
		return btclog.LevelOff
	default:
		return btclog.LevelInfo
	}
}

const systemKind entityid.Kind = "System"

// systemState is the node's own built-in singleton entity, used as a
// liveness/ping target reachable the same way any game entity would be:
// over Ask, through the shard and peer-shard transport.
type systemState struct {
	*entityactor.Base

	startedAt time.Time
}

func newSystemState(base *entityactor.Base) *systemState {
	return &systemState{Base: base}
}

func (s *systemState) OnInitialize(ctx context.Context) error {
	s.startedAt = time.Now()
	return nil
}

type pingSystem struct{}

type pongSystem struct {
	UptimeSeconds float64
}

func buildSystemDispatcher() *dispatch.Dispatcher[systemState] {
	b := dispatch.NewBuilder[systemState]()

	err := dispatch.RegisterAsk[systemState, pingSystem, pongSystem](b,
		func(ctx context.Context, s *systemState, sender *entityid.EntityId,
			msg pingSystem,
		) (pongSystem, error) {
			return pongSystem{UptimeSeconds: time.Since(s.startedAt).Seconds()}, nil
		})
	if err != nil {
		log.Fatalf("Failed to register system dispatcher: %v", err)
	}

	err = dispatch.RegisterMessage[systemState, entityactor.WatchedEntityTerminated](b,
		func(ctx context.Context, s *systemState, sender *entityid.EntityId,
			msg entityactor.WatchedEntityTerminated,
		) error {
			return nil
		})
	if err != nil {
		log.Fatalf("Failed to register system dispatcher: %v", err)
	}

	return b.Build()
}
