// Package config loads RuntimeOptions from the process environment,
// mirroring cmd/substrated/main.go's flag-based config but for
// environment-driven, container-first deployment of an entity-actor node.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// RuntimeOptions is the full set of environment-driven knobs a node reads
// at startup: shard/mailbox sizing, persistence snapshotting, the gRPC
// peer-shard transport, and the NATS membership bus.
type RuntimeOptions struct {
	// NodeAddress is this node's own dial address, advertised to peers
	// over the membership bus.
	NodeAddress string `env:"ENTITYRT_NODE_ADDRESS" envDefault:"localhost:7946"`

	// ShardMailboxSize sizes each EntityShard's own mailbox.
	ShardMailboxSize int `env:"ENTITYRT_SHARD_MAILBOX_SIZE" envDefault:"256"`

	// EntityMailboxSize sizes each spawned entity's mailbox.
	EntityMailboxSize int `env:"ENTITYRT_ENTITY_MAILBOX_SIZE" envDefault:"64"`

	// EntityInitTimeout bounds each entity's OnInitialize call.
	EntityInitTimeout time.Duration `env:"ENTITYRT_ENTITY_INIT_TIMEOUT" envDefault:"10s"`

	// MaxConcurrentShutdowns bounds how many entities may be mid-shutdown
	// at once per shard. Zero means unbounded.
	MaxConcurrentShutdowns int `env:"ENTITYRT_MAX_CONCURRENT_SHUTDOWNS" envDefault:"0"`

	// SnapshotInterval is the staleness threshold a persisted entity's
	// periodic snapshot check runs against.
	SnapshotInterval time.Duration `env:"ENTITYRT_SNAPSHOT_INTERVAL" envDefault:"5m"`

	// MinScheduledSnapshotInterval is the minimum gap enforced between
	// two scheduled (non-periodic) persists of the same entity.
	MinScheduledSnapshotInterval time.Duration `env:"ENTITYRT_MIN_SCHEDULED_SNAPSHOT_INTERVAL" envDefault:"1s"`

	// PersistenceCompression selects the Compressor a persisted entity's
	// Controller uses: "none" or "zstd".
	PersistenceCompression string `env:"ENTITYRT_PERSISTENCE_COMPRESSION" envDefault:"zstd"`

	// SQLitePath is the PersistedStore's backing database path.
	SQLitePath string `env:"ENTITYRT_SQLITE_PATH" envDefault:"entityrt.db"`

	// ClusterListenAddr is the address internal/cluster.Server listens
	// for the peer-shard gRPC transport on.
	ClusterListenAddr string `env:"ENTITYRT_CLUSTER_LISTEN_ADDR" envDefault:"0.0.0.0:7946"`

	// NATSURL is the NATS server the membership bus connects to.
	NATSURL string `env:"ENTITYRT_NATS_URL" envDefault:"nats://127.0.0.1:4222"`

	// NATSMaxReconnects bounds how many times the membership bus
	// reconnects before giving up. Negative means unlimited.
	NATSMaxReconnects int `env:"ENTITYRT_NATS_MAX_RECONNECTS" envDefault:"-1"`

	// NATSReconnectWait is the delay between membership bus reconnect
	// attempts.
	NATSReconnectWait time.Duration `env:"ENTITYRT_NATS_RECONNECT_WAIT" envDefault:"2s"`

	// MetricsListenAddr is where the Prometheus /metrics endpoint is
	// served (empty disables it).
	MetricsListenAddr string `env:"ENTITYRT_METRICS_LISTEN_ADDR" envDefault:":9090"`

	// AdminUIListenAddr is where internal/adminui's websocket hub is
	// served (empty disables it).
	AdminUIListenAddr string `env:"ENTITYRT_ADMINUI_LISTEN_ADDR" envDefault:":9091"`

	// LogLevel is the btclog level name applied to every package's
	// sub-system logger.
	LogLevel string `env:"ENTITYRT_LOG_LEVEL" envDefault:"info"`
}

// Load reads RuntimeOptions from the process environment, applying
// envDefault values for anything unset, then validates the result.
func Load() (*RuntimeOptions, error) {
	opts := &RuntimeOptions{}

	if err := env.Parse(opts); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return opts, nil
}

// Validate checks RuntimeOptions for internally-inconsistent or
// out-of-range values that env.Parse's type checking alone can't catch.
func (o *RuntimeOptions) Validate() error {
	if o.ShardMailboxSize < 1 {
		return fmt.Errorf("ENTITYRT_SHARD_MAILBOX_SIZE must be > 0, got %d", o.ShardMailboxSize)
	}

	if o.EntityMailboxSize < 1 {
		return fmt.Errorf("ENTITYRT_ENTITY_MAILBOX_SIZE must be > 0, got %d", o.EntityMailboxSize)
	}

	if o.MaxConcurrentShutdowns < 0 {
		return fmt.Errorf(
			"ENTITYRT_MAX_CONCURRENT_SHUTDOWNS must be >= 0, got %d",
			o.MaxConcurrentShutdowns)
	}

	switch o.PersistenceCompression {
	case "none", "zstd":
	default:
		return fmt.Errorf(
			"ENTITYRT_PERSISTENCE_COMPRESSION must be one of: none, zstd (got %q)",
			o.PersistenceCompression)
	}

	switch o.LogLevel {
	case "trace", "debug", "info", "warn", "error", "critical", "off":
	default:
		return fmt.Errorf(
			"ENTITYRT_LOG_LEVEL must be a valid btclog level (got %q)", o.LogLevel)
	}

	return nil
}
