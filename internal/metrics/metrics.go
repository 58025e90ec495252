// Package metrics implements the Prometheus-backed concrete
// shard.ShardMetrics and persistence.MetricsRecorder this runtime exports:
// shutdown-throttle depth, ask in-flight count, live entity count,
// non-final-restore count, and schema-migration count (spec.md §4.8/§4.9).
// It is grounded on adred-codev-ws_poc/go-server's internal/metrics
// package, the only metrics package in the retrieved examples built on
// promauto rather than hand-registered collectors.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/persistence"
	"github.com/entityrt/entityrt/internal/shard"
)

// Recorder is this runtime's concrete metrics sink, wired into every
// EntityShard's Config.Metrics and every PersistedEntityActor's
// Controller.Metrics.
type Recorder struct {
	shutdownThrottleDepth *prometheus.GaugeVec
	askInFlight           *prometheus.GaugeVec
	liveEntityCount       *prometheus.GaugeVec

	nonFinalRestores *prometheus.CounterVec
	schemaMigrations *prometheus.CounterVec

	clusterNodeLost   prometheus.Counter
	clusterNodeJoined prometheus.Counter
}

var _ shard.ShardMetrics = (*Recorder)(nil)
var _ persistence.MetricsRecorder = (*Recorder)(nil)

// NewRecorder registers every collector against reg and returns a Recorder
// backed by it. Pass prometheus.DefaultRegisterer for the process-global
// registry, or a fresh prometheus.NewRegistry() in tests to avoid
// re-registration panics across test runs.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		shutdownThrottleDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "entityrt_shard_shutdown_throttle_depth",
			Help: "Number of entities queued behind MaxConcurrentShutdowns on a shard.",
		}, []string{"kind", "shard"}),
		askInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "entityrt_shard_ask_in_flight",
			Help: "Number of AskRequests a shard has forwarded but not yet resolved.",
		}, []string{"kind", "shard"}),
		liveEntityCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "entityrt_shard_live_entity_count",
			Help: "Number of entities currently hosted by a shard, any status.",
		}, []string{"kind", "shard"}),
		nonFinalRestores: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entityrt_persistence_non_final_restores_total",
			Help: "Restores that loaded a record whose schema version was below the migrator range's minimum.",
		}, []string{"kind"}),
		schemaMigrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entityrt_persistence_schema_migrations_total",
			Help: "Individual schema migration steps applied during Restore.",
		}, []string{"kind", "from_version", "to_version"}),
		clusterNodeLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "entityrt_cluster_node_lost_total",
			Help: "Membership events observed announcing a node left the cluster.",
		}),
		clusterNodeJoined: factory.NewCounter(prometheus.CounterOpts{
			Name: "entityrt_cluster_node_joined_total",
			Help: "Membership events observed announcing a node joined the cluster.",
		}),
	}
}

// SetShutdownThrottleDepth implements shard.ShardMetrics.
func (r *Recorder) SetShutdownThrottleDepth(id entityid.ShardId, depth int) {
	r.shutdownThrottleDepth.WithLabelValues(string(id.Kind), id.String()).Set(float64(depth))
}

// SetAskInFlight implements shard.ShardMetrics.
func (r *Recorder) SetAskInFlight(id entityid.ShardId, count int) {
	r.askInFlight.WithLabelValues(string(id.Kind), id.String()).Set(float64(count))
}

// SetLiveEntityCount implements shard.ShardMetrics.
func (r *Recorder) SetLiveEntityCount(id entityid.ShardId, count int) {
	r.liveEntityCount.WithLabelValues(string(id.Kind), id.String()).Set(float64(count))
}

// RecordNonFinalRestore implements persistence.MetricsRecorder.
func (r *Recorder) RecordNonFinalRestore(id entityid.EntityId) {
	r.nonFinalRestores.WithLabelValues(string(id.Kind)).Inc()
}

// RecordSchemaMigration implements persistence.MetricsRecorder.
func (r *Recorder) RecordSchemaMigration(id entityid.EntityId, fromVersion, toVersion uint32) {
	r.schemaMigrations.WithLabelValues(
		string(id.Kind),
		strconv.FormatUint(uint64(fromVersion), 10),
		strconv.FormatUint(uint64(toVersion), 10),
	).Inc()
}

// RecordNodeLost counts a membership event observed via a
// cluster.ClusterConfig's Events stream.
func (r *Recorder) RecordNodeLost() {
	r.clusterNodeLost.Inc()
}

// RecordNodeJoined counts a membership event observed via a
// cluster.ClusterConfig's Events stream.
func (r *Recorder) RecordNodeJoined() {
	r.clusterNodeJoined.Inc()
}
