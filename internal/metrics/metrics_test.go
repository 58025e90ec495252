package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/entityrt/entityrt/internal/entityid"
)

func TestRecorderShardGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	shardID := entityid.ShardId{Kind: "Player", Index: 2}

	rec.SetShutdownThrottleDepth(shardID, 3)
	rec.SetAskInFlight(shardID, 5)
	rec.SetLiveEntityCount(shardID, 7)

	require.Equal(t, float64(3), testutil.ToFloat64(
		rec.shutdownThrottleDepth.WithLabelValues("Player", shardID.String())))
	require.Equal(t, float64(5), testutil.ToFloat64(
		rec.askInFlight.WithLabelValues("Player", shardID.String())))
	require.Equal(t, float64(7), testutil.ToFloat64(
		rec.liveEntityCount.WithLabelValues("Player", shardID.String())))
}

func TestRecorderPersistenceCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	id := entityid.EntityId{Kind: "Player", Value: 1}

	rec.RecordNonFinalRestore(id)
	rec.RecordNonFinalRestore(id)
	rec.RecordSchemaMigration(id, 1, 2)

	require.Equal(t, float64(2), testutil.ToFloat64(
		rec.nonFinalRestores.WithLabelValues("Player")))
	require.Equal(t, float64(1), testutil.ToFloat64(
		rec.schemaMigrations.WithLabelValues("Player", "1", "2")))
}

func TestRecorderClusterMembershipCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.RecordNodeJoined()
	rec.RecordNodeLost()
	rec.RecordNodeLost()

	require.Equal(t, float64(1), testutil.ToFloat64(rec.clusterNodeJoined))
	require.Equal(t, float64(2), testutil.ToFloat64(rec.clusterNodeLost))
}
