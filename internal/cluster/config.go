// Package cluster implements the ClusterConfig component spec.md §6 names:
// node-membership tracking over NATS and the gRPC peer-shard transport
// shard.PeerRouter delegates to once an EntityId's owning shard is no
// longer local (spec.md §4.9's "resolve which shards the lost node
// hosted"). Remote shard actor references are resolved by the well-known
// path "{project}@{host}:{port}/shard/{kind}" spec.md §6 names.
package cluster

import (
	"context"
	"fmt"

	"github.com/entityrt/entityrt/internal/entityid"
)

// NodeAddress is a cluster member's dial address, e.g. "10.0.4.12:7946".
type NodeAddress string

// WellKnownPath formats the path a remote shard is addressed by, per
// spec.md §6: "{project}@{host}:{port}/shard/{kind}".
func WellKnownPath(project string, addr NodeAddress, kind entityid.Kind) string {
	return fmt.Sprintf("%s@%s/shard/%s", project, addr, kind)
}

// EventKind distinguishes the two membership events ClusterConfig streams.
type EventKind int

const (
	// NodeJoined announces a new cluster member at Address.
	NodeJoined EventKind = iota

	// NodeLost announces that Address has dropped out of the cluster,
	// either because it left cleanly or its heartbeat lapsed.
	NodeLost
)

func (k EventKind) String() string {
	switch k {
	case NodeJoined:
		return "NodeJoined"
	case NodeLost:
		return "NodeLost"
	default:
		return "unknown"
	}
}

// MembershipEvent is one NodeJoined/NodeLost notification, addressed at the
// node level (not shard level): a node hosts every shard index of every
// Kind it's responsible for, so a single event can affect many shards at
// once (spec.md §4.9's node-loss handling resolves the affected ShardIds
// from Address itself).
type MembershipEvent struct {
	ID      string
	Kind    EventKind
	Address NodeAddress
}

// ClusterConfig is the cluster-topology interface spec.md §6 names:
// node/shard counts per Kind plus a membership event stream. internal/shard
// and internal/cluster's own PeerRouter both consume it; NATSClusterConfig
// is this runtime's concrete implementation.
type ClusterConfig interface {
	// NodeCountForKind returns how many nodes currently host shards of
	// kind.
	NodeCountForKind(kind entityid.Kind) int

	// ShardsForKind returns the node address hosting each shard index of
	// kind, ShardsForKind(kind)[i] being the node owning shard index i.
	ShardsForKind(kind entityid.Kind) []NodeAddress

	// Events streams MembershipEvent values until ctx is cancelled or the
	// underlying transport is closed.
	Events(ctx context.Context) (<-chan MembershipEvent, error)

	// Close releases any underlying connection.
	Close() error
}
