// Package entityid defines the identifiers used throughout the entity-actor
// runtime: EntityId (a kind-tagged running id), ShardId (a kind-tagged shard
// index), and the lifecycle status enums attached to entities and shards.
package entityid

import "fmt"

// Kind is an enum-like tag identifying an entity's class and placement
// rules (e.g. "Player", "Connection", "GSM"). Kinds are registered once at
// startup alongside a ShardingStrategy and a Dispatcher for that kind.
type Kind string

// EntityId uniquely identifies an entity: its Kind plus a running Value. For
// the manual sharding strategy, the top 16 bits of Value encode the shard
// index (see ShardIndexBits).
type EntityId struct {
	Kind  Kind
	Value uint64
}

// ShardIndexBits is the number of high bits of an EntityId.Value reserved for
// the shard index under the Manual sharding strategy.
const ShardIndexBits = 16

// ManualShardIndex extracts the shard index encoded in the top
// ShardIndexBits bits of a manually-sharded entity id's Value.
func ManualShardIndex(id EntityId) int32 {
	return int32(id.Value >> (64 - ShardIndexBits))
}

// NewManualEntityId constructs an EntityId for the Manual sharding strategy,
// encoding shardIdx into the top bits of the running id.
func NewManualEntityId(kind Kind, shardIdx int32, runningID uint64) EntityId {
	const mask = (uint64(1) << (64 - ShardIndexBits)) - 1

	return EntityId{
		Kind:  kind,
		Value: (uint64(uint32(shardIdx)) << (64 - ShardIndexBits)) | (runningID & mask),
	}
}

// String returns a human-readable representation, e.g. "Player/42".
func (id EntityId) String() string {
	return fmt.Sprintf("%s/%d", id.Kind, id.Value)
}

// ShardId identifies a shard: its Kind plus an Index. Index == -1 marks a
// proxy-only shard (one that forwards but never hosts entities of this
// kind locally).
type ShardId struct {
	Kind  Kind
	Index int32
}

// ProxyShardIndex marks a ShardId as proxy-only.
const ProxyShardIndex int32 = -1

// IsProxy reports whether this ShardId is a proxy-only shard.
func (s ShardId) IsProxy() bool {
	return s.Index == ProxyShardIndex
}

// String returns a human-readable representation, e.g. "Player#3".
func (s ShardId) String() string {
	return fmt.Sprintf("%s#%d", s.Kind, s.Index)
}

// EntityStatus is the lifecycle state of a single entity, as tracked by its
// owning shard.
type EntityStatus int

const (
	// EntityStarting means the entity has been spawned but has not yet
	// completed OnInitialize / signalled EntityReady.
	EntityStarting EntityStatus = iota

	// EntityRunning means the entity is accepting all messages.
	EntityRunning

	// EntitySuspended means message delivery is paused (e.g. to allow a
	// bulk flush before shutdown); the owning shard buffers the casts and
	// commands routed to the entity until it resumes, while other ops are
	// still delivered.
	EntitySuspended

	// EntityStopping means the entity is shutting down; only reply-like
	// messages may still be delivered.
	EntityStopping
)

// String implements fmt.Stringer.
func (s EntityStatus) String() string {
	switch s {
	case EntityStarting:
		return "Starting"
	case EntityRunning:
		return "Running"
	case EntitySuspended:
		return "Suspended"
	case EntityStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// ShardPhase is the lifecycle state of an EntityShard supervisor itself.
type ShardPhase int

const (
	// ShardStarting means the shard is spawning its auto-spawn entities.
	ShardStarting ShardPhase = iota

	// ShardStartingFailed means one or more auto-spawn entities failed to
	// initialize; the shard is draining and will not accept new work.
	ShardStartingFailed

	// ShardRunning means the shard accepts all operations.
	ShardRunning

	// ShardStopping means the shard is requesting shutdown of all
	// children and will die once they've all terminated.
	ShardStopping

	// ShardStopped is the terminal phase; the shard is a no-op sink.
	ShardStopped
)

// String implements fmt.Stringer.
func (p ShardPhase) String() string {
	switch p {
	case ShardStarting:
		return "Starting"
	case ShardStartingFailed:
		return "StartingFailed"
	case ShardRunning:
		return "Running"
	case ShardStopping:
		return "Stopping"
	case ShardStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
