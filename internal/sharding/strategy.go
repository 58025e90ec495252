// Package sharding implements the ShardingStrategy component (C1): pure,
// per-process-replicated functions mapping an EntityId to the ShardId that
// owns it.
package sharding

import (
	"github.com/entityrt/entityrt/internal/entityid"
)

// AutoSpawnEntity describes an entity that a shard must spawn unconditionally
// at startup (e.g. a per-shard coordinator or singleton GSM).
type AutoSpawnEntity struct {
	// ID is the entity to spawn.
	ID entityid.EntityId
}

// Strategy maps entity ids to shards and enumerates any entities a shard
// must auto-spawn. A Strategy is pure and must be replicated identically on
// every node in the cluster; it carries no mutable state of its own.
type Strategy interface {
	// Kind returns the entity Kind this strategy governs.
	Kind() entityid.Kind

	// ShardFor returns the ShardId that owns the given entity.
	ShardFor(id entityid.EntityId) entityid.ShardId

	// ShardCount returns the total number of shards for this kind.
	ShardCount() int

	// AutoSpawnFor returns the entities a shard at the given index must
	// spawn unconditionally at startup.
	AutoSpawnFor(shardIdx int32) []AutoSpawnEntity
}

// Modulo is a Strategy that maps EntityId.Value onto one of N shards via
// modulo arithmetic, where N is the node/shard count configured for the
// kind. It declares no auto-spawn entities.
type Modulo struct {
	kind       entityid.Kind
	shardCount int
}

// NewModulo creates a Modulo sharding strategy for the given kind and shard
// count. shardCount must be positive.
func NewModulo(kind entityid.Kind, shardCount int) *Modulo {
	if shardCount <= 0 {
		shardCount = 1
	}

	return &Modulo{kind: kind, shardCount: shardCount}
}

// Kind implements Strategy.
func (m *Modulo) Kind() entityid.Kind { return m.kind }

// ShardCount implements Strategy.
func (m *Modulo) ShardCount() int { return m.shardCount }

// ShardFor implements Strategy.
func (m *Modulo) ShardFor(id entityid.EntityId) entityid.ShardId {
	idx := int32(id.Value % uint64(m.shardCount))
	return entityid.ShardId{Kind: m.kind, Index: idx}
}

// AutoSpawnFor implements Strategy; Modulo never auto-spawns anything.
func (m *Modulo) AutoSpawnFor(int32) []AutoSpawnEntity { return nil }

// ServiceEntityMode controls how many auto-spawned service entities a
// Service strategy declares per shard.
type ServiceEntityMode int

const (
	// OnePerShard spawns one service entity on every shard.
	OnePerShard ServiceEntityMode = iota

	// SingletonOnShardZero spawns exactly one service entity, always on
	// shard index 0.
	SingletonOnShardZero
)

// Service is a Strategy with the same modulo entity->shard mapping as Modulo,
// but which additionally declares auto-spawn service entities: either one
// per shard, or a single process-wide singleton pinned to shard 0.
type Service struct {
	Modulo

	mode         ServiceEntityMode
	serviceID    func(shardIdx int32) entityid.EntityId
}

// NewService creates a Service sharding strategy. serviceID computes the
// EntityId of the service entity that should be spawned on a given shard
// index (ignored for SingletonOnShardZero beyond being called with 0).
func NewService(kind entityid.Kind, shardCount int, mode ServiceEntityMode,
	serviceID func(shardIdx int32) entityid.EntityId,
) *Service {

	return &Service{
		Modulo:    *NewModulo(kind, shardCount),
		mode:      mode,
		serviceID: serviceID,
	}
}

// AutoSpawnFor implements Strategy.
func (s *Service) AutoSpawnFor(shardIdx int32) []AutoSpawnEntity {
	switch s.mode {
	case SingletonOnShardZero:
		if shardIdx != 0 {
			return nil
		}

		return []AutoSpawnEntity{{ID: s.serviceID(0)}}

	case OnePerShard:
		return []AutoSpawnEntity{{ID: s.serviceID(shardIdx)}}

	default:
		return nil
	}
}

// Manual is a Strategy where the shard index is encoded directly in the top
// entityid.ShardIndexBits bits of every EntityId.Value; callers construct ids
// via entityid.NewManualEntityId. It declares no auto-spawn entities.
type Manual struct {
	kind       entityid.Kind
	shardCount int
}

// NewManual creates a Manual sharding strategy for the given kind and shard
// count (used only to bound ShardCount(); the mapping itself is id-encoded).
func NewManual(kind entityid.Kind, shardCount int) *Manual {
	if shardCount <= 0 {
		shardCount = 1
	}

	return &Manual{kind: kind, shardCount: shardCount}
}

// Kind implements Strategy.
func (m *Manual) Kind() entityid.Kind { return m.kind }

// ShardCount implements Strategy.
func (m *Manual) ShardCount() int { return m.shardCount }

// ShardFor implements Strategy.
func (m *Manual) ShardFor(id entityid.EntityId) entityid.ShardId {
	return entityid.ShardId{
		Kind:  m.kind,
		Index: entityid.ManualShardIndex(id),
	}
}

// AutoSpawnFor implements Strategy; Manual never auto-spawns anything.
func (m *Manual) AutoSpawnFor(int32) []AutoSpawnEntity { return nil }

// ShardRefTable is a pre-allocated, per-kind vector of shard identifiers
// indexed by shard index. Callers resolve an entity's shard via
// Strategy.ShardFor, then use the shard index to look up a live transport
// handle (local supervisor or remote peer ref) in their own routing table.
type ShardRefTable struct {
	strategy Strategy
}

// NewShardRefTable wraps a Strategy with convenience accessors.
func NewShardRefTable(strategy Strategy) *ShardRefTable {
	return &ShardRefTable{strategy: strategy}
}

// Resolve returns the ShardId that owns id.
func (t *ShardRefTable) Resolve(id entityid.EntityId) entityid.ShardId {
	return t.strategy.ShardFor(id)
}

// Indices returns every valid shard index [0, ShardCount) for this kind.
func (t *ShardRefTable) Indices() []int32 {
	count := t.strategy.ShardCount()
	out := make([]int32, count)
	for i := range out {
		out[i] = int32(i)
	}

	return out
}
