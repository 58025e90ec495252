// Package pubsub implements the bidirectional death-watch graph and the
// publish/subscribe registry an EntityShard uses to fan Publish calls out to
// subscribers and to notify watchers when a watched entity terminates
// (spec.md §4.4). Both structures are plain, mutex-guarded maps: all the
// actual message routing lives in internal/shard, which is the only caller.
package pubsub

import (
	"sync"

	"github.com/entityrt/entityrt/internal/entityid"
)

// WatchGraph tracks, for every (watcher, target) pair registered via Watch,
// both directions of the edge so that RemoveEntity can answer "who do I
// need to notify" in O(watchers-of-dead) time regardless of which side of
// the edge died.
type WatchGraph struct {
	mu sync.Mutex

	// watchers[target] is the set of entities watching target.
	watchers map[entityid.EntityId]map[entityid.EntityId]struct{}

	// watching[watcher] is the set of entities watcher is watching.
	watching map[entityid.EntityId]map[entityid.EntityId]struct{}
}

// NewWatchGraph creates an empty WatchGraph.
func NewWatchGraph() *WatchGraph {
	return &WatchGraph{
		watchers: make(map[entityid.EntityId]map[entityid.EntityId]struct{}),
		watching: make(map[entityid.EntityId]map[entityid.EntityId]struct{}),
	}
}

// Watch registers watcher as watching target. Idempotent.
func (g *WatchGraph) Watch(watcher, target entityid.EntityId) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.watchers[target] == nil {
		g.watchers[target] = make(map[entityid.EntityId]struct{})
	}
	g.watchers[target][watcher] = struct{}{}

	if g.watching[watcher] == nil {
		g.watching[watcher] = make(map[entityid.EntityId]struct{})
	}
	g.watching[watcher][target] = struct{}{}
}

// Unwatch removes a single (watcher, target) edge. Idempotent.
func (g *WatchGraph) Unwatch(watcher, target entityid.EntityId) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.removeEdgeLocked(watcher, target)
}

func (g *WatchGraph) removeEdgeLocked(watcher, target entityid.EntityId) {
	if set, ok := g.watchers[target]; ok {
		delete(set, watcher)
		if len(set) == 0 {
			delete(g.watchers, target)
		}
	}

	if set, ok := g.watching[watcher]; ok {
		delete(set, target)
		if len(set) == 0 {
			delete(g.watching, watcher)
		}
	}
}

// WatchersOf returns every entity currently watching target.
func (g *WatchGraph) WatchersOf(target entityid.EntityId) []entityid.EntityId {
	g.mu.Lock()
	defer g.mu.Unlock()

	return keysOf(g.watchers[target])
}

// TargetsWatchedBy returns every entity watcher is currently watching.
func (g *WatchGraph) TargetsWatchedBy(
	watcher entityid.EntityId,
) []entityid.EntityId {

	g.mu.Lock()
	defer g.mu.Unlock()

	return keysOf(g.watching[watcher])
}

// RemoveEntity tears down every edge touching id (in either direction) and
// returns the watchers that must be notified of id's termination.
func (g *WatchGraph) RemoveEntity(
	id entityid.EntityId,
) (watchersToNotify []entityid.EntityId) {

	g.mu.Lock()
	defer g.mu.Unlock()

	watchersToNotify = keysOf(g.watchers[id])
	for _, w := range watchersToNotify {
		g.removeEdgeLocked(w, id)
	}

	for _, t := range keysOf(g.watching[id]) {
		g.removeEdgeLocked(id, t)
	}

	return watchersToNotify
}

// AllTargets returns every entity that currently has at least one watcher,
// used by node-loss handling to find local watches pointed at a shard that
// just disappeared.
func (g *WatchGraph) AllTargets() []entityid.EntityId {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]entityid.EntityId, 0, len(g.watchers))
	for t := range g.watchers {
		out = append(out, t)
	}

	return out
}

func keysOf(m map[entityid.EntityId]struct{}) []entityid.EntityId {
	out := make([]entityid.EntityId, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	return out
}
