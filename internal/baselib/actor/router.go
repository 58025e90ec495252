package actor

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrNoActorsAvailable is returned by a RoutingStrategy given no candidates.
var ErrNoActorsAvailable = errors.New("no actors available")

// RoutingStrategy selects one ActorRef out of a slice of candidates
// registered under a ServiceKey. Implementations must be safe for concurrent
// use, since a Router may be shared across goroutines.
type RoutingStrategy[M Message, R any] interface {
	// Select picks one of the given refs, or returns an error (such as
	// ErrNoActorsAvailable for an empty slice) if it cannot pick one.
	Select(refs []ActorRef[M, R]) (ActorRef[M, R], error)
}

// roundRobinStrategy is a RoutingStrategy that cycles through candidates in
// order, spreading load evenly across every actor registered under a key.
type roundRobinStrategy[M Message, R any] struct {
	next atomic.Uint64
}

// NewRoundRobinStrategy creates a round-robin RoutingStrategy.
func NewRoundRobinStrategy[M Message, R any]() RoutingStrategy[M, R] {
	return &roundRobinStrategy[M, R]{}
}

// Select implements RoutingStrategy.
func (s *roundRobinStrategy[M, R]) Select(
	refs []ActorRef[M, R],
) (ActorRef[M, R], error) {

	if len(refs) == 0 {
		return nil, ErrNoActorsAvailable
	}

	idx := s.next.Add(1) % uint64(len(refs))
	return refs[idx], nil
}

// Router is a virtual ActorRef that resolves its target lazily from the
// Receptionist on every call, applying a RoutingStrategy to pick among the
// actors currently registered under a ServiceKey. This gives callers location
// transparency: as actors are added or removed from the receptionist (e.g.
// because a shard restarted one), the router adapts without callers needing
// to re-resolve a reference.
type Router[M Message, R any] struct {
	receptionist *Receptionist
	key          ServiceKey[M, R]
	strategy     RoutingStrategy[M, R]
	dlo          ActorRef[Message, any]
}

// NewRouter creates a new Router for the given service key.
func NewRouter[M Message, R any](receptionist *Receptionist,
	key ServiceKey[M, R], strategy RoutingStrategy[M, R],
	dlo ActorRef[Message, any],
) *Router[M, R] {

	return &Router[M, R]{
		receptionist: receptionist,
		key:          key,
		strategy:     strategy,
		dlo:          dlo,
	}
}

// ID returns a descriptive identifier for this virtual reference.
func (r *Router[M, R]) ID() string {
	return "router->" + r.key.name
}

// Tell resolves a target via the strategy and sends a fire-and-forget
// message. If no actors are currently registered, the message is routed to
// the dead letter office (if configured) and otherwise silently dropped.
func (r *Router[M, R]) Tell(ctx context.Context, msg M) {
	refs := FindInReceptionist(r.receptionist, r.key)
	if len(refs) == 0 {
		log.DebugS(ctx, "Router has no candidates, dropping Tell",
			"service_key", r.key.name)

		if r.dlo != nil {
			r.dlo.Tell(ctx, msg)
		}

		return
	}

	if ref, err := r.strategy.Select(refs); err == nil {
		ref.Tell(ctx, msg)
	}
}

// Ask resolves a target via the strategy and sends an ask. If no actors are
// currently registered, the returned Future completes immediately with
// ErrActorTerminated.
func (r *Router[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	refs := FindInReceptionist(r.receptionist, r.key)
	if len(refs) == 0 {
		promise := NewPromise[R]()
		promise.Complete(fn.Err[R](ErrActorTerminated))

		return promise.Future()
	}

	ref, err := r.strategy.Select(refs)
	if err != nil {
		promise := NewPromise[R]()
		promise.Complete(fn.Err[R](err))

		return promise.Future()
	}

	return ref.Ask(ctx, msg)
}

// Ensure Router implements ActorRef.
var _ ActorRef[Message, any] = (*Router[Message, any])(nil)
