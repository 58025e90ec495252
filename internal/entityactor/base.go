package entityactor

import (
	"context"
	"errors"
	"time"

	baseactor "github.com/entityrt/entityrt/internal/baselib/actor"
	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/shardproto"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// DefaultAskTimeout bounds how long an Ask future is expected to wait for a
// reply before the caller's own context deadline should take over; callers
// are still responsible for passing a context with a deadline to Await.
const DefaultAskTimeout = 10 * time.Second

// ErrUnexpectedReplyType is returned when a correlated reply's payload does
// not assert to the type the caller asked for.
var ErrUnexpectedReplyType = errors.New("entityactor: unexpected reply type")

// ShardRef is the narrow interface entityactor.Base uses to hand routing
// decisions up to the owning EntityShard. internal/shard's EntityShard
// implements it; tests can supply a fake.
type ShardRef interface {
	// Tell fire-and-forgets op to the owning shard for routing.
	Tell(op shardproto.Op)
}

// Base is embedded by every user-defined entity state type to gain access
// to the runtime's cross-entity primitives (ask, publish/subscribe,
// synchronize, on-actor scheduling, and lifecycle control). It is
// constructed and wired up by New before the entity's OnInitialize hook
// runs; user code never constructs one directly.
type Base struct {
	id           entityid.EntityId
	shard        ShardRef
	self         baseactor.ActorRef[*Envelope, any]
	scheduler    *Scheduler
	autoShutdown *autoShutdownState
	status       entityid.EntityStatus
}

// Self returns this entity's own id.
func (b *Base) Self() entityid.EntityId {
	return b.id
}

// Status returns this entity's local view of its own lifecycle status.
func (b *Base) Status() entityid.EntityStatus {
	return b.status
}

// Publish fans payload out to every subscriber watching topic on this
// entity (spec.md §4.4).
func (b *Base) Publish(topic string, payload any) {
	b.shard.Tell(shardproto.Publish{From: b.id, Topic: topic, Payload: payload})
}

// KickSubscriber forcibly tears down a subscription this entity is the
// target of, notifying the subscriber via its inChannelID.
func (b *Base) KickSubscriber(subscriber entityid.EntityId, inChannelID int64,
	message any,
) {

	b.shard.Tell(shardproto.SubscriberKicked{
		Subscriber:  subscriber,
		Target:      b.id,
		InChannelID: inChannelID,
		Message:     message,
	})
}

// RequestShutdown asks the owning shard to begin gracefully shutting this
// entity down.
func (b *Base) RequestShutdown() {
	b.shard.Tell(shardproto.RequestShutdown{ID: b.id})
}

// RequestSuspend asks the owning shard to pause message delivery to this
// entity, buffering new traffic until RequestResume.
func (b *Base) RequestSuspend() {
	b.shard.Tell(shardproto.RequestSuspend{ID: b.id})
}

// RequestResume asks the owning shard to resume message delivery after a
// prior RequestSuspend.
func (b *Base) RequestResume() {
	b.shard.Tell(shardproto.RequestResume{ID: b.id})
}

// typedFuture adapts a Future[any] (as produced by a Promise[any], since the
// payload type is only known to the specific Ask/Subscribe/Sync call site)
// into a Future[T].
type typedFuture[T any] struct {
	inner baseactor.Future[any]
}

func newTypedFuture[T any](inner baseactor.Future[any]) baseactor.Future[T] {
	return &typedFuture[T]{inner: inner}
}

func convertResult[T any](result fn.Result[any]) fn.Result[T] {
	var out fn.Result[T]

	result.WhenOk(func(val any) {
		typed, ok := val.(T)
		if !ok {
			out = fn.Err[T](ErrUnexpectedReplyType)
			return
		}

		out = fn.Ok(typed)
	})
	result.WhenErr(func(err error) {
		out = fn.Err[T](err)
	})

	return out
}

func (t *typedFuture[T]) Await(ctx context.Context) fn.Result[T] {
	return convertResult[T](t.inner.Await(ctx))
}

func (t *typedFuture[T]) ThenApply(ctx context.Context,
	transform func(T) T,
) baseactor.Future[T] {

	next := baseactor.NewPromise[T]()

	go func() {
		result := t.Await(ctx)

		result.WhenOk(func(val T) {
			next.Complete(fn.Ok(transform(val)))
		})
		result.WhenErr(func(err error) {
			next.Complete(fn.Err[T](err))
		})
	}()

	return next.Future()
}

func (t *typedFuture[T]) OnComplete(ctx context.Context, cb func(fn.Result[T])) {
	t.inner.OnComplete(ctx, func(result fn.Result[any]) {
		cb(convertResult[T](result))
	})
}

// Ask sends payload to target as a correlated request, bypassing both
// actors' ordinary mailbox ordering (spec.md §4.5), and returns a Future
// that resolves once the owning shard routes back a matching AskReply.
// Callers should Await with a context carrying a deadline (DefaultAskTimeout
// is a reasonable default).
func Ask[T any](b *Base, ctx context.Context, target entityid.EntityId,
	payload any,
) baseactor.Future[T] {

	promise := baseactor.NewPromise[any]()
	b.shard.Tell(shardproto.AskRequest{
		Sender:  b.id,
		Target:  target,
		Payload: payload,
		ReplyTo: promise,
	})

	return newTypedFuture[T](promise.Future())
}

// Subscribe asks target to add this entity as a subscriber on topic,
// establishing a bidirectional watch: this entity will receive
// SubscriberKicked if target kicks it, and target will receive
// WatchedEntityTerminated if this entity dies first (spec.md §4.4).
// inChannelID is a caller-chosen handle this entity will later see echoed
// back in SubscriberKicked/Publish deliveries.
func Subscribe(b *Base, ctx context.Context, target entityid.EntityId,
	topic string, payload any, inChannelID int64,
) baseactor.Future[*shardproto.SubscribeAck] {

	promise := baseactor.NewPromise[any]()
	b.shard.Tell(shardproto.Subscribe{
		Subscriber:  b.id,
		Target:      target,
		Topic:       topic,
		Payload:     payload,
		InChannelID: inChannelID,
		ReplyTo:     promise,
	})

	return newTypedFuture[*shardproto.SubscribeAck](promise.Future())
}

// Unsubscribe tears down a previously-established subscription.
func Unsubscribe(b *Base, ctx context.Context, target entityid.EntityId,
	outChannelID int64,
) baseactor.Future[*shardproto.UnsubscribeAck] {

	promise := baseactor.NewPromise[any]()
	b.shard.Tell(shardproto.Unsubscribe{
		Subscriber:   b.id,
		Target:       target,
		OutChannelID: outChannelID,
		ReplyTo:      promise,
	})

	return newTypedFuture[*shardproto.UnsubscribeAck](promise.Future())
}

// SyncBegin opens a paired, in-order synchronize channel to target,
// bypassing ordinary mailbox ordering for every frame exchanged over it
// (spec.md §4.6). sourceChan is a caller-chosen local handle.
func SyncBegin(b *Base, ctx context.Context, target entityid.EntityId,
	sourceChan int64, payload any,
) baseactor.Future[*shardproto.SyncBeginResponse] {

	promise := baseactor.NewPromise[any]()
	b.shard.Tell(shardproto.SyncBeginRequest{
		SourceChan: sourceChan,
		Source:     b.id,
		Target:     target,
		Payload:    payload,
		ReplyTo:    promise,
	})

	return newTypedFuture[*shardproto.SyncBeginResponse](promise.Future())
}

// ExecuteOnActor runs op inline on this entity's own single-threaded
// mailbox loop, serialized with respect to every other message this entity
// processes, and returns a Future for its result (spec.md §4.3).
func ExecuteOnActor[T any](b *Base, ctx context.Context,
	op func(ctx context.Context) (T, error),
) baseactor.Future[T] {

	env := &Envelope{
		Kind: EnvExecute,
		execute: func(ctx context.Context) (any, error) {
			return op(ctx)
		},
	}

	return newTypedFuture[T](b.self.Ask(ctx, env))
}

// ScheduleExecuteOnActor arranges for op to run inline on this entity's own
// mailbox loop at or after deadline. The returned CancelToken short-circuits
// the task if cancelled before it fires.
func ScheduleExecuteOnActor[T any](b *Base, deadline time.Time,
	op func(ctx context.Context) (T, error),
) (baseactor.Future[T], *CancelToken) {

	promise := baseactor.NewPromise[any]()

	cancel := b.scheduler.Schedule(deadline, func(time.Time) {
		val, err := op(context.Background())
		if err != nil {
			promise.Complete(fn.Err[any](err))
			return
		}

		promise.Complete(fn.Ok[any](val))
	})

	return newTypedFuture[T](promise.Future()), cancel
}

// ContinueTaskOnActor arranges for onResult to run inline on this entity's
// own mailbox loop once resultCh produces a value (or ctx is cancelled
// first), letting a goroutine-backed background operation hand its result
// back without ever touching entity state off the actor's own thread
// (spec.md §4.3).
func ContinueTaskOnActor[T any](b *Base, ctx context.Context,
	resultCh <-chan fn.Result[T], onResult func(ctx context.Context, result fn.Result[T]),
) {

	go func() {
		var result fn.Result[T]

		select {
		case result = <-resultCh:
		case <-ctx.Done():
			result = fn.Err[T](ctx.Err())
		}

		b.self.Tell(ctx, &Envelope{
			Kind:         EnvContinuation,
			continuation: func() { onResult(ctx, result) },
		})
	}()
}
