package entityactor

import (
	"context"
	"fmt"
	"sync"
	"time"

	baseactor "github.com/entityrt/entityrt/internal/baselib/actor"
	"github.com/entityrt/entityrt/internal/dispatch"
	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/shardproto"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Initializer is an optional interface an entity's state type implements to
// run setup logic before it is considered Running and before its owning
// shard flushes any buffered traffic to it (spec.md §4.7 Starting ->
// Running transition). Returning an error aborts startup: the entity never
// runs and its owning shard is notified via EntityTerminated.
type Initializer interface {
	OnInitialize(ctx context.Context) error
}

// ReadySignaler is an optional interface called once OnInitialize succeeds
// and the entity has been marked Running, but before EntityReady is sent to
// the owning shard.
type ReadySignaler interface {
	OnReady(ctx context.Context)
}

// SuspendAware is an optional interface notified of Suspend/Resume
// transitions driven by the owning shard.
type SuspendAware interface {
	OnSuspend(ctx context.Context)
	OnResume(ctx context.Context)
}

// ShutdownAware is an optional interface called once, from the underlying
// actor's OnStop hook, after the mailbox loop has exited and before
// EntityTerminated is sent to the owning shard.
type ShutdownAware interface {
	OnShutdown(ctx context.Context) error
}

// WatchedEntityTerminated is delivered (as a Message-kind dispatch) to every
// entity that was watching an entity which has since terminated, whether by
// local death or by a synthesized node-loss fan-out.
type WatchedEntityTerminated struct {
	Dead entityid.EntityId
}

// Config parameterizes the construction of an Entity[S].
type Config[S any] struct {
	// ID is this entity's identity.
	ID entityid.EntityId

	// Shard is the owning shard's routing interface.
	Shard ShardRef

	// NewState constructs the user entity state, given the Base this
	// entity will use for cross-entity operations. The returned state must
	// embed Base (directly or indirectly) so handler methods can reach it.
	NewState func(base *Base) *S

	// Dispatcher is the immutable, pre-built handler table for S.
	Dispatcher *dispatch.Dispatcher[S]

	// MailboxSize bounds the entity's own mailbox; zero uses Actor's
	// default of 1.
	MailboxSize int

	// Wg, if non-nil, tracks the underlying actor goroutine's lifetime.
	Wg *sync.WaitGroup

	// ShutdownPolicy governs auto-shutdown once subscriber count reaches
	// zero.
	ShutdownPolicy AutoShutdownPolicy

	// InitTimeout bounds how long OnInitialize may run; zero means no
	// timeout beyond ctx's own deadline.
	InitTimeout time.Duration
}

// Entity is the handle a shard holds for a live entity: a thin wrapper
// around the underlying actor.Actor plus the routing references other
// components need.
type Entity[S any] struct {
	id  entityid.EntityId
	raw *baseactor.Actor[*Envelope, any]
	ref baseactor.ActorRef[*Envelope, any]
}

// ID returns this entity's identity.
func (e *Entity[S]) ID() entityid.EntityId { return e.id }

// Ref returns the full ActorRef (Tell + Ask) for this entity's mailbox.
func (e *Entity[S]) Ref() baseactor.ActorRef[*Envelope, any] { return e.ref }

// Stop begins graceful shutdown of the underlying actor: its mailbox
// drains, OnStop runs (including any ShutdownAware hook), and
// EntityTerminated is sent to the owning shard.
func (e *Entity[S]) Stop() { e.raw.Stop() }

// New constructs, initializes, and starts an Entity[S]. If OnInitialize (or
// the configured InitTimeout) fails, no actor is started: the caller
// receives the error and the owning shard is notified directly.
func New[S any](ctx context.Context, cfg Config[S]) (*Entity[S], error) {
	base := &Base{id: cfg.ID, shard: cfg.Shard, status: entityid.EntityStarting}
	state := cfg.NewState(base)

	initCtx := ctx
	var cancelInit context.CancelFunc
	if cfg.InitTimeout > 0 {
		initCtx, cancelInit = context.WithTimeout(ctx, cfg.InitTimeout)
		defer cancelInit()
	}

	if initializer, ok := any(state).(Initializer); ok {
		if err := initializer.OnInitialize(initCtx); err != nil {
			cfg.Shard.Tell(shardproto.EntityTerminated{
				ID:     cfg.ID,
				Reason: fmt.Errorf("OnInitialize: %w", err),
			})

			return nil, err
		}
	}

	beh := &entityBehavior[S]{
		id:         cfg.ID,
		state:      state,
		base:       base,
		dispatcher: cfg.Dispatcher,
	}

	raw := baseactor.NewActor(baseactor.ActorConfig[*Envelope, any]{
		ID:          cfg.ID.String(),
		Behavior:    beh,
		MailboxSize: cfg.MailboxSize,
		Wg:          cfg.Wg,
	})

	entity := &Entity[S]{id: cfg.ID, raw: raw, ref: raw.Ref()}
	base.self = raw.Ref()
	base.scheduler = NewScheduler(func() {
		base.self.Tell(context.Background(), &Envelope{Kind: EnvWake})
	})
	base.autoShutdown = newAutoShutdownState(cfg.ShutdownPolicy,
		base.scheduler, base.RequestShutdown)
	beh.scheduler = base.scheduler

	raw.Start()
	base.status = entityid.EntityRunning

	if signaler, ok := any(state).(ReadySignaler); ok {
		signaler.OnReady(ctx)
	}

	cfg.Shard.Tell(shardproto.EntityReady{ID: cfg.ID})

	return entity, nil
}

// entityBehavior adapts a Dispatcher[S] and the Envelope protocol into
// actor.ActorBehavior[*Envelope, any].
type entityBehavior[S any] struct {
	id         entityid.EntityId
	state      *S
	base       *Base
	dispatcher *dispatch.Dispatcher[S]
	scheduler  *Scheduler

	syncChanSeq int64
}

// Receive implements actor.ActorBehavior.
func (beh *entityBehavior[S]) Receive(ctx context.Context,
	env *Envelope,
) fn.Result[any] {

	switch env.Kind {
	case EnvCast:
		sender := env.From
		err := beh.dispatcher.DispatchMessage(ctx, beh.state, &sender,
			env.Payload)
		return resultOf(err)

	case EnvCommand:
		err := beh.dispatcher.DispatchCommand(ctx, beh.state, env.Payload)
		return resultOf(err)

	case EnvAskRequest:
		return beh.receiveAsk(ctx, env)

	case EnvSubscribeRequest:
		return beh.receiveSubscribe(ctx, env)

	case EnvUnsubscribeRequest:
		beh.base.autoShutdown.SubscriberRemoved()
		beh.base.shard.Tell(shardproto.UnsubscribeAck{
			Subscriber:   env.From,
			Target:       beh.id,
			OutChannelID: env.ChannelID,
			Result:       shardproto.UnsubscribeSuccess,
		})

		return fn.Ok[any](nil)

	case EnvPublish:
		link := dispatch.Subscription{
			PeerEntityID: env.From,
			Topic:        env.Topic,
			OutChannelID: env.ChannelID,
		}
		err := beh.dispatcher.DispatchPubSub(ctx, beh.state, link,
			env.Payload)

		return resultOf(err)

	case EnvSubscriberKicked:
		link := dispatch.Subscription{
			PeerEntityID: env.From,
			OutChannelID: env.ChannelID,
		}
		err := beh.dispatcher.DispatchPubSub(ctx, beh.state, link,
			env.Payload)

		return resultOf(err)

	case EnvWatchedTerminated:
		sender := env.From
		err := beh.dispatcher.DispatchMessage(ctx, beh.state, &sender,
			WatchedEntityTerminated{Dead: env.From})

		return resultOf(err)

	case EnvSyncBeginRequest:
		return beh.receiveSyncBegin(ctx, env)

	case EnvSyncFrame:
		handle := &syncHandleImpl{localChannelID: env.ChannelID}
		err := beh.dispatcher.DispatchSynchronize(ctx, beh.state, handle,
			env.Payload)

		return resultOf(err)

	case EnvExecute:
		val, err := env.execute(ctx)
		if err != nil {
			return fn.Err[any](err)
		}

		return fn.Ok(val)

	case EnvWake:
		beh.scheduler.DrainDue(time.Now())
		return fn.Ok[any](nil)

	case EnvContinuation:
		env.continuation()
		return fn.Ok[any](nil)

	case EnvSuspend:
		beh.base.status = entityid.EntitySuspended
		if aware, ok := any(beh.state).(SuspendAware); ok {
			aware.OnSuspend(ctx)
		}

		return fn.Ok[any](nil)

	case EnvResume:
		beh.base.status = entityid.EntityRunning
		if aware, ok := any(beh.state).(SuspendAware); ok {
			aware.OnResume(ctx)
		}

		return fn.Ok[any](nil)

	default:
		return fn.Err[any](fmt.Errorf("entityactor: unknown envelope kind %v",
			env.Kind))
	}
}

func resultOf(err error) fn.Result[any] {
	if err != nil {
		return fn.Err[any](err)
	}

	return fn.Ok[any](nil)
}

func (beh *entityBehavior[S]) receiveAsk(ctx context.Context,
	env *Envelope,
) fn.Result[any] {

	sender := env.From
	handle := &askHandleImpl{
		shard:  beh.base.shard,
		askID:  env.AskID,
		target: env.From,
		fromID: beh.id,
	}

	handled, reply, err := beh.dispatcher.DispatchAsk(ctx, beh.state, &sender,
		handle, env.Payload)

	if !handled {
		handle.Refuse(fmt.Errorf("%w: %T", dispatch.ErrNoHandler,
			env.Payload))

		return fn.Ok[any](nil)
	}

	if err != nil {
		handle.Refuse(err)
	} else {
		handle.Reply(reply)
	}

	return fn.Ok[any](nil)
}

func (beh *entityBehavior[S]) receiveSubscribe(ctx context.Context,
	env *Envelope,
) fn.Result[any] {

	link := dispatch.Subscriber{
		PeerEntityID: env.From,
		Topic:        env.Topic,
		InChannelID:  env.ChannelID,
	}

	err := beh.dispatcher.DispatchPubSub(ctx, beh.state, link, env.Payload)

	ack := shardproto.SubscribeAck{
		Subscriber:   env.From,
		Target:       beh.id,
		Topic:        env.Topic,
		OutChannelID: env.ChannelID,
		Response:     env.Payload,
		Err:          err,
	}

	if err == nil {
		beh.base.autoShutdown.SubscriberAdded()
	}

	beh.base.shard.Tell(ack)

	return fn.Ok[any](nil)
}

func (beh *entityBehavior[S]) receiveSyncBegin(ctx context.Context,
	env *Envelope,
) fn.Result[any] {

	beh.syncChanSeq++
	localChan := beh.syncChanSeq

	handle := &syncHandleImpl{localChannelID: localChan}
	err := beh.dispatcher.DispatchSynchronize(ctx, beh.state, handle,
		env.Payload)
	if err != nil {
		return resultOf(err)
	}

	beh.base.shard.Tell(shardproto.SyncBeginResponse{
		Source:     env.From,
		Target:     beh.id,
		SourceChan: env.ChannelID,
		TargetChan: localChan,
	})

	return fn.Ok[any](nil)
}

// OnStop implements actor.Stoppable.
func (beh *entityBehavior[S]) OnStop(ctx context.Context) error {
	beh.base.status = entityid.EntityStopping
	beh.scheduler.Stop()

	var shutdownErr error
	if aware, ok := any(beh.state).(ShutdownAware); ok {
		shutdownErr = aware.OnShutdown(ctx)
	}

	beh.base.shard.Tell(shardproto.EntityTerminated{
		ID:     beh.id,
		Reason: shutdownErr,
	})

	return shutdownErr
}

// askHandleImpl implements dispatch.AskHandle, Telling the owning shard an
// AskReply exactly once.
type askHandleImpl struct {
	once   sync.Once
	shard  ShardRef
	askID  uint64
	target entityid.EntityId
	fromID entityid.EntityId
}

func (h *askHandleImpl) Reply(payload any) {
	h.once.Do(func() {
		h.shard.Tell(shardproto.AskReply{
			AskID:   h.askID,
			Target:  h.target,
			FromID:  h.fromID,
			Payload: payload,
		})
	})
}

func (h *askHandleImpl) Refuse(refusal error) {
	h.once.Do(func() {
		h.shard.Tell(shardproto.AskReply{
			AskID:   h.askID,
			Target:  h.target,
			FromID:  h.fromID,
			Err:     refusal,
			Refusal: true,
		})
	})
}

// syncHandleImpl implements dispatch.SyncHandle.
type syncHandleImpl struct {
	localChannelID int64
}

func (h *syncHandleImpl) LocalChannelID() int64 { return h.localChannelID }
