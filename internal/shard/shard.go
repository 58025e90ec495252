// Package shard implements the EntityShard component (C9): the per-(Kind,
// index) supervisor that owns a set of live entities, routes every
// ask/cast/command/subscribe/publish/synchronize operation to the right
// local entity or the peer shard that owns it, maintains the pub/sub
// registry and bidirectional watch graph, and throttles concurrent entity
// shutdowns.
//
// An EntityShard is itself single-threaded: it wraps
// internal/baselib/actor.Actor so every map mutation below happens on one
// goroutine and needs no locking of its own, the same discipline
// internal/entityactor uses for an individual entity's state.
package shard

import (
	"context"
	"fmt"
	"sync"
	"time"

	baseactor "github.com/entityrt/entityrt/internal/baselib/actor"
	"github.com/entityrt/entityrt/internal/dispatch"
	"github.com/entityrt/entityrt/internal/entityactor"
	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/pubsub"
	"github.com/entityrt/entityrt/internal/sharding"
	"github.com/entityrt/entityrt/internal/shardproto"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ShardRef is the type-erased handle other shards (and internal/cluster's
// peer transport) use to route an Op at a specific ShardId without knowing
// its entity state type parameter.
type ShardRef interface {
	ID() entityid.ShardId
	Tell(op shardproto.Op)
}

// PeerRouter forwards an Op to whichever shard owns target, local or
// remote. InProcessPeerRouter implements this for same-node multi-shard
// setups and tests; internal/cluster implements it for cross-node routing.
type PeerRouter interface {
	RouteOp(target entityid.ShardId, op shardproto.Op)
}

// InProcessPeerRouter routes to sibling EntityShards registered in the same
// process, used when a node hosts every shard for a Kind itself, or in
// tests.
type InProcessPeerRouter struct {
	mu     sync.Mutex
	shards map[entityid.ShardId]ShardRef
}

// NewInProcessPeerRouter creates an empty router.
func NewInProcessPeerRouter() *InProcessPeerRouter {
	return &InProcessPeerRouter{shards: make(map[entityid.ShardId]ShardRef)}
}

// Register makes ref reachable by its own ShardId.
func (r *InProcessPeerRouter) Register(ref ShardRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.shards[ref.ID()] = ref
}

// Unregister removes a shard, e.g. once it has fully stopped.
func (r *InProcessPeerRouter) Unregister(id entityid.ShardId) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.shards, id)
}

// RouteOp implements PeerRouter.
func (r *InProcessPeerRouter) RouteOp(target entityid.ShardId, op shardproto.Op) {
	r.mu.Lock()
	ref, ok := r.shards[target]
	r.mu.Unlock()

	if !ok {
		log.Warnf("shard: no local route to %s, dropping %T", target, op)
		return
	}

	ref.Tell(op)
}

// Config parameterizes an EntityShard.
type Config[S any] struct {
	// ShardID is this shard's own identity.
	ShardID entityid.ShardId

	// Strategy maps an EntityId to the ShardId that owns it.
	Strategy sharding.Strategy

	// Peers routes an Op to the ShardId Strategy says owns it, when that
	// isn't this shard.
	Peers PeerRouter

	// NewState constructs a fresh entity state, given the Base the new
	// entity will use.
	NewState func(base *entityactor.Base) *S

	// Dispatcher is the immutable handler table shared by every entity
	// this shard hosts.
	Dispatcher *dispatch.Dispatcher[S]

	// ShutdownPolicy is the auto-shutdown policy applied to every entity
	// this shard spawns.
	ShutdownPolicy entityactor.AutoShutdownPolicy

	// MaxConcurrentShutdowns bounds how many entities may be mid-shutdown
	// at once; additional RequestShutdown calls queue in FIFO order.
	// Zero means unbounded.
	MaxConcurrentShutdowns int

	// EntityMailboxSize sizes each spawned entity's own mailbox.
	EntityMailboxSize int

	// ShardMailboxSize sizes this shard's own mailbox. Small values risk
	// self-Tell contention under heavy spawn/ready traffic; default 256.
	ShardMailboxSize int

	// EntityInitTimeout bounds each entity's OnInitialize call.
	EntityInitTimeout time.Duration

	// Wg, if non-nil, tracks every entity actor and the shard's own actor
	// goroutine.
	Wg *sync.WaitGroup

	// Metrics, if non-nil, records shutdown-throttle depth, ask in-flight
	// count, and live entity count for internal/metrics to export. A nil
	// Metrics disables recording, mirroring persistence.MetricsRecorder's
	// nil-disables contract.
	Metrics ShardMetrics
}

// ShardMetrics is the metrics hook a Config may supply; internal/metrics'
// concrete Prometheus-backed recorder implements it.
type ShardMetrics interface {
	// SetShutdownThrottleDepth reports how many RequestShutdown calls are
	// currently queued behind Config.MaxConcurrentShutdowns.
	SetShutdownThrottleDepth(shard entityid.ShardId, depth int)

	// SetAskInFlight reports how many AskRequests this shard has
	// forwarded but not yet resolved.
	SetAskInFlight(shard entityid.ShardId, count int)

	// SetLiveEntityCount reports how many entities this shard currently
	// hosts, of any EntityStatus.
	SetLiveEntityCount(shard entityid.ShardId, count int)
}

// ShardEnvelope is the sole message type an EntityShard's underlying actor
// processes. Op is either a shardproto.Op value routed between entities and
// shards, or an unexported shard-internal control signal (e.g. bootstrap).
type ShardEnvelope struct {
	baseactor.BaseMessage

	Op any
}

// MessageType implements baseactor.Message.
func (e *ShardEnvelope) MessageType() string { return "shard.ShardEnvelope" }

type bootstrapSignal struct{}

// askKey identifies a pending local promise for a request keyed by the
// requesting entity's own identity plus the channel handle it chose.
type askKey struct {
	entity entityid.EntityId
	chanID int64
}

// EntityShard is the C9 supervisor for every entity of one Kind at one
// shard index.
type EntityShard[S any] struct {
	cfg Config[S]

	raw *baseactor.Actor[*ShardEnvelope, any]
	ref baseactor.ActorRef[*ShardEnvelope, any]

	children map[entityid.EntityId]*entityactor.Entity[S]
	statuses map[entityid.EntityId]entityid.EntityStatus
	pending  map[entityid.EntityId][]shardproto.Op

	watch *pubsub.WatchGraph
	subs  *pubsub.Registry

	askSeq uint64
	asks   map[uint64]baseactor.Promise[any]

	// subscribeAsks, unsubscribeAsks, and syncAsks key a pending local
	// promise by the requesting entity's own identity plus the channel
	// handle it chose, since that handle is only unique per-entity, not
	// shard-wide.
	subscribeAsks   map[askKey]baseactor.Promise[any]
	unsubscribeAsks map[askKey]baseactor.Promise[any]
	syncAsks        map[askKey]baseactor.Promise[any]

	phase entityid.ShardPhase

	activeShutdowns   map[entityid.EntityId]struct{}
	deferredShutdowns []entityid.EntityId
}

// New constructs and starts an EntityShard, auto-spawning every entity
// cfg.Strategy.AutoSpawnFor declares for this shard's index.
func New[S any](ctx context.Context, cfg Config[S]) *EntityShard[S] {
	if cfg.ShardMailboxSize <= 0 {
		cfg.ShardMailboxSize = 256
	}

	sh := &EntityShard[S]{
		cfg:             cfg,
		children:        make(map[entityid.EntityId]*entityactor.Entity[S]),
		statuses:        make(map[entityid.EntityId]entityid.EntityStatus),
		pending:         make(map[entityid.EntityId][]shardproto.Op),
		watch:           pubsub.NewWatchGraph(),
		subs:            pubsub.NewRegistry(),
		asks:            make(map[uint64]baseactor.Promise[any]),
		subscribeAsks:   make(map[askKey]baseactor.Promise[any]),
		unsubscribeAsks: make(map[askKey]baseactor.Promise[any]),
		syncAsks:        make(map[askKey]baseactor.Promise[any]),
		activeShutdowns: make(map[entityid.EntityId]struct{}),
		phase:           entityid.ShardStarting,
	}

	sh.raw = baseactor.NewActor(baseactor.ActorConfig[*ShardEnvelope, any]{
		ID:          cfg.ShardID.String(),
		Behavior:    sh,
		MailboxSize: cfg.ShardMailboxSize,
		Wg:          cfg.Wg,
	})
	sh.ref = sh.raw.Ref()

	sh.raw.Start()
	sh.ref.Tell(ctx, &ShardEnvelope{Op: bootstrapSignal{}})

	return sh
}

// ID implements ShardRef.
func (sh *EntityShard[S]) ID() entityid.ShardId { return sh.cfg.ShardID }

// Tell implements both ShardRef and entityactor.ShardRef, boxing op into
// this shard's own mailbox.
func (sh *EntityShard[S]) Tell(op shardproto.Op) {
	sh.ref.Tell(context.Background(), &ShardEnvelope{Op: op})
}

// Phase returns the shard's current lifecycle phase. Safe to call from any
// goroutine: it's only ever written from the shard's own loop, and a stale
// read is a documented race any caller polling liveness must tolerate.
func (sh *EntityShard[S]) Phase() entityid.ShardPhase { return sh.phase }

// Stop asks every hosted entity to shut down and, once they have all
// terminated, stops the shard's own actor. Shutdown of children is
// throttled exactly like any other RequestShutdown.
func (sh *EntityShard[S]) Stop(ctx context.Context) {
	sh.ref.Tell(ctx, &ShardEnvelope{Op: shutdownShardSignal{}})
}

type shutdownShardSignal struct{}

// Receive implements actor.ActorBehavior.
func (sh *EntityShard[S]) Receive(ctx context.Context,
	env *ShardEnvelope,
) fn.Result[any] {

	switch op := env.Op.(type) {
	case bootstrapSignal:
		sh.bootstrap(ctx)

	case shutdownShardSignal:
		sh.beginShardShutdown(ctx)

	case shardproto.Cast:
		sh.routeCast(ctx, op)

	case shardproto.Command:
		sh.routeCommand(ctx, op)

	case shardproto.AskRequest:
		sh.routeAskRequest(ctx, op)

	case shardproto.AskReply:
		sh.routeAskReply(op)

	case shardproto.Subscribe:
		sh.routeSubscribe(ctx, op)

	case shardproto.SubscribeAck:
		sh.routeSubscribeAck(op)

	case shardproto.Unsubscribe:
		sh.routeUnsubscribe(ctx, op)

	case shardproto.UnsubscribeAck:
		sh.routeUnsubscribeAck(op)

	case shardproto.SubscriberKicked:
		sh.routeSubscriberKicked(ctx, op)

	case shardproto.Publish:
		sh.routePublish(ctx, op)

	case shardproto.Deliver:
		sh.routeDeliver(ctx, op)

	case shardproto.WatchedEntityTerminated:
		if entity, ok := sh.children[op.Watcher]; ok {
			entity.Ref().Tell(ctx, &entityactor.Envelope{
				Kind: entityactor.EnvWatchedTerminated, From: op.Dead,
			})
		}

	case shardproto.SyncBeginRequest:
		sh.routeSyncBeginRequest(ctx, op)

	case shardproto.SyncBeginResponse:
		sh.routeSyncBeginResponse(op)

	case shardproto.SyncFrame:
		sh.routeSyncFrame(ctx, op)

	case shardproto.EntityReady:
		sh.onEntityReady(op)

	case shardproto.EntityTerminated:
		sh.onEntityTerminated(ctx, op)

	case shardproto.RequestShutdown:
		sh.beginEntityShutdown(op.ID)

	case shardproto.RequestSuspend:
		sh.suspend(op.ID)

	case shardproto.RequestResume:
		sh.resume(ctx, op.ID)

	case shardproto.ClusterNodeLost:
		sh.onNodeLost(op)

	default:
		return fn.Err[any](fmt.Errorf("shard: unrecognized op %T", env.Op))
	}

	return fn.Ok[any](nil)
}

func (sh *EntityShard[S]) bootstrap(ctx context.Context) {
	for _, auto := range sh.cfg.Strategy.AutoSpawnFor(sh.cfg.ShardID.Index) {
		if _, err := sh.getOrSpawn(ctx, auto.ID); err != nil {
			log.Errorf("shard %s: auto-spawn %s failed: %v",
				sh.cfg.ShardID, auto.ID, err)
			sh.phase = entityid.ShardStartingFailed

			return
		}
	}

	sh.phase = entityid.ShardRunning
}

// ownsLocally reports whether this shard is responsible for id per the
// configured Strategy.
func (sh *EntityShard[S]) ownsLocally(id entityid.EntityId) bool {
	return sh.cfg.Strategy.ShardFor(id) == sh.cfg.ShardID
}

// forwardOrRoute sends op toward whoever owns id: locally via fn if owned
// here, or to the peer shard via cfg.Peers otherwise.
func (sh *EntityShard[S]) forwardOrRoute(id entityid.EntityId, op shardproto.Op,
	local func(),
) {

	if sh.ownsLocally(id) {
		local()
		return
	}

	if sh.cfg.Peers == nil {
		log.Warnf("shard %s: no peer router configured, dropping %T for %s",
			sh.cfg.ShardID, op, id)

		return
	}

	sh.cfg.Peers.RouteOp(sh.cfg.Strategy.ShardFor(id), op)
}

func (sh *EntityShard[S]) getOrSpawn(ctx context.Context,
	id entityid.EntityId,
) (*entityactor.Entity[S], error) {

	if entity, ok := sh.children[id]; ok {
		return entity, nil
	}

	entity, err := entityactor.New(ctx, entityactor.Config[S]{
		ID:             id,
		Shard:          sh,
		NewState:       sh.cfg.NewState,
		Dispatcher:     sh.cfg.Dispatcher,
		MailboxSize:    sh.cfg.EntityMailboxSize,
		Wg:             sh.cfg.Wg,
		ShutdownPolicy: sh.cfg.ShutdownPolicy,
		InitTimeout:    sh.cfg.EntityInitTimeout,
	})
	if err != nil {
		return nil, err
	}

	sh.children[id] = entity
	sh.statuses[id] = entityid.EntityStarting
	sh.recordLiveEntityCount()

	return entity, nil
}

func (sh *EntityShard[S]) recordLiveEntityCount() {
	if sh.cfg.Metrics != nil {
		sh.cfg.Metrics.SetLiveEntityCount(sh.cfg.ShardID, len(sh.children))
	}
}

func (sh *EntityShard[S]) recordAskInFlight() {
	if sh.cfg.Metrics != nil {
		sh.cfg.Metrics.SetAskInFlight(sh.cfg.ShardID, len(sh.asks))
	}
}

func (sh *EntityShard[S]) recordShutdownThrottleDepth() {
	if sh.cfg.Metrics != nil {
		sh.cfg.Metrics.SetShutdownThrottleDepth(sh.cfg.ShardID, len(sh.deferredShutdowns))
	}
}

// bufferOrDeliver buffers op for id if id is currently Suspended, otherwise
// calls deliver immediately.
func (sh *EntityShard[S]) bufferOrDeliver(id entityid.EntityId, op shardproto.Op,
	deliver func(),
) {

	if sh.statuses[id] == entityid.EntitySuspended {
		sh.pending[id] = append(sh.pending[id], op)
		return
	}

	deliver()
}

func (sh *EntityShard[S]) routeCast(ctx context.Context, op shardproto.Cast) {
	sh.forwardOrRoute(op.Target, op, func() {
		sh.bufferOrDeliver(op.Target, op, func() {
			entity, err := sh.getOrSpawn(ctx, op.Target)
			if err != nil {
				log.Warnf("shard %s: spawn %s for cast failed: %v",
					sh.cfg.ShardID, op.Target, err)

				return
			}

			var sender entityid.EntityId
			if op.Sender != nil {
				sender = *op.Sender
			}

			entity.Ref().Tell(ctx, &entityactor.Envelope{
				Kind: entityactor.EnvCast, From: sender,
				Payload: op.Payload,
			})
		})
	})
}

func (sh *EntityShard[S]) routeCommand(ctx context.Context, op shardproto.Command) {
	sh.forwardOrRoute(op.Target, op, func() {
		sh.bufferOrDeliver(op.Target, op, func() {
			entity, err := sh.getOrSpawn(ctx, op.Target)
			if err != nil {
				log.Warnf("shard %s: spawn %s for command failed: %v",
					sh.cfg.ShardID, op.Target, err)

				return
			}

			entity.Ref().Tell(ctx, &entityactor.Envelope{
				Kind: entityactor.EnvCommand, Payload: op.Payload,
			})
		})
	})
}

func (sh *EntityShard[S]) routeAskRequest(ctx context.Context,
	op shardproto.AskRequest,
) {

	if op.ReplyTo != nil {
		sh.askSeq++
		op.AskID = sh.askSeq
		sh.asks[op.AskID] = op.ReplyTo
		op.ReplyTo = nil
		sh.recordAskInFlight()
	}

	sh.forwardOrRoute(op.Target, op, func() {
		entity, err := sh.getOrSpawn(ctx, op.Target)
		if err != nil {
			sh.failAsk(op.AskID, err)
			return
		}

		entity.Ref().Tell(ctx, &entityactor.Envelope{
			Kind: entityactor.EnvAskRequest, From: op.Sender,
			AskID: op.AskID, Payload: op.Payload,
		})
	})
}

func (sh *EntityShard[S]) failAsk(askID uint64, err error) {
	promise, ok := sh.asks[askID]
	if !ok {
		return
	}

	delete(sh.asks, askID)
	sh.recordAskInFlight()
	promise.Complete(fn.Err[any](err))
}

func (sh *EntityShard[S]) routeAskReply(op shardproto.AskReply) {
	// An AskReply always routes back to the shard that minted AskID,
	// which may not be this shard if the asker lives elsewhere.
	if !sh.ownsLocally(op.Target) {
		sh.cfg.Peers.RouteOp(sh.cfg.Strategy.ShardFor(op.Target), op)
		return
	}

	promise, ok := sh.asks[op.AskID]
	if !ok {
		return
	}

	delete(sh.asks, op.AskID)
	sh.recordAskInFlight()

	if op.Err != nil {
		promise.Complete(fn.Err[any](op.Err))
		return
	}

	promise.Complete(fn.Ok(op.Payload))
}

func (sh *EntityShard[S]) routeSubscribe(ctx context.Context,
	op shardproto.Subscribe,
) {

	if op.ReplyTo != nil {
		sh.subscribeAsks[askKey{op.Subscriber, op.InChannelID}] = op.ReplyTo
		op.ReplyTo = nil
	}

	sh.forwardOrRoute(op.Target, op, func() {
		entity, err := sh.getOrSpawn(ctx, op.Target)
		if err != nil {
			log.Warnf("shard %s: spawn %s for subscribe failed: %v",
				sh.cfg.ShardID, op.Target, err)

			sh.routeSubscribeAck(shardproto.SubscribeAck{
				Subscriber: op.Subscriber, Target: op.Target,
				Topic:        op.Topic,
				OutChannelID: op.InChannelID, Err: err,
			})

			return
		}

		entity.Ref().Tell(ctx, &entityactor.Envelope{
			Kind: entityactor.EnvSubscribeRequest, From: op.Subscriber,
			ChannelID: op.InChannelID, Topic: op.Topic, Payload: op.Payload,
		})
	})
}

// routeSubscribeAck registers the subscription in the registry it will
// later be fanned out from (the TARGET's own shard, since that's where
// Publish is dispatched from) the first time it sees this ack, then routes
// the ack onward to whichever shard owns Subscriber to complete the
// originally-stored promise. Target and Subscriber may be owned by the same
// shard, in which case both steps happen in a single pass with no hop.
func (sh *EntityShard[S]) routeSubscribeAck(op shardproto.SubscribeAck) {
	if sh.ownsLocally(op.Target) && op.Err == nil {
		sh.subs.Add(pubsub.Subscription{
			Subscriber: op.Subscriber, Target: op.Target, Topic: op.Topic,
			SubscriberChan: op.OutChannelID,
		})
		sh.watch.Watch(op.Subscriber, op.Target)
	}

	if sh.ownsLocally(op.Subscriber) {
		key := askKey{op.Subscriber, op.OutChannelID}
		if promise, ok := sh.subscribeAsks[key]; ok {
			delete(sh.subscribeAsks, key)
			promise.Complete(fn.Ok[any](&op))
		}

		return
	}

	sh.cfg.Peers.RouteOp(sh.cfg.Strategy.ShardFor(op.Subscriber), op)
}

func (sh *EntityShard[S]) routeUnsubscribe(ctx context.Context,
	op shardproto.Unsubscribe,
) {

	if op.ReplyTo != nil {
		sh.unsubscribeAsks[askKey{op.Subscriber, op.OutChannelID}] = op.ReplyTo
		op.ReplyTo = nil
	}

	sh.forwardOrRoute(op.Target, op, func() {
		sub, found := sh.subs.RemoveByChannel(op.Target, op.OutChannelID)
		if found {
			sh.watch.Unwatch(sub.Subscriber, sub.Target)
		}

		entity, ok := sh.children[op.Target]
		if !ok {
			sh.routeUnsubscribeAck(shardproto.UnsubscribeAck{
				Subscriber: op.Subscriber, Target: op.Target,
				OutChannelID: op.OutChannelID,
				Result:       shardproto.UnsubscribeUnknownSubscriber,
			})

			return
		}

		entity.Ref().Tell(ctx, &entityactor.Envelope{
			Kind: entityactor.EnvUnsubscribeRequest, From: op.Subscriber,
			ChannelID: op.OutChannelID,
		})
	})
}

func (sh *EntityShard[S]) routeUnsubscribeAck(op shardproto.UnsubscribeAck) {
	if !sh.ownsLocally(op.Subscriber) {
		sh.cfg.Peers.RouteOp(sh.cfg.Strategy.ShardFor(op.Subscriber), op)
		return
	}

	key := askKey{op.Subscriber, op.OutChannelID}
	if promise, ok := sh.unsubscribeAsks[key]; ok {
		delete(sh.unsubscribeAsks, key)
		promise.Complete(fn.Ok[any](&op))
	}
}

func (sh *EntityShard[S]) routeSubscriberKicked(ctx context.Context,
	op shardproto.SubscriberKicked,
) {

	sh.forwardOrRoute(op.Subscriber, op, func() {
		sub, ok := sh.subs.RemoveByChannel(op.Target, op.InChannelID)
		if ok {
			sh.watch.Unwatch(sub.Subscriber, sub.Target)
		}

		entity, ok := sh.children[op.Subscriber]
		if !ok {
			return
		}

		entity.Ref().Tell(ctx, &entityactor.Envelope{
			Kind: entityactor.EnvSubscriberKicked, From: op.Target,
			ChannelID: op.InChannelID, Payload: op.Message,
		})
	})
}

// routePublish only ever runs on the shard owning op.From, since that's
// the only registry with entries for it (spec.md §4.4 fan-out). Each
// matching subscription becomes a Deliver addressed at that specific
// subscriber and channel, so a subscriber on a different shard doesn't
// need (and wouldn't have) a registry entry of its own to re-resolve.
func (sh *EntityShard[S]) routePublish(ctx context.Context, op shardproto.Publish) {
	for _, sub := range sh.subs.SubscribersOf(op.From, op.Topic) {
		sh.routeDeliver(ctx, shardproto.Deliver{
			Subscriber: sub.Subscriber, From: op.From, Topic: op.Topic,
			ChannelID: sub.SubscriberChan, Payload: op.Payload,
		})
	}
}

func (sh *EntityShard[S]) routeDeliver(ctx context.Context, op shardproto.Deliver) {
	sh.forwardOrRoute(op.Subscriber, op, func() {
		entity, ok := sh.children[op.Subscriber]
		if !ok {
			return
		}

		entity.Ref().Tell(ctx, &entityactor.Envelope{
			Kind: entityactor.EnvPublish, From: op.From,
			ChannelID: op.ChannelID, Topic: op.Topic,
			Payload: op.Payload,
		})
	})
}

func (sh *EntityShard[S]) routeSyncBeginRequest(ctx context.Context,
	op shardproto.SyncBeginRequest,
) {

	if op.ReplyTo != nil {
		sh.syncAsks[askKey{op.Source, op.SourceChan}] = op.ReplyTo
		op.ReplyTo = nil
	}

	sh.forwardOrRoute(op.Target, op, func() {
		entity, err := sh.getOrSpawn(ctx, op.Target)
		if err != nil {
			log.Warnf("shard %s: spawn %s for sync begin failed: %v",
				sh.cfg.ShardID, op.Target, err)

			return
		}

		entity.Ref().Tell(ctx, &entityactor.Envelope{
			Kind: entityactor.EnvSyncBeginRequest, From: op.Source,
			ChannelID: op.SourceChan, Payload: op.Payload,
		})
	})
}

func (sh *EntityShard[S]) routeSyncBeginResponse(op shardproto.SyncBeginResponse) {
	if !sh.ownsLocally(op.Source) {
		sh.cfg.Peers.RouteOp(sh.cfg.Strategy.ShardFor(op.Source), op)
		return
	}

	key := askKey{op.Source, op.SourceChan}
	if promise, ok := sh.syncAsks[key]; ok {
		delete(sh.syncAsks, key)
		promise.Complete(fn.Ok[any](&op))
	}
}

func (sh *EntityShard[S]) routeSyncFrame(ctx context.Context, op shardproto.SyncFrame) {
	sh.forwardOrRoute(op.To, op, func() {
		entity, ok := sh.children[op.To]
		if !ok {
			return
		}

		entity.Ref().Tell(ctx, &entityactor.Envelope{
			Kind: entityactor.EnvSyncFrame, From: op.From,
			ChannelID: op.RemoteChan, Payload: op.Payload,
		})
	})
}

func (sh *EntityShard[S]) onEntityReady(op shardproto.EntityReady) {
	sh.statuses[op.ID] = entityid.EntityRunning
}

func (sh *EntityShard[S]) onEntityTerminated(ctx context.Context,
	op shardproto.EntityTerminated,
) {

	delete(sh.children, op.ID)
	delete(sh.statuses, op.ID)
	delete(sh.pending, op.ID)
	sh.recordLiveEntityCount()

	// WatchGraph.RemoveEntity below drives the actual
	// WatchedEntityTerminated fan-out to subscribers when a target dies;
	// the registry only needs its own indices cleared here so a later
	// Publish/Unsubscribe never finds a stale entry. RemoveAllForEntity
	// only ever sees the slice of subscriptions whose Target's registry
	// lives on this shard: when op.ID dies as a subscriber of a Target
	// owned by a different shard, that remote registry entry is an
	// accepted stale-entry leak until the remote Target itself is next
	// published to or torn down (see DESIGN.md).
	sh.subs.RemoveAllForEntity(op.ID)

	for _, watcher := range sh.watch.RemoveEntity(op.ID) {
		sh.forwardOrRoute(watcher, shardproto.WatchedEntityTerminated{
			Watcher: watcher, Dead: op.ID,
		}, func() {
			entity, ok := sh.children[watcher]
			if !ok {
				return
			}

			entity.Ref().Tell(ctx, &entityactor.Envelope{
				Kind: entityactor.EnvWatchedTerminated, From: op.ID,
			})
		})
	}

	if _, wasShuttingDown := sh.activeShutdowns[op.ID]; wasShuttingDown {
		delete(sh.activeShutdowns, op.ID)
		sh.admitNextDeferredShutdown()
	}

	if sh.phase == entityid.ShardStopping && len(sh.children) == 0 {
		sh.phase = entityid.ShardStopped
	}
}

// onNodeLost synthesizes a WatchedEntityTerminated for every local watch
// whose target lived on one of the lost node's shards. Those targets were
// never hosted here, so there is no child/status/pending bookkeeping to
// clear, unlike onEntityTerminated.
func (sh *EntityShard[S]) onNodeLost(op shardproto.ClusterNodeLost) {
	lost := make(map[entityid.ShardId]struct{}, len(op.Shards))
	for _, id := range op.Shards {
		lost[id] = struct{}{}
	}

	for _, target := range sh.watch.AllTargets() {
		if _, ok := lost[sh.cfg.Strategy.ShardFor(target)]; !ok {
			continue
		}

		for _, watcher := range sh.watch.RemoveEntity(target) {
			sh.forwardOrRoute(watcher, shardproto.WatchedEntityTerminated{
				Watcher: watcher, Dead: target,
			}, func() {
				entity, ok := sh.children[watcher]
				if !ok {
					return
				}

				entity.Ref().Tell(context.Background(), &entityactor.Envelope{
					Kind: entityactor.EnvWatchedTerminated, From: target,
				})
			})
		}
	}
}

func (sh *EntityShard[S]) beginEntityShutdown(id entityid.EntityId) {
	entity, ok := sh.children[id]
	if !ok {
		return
	}

	if _, already := sh.activeShutdowns[id]; already {
		return
	}

	sh.statuses[id] = entityid.EntityStopping

	if sh.cfg.MaxConcurrentShutdowns > 0 &&
		len(sh.activeShutdowns) >= sh.cfg.MaxConcurrentShutdowns {

		sh.deferredShutdowns = append(sh.deferredShutdowns, id)
		sh.recordShutdownThrottleDepth()
		return
	}

	sh.activeShutdowns[id] = struct{}{}
	entity.Stop()
}

func (sh *EntityShard[S]) admitNextDeferredShutdown() {
	for len(sh.deferredShutdowns) > 0 {
		next := sh.deferredShutdowns[0]
		sh.deferredShutdowns = sh.deferredShutdowns[1:]
		sh.recordShutdownThrottleDepth()

		entity, ok := sh.children[next]
		if !ok {
			continue
		}

		sh.activeShutdowns[next] = struct{}{}
		entity.Stop()

		return
	}
}

func (sh *EntityShard[S]) suspend(id entityid.EntityId) {
	entity, ok := sh.children[id]
	if !ok {
		return
	}

	sh.statuses[id] = entityid.EntitySuspended
	entity.Ref().Tell(context.Background(), &entityactor.Envelope{
		Kind: entityactor.EnvSuspend,
	})
}

func (sh *EntityShard[S]) resume(ctx context.Context, id entityid.EntityId) {
	entity, ok := sh.children[id]
	if !ok {
		return
	}

	sh.statuses[id] = entityid.EntityRunning
	entity.Ref().Tell(ctx, &entityactor.Envelope{Kind: entityactor.EnvResume})

	buffered := sh.pending[id]
	delete(sh.pending, id)

	for _, op := range buffered {
		switch typed := op.(type) {
		case shardproto.Cast:
			sh.routeCast(ctx, typed)
		case shardproto.Command:
			sh.routeCommand(ctx, typed)
		}
	}
}

func (sh *EntityShard[S]) beginShardShutdown(ctx context.Context) {
	sh.phase = entityid.ShardStopping

	if len(sh.children) == 0 {
		sh.phase = entityid.ShardStopped
		return
	}

	for id := range sh.children {
		sh.beginEntityShutdown(id)
	}
}
