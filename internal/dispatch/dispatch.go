// Package dispatch implements the Dispatcher component (C2): routing of a
// typed message to the right handler on an actor, by message kind (message /
// command / ask / synchronize / pubsub).
//
// The source system this runtime is modeled on introspects annotated methods
// at startup and builds a (messageType -> handler) mapping via reflection.
// Go has no method annotations, so per the REDESIGN FLAGS in spec.md §9 this
// package replaces that with an explicit registration builder: each entity
// type registers one closure per message type it handles, keyed by the
// message's reflect.Type, producing the same map deterministically at build
// time instead of at reflection time.
package dispatch

import (
	"context"
	"fmt"
	"reflect"

	"github.com/entityrt/entityrt/internal/entityid"
)

// AskHandle is passed to an explicit ask handler. The handler must call Reply
// exactly once; calling it more than once or not at all is a configuration
// error the caller should guard against (the shard's ask table already
// protects against double-delivery of the resulting reply).
type AskHandle interface {
	// Reply completes the in-flight ask with a successful payload.
	Reply(payload any)

	// Refuse completes the in-flight ask with a typed, user-defined
	// refusal (propagated to the caller as a failed reply, not an
	// UnexpectedRemoteError).
	Refuse(refusal error)
}

// SyncHandle is passed to a synchronize handler, giving it access to the
// paired channel's read/write primitives without going through the mailbox.
type SyncHandle interface {
	// LocalChannelID identifies this endpoint's half of the channel.
	LocalChannelID() int64
}

// Subscriber represents the publisher-side view of a pub/sub link: the
// identity of the entity that subscribed, handed to OnNewSubscriber /
// OnSubscriberUnsubscribed / OnSubscriberKicked handlers.
type Subscriber struct {
	PeerEntityID entityid.EntityId
	Topic        string
	InChannelID  int64
}

// Subscription represents the subscriber-side view of a pub/sub link: the
// identity of the entity being subscribed to, handed to
// OnSubscriptionLost/OnSubscriberTerminated handlers.
type Subscription struct {
	PeerEntityID entityid.EntityId
	Topic        string
	OutChannelID int64
}

// ErrDuplicateHandler is returned by registration functions when a handler
// for the same message type is already registered on a Builder.
var ErrDuplicateHandler = fmt.Errorf("duplicate handler registration")

// messageHandlerFn is the type-erased form every typed message handler is
// reduced to for storage in the registry.
type messageHandlerFn[S any] func(ctx context.Context, state *S,
	sender *entityid.EntityId, msg any) error

type commandHandlerFn[S any] func(ctx context.Context, state *S,
	cmd any) error

type askHandlerFn[S any] func(ctx context.Context, state *S,
	sender *entityid.EntityId, msg any) (any, error)

type explicitAskHandlerFn[S any] func(ctx context.Context, state *S,
	handle AskHandle, msg any) error

type syncHandlerFn[S any] func(ctx context.Context, state *S,
	handle SyncHandle, msg any) error

type pubsubHandlerFn[S any] func(ctx context.Context, state *S,
	link any, msg any) error

// Builder accumulates handler registrations for entity state type S. Use
// RegisterMessage/RegisterCommand/RegisterAsk/RegisterExplicitAsk/
// RegisterSynchronize/RegisterPubSub to populate it, then call Build to
// obtain an immutable Dispatcher. Registration happens once at startup
// (typically from an entity type's constructor or a package-level
// register_handlers function) and the resulting Dispatcher is never mutated
// afterwards, matching the "Handler registration" contract in spec.md §6.
type Builder[S any] struct {
	messageHandlers     map[reflect.Type]messageHandlerFn[S]
	commandHandlers     map[reflect.Type]commandHandlerFn[S]
	askHandlers         map[reflect.Type]askHandlerFn[S]
	explicitAskHandlers map[reflect.Type]explicitAskHandlerFn[S]
	syncHandlers        map[reflect.Type]syncHandlerFn[S]
	pubsubHandlers      map[reflect.Type]pubsubHandlerFn[S]
	fallback            func(ctx context.Context, state *S, msg any) error
}

// NewBuilder creates an empty Builder for entity state type S.
func NewBuilder[S any]() *Builder[S] {
	return &Builder[S]{
		messageHandlers:     make(map[reflect.Type]messageHandlerFn[S]),
		commandHandlers:     make(map[reflect.Type]commandHandlerFn[S]),
		askHandlers:         make(map[reflect.Type]askHandlerFn[S]),
		explicitAskHandlers: make(map[reflect.Type]explicitAskHandlerFn[S]),
		syncHandlers:        make(map[reflect.Type]syncHandlerFn[S]),
		pubsubHandlers:      make(map[reflect.Type]pubsubHandlerFn[S]),
	}
}

func typeOf[M any]() reflect.Type {
	return reflect.TypeOf((*M)(nil)).Elem()
}

// RegisterMessage registers a "message" (cast) handler: (senderId?, msg) ->
// error. Returns ErrDuplicateHandler if M is already registered as any
// handler kind on this builder.
func RegisterMessage[S any, M any](b *Builder[S],
	handler func(ctx context.Context, state *S,
		sender *entityid.EntityId, msg M) error,
) error {
	t := typeOf[M]()
	if err := b.checkFree(t); err != nil {
		return err
	}

	b.messageHandlers[t] = func(ctx context.Context, state *S,
		sender *entityid.EntityId, msg any) error {

		return handler(ctx, state, sender, msg.(M))
	}

	return nil
}

// RegisterCommand registers a "command" handler: (cmd) -> error.
func RegisterCommand[S any, C any](b *Builder[S],
	handler func(ctx context.Context, state *S, cmd C) error,
) error {
	t := typeOf[C]()
	if err := b.checkFree(t); err != nil {
		return err
	}

	b.commandHandlers[t] = func(ctx context.Context, state *S,
		cmd any) error {

		return handler(ctx, state, cmd.(C))
	}

	return nil
}

// RegisterAsk registers an implicit ask handler: (senderId?, msg) -> (Reply,
// error). The dispatcher replies automatically with the returned value; a
// non-nil returned error fails the ask as a refusal (AskReply.Refusal set).
// Handler errors are not split into refusals and unexpected remote errors,
// and the entity keeps running after one.
func RegisterAsk[S any, M any, R any](b *Builder[S],
	handler func(ctx context.Context, state *S,
		sender *entityid.EntityId, msg M) (R, error),
) error {
	t := typeOf[M]()
	if err := b.checkFree(t); err != nil {
		return err
	}

	b.askHandlers[t] = func(ctx context.Context, state *S,
		sender *entityid.EntityId, msg any) (any, error) {

		return handler(ctx, state, sender, msg.(M))
	}

	return nil
}

// RegisterExplicitAsk registers an explicit ask handler: (askHandle, msg) ->
// error. The handler must call AskHandle.Reply or AskHandle.Refuse exactly
// once.
func RegisterExplicitAsk[S any, M any](b *Builder[S],
	handler func(ctx context.Context, state *S, handle AskHandle,
		msg M) error,
) error {
	t := typeOf[M]()
	if err := b.checkFree(t); err != nil {
		return err
	}

	b.explicitAskHandlers[t] = func(ctx context.Context, state *S,
		handle AskHandle, msg any) error {

		return handler(ctx, state, handle, msg.(M))
	}

	return nil
}

// RegisterSynchronize registers a synchronize-channel handler: (syncHandle,
// msg) -> error.
func RegisterSynchronize[S any, M any](b *Builder[S],
	handler func(ctx context.Context, state *S, handle SyncHandle,
		msg M) error,
) error {
	t := typeOf[M]()
	if err := b.checkFree(t); err != nil {
		return err
	}

	b.syncHandlers[t] = func(ctx context.Context, state *S,
		handle SyncHandle, msg any) error {

		return handler(ctx, state, handle, msg.(M))
	}

	return nil
}

// RegisterPubSub registers a pub/sub handler: (subscriber|subscription, msg)
// -> error. L is either Subscriber or Subscription depending on whether this
// entity is acting as publisher or subscriber for the message in question.
func RegisterPubSub[S any, M any, L any](b *Builder[S],
	handler func(ctx context.Context, state *S, link L, msg M) error,
) error {
	t := typeOf[M]()
	if err := b.checkFree(t); err != nil {
		return err
	}

	b.pubsubHandlers[t] = func(ctx context.Context, state *S,
		link any, msg any) error {

		return handler(ctx, state, link.(L), msg.(M))
	}

	return nil
}

// RegisterFallback registers the generic fallback invoked for any message
// type with no matching handler of any kind.
func (b *Builder[S]) RegisterFallback(
	handler func(ctx context.Context, state *S, msg any) error,
) {
	b.fallback = handler
}

// checkFree returns ErrDuplicateHandler if t is already registered as a
// message, command, ask (implicit or explicit), synchronize, or pubsub
// handler. Duplicate handlers for the same type within an actor (or across
// components of the same actor) are a configuration error per spec.md §4.2.
func (b *Builder[S]) checkFree(t reflect.Type) error {
	switch {
	case has(b.messageHandlers, t), has(b.commandHandlers, t),
		has(b.askHandlers, t), has(b.explicitAskHandlers, t),
		has(b.syncHandlers, t), has(b.pubsubHandlers, t):

		return fmt.Errorf("%w: type %s already has a registered "+
			"handler", ErrDuplicateHandler, t)

	default:
		return nil
	}
}

func has[V any](m map[reflect.Type]V, t reflect.Type) bool {
	_, ok := m[t]
	return ok
}

// Build freezes the builder into an immutable Dispatcher.
func (b *Builder[S]) Build() *Dispatcher[S] {
	return &Dispatcher[S]{
		messageHandlers:     b.messageHandlers,
		commandHandlers:     b.commandHandlers,
		askHandlers:         b.askHandlers,
		explicitAskHandlers: b.explicitAskHandlers,
		syncHandlers:        b.syncHandlers,
		pubsubHandlers:      b.pubsubHandlers,
		fallback:            b.fallback,
	}
}

// Dispatcher is the immutable (messageType -> handler) mapping built for one
// entity type. It is safe for concurrent use (read-only after Build), though
// in practice only one entity's own goroutine ever calls into it.
type Dispatcher[S any] struct {
	messageHandlers     map[reflect.Type]messageHandlerFn[S]
	commandHandlers     map[reflect.Type]commandHandlerFn[S]
	askHandlers         map[reflect.Type]askHandlerFn[S]
	explicitAskHandlers map[reflect.Type]explicitAskHandlerFn[S]
	syncHandlers        map[reflect.Type]syncHandlerFn[S]
	pubsubHandlers      map[reflect.Type]pubsubHandlerFn[S]
	fallback            func(ctx context.Context, state *S, msg any) error
}

// ErrNoHandler is returned (wrapped) when a message type has no registered
// handler and no fallback is configured.
var ErrNoHandler = fmt.Errorf("no handler registered for message type")

// DispatchMessage routes a cast-kind message.
func (d *Dispatcher[S]) DispatchMessage(ctx context.Context, state *S,
	sender *entityid.EntityId, msg any) error {

	if h, ok := d.messageHandlers[reflect.TypeOf(msg)]; ok {
		return h(ctx, state, sender, msg)
	}

	return d.runFallbackOrErr(ctx, state, msg)
}

// DispatchCommand routes a command-kind message.
func (d *Dispatcher[S]) DispatchCommand(ctx context.Context, state *S,
	cmd any) error {

	if h, ok := d.commandHandlers[reflect.TypeOf(cmd)]; ok {
		return h(ctx, state, cmd)
	}

	return d.runFallbackOrErr(ctx, state, cmd)
}

// DispatchAsk routes an ask-kind message. It reports whether an implicit ask
// handler produced a reply directly (handled==true, reply set), whether an
// explicit ask handler took ownership of the reply (handled==true,
// reply==nil, the handler is responsible for calling AskHandle), or whether
// no handler matched at all (handled==false).
func (d *Dispatcher[S]) DispatchAsk(ctx context.Context, state *S,
	sender *entityid.EntityId, handle AskHandle, msg any,
) (handled bool, reply any, err error) {

	t := reflect.TypeOf(msg)

	if h, ok := d.askHandlers[t]; ok {
		reply, err = h(ctx, state, sender, msg)
		return true, reply, err
	}

	if h, ok := d.explicitAskHandlers[t]; ok {
		err = h(ctx, state, handle, msg)
		return true, nil, err
	}

	return false, nil, nil
}

// DispatchSynchronize routes a synchronize-channel frame.
func (d *Dispatcher[S]) DispatchSynchronize(ctx context.Context, state *S,
	handle SyncHandle, msg any) error {

	if h, ok := d.syncHandlers[reflect.TypeOf(msg)]; ok {
		return h(ctx, state, handle, msg)
	}

	return d.runFallbackOrErr(ctx, state, msg)
}

// DispatchPubSub routes a pub/sub notification.
func (d *Dispatcher[S]) DispatchPubSub(ctx context.Context, state *S,
	link any, msg any) error {

	if h, ok := d.pubsubHandlers[reflect.TypeOf(msg)]; ok {
		return h(ctx, state, link, msg)
	}

	return d.runFallbackOrErr(ctx, state, msg)
}

func (d *Dispatcher[S]) runFallbackOrErr(ctx context.Context, state *S,
	msg any) error {

	if d.fallback != nil {
		return d.fallback(ctx, state, msg)
	}

	return fmt.Errorf("%w: %T", ErrNoHandler, msg)
}
