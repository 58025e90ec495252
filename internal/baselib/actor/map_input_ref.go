package actor

import (
	"context"
	"fmt"
)

// MapInputRef adapts a TellOnlyRef[Out] so it can also be addressed as a
// TellOnlyRef[In]: every message sent through it is run through mapFn first,
// then forwarded. This lets one entity subscribe to a source that only knows
// how to emit a generic event type, while still receiving its own
// domain-specific message type on the other end.
//
// For example, a presence tracker might broadcast a generic PlayerLeft event
// to every subscriber, while a given subscriber's mailbox only accepts its
// own WatchedEntityTerminated message; MapInputRef bridges the two without
// the source needing to know about the subscriber's concrete message type.
type MapInputRef[In Message, Out Message] struct {
	// targetRef is the underlying TellOnlyRef that receives transformed
	// messages.
	targetRef TellOnlyRef[Out]

	// mapFn transforms incoming messages from type In to type Out.
	mapFn func(In) Out
}

// NewMapInputRef creates a new message-transforming wrapper around a
// TellOnlyRef. The mapFn function is called for each message to transform it
// from type In to type Out before forwarding to targetRef.
func NewMapInputRef[In Message, Out Message](
	targetRef TellOnlyRef[Out], mapFn func(In) Out,
) *MapInputRef[In, Out] {
	return &MapInputRef[In, Out]{
		targetRef: targetRef,
		mapFn:     mapFn,
	}
}

// Tell transforms the incoming message using mapFn and forwards it to the
// target reference.
func (m *MapInputRef[In, Out]) Tell(ctx context.Context, msg In) {
	transformed := m.mapFn(msg)
	m.targetRef.Tell(ctx, transformed)
}

// ID returns a composite identifier incorporating the target's ID.
func (m *MapInputRef[In, Out]) ID() string {
	return fmt.Sprintf("map-input->%s", m.targetRef.ID())
}

// baseActorRefMarker is not required by BaseActorRef, whose only method is
// ID; nothing in this package calls it.
//
//nolint:unused
func (m *MapInputRef[In, Out]) baseActorRefMarker() {}

// Compile-time check that MapInputRef implements TellOnlyRef.
//
//nolint:forcetypeassert
var _ TellOnlyRef[Message] = (*MapInputRef[Message, Message])(nil)
