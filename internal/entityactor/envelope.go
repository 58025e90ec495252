package entityactor

import (
	"context"

	baseactor "github.com/entityrt/entityrt/internal/baselib/actor"
	"github.com/entityrt/entityrt/internal/entityid"
)

// EnvelopeKind discriminates what an Envelope is carrying into an entity's
// single-threaded mailbox loop. Every operation the runtime routes to an
// entity — user traffic, inbound ask/subscribe/sync protocol requests,
// scheduler wake-ups, continuations, and lifecycle control — is boxed into
// one of these so the entity keeps a single mailbox and a single point of
// serialization.
type EnvelopeKind int

const (
	// EnvCast carries a fire-and-forget user message with sender identity,
	// dispatched via the Message handler kind.
	EnvCast EnvelopeKind = iota

	// EnvCommand carries a fire-and-forget user message with no sender
	// identity, dispatched via the Command handler kind.
	EnvCommand

	// EnvAskRequest carries an inbound ask addressed to this entity.
	EnvAskRequest

	// EnvSubscribeRequest carries an inbound Subscribe request, this entity
	// being the publish-side target.
	EnvSubscribeRequest

	// EnvUnsubscribeRequest carries an inbound Unsubscribe request, this
	// entity being the publish-side target.
	EnvUnsubscribeRequest

	// EnvPublish carries a published message on a topic this entity
	// subscribes to.
	EnvPublish

	// EnvSubscriberKicked notifies a subscribed entity that it was kicked.
	EnvSubscriberKicked

	// EnvWatchedTerminated notifies a watcher that a watched entity died.
	EnvWatchedTerminated

	// EnvSyncBeginRequest carries an inbound synchronize-open request, this
	// entity being the target.
	EnvSyncBeginRequest

	// EnvSyncFrame carries an inbound synchronize data/EOF frame.
	EnvSyncFrame

	// EnvExecute carries an ExecuteOnActor closure to run inline.
	EnvExecute

	// EnvWake is posted by this entity's own Scheduler when a deadline
	// fires; handling it means calling Scheduler.DrainDue.
	EnvWake

	// EnvContinuation carries a ContinueTaskOnActor background result.
	EnvContinuation

	// EnvSuspend asks the entity to transition to EntitySuspended.
	EnvSuspend

	// EnvResume asks the entity to transition back to EntityRunning.
	EnvResume
)

// Envelope is the sole message type an entity's underlying actor.Actor
// processes.
type Envelope struct {
	baseactor.BaseMessage

	Kind EnvelopeKind

	// Payload is the user message, shardproto value, or internal control
	// value relevant to Kind.
	Payload any

	// From is set for cast/ask/subscribe/sync envelopes with a sender.
	From entityid.EntityId

	// AskID correlates EnvAskRequest to the AskReply this entity must Tell
	// back to its shard.
	AskID uint64

	// ChannelID correlates EnvSyncBeginRequest/EnvSyncFrame to a local
	// synchronize channel, or (for EnvSubscribeRequest/EnvUnsubscribeRequest/
	// EnvPublish/EnvSubscriberKicked) the pub/sub channel handle.
	ChannelID int64

	// Topic carries the pub/sub topic for EnvSubscribeRequest/EnvPublish.
	Topic string

	// execute carries the closure for EnvExecute; unexported so it never
	// round-trips through a serialization boundary.
	execute func(ctx context.Context) (any, error)

	// continuation carries the background-result handlers for
	// EnvContinuation.
	continuation func()
}

// MessageType implements baseactor.Message.
func (e *Envelope) MessageType() string {
	return "entityactor.Envelope"
}
