// Package shardproto defines the plain data messages exchanged between
// entities and their owning EntityShard, and between peer shards (locally or
// across a node, via internal/cluster). It intentionally carries no
// behavior: entityactor.Base constructs these and Tells them to whatever
// ShardRef it was configured with; internal/shard consumes them and, where a
// message crosses a shard boundary, forwards them verbatim to the peer.
package shardproto

import (
	"github.com/entityrt/entityrt/internal/baselib/actor"
	"github.com/entityrt/entityrt/internal/entityid"
)

// Op is the sealed interface for everything routed through a shard.
type Op interface {
	opMarker()
}

// BaseOp is embedded by every Op implementation, mirroring the
// actor.BaseMessage embedding idiom used for sealed interfaces elsewhere in
// this codebase.
type BaseOp struct{}

func (BaseOp) opMarker() {}

// AskRequest asks the shard owning Sender to route an ask to Target. AskID is
// assigned by the Sender's owning shard once the promise is registered; it
// is zero when an entity first submits the request.
type AskRequest struct {
	BaseOp

	AskID   uint64
	Sender  entityid.EntityId
	Target  entityid.EntityId
	Payload any

	// ReplyTo is set only on the locally-originating hop: the owning shard
	// consumes it when minting AskID and registering the correlation entry,
	// then clears it before forwarding to a peer shard. It never crosses a
	// wire transport.
	ReplyTo actor.Promise[any]
}

// AskReply is routed directly to the shard owning the original asker,
// bypassing normal mailbox ordering (spec.md §4.5 step 4): it resolves the
// stored promise by AskID without going through GetOrSpawnEntity/pending
// buffering.
type AskReply struct {
	BaseOp

	AskID    uint64
	Target   entityid.EntityId // the original asker
	FromID   entityid.EntityId // the entity that produced the reply
	Payload  any
	Err      error
	Refusal  bool // true => Err is a user-defined Refusal, not unexpected
}

// Cast is a fire-and-forget message routed to Target.
type Cast struct {
	BaseOp

	Sender  *entityid.EntityId
	Target  entityid.EntityId
	Payload any
}

// Command is a fire-and-forget message with no sender identity.
type Command struct {
	BaseOp

	Target  entityid.EntityId
	Payload any
}

// Subscribe is sent by Subscriber to Target as (conceptually) an ask; the
// shard observing it delivered locally registers the two-way watch.
type Subscribe struct {
	BaseOp

	Subscriber  entityid.EntityId
	Target      entityid.EntityId
	Topic       string
	Payload     any
	InChannelID int64

	// ReplyTo mirrors AskRequest.ReplyTo: present only on the originating
	// hop, consumed by the owning shard when registering the subscription.
	ReplyTo actor.Promise[any]
}

// SubscribeAck is the reply to Subscribe.
type SubscribeAck struct {
	BaseOp

	Subscriber   entityid.EntityId
	Target       entityid.EntityId
	Topic        string
	OutChannelID int64 // Target's inChannelID, now the subscriber's outChannelID
	Response     any
	Err          error // non-nil => Target refused the subscription
}

// Unsubscribe tears down a subscription.
type Unsubscribe struct {
	BaseOp

	Subscriber   entityid.EntityId
	Target       entityid.EntityId
	OutChannelID int64

	// ReplyTo mirrors AskRequest.ReplyTo.
	ReplyTo actor.Promise[any]
}

// UnsubscribeResult is the soft-failure-capable outcome of an Unsubscribe.
type UnsubscribeResult int

const (
	UnsubscribeSuccess UnsubscribeResult = iota
	UnsubscribeUnknownSubscriber
)

// UnsubscribeAck is the reply to Unsubscribe.
type UnsubscribeAck struct {
	BaseOp

	Subscriber   entityid.EntityId
	Target       entityid.EntityId
	OutChannelID int64
	Result       UnsubscribeResult
}

// SubscriberKicked is sent by Target to Subscriber when Target calls
// KickSubscriber; observing it on the cast path tears down the watch.
type SubscriberKicked struct {
	BaseOp

	Subscriber  entityid.EntityId
	Target      entityid.EntityId
	InChannelID int64
	Message     any
}

// Publish fans a message out to every subscriber of Topic on From. The
// shard owning From resolves the fan-out against its own registry (the
// registry always lives on the Target/publisher's shard, never the
// subscriber's) and converts each match into a Deliver addressed to that
// specific subscriber, so peer shards never need to re-run the lookup.
type Publish struct {
	BaseOp

	From      entityid.EntityId
	Topic     string
	TopicMask uint64
	Payload   any
}

// Deliver addresses a single already-resolved pub/sub delivery to
// Subscriber, carrying the channel handle Subscriber chose when it
// subscribed. Unlike Publish it never triggers a registry lookup: it is
// the wire form Publish fan-out forwards to a subscriber's own shard.
type Deliver struct {
	BaseOp

	Subscriber entityid.EntityId
	From       entityid.EntityId
	Topic      string
	ChannelID  int64
	Payload    any
}

// WatchedEntityTerminated notifies Watcher that Dead has terminated (local
// death or a synthesized node-loss fan-out).
type WatchedEntityTerminated struct {
	BaseOp

	Watcher entityid.EntityId
	Dead    entityid.EntityId
}

// SyncBeginRequest opens a paired synchronize channel from Source to Target.
type SyncBeginRequest struct {
	BaseOp

	SourceChan int64
	Source     entityid.EntityId
	Target     entityid.EntityId
	Payload    any

	// ReplyTo mirrors AskRequest.ReplyTo: resolved with a
	// *SyncBeginResponse once the peer accepts the channel.
	ReplyTo actor.Promise[any]
}

// SyncBeginResponse completes the open handshake, pairing SourceChan with
// TargetChan.
type SyncBeginResponse struct {
	BaseOp

	Source     entityid.EntityId
	Target     entityid.EntityId
	SourceChan int64
	TargetChan int64
}

// SyncFrame carries a data frame (or, with an empty Payload, an EOF marker)
// across an already-open channel, addressed by the receiving end's local
// channel id.
type SyncFrame struct {
	BaseOp

	From       entityid.EntityId
	To         entityid.EntityId
	RemoteChan int64
	Payload    []byte
	EOF        bool
}

// EntityReady notifies the owning shard that an entity finished
// OnInitialize and transitioned Starting -> Running.
type EntityReady struct {
	BaseOp

	ID entityid.EntityId
}

// EntityTerminated notifies the owning shard that an entity's actor process
// loop has exited.
type EntityTerminated struct {
	BaseOp

	ID     entityid.EntityId
	Reason error
}

// RequestShutdown asks the owning shard to begin shutting down ID.
type RequestShutdown struct {
	BaseOp

	ID entityid.EntityId
}

// RequestSuspend asks the owning shard to stop delivering casts and commands
// to ID and to buffer them until RequestResume; other ops are still
// delivered.
type RequestSuspend struct {
	BaseOp

	ID entityid.EntityId
}

// RequestResume asks the owning shard to resume delivering traffic to ID,
// flushing anything buffered while it was suspended.
type RequestResume struct {
	BaseOp

	ID entityid.EntityId
}

// ClusterNodeLost notifies every locally-hosted EntityShard that a peer
// node has dropped out of the cluster. Shards is the set the lost node
// hosted, already resolved from its address by internal/cluster (the shard
// package itself has no notion of addresses); the receiving shard enumerates
// its own watch graph for targets owned by one of Shards and synthesizes a
// WatchedEntityTerminated for each (spec.md §4.9).
type ClusterNodeLost struct {
	BaseOp

	Shards []entityid.ShardId
}
