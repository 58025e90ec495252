package cluster

import (
	"encoding/gob"
	"fmt"

	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/persistence"
	"github.com/entityrt/entityrt/internal/shardproto"
)

// wireFrame is the single top-level value this package's Codec ever
// encodes: a shardproto.Op bound to the ShardId its sender resolved as the
// owner, so the receiving node's Server never needs its own copy of a
// sharding.Strategy to figure out where to deliver it.
type wireFrame struct {
	TargetShard entityid.ShardId
	Op          shardproto.Op
}

// NewWireCodec returns a persistence.Codec that frames a shardproto.Op for
// cross-node delivery. It is the same gob-based Codec internal/persistence
// uses for snapshot payloads, reused here rather than re-implemented: both
// problems are "serialize an interface-typed value whose concrete type is
// known only at registration time". RegisterPayloadType must be called for
// every entity-defined Cast/Command/Ask/Subscribe/Synchronize payload type
// this node forwards across the wire, exactly as a PersistedEntityActor's
// Codec must have every persisted payload type registered before use.
func NewWireCodec() *persistence.GobCodec {
	codec := persistence.NewGobCodec()
	codec.RegisterType("cluster.wireFrame", wireFrame{})
	registerBuiltinOps()

	return codec
}

// registerBuiltinOps registers, with the global gob registry, every
// shardproto.Op concrete type that internal/shard's forwardOrRoute actually
// hands to a PeerRouter, plus RequestShutdown, which the operator CLI sends
// as a frame (EntityReady/EntityTerminated/RequestSuspend/RequestResume
// never leave the node that owns the entity, so they're intentionally
// absent here). ReplyTo/Promise-bearing fields on
// AskRequest, Subscribe, Unsubscribe, and SyncBeginRequest are always nil by
// the time forwardOrRoute hands the Op to a PeerRouter (internal/shard
// clears them once the correlation entry is registered locally), so gob
// never has to serialize the non-serializable actor.Promise[any].
func registerBuiltinOps() {
	RegisterPayloadType("shardproto.Cast", shardproto.Cast{})
	RegisterPayloadType("shardproto.Command", shardproto.Command{})
	RegisterPayloadType("shardproto.AskRequest", shardproto.AskRequest{})
	RegisterPayloadType("shardproto.AskReply", shardproto.AskReply{})
	RegisterPayloadType("shardproto.Subscribe", shardproto.Subscribe{})
	RegisterPayloadType("shardproto.SubscribeAck", shardproto.SubscribeAck{})
	RegisterPayloadType("shardproto.Unsubscribe", shardproto.Unsubscribe{})
	RegisterPayloadType("shardproto.UnsubscribeAck", shardproto.UnsubscribeAck{})
	RegisterPayloadType("shardproto.SubscriberKicked", shardproto.SubscriberKicked{})
	RegisterPayloadType("shardproto.Deliver", shardproto.Deliver{})
	RegisterPayloadType("shardproto.WatchedEntityTerminated", shardproto.WatchedEntityTerminated{})
	RegisterPayloadType("shardproto.SyncBeginRequest", shardproto.SyncBeginRequest{})
	RegisterPayloadType("shardproto.SyncBeginResponse", shardproto.SyncBeginResponse{})
	RegisterPayloadType("shardproto.SyncFrame", shardproto.SyncFrame{})
	RegisterPayloadType("shardproto.ClusterNodeLost", shardproto.ClusterNodeLost{})
	RegisterPayloadType("shardproto.RequestShutdown", shardproto.RequestShutdown{})
}

// RegisterPayloadType makes a user-defined Cast/Command/Ask/Subscribe/
// Synchronize payload type serializable across the wire transport. It must
// be called once, before the first Encode/Decode that can reach it, for
// every payload type an application-level entity sends through a
// cross-node Op.
func RegisterPayloadType(name string, sample any) {
	gob.RegisterName(name, sample)
}

// EncodeFrame wraps op for delivery to target and serializes it.
func EncodeFrame(codec *persistence.GobCodec, target entityid.ShardId,
	op shardproto.Op,
) ([]byte, error) {

	data, err := codec.Encode(wireFrame{TargetShard: target, Op: op})
	if err != nil {
		return nil, fmt.Errorf("cluster: encode frame for %s: %w", target, err)
	}

	return data, nil
}

// DecodeFrame reverses EncodeFrame.
func DecodeFrame(codec *persistence.GobCodec, data []byte) (entityid.ShardId,
	shardproto.Op, error,
) {

	decoded, err := codec.Decode(data)
	if err != nil {
		return entityid.ShardId{}, nil, fmt.Errorf("cluster: decode frame: %w", err)
	}

	frame, ok := decoded.(wireFrame)
	if !ok {
		return entityid.ShardId{}, nil, fmt.Errorf(
			"cluster: decoded frame has unexpected type %T", decoded)
	}

	return frame.TargetShard, frame.Op, nil
}
