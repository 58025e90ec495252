package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/shardproto"
)

type greeting struct {
	Text string
}

func TestWireCodecRoundTripsCast(t *testing.T) {
	codec := NewWireCodec()

	target := entityid.ShardId{Kind: "Player", Index: 3}
	op := shardproto.Cast{
		Target:  entityid.EntityId{Kind: "Player", Value: 7},
		Payload: greeting{Text: "hi"},
	}

	data, err := EncodeFrame(codec, target, op)
	require.NoError(t, err)

	gotShard, gotOp, err := DecodeFrame(codec, data)
	require.NoError(t, err)
	require.Equal(t, target, gotShard)

	cast, ok := gotOp.(shardproto.Cast)
	require.True(t, ok)
	require.Equal(t, op.Target, cast.Target)
	require.Equal(t, greeting{Text: "hi"}, cast.Payload)
}

func TestWireCodecRoundTripsClusterNodeLost(t *testing.T) {
	codec := NewWireCodec()

	target := entityid.ShardId{Kind: "Player", Index: 0}
	op := shardproto.ClusterNodeLost{
		Shards: []entityid.ShardId{
			{Kind: "Player", Index: 1},
			{Kind: "Connection", Index: 4},
		},
	}

	data, err := EncodeFrame(codec, target, op)
	require.NoError(t, err)

	_, gotOp, err := DecodeFrame(codec, data)
	require.NoError(t, err)

	lost, ok := gotOp.(shardproto.ClusterNodeLost)
	require.True(t, ok)
	require.Equal(t, op.Shards, lost.Shards)
}

// TestWireCodecClearedReplyToSurvivesRoundTrip asserts that an AskRequest
// whose ReplyTo has already been nilled by the owning shard (the only way
// one ever reaches EncodeFrame, see shard.EntityShard.routeAskRequest)
// encodes and decodes cleanly despite actor.Promise[any] itself never being
// gob-registered.
func TestWireCodecClearedReplyToSurvivesRoundTrip(t *testing.T) {
	codec := NewWireCodec()

	target := entityid.ShardId{Kind: "Player", Index: 0}
	op := shardproto.AskRequest{
		AskID:   42,
		Sender:  entityid.EntityId{Kind: "Connection", Value: 1},
		Target:  entityid.EntityId{Kind: "Player", Value: 2},
		Payload: greeting{Text: "ask"},
		ReplyTo: nil,
	}

	data, err := EncodeFrame(codec, target, op)
	require.NoError(t, err)

	_, gotOp, err := DecodeFrame(codec, data)
	require.NoError(t, err)

	ask, ok := gotOp.(shardproto.AskRequest)
	require.True(t, ok)
	require.Equal(t, uint64(42), ask.AskID)
	require.Nil(t, ask.ReplyTo)
}

func TestRegisterPayloadTypeIsIdempotentAcrossCodecs(t *testing.T) {
	// NewWireCodec calls registerBuiltinOps on every construction; a second
	// codec built in the same process must not panic on re-registering the
	// same gob names.
	require.NotPanics(t, func() {
		NewWireCodec()
		NewWireCodec()
	})
}
