package commands

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/entityrt/entityrt/internal/cluster"
	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/shardproto"
)

// dialTimeout bounds how long a one-shot command waits to connect.
const dialTimeout = 5 * time.Second

// sendOp dials addr's peer-shard transport, sends a single frame addressed
// to target, and closes the stream. It mirrors what
// internal/cluster.PeerRouter does per-op, without keeping the connection
// open afterward, since a CLI invocation is one op and done.
func sendOp(addr string, target entityid.ShardId, op shardproto.Op) error {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	client := cluster.NewShardTransportClient(conn)

	stream, err := client.Stream(ctx)
	if err != nil {
		return fmt.Errorf("open stream to %s: %w", addr, err)
	}

	codec := cluster.NewWireCodec()

	data, err := cluster.EncodeFrame(codec, target, op)
	if err != nil {
		return fmt.Errorf("encode op: %w", err)
	}

	if err := stream.Send(&wrapperspb.BytesValue{Value: data}); err != nil {
		return fmt.Errorf("send op to %s: %w", addr, err)
	}

	return stream.CloseSend()
}
