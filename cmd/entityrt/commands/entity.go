package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/shardproto"
)

var (
	targetShardKind  string
	targetShardIndex int32

	entityKind string
	entityID   uint64

	subscriberKind string
	subscriberID   uint64
	inChannelID    int64
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Operate on a single entity via its owning shard",
}

var entityShutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Request a graceful shutdown of one entity",
	RunE:  runEntityShutdown,
}

var entityKickSubscriberCmd = &cobra.Command{
	Use:   "kick-subscriber",
	Short: "Tear down one subscriber's watch on an entity",
	RunE:  runEntityKickSubscriber,
}

func init() {
	entityShutdownCmd.Flags().StringVar(&targetShardKind, "shard-kind", "",
		"Kind of the shard owning the target entity (required)")
	entityShutdownCmd.Flags().Int32Var(&targetShardIndex, "shard-index", 0,
		"Index of the shard owning the target entity")

	entityKickSubscriberCmd.Flags().StringVar(&targetShardKind, "shard-kind", "",
		"Kind of the shard owning the subscriber entity (required) — the "+
			"op is delivered to the subscriber's shard, not the target's")
	entityKickSubscriberCmd.Flags().Int32Var(&targetShardIndex, "shard-index", 0,
		"Index of the shard owning the subscriber entity")

	for _, c := range []*cobra.Command{entityShutdownCmd, entityKickSubscriberCmd} {
		c.Flags().StringVar(&entityKind, "entity-kind", "",
			"Kind of the target entity (required)")
		c.Flags().Uint64Var(&entityID, "entity-id", 0,
			"Value of the target entity's EntityId (required)")

		_ = c.MarkFlagRequired("shard-kind")
		_ = c.MarkFlagRequired("entity-kind")
		_ = c.MarkFlagRequired("entity-id")
	}

	entityKickSubscriberCmd.Flags().StringVar(&subscriberKind, "subscriber-kind", "",
		"Kind of the subscriber entity to kick (required)")
	entityKickSubscriberCmd.Flags().Uint64Var(&subscriberID, "subscriber-id", 0,
		"Value of the subscriber's EntityId (required)")
	entityKickSubscriberCmd.Flags().Int64Var(&inChannelID, "in-channel-id", 0,
		"The subscriber-local channel id returned at subscribe time (required)")

	_ = entityKickSubscriberCmd.MarkFlagRequired("subscriber-kind")
	_ = entityKickSubscriberCmd.MarkFlagRequired("subscriber-id")
	_ = entityKickSubscriberCmd.MarkFlagRequired("in-channel-id")

	entityCmd.AddCommand(entityShutdownCmd, entityKickSubscriberCmd)
	rootCmd.AddCommand(entityCmd)
}

func targetShard() entityid.ShardId {
	return entityid.ShardId{Kind: entityid.Kind(targetShardKind), Index: targetShardIndex}
}

func target() entityid.EntityId {
	return entityid.EntityId{Kind: entityid.Kind(entityKind), Value: entityID}
}

func runEntityShutdown(cmd *cobra.Command, args []string) error {
	op := shardproto.RequestShutdown{ID: target()}

	if err := sendOp(clusterAddr, targetShard(), op); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "shutdown requested for %s\n", target())
	return nil
}

func runEntityKickSubscriber(cmd *cobra.Command, args []string) error {
	subscriber := entityid.EntityId{Kind: entityid.Kind(subscriberKind), Value: subscriberID}

	op := shardproto.SubscriberKicked{
		Subscriber:  subscriber,
		Target:      target(),
		InChannelID: inChannelID,
	}

	if err := sendOp(clusterAddr, targetShard(), op); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "kicked subscriber %s off %s (channel %s)\n",
		subscriber, target(), strconv.FormatInt(inChannelID, 10))
	return nil
}
