package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/entityrt/entityrt/internal/cluster"
	"github.com/entityrt/entityrt/internal/entityid"
)

var shardKind string

var shardsCmd = &cobra.Command{
	Use:   "shards",
	Short: "Inspect cluster shard topology",
}

var shardsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the node addresses hosting a given entity Kind",
	RunE:  runShardsList,
}

func init() {
	shardsListCmd.Flags().StringVar(&shardKind, "kind", "",
		"Entity Kind to list shard addresses for (required)")
	_ = shardsListCmd.MarkFlagRequired("kind")

	shardsCmd.AddCommand(shardsListCmd)
	rootCmd.AddCommand(shardsCmd)
}

func runShardsList(cmd *cobra.Command, args []string) error {
	clusterCfg, err := cluster.NewNATSClusterConfig(cluster.NATSConfig{
		URL:           natsURL,
		MaxReconnects: 1,
		ReconnectWait: time.Second,
	})
	if err != nil {
		return fmt.Errorf("connect to membership bus: %w", err)
	}
	defer clusterCfg.Close()

	addrs := clusterCfg.ShardsForKind(entityid.Kind(shardKind))

	if outputFormat == "json" {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(addrs)
	}

	if len(addrs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no shards registered for kind %q\n", shardKind)
		return nil
	}

	for i, addr := range addrs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s#%d -> %s\n", shardKind, i, addr)
	}

	return nil
}
