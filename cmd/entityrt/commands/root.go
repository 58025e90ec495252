package commands

import (
	"github.com/spf13/cobra"
)

var (
	// clusterAddr is the peer-shard gRPC transport address of the node
	// to operate against.
	clusterAddr string

	// natsURL is the membership bus address, used by commands that read
	// cluster topology rather than send an op.
	natsURL string

	// outputFormat controls output format (text, json).
	outputFormat string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "entityrt",
	Short: "Operator CLI for an entityrt cluster",
	Long: `entityrt sends one-shot administrative ops directly to a running
entityrtd node's peer-shard transport, or reads cluster topology from the
membership bus.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&clusterAddr, "addr", "127.0.0.1:7946",
		"Peer-shard gRPC transport address of the target node",
	)
	rootCmd.PersistentFlags().StringVar(
		&natsURL, "nats-url", "nats://127.0.0.1:4222",
		"Membership bus address",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)
}
