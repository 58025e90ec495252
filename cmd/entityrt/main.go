// Command entityrt is the operator CLI for a running entityrtd cluster: it
// dials a node's peer-shard gRPC transport directly and sends one-shot
// administrative ops (entity shutdown, subscriber eviction), the same way a
// peer shard would, and connects to the NATS membership bus for shard
// discovery.
package main

import (
	"fmt"
	"os"

	"github.com/entityrt/entityrt/cmd/entityrt/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
