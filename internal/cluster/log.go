package cluster

import "github.com/btcsuite/btclog/v2"

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by internal/cluster.
func UseLogger(logger btclog.Logger) {
	log = logger
}
