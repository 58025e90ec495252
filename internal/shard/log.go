package shard

import "github.com/btcsuite/btclog/v2"

// log is the package-wide logger, disabled by default until UseLogger is
// called (mirrors internal/baselib/actor's and internal/entityactor's
// pattern).
var log = btclog.Disabled

// UseLogger sets the package-wide logger used by the shard supervisor.
func UseLogger(logger btclog.Logger) {
	log = logger
}
