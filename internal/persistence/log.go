package persistence

import "github.com/btcsuite/btclog/v2"

// log is the package-wide logger, disabled by default until UseLogger is
// called (mirrors internal/shard's and internal/entityactor's pattern).
var log = btclog.Disabled

// UseLogger sets the package-wide logger used by the persistence layer.
func UseLogger(logger btclog.Logger) {
	log = logger
}
