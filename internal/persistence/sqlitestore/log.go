package sqlitestore

import "github.com/btcsuite/btclog/v2"

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by the sqlitestore package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
