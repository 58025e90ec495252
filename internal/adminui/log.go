package adminui

import "github.com/btcsuite/btclog/v2"

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by internal/adminui.
func UseLogger(logger btclog.Logger) {
	log = logger
}
