package entityactor

import "github.com/btcsuite/btclog/v2"

// log is the package-level sub-logger, disabled by default until a caller
// installs one via UseLogger (mirrors internal/baselib/actor's pattern).
var log = btclog.Disabled

// UseLogger sets the package-wide logger used by entityactor.
func UseLogger(logger btclog.Logger) {
	log = logger
}
