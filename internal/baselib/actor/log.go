package actor

import (
	"github.com/btcsuite/btclog/v2"
)

// log is the package-wide logger used by the actor runtime. It defaults to
// the no-op logger so importers that never call UseLogger still get a safe,
// side-effect-free logger.
var log = btclog.Disabled

// UseLogger sets the package-wide logger used by the actor runtime. The
// daemon's main package calls this once during startup, wiring it to the
// same handler set used by every other subsystem.
func UseLogger(logger btclog.Logger) {
	log = logger
}
