// Package signals names the signals our binaries react to.
package signals

import (
	"os"
	"syscall"
)

// TerminationSignals contains the signals that should stop a running
// derivation cleanly.  Pass it to signal.NotifyContext or signal.Notify.
var TerminationSignals = []os.Signal{
	os.Interrupt,
	syscall.SIGTERM,
}
