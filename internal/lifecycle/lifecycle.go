// Package lifecycle holds process-wide state for graceful shutdown.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown marks the process as draining. main sets it on SIGINT/SIGTERM
// before closing the listener, so /health reports shutting-down while
// in-flight dataset scans finish.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
