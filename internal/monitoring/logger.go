// Package monitoring holds the process-wide logger used by command glue and
// the session recorder, and the Prometheus metrics the drilling loop
// reports per cycle.
package monitoring

import "log"

// Logf is the package-level logger. It defaults to log.Printf; SetLogger
// redirects or mutes it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
