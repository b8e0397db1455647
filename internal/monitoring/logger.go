// Package monitoring holds the process-wide diagnostic logger shared
// by the bus, convert, and replay packages. Frame pumps log at rates
// that would swamp test output, so tests capture or mute the sink with
// SetLogger.
package monitoring

import "log"

// Logf writes one diagnostic line. It defaults to the standard logger;
// SetLogger swaps the sink.
var Logf = log.Printf

// Discard drops every line. SetLogger(nil) installs it.
func Discard(string, ...interface{}) {}

// SetLogger replaces Logf. A nil sink installs Discard.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = Discard
		return
	}
	Logf = f
}
