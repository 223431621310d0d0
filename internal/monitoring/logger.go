// Package monitoring holds the process-wide diagnostic logger. Packages
// log through it so the command can route everything into one sink.
package monitoring

import (
	"log"
	"sync/atomic"
)

// LogFunc is a printf-style log sink.
type LogFunc func(format string, v ...interface{})

var current atomic.Value

func init() {
	current.Store(LogFunc(log.Printf))
}

// Logf logs through the current sink. It defaults to log.Printf.
func Logf(format string, v ...interface{}) {
	current.Load().(LogFunc)(format, v...)
}

// SetLogger replaces the sink. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	current.Store(LogFunc(f))
}

// Component returns a LogFunc that prefixes every message with
// "[name] " and logs through whatever sink is current at call time.
func Component(name string) LogFunc {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
