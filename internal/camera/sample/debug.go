package sample

import (
	"io"
	"log"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures the logging streams for the sample package.
// Pass nil for either writer to disable that stream. Both are disabled by
// default.
func SetLogWriters(ops, diag io.Writer) {
	opsLogger = newLogger("[sample] ", ops, log.LstdFlags|log.Lmicroseconds)
	diagLogger = newLogger("[sample] ", diag, log.LstdFlags|log.Lmicroseconds)
}

// SetLogSinks is SetLogWriters for sinks that timestamp each line
// themselves, such as a structured logger. Lines carry only the prefix.
func SetLogSinks(ops, diag io.Writer) {
	opsLogger = newLogger("[sample] ", ops, 0)
	diagLogger = newLogger("[sample] ", diag, 0)
}

func newLogger(prefix string, w io.Writer, flags int) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, flags)
}

// opsf logs to the ops stream (malformed metadata, release failures).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// diagf logs to the diag stream (expected unavailability, per frame).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}
