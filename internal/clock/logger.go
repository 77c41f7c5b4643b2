package clock

import (
	"log"
	"os"
)

// StdLogger adapts the standard library's *log.Logger to the Logger
// capability, the default used outside of tests.
type StdLogger struct {
	*log.Logger
}

// NewStdLogger returns a Logger that writes to stderr with a microsecond
// timestamp prefix, useful for lining up engine messages against log-bus
// records when debugging a session by eye.
func NewStdLogger(prefix string) *StdLogger {
	return &StdLogger{Logger: log.New(os.Stderr, prefix, log.Ltime|log.Lmicroseconds)}
}
