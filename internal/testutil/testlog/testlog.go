// Package testlog routes zerolog output into the test log.
package testlog

import (
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// New returns a debug-level logger that writes through t.Log. Output produced
// after the test has finished (late relay goroutines, timers) is discarded
// instead of failing the run.
func New(t testing.TB) zerolog.Logger {
	t.Helper()
	w := &writer{t: t}
	t.Cleanup(w.close)
	cw := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05.000"}
	return zerolog.New(cw).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

type writer struct {
	mu   sync.Mutex
	t    testing.TB
	done bool
}

func (w *writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.done {
		w.t.Log(strings.TrimRight(string(p), "\n"))
	}
	return len(p), nil
}

func (w *writer) close() {
	w.mu.Lock()
	w.done = true
	w.mu.Unlock()
}
