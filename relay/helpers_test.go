package relay_test

import (
	"bytes"
	"log/slog"
	"sync"
)

// logBuffer is a goroutine-safe sink for server logs.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *logBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *logBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func newJSONLogger(w *logBuffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, nil))
}
