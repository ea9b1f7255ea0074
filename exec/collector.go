package exec

import (
	"bytes"
	"os"
	"sync"
)

// OutputCollector is the io.Writer behind a command's combined stdout and
// stderr. It keeps the last maxBuf bytes in memory, spills the complete
// output to a temp file once more than threshold bytes were written, counts
// bytes and newlines over the whole output, and forwards each write to an
// optional observer.
//
// maxBuf is raised to threshold when smaller, so the buffer still holds the
// full output at the moment the spill starts.
//
// It is safe for concurrent use. Writes after Close are discarded.
type OutputCollector struct {
	mu        sync.Mutex
	tail      []byte
	written   int64
	newlines  int
	spill     *os.File
	spillPath string
	spillErr  error
	closed    bool
	threshold int64
	maxBuf    int
	observer  func([]byte)
}

// NewOutputCollector creates a collector.
func NewOutputCollector(threshold int64, maxBuf int) *OutputCollector {
	if int64(maxBuf) < threshold {
		maxBuf = int(threshold)
	}
	return &OutputCollector{threshold: threshold, maxBuf: maxBuf}
}

// OnWrite registers fn to receive a copy of every write. fn runs on the
// writing goroutine with the collector unlocked.
func (c *OutputCollector) OnWrite(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = fn
}

// Write implements io.Writer.
func (c *OutputCollector) Write(p []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return len(p), nil
	}
	c.written += int64(len(p))
	c.newlines += bytes.Count(p, []byte{'\n'})
	c.tail = append(c.tail, p...)
	c.spillLocked(p)
	if len(c.tail) > c.maxBuf {
		c.tail = append([]byte(nil), c.tail[len(c.tail)-c.maxBuf:]...)
	}
	observer := c.observer
	c.mu.Unlock()

	if observer != nil && len(p) > 0 {
		observer(append([]byte(nil), p...))
	}
	return len(p), nil
}

// spillLocked copies the buffer to a temp file the first time the
// threshold is crossed and appends every later write to it.
func (c *OutputCollector) spillLocked(p []byte) {
	if c.spillErr != nil {
		return
	}
	if c.spill != nil {
		_, c.spillErr = c.spill.Write(p)
		return
	}
	if c.written <= c.threshold {
		return
	}
	f, err := os.CreateTemp("", "letsim-cmd-*.log")
	if err != nil {
		c.spillErr = err
		return
	}
	c.spill, c.spillPath = f, f.Name()
	_, c.spillErr = f.Write(c.tail)
}

// Bytes returns a copy of the in-memory tail.
func (c *OutputCollector) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.tail...)
}

// TotalBytes returns the number of bytes written over the collector's life.
func (c *OutputCollector) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written
}

// TotalNewlines returns the number of newlines written over the collector's life.
func (c *OutputCollector) TotalNewlines() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newlines
}

// FilePath returns the spill file path, or "" if output never spilled.
func (c *OutputCollector) FilePath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spillPath
}

// Err returns the first spill I/O error.
func (c *OutputCollector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spillErr
}

// Close closes the spill file, if any.
func (c *OutputCollector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.spill == nil {
		return nil
	}
	err := c.spill.Close()
	c.spill = nil
	return err
}

// Remove deletes the spill file, if any.
func (c *OutputCollector) Remove() {
	if p := c.FilePath(); p != "" {
		_ = os.Remove(p)
	}
}
