package logging

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BufferedWriter implements io.Writer over a log file. Writes are buffered
// in memory and flushed on a fixed interval, on demand, and on Close.
type BufferedWriter struct {
	path string

	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	closed bool

	stop chan struct{}
	done chan struct{}
}

// NewBufferedWriter opens path for appending, creating its directory if
// needed. A non-positive interval disables the periodic flush.
func NewBufferedWriter(path string, interval time.Duration) (*BufferedWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	w := &BufferedWriter{
		path: path,
		file: f,
		buf:  bufio.NewWriterSize(f, 64*1024),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if interval > 0 {
		go w.flushLoop(interval)
	} else {
		close(w.done)
	}
	return w, nil
}

// Path returns the file being written.
func (w *BufferedWriter) Path() string { return w.path }

// File returns the underlying file handle.
func (w *BufferedWriter) File() *os.File { return w.file }

// Write implements io.Writer. Writes after Close are dropped silently.
func (w *BufferedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return len(p), nil
	}
	return w.buf.Write(p)
}

// Flush writes buffered records to the file and syncs it to disk.
func (w *BufferedWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *BufferedWriter) flushLocked() error {
	if w.closed {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush log buffer: %w", err)
	}
	return w.file.Sync()
}

// Close stops the periodic flush, flushes, and closes the file.
func (w *BufferedWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	flushErr := w.flushLocked()
	w.closed = true
	closeErr := w.file.Close()
	w.mu.Unlock()

	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	<-w.done

	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (w *BufferedWriter) flushLoop(interval time.Duration) {
	defer close(w.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "log flush failed: %v\n", err)
			}
		case <-w.stop:
			return
		}
	}
}
