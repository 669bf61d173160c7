// Package logging implements the diagnostics sink: a per-session log file
// written through a buffered, periodically flushed zerolog logger, plus
// panic capture for every boundary between the host and native code.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Component names used for child loggers.
const (
	ComponentBridge = "bridge"
	ComponentEngine = "onoma"
)

// Config controls where and how the sink writes.
type Config struct {
	// Dir is the directory session log files are created in.
	Dir string

	// Level is the minimum level written. Defaults to trace.
	Level Level

	// FlushInterval is the periodic flush cadence. Defaults to one second.
	FlushInterval time.Duration

	// Tee, if set, receives a copy of every record.
	Tee io.Writer
}

// Sink is the process-wide diagnostics sink.
type Sink struct {
	cfg Config

	once   sync.Once
	writer atomic.Pointer[BufferedWriter]
	logger zerolog.Logger
}

var crashOutputOnce sync.Once

// New returns a sink that writes nothing until Init.
func New(cfg Config) *Sink {
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Second
	}
	return &Sink{cfg: cfg, logger: zerolog.Nop()}
}

// Init creates the session log file and the logger. It is safe to call
// any number of times; only the first call has an effect. A sink that
// cannot be built is fatal, so Init panics on failure.
func (s *Sink) Init() {
	s.once.Do(func() {
		name := fmt.Sprintf("bridge_%s_%d.log", time.Now().Format("20060102T150405"), os.Getpid())
		w, err := NewBufferedWriter(filepath.Join(s.cfg.Dir, name), s.cfg.FlushInterval)
		if err != nil {
			panic(fmt.Sprintf("logging: create sink in %s: %v", s.cfg.Dir, err))
		}
		s.writer.Store(w)

		var out io.Writer = w
		if s.cfg.Tee != nil {
			out = zerolog.MultiLevelWriter(w, s.cfg.Tee)
		}
		s.logger = zerolog.New(out).
			Level(s.cfg.Level.Zerolog()).
			With().Timestamp().Logger()

		crashOutputOnce.Do(func() {
			if err := debug.SetCrashOutput(w.File(), debug.CrashOptions{}); err != nil {
				s.logger.Warn().Err(err).Str("component", ComponentBridge).Msg("crash output hook not installed")
			}
		})
		s.logger.Info().Str("component", ComponentBridge).Str("path", w.Path()).Msg("diagnostics sink initialized")
	})
}

// Path returns the session log file, or "" before Init.
func (s *Sink) Path() string {
	if w := s.writer.Load(); w != nil {
		return w.Path()
	}
	return ""
}

// Logger returns a child logger tagged with component.
func (s *Sink) Logger(component string) zerolog.Logger {
	s.Init()
	return s.logger.With().Str("component", component).Logger()
}

// Log writes msg at level under the bridge component.
func (s *Sink) Log(level Level, msg string) {
	l := s.Logger(ComponentBridge)
	l.WithLevel(level.Zerolog()).Msg(msg)
}

// Flush writes any buffered records to disk.
func (s *Sink) Flush() error {
	if w := s.writer.Load(); w != nil {
		return w.Flush()
	}
	return nil
}

// Close flushes and closes the log file.
func (s *Sink) Close() error {
	if w := s.writer.Load(); w != nil {
		return w.Close()
	}
	return nil
}
