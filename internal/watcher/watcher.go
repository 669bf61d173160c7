// Package watcher runs the background watch loop that keeps an index up to
// date: recursive fsnotify registration of every root, event debouncing,
// and dispatch of coalesced batches to the indexer.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/jward/onoma/internal/indexer"
)

// ErrAlreadyRunning is returned by Start when the loop is already running.
var ErrAlreadyRunning = errors.New("watcher: already running")

// Target is the part of an indexer the watch loop drives.
type Target interface {
	IndexPaths(ctx context.Context, paths []string) error
	RemovePaths(ctx context.Context, paths []string) error
	Roots() []string
}

// BatchHook observes every dispatched batch and its outcome.
type BatchHook func(events []FileEvent, err error)

// Watcher watches the target's roots and forwards changes to it.
type Watcher struct {
	target   Target
	debounce time.Duration
	log      zerolog.Logger
	onBatch  BatchHook
	onPanic  func(recovered any)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the coalescing window. Defaults to 200ms.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(w *Watcher) {
		w.log = log
	}
}

// WithBatchHook installs a hook called after each batch is dispatched.
func WithBatchHook(h BatchHook) Option {
	return func(w *Watcher) {
		w.onBatch = h
	}
}

// WithPanicHandler installs h to record a panic in the watch loop before
// it is re-raised.
func WithPanicHandler(h func(recovered any)) Option {
	return func(w *Watcher) {
		w.onPanic = h
	}
}

// New returns a stopped watcher for target.
func New(target Target, opts ...Option) *Watcher {
	w := &Watcher{
		target:   target,
		debounce: 200 * time.Millisecond,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Running reports whether the watch loop is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Start registers every root recursively and launches the watch loop. It
// returns once the loop is running. The loop runs until Stop is called or
// ctx is cancelled. A stopped watcher may be started again.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrAlreadyRunning
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}
	for _, root := range w.target.Roots() {
		if err := addRecursive(fsw, root); err != nil {
			fsw.Close()
			return fmt.Errorf("watcher: watch %s: %w", root, err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.loop(loopCtx, fsw, NewDebouncer(w.debounce), w.done)
	w.log.Info().Strs("roots", w.target.Roots()).Msg("watcher: loop started")
	return nil
}

// Stop cancels the loop and blocks until it has exited or ctx is done.
// Stopping an idle watcher is a no-op.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("watcher: stop: %w", ctx.Err())
	}
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, deb *Debouncer, done chan struct{}) {
	defer w.recoverPanic()
	defer func() {
		deb.Stop()
		if err := fsw.Close(); err != nil {
			w.log.Warn().Err(err).Msg("watcher: close fsnotify")
		}
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(done)
		w.log.Info().Msg("watcher: loop stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, deb, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("watcher: fsnotify error")
		case batch := <-deb.Output():
			w.dispatch(ctx, batch)
		}
	}
}

// recoverPanic must be deferred directly. It reports a panic to the panic
// handler and re-raises it.
func (w *Watcher) recoverPanic() {
	rec := recover()
	if rec == nil {
		return
	}
	if w.onPanic != nil {
		w.onPanic(rec)
	}
	panic(rec)
}

// handleEvent converts and filters an fsnotify event.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, deb *Debouncer, event fsnotify.Event) {
	now := time.Now()
	switch {
	case event.Op&fsnotify.Create != 0:
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			if indexer.SkipDir(filepath.Base(event.Name)) {
				return
			}
			if err := addRecursive(fsw, event.Name); err != nil {
				w.log.Warn().Err(err).Str("dir", event.Name).Msg("watcher: watch new directory")
			}
			// Files may land before the directory is registered.
			_ = filepath.WalkDir(event.Name, func(path string, d fs.DirEntry, err error) error {
				if err == nil && !d.IsDir() {
					deb.Add(FileEvent{Path: path, Operation: OpCreate, Timestamp: now})
				}
				return nil
			})
			return
		}
		deb.Add(FileEvent{Path: event.Name, Operation: OpCreate, Timestamp: now})
	case event.Op&fsnotify.Write != 0:
		deb.Add(FileEvent{Path: event.Name, Operation: OpModify, Timestamp: now})
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		deb.Add(FileEvent{Path: event.Name, Operation: OpDelete, Timestamp: now})
	}
}

// dispatch applies a batch to the target. Failures are logged; the loop
// keeps running.
func (w *Watcher) dispatch(ctx context.Context, batch []FileEvent) {
	var changed, removed []string
	for _, ev := range batch {
		if ev.Operation == OpDelete {
			removed = append(removed, ev.Path)
		} else {
			changed = append(changed, ev.Path)
		}
	}

	var errs []error
	if err := w.target.RemovePaths(ctx, removed); err != nil {
		errs = append(errs, err)
	}
	if err := w.target.IndexPaths(ctx, changed); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	if err != nil {
		w.log.Error().Err(err).Int("events", len(batch)).Msg("watcher: apply batch")
	} else {
		w.log.Debug().Int("changed", len(changed)).Int("removed", len(removed)).Msg("watcher: applied batch")
	}
	if w.onBatch != nil {
		w.onBatch(batch, err)
	}
}

// addRecursive adds root and every non-skipped directory below it.
func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // Skip entries we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && indexer.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
