package onoma

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jward/onoma/internal/async"
	"github.com/jward/onoma/internal/indexer"
	"github.com/jward/onoma/internal/watcher"
)

var (
	// ErrAlreadyRunning is returned by Start on a watcher that is running
	// or starting.
	ErrAlreadyRunning = errors.New("onoma: watcher already running")

	// ErrStopped is returned by Start on a watcher that has been stopped.
	ErrStopped = errors.New("onoma: watcher stopped")
)

// watchLoop is the part of the core watcher the handle drives.
type watchLoop interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() bool
}

var _ watchLoop = (*watcher.Watcher)(nil)

type watcherState int

const (
	stateCreated watcherState = iota
	stateRunning
	stateStopped
)

func (s watcherState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateRunning:
		return "running"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Watcher is the host handle for a background watch-and-index task bound
// to one indexer. It moves from created to running to stopped, and a
// stopped watcher cannot be restarted.
type Watcher struct {
	env  *Env
	ix   indexer.Indexer
	loop watchLoop

	mu       sync.Mutex
	state    watcherState
	starting *async.Future[struct{}]
}

func newWatcher(env *Env, ix indexer.Indexer, loop watchLoop) *Watcher {
	w := &Watcher{env: env, ix: ix, loop: loop}
	env.track(w, nil)
	return w
}

// GetWatcher opens the index for roots on the watch runtime and returns a
// future for a created, not yet started, watcher.
func (e *Env) GetWatcher(roots []string) *Future[*Watcher] {
	defer e.sink.CapturePanic()
	if e.isClosed() {
		return async.Failed[*Watcher](ErrClosed)
	}
	roots = slices.Clone(roots)

	g := e.watchRT().Enter()
	defer g.Exit()
	return async.Spawn(g, func(context.Context) (*Watcher, error) {
		ix, err := indexer.New(e.DatabasePath(), roots,
			indexer.WithLanguages(e.cfg.Languages...),
			indexer.WithWorkers(e.cfg.WatchWorkers),
			indexer.WithLogger(e.engineLog),
			indexer.WithPanicHandler(e.sink.ReportPanic),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create indexer for: %w", err)
		}
		e.log.Info().Msgf("Created indexer with database path at %s", e.DatabasePath())

		loop := watcher.New(ix,
			watcher.WithDebounce(e.cfg.DebounceWindow),
			watcher.WithLogger(e.engineLog),
			watcher.WithPanicHandler(e.sink.ReportPanic),
		)
		w := newWatcher(e, ix, loop)
		e.log.Info().Msg("Created watcher for indexed directories")
		return w, nil
	})
}

// Roots returns the watched directories.
func (w *Watcher) Roots() []string {
	return w.ix.Roots()
}

// Running reports whether Start has succeeded and StopBlocking has not
// been called.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == stateRunning
}

func (w *Watcher) stopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == stateStopped
}

// Start launches the watch loop and a full index of every root at the same
// time. The future resolves once the loop has started and the index pass
// has finished. Both outcomes are checked; if either fails the loop is
// stopped again and the watcher stays created, so Start may be retried.
func (w *Watcher) Start() *Future[struct{}] {
	defer w.env.sink.CapturePanic()
	if w.env.isClosed() {
		return async.Failed[struct{}](ErrClosed)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.state == stateStopped:
		return async.Failed[struct{}](ErrStopped)
	case w.state == stateRunning, w.starting != nil:
		return async.Failed[struct{}](ErrAlreadyRunning)
	}

	g := w.env.watchRT().Enter()
	defer g.Exit()
	f := async.Spawn(g, w.start)
	w.starting = f
	return f
}

func (w *Watcher) start(ctx context.Context) (struct{}, error) {
	var loopErr, indexErr error
	var g errgroup.Group
	g.Go(func() error {
		loopErr = w.loop.Start(ctx)
		return nil
	})
	g.Go(func() error {
		if err := w.ix.RunFullIndex(ctx); err != nil {
			indexErr = fmt.Errorf("initial indexing failed: %w", err)
		}
		return nil
	})
	_ = g.Wait()

	err := errors.Join(loopErr, indexErr)
	if err != nil && loopErr == nil {
		if stopErr := w.loop.Stop(ctx); stopErr != nil {
			w.env.log.Error().Err(stopErr).Msg("failed to roll back watch loop")
		}
	}

	w.mu.Lock()
	w.starting = nil
	if err == nil {
		w.state = stateRunning
	}
	w.mu.Unlock()

	if err != nil {
		w.env.log.Error().Err(err).Strs("roots", w.ix.Roots()).Msg("watcher failed to start")
		return struct{}{}, err
	}
	w.env.log.Info().Strs("roots", w.ix.Roots()).Msg("Started watcher and initial index")
	return struct{}{}, nil
}

// StopBlocking terminates the watch loop, waits for it to exit, closes the
// indexer and flushes the session log. It blocks the calling goroutine and
// is meant for host teardown only. Stopping a watcher that never started is
// a no-op apart from the flush; stopping twice is a no-op.
func (w *Watcher) StopBlocking() error {
	defer w.env.sink.CapturePanic()
	ctx := context.Background()

	w.mu.Lock()
	for w.starting != nil {
		f := w.starting
		w.mu.Unlock()
		_, _ = f.Wait(ctx)
		w.mu.Lock()
		if w.starting == f {
			w.starting = nil
		}
	}
	prev := w.state
	if prev == stateRunning {
		w.state = stateStopped
	}
	w.mu.Unlock()

	var errs []error
	if prev == stateRunning {
		if err := w.loop.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := w.ix.Close(); err != nil {
			errs = append(errs, err)
		}
		w.env.log.Info().Strs("roots", w.ix.Roots()).Msg("Stopped watcher")
	}
	if err := w.env.sink.Flush(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
