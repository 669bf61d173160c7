package onoma

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/jward/onoma/internal/async"
	"github.com/jward/onoma/internal/logging"
)

// ErrClosed is returned by operations on an Env after Close.
var ErrClosed = errors.New("onoma: environment closed")

// Runtime names.
const (
	WatchRuntime = "watch"
	QueryRuntime = "query"
)

// Env is the state shared by every handle of one host session: the
// diagnostics sink and the two worker runtimes. Build one with NewEnv when
// the host loads the module and Close it when the host exits.
type Env struct {
	cfg       Config
	sink      *logging.Sink
	log       zerolog.Logger // bridge records
	engineLog zerolog.Logger // engine records

	watchRT    func() *async.Runtime
	queryRT    func() *async.Runtime
	watchBuilt atomic.Pointer[async.Runtime]
	queryBuilt atomic.Pointer[async.Runtime]

	mu        sync.Mutex
	closed    bool
	watchers  []*Watcher
	resolvers []*Resolver

	closeOnce sync.Once
	closeErr  error
}

// Option configures an Env.
type Option func(*envOptions)

type envOptions struct {
	logOutput io.Writer
}

// WithLogOutput copies every log record to w in addition to the session
// log file.
func WithLogOutput(w io.Writer) Option {
	return func(o *envOptions) {
		o.logOutput = w
	}
}

// NewEnv validates cfg and initializes the diagnostics sink. The runtimes
// are built on first use. A sink that cannot be created panics.
func NewEnv(cfg Config, opts ...Option) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("onoma: log_level: %w", err)
	}
	var o envOptions
	for _, opt := range opts {
		opt(&o)
	}

	sink := logging.New(logging.Config{
		Dir:           cfg.LogDir(),
		Level:         level,
		FlushInterval: cfg.LogFlushInterval,
		Tee:           o.logOutput,
	})
	sink.Init()

	e := &Env{
		cfg:       cfg,
		sink:      sink,
		log:       sink.Logger(logging.ComponentBridge),
		engineLog: sink.Logger(logging.ComponentEngine),
	}
	e.watchRT = sync.OnceValue(func() *async.Runtime {
		rt := e.newRuntime(WatchRuntime, cfg.WatchWorkers)
		e.watchBuilt.Store(rt)
		return rt
	})
	e.queryRT = sync.OnceValue(func() *async.Runtime {
		rt := e.newRuntime(QueryRuntime, cfg.QueryWorkers)
		e.queryBuilt.Store(rt)
		return rt
	})
	return e, nil
}

func (e *Env) newRuntime(name string, workers int) *async.Runtime {
	return async.NewRuntime(name,
		async.WithWorkers(workers),
		async.WithLogger(e.log),
		async.WithPanicHandler(func(rec any, _ []byte) {
			e.sink.ReportPanic(rec)
		}),
	)
}

// Config returns the configuration the Env was built with.
func (e *Env) Config() Config { return e.cfg }

// Sink returns the diagnostics sink.
func (e *Env) Sink() *logging.Sink { return e.sink }

// Logger returns the bridge logger.
func (e *Env) Logger() zerolog.Logger { return e.log }

// DatabasePath is the absolute directory holding the persisted index.
func (e *Env) DatabasePath() string {
	return e.cfg.DatabaseDir()
}

// Log writes msg at the named level. An unknown level name fails before
// anything is written.
func (e *Env) Log(level, msg string) error {
	defer e.sink.CapturePanic()
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	e.sink.Log(lvl, msg)
	return nil
}

// Pending returns a future that is not ready on its first poll and ready
// on its second, giving background work one scheduling step.
func (e *Env) Pending() *Future[struct{}] {
	return async.Yield()
}

// Runtimes returns the runtimes built so far, watch first. Unbuilt ones
// are nil.
func (e *Env) Runtimes() (watch, query *async.Runtime) {
	return e.watchBuilt.Load(), e.queryBuilt.Load()
}

func (e *Env) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Env) track(w *Watcher, r *Resolver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w != nil {
		e.watchers = append(e.watchers, w)
	}
	if r != nil {
		e.resolvers = append(e.resolvers, r)
	}
}

// Close stops every watcher, closes every resolver, shuts both runtimes
// down, then flushes and closes the session log. It blocks, so call it
// only at host teardown. Repeated calls return the first result.
func (e *Env) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		watchers := slices.Clone(e.watchers)
		resolvers := slices.Clone(e.resolvers)
		e.mu.Unlock()

		var errs []error
		for _, w := range watchers {
			if err := w.StopBlocking(); err != nil {
				errs = append(errs, err)
			}
			// StopBlocking closed the indexer of a watcher that was running.
			if w.stopped() {
				continue
			}
			if err := w.ix.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, r := range resolvers {
			if err := r.close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, rt := range []*async.Runtime{e.watchBuilt.Load(), e.queryBuilt.Load()} {
			if rt == nil {
				continue
			}
			if err := rt.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		e.log.Info().Msg("environment closed")
		if err := e.sink.Close(); err != nil {
			errs = append(errs, err)
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}
