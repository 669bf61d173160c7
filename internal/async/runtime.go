// Package async provides the worker runtimes that run native work off the
// host goroutine, and the poll-based futures the host uses to observe it.
//
// A Runtime is entered to obtain a Guard; only a live Guard can spawn work.
// Spawned work returns a Future whose Poll never blocks, so a cooperative
// host can interleave many outstanding operations on a single goroutine.
package async

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ErrGuardExited is returned by futures spawned through a Guard that has
// already been released.
var ErrGuardExited = errors.New("async: guard already exited")

// ErrShutdown is returned by futures spawned after the runtime was shut down.
var ErrShutdown = errors.New("async: runtime shut down")

// PanicHandler observes a panic raised inside a task before it is re-raised.
type PanicHandler func(recovered any, stack []byte)

// Runtime is a named pool of workers. Concurrency is bounded by a weighted
// semaphore; spawning never blocks the caller.
type Runtime struct {
	name    string
	workers int64
	sem     *semaphore.Weighted
	log     zerolog.Logger
	onPanic PanicHandler

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	mu     sync.Mutex
	guards []*Guard
	closed bool
	nextID atomic.Uint64
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithWorkers sets the maximum number of tasks running at once. Zero means
// one per CPU. Negative values make NewRuntime panic.
func WithWorkers(n int) Option {
	return func(r *Runtime) {
		r.workers = int64(n)
	}
}

// WithLogger sets the logger for runtime diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Runtime) {
		r.log = log
	}
}

// WithPanicHandler installs a handler that sees every task panic.
func WithPanicHandler(h PanicHandler) Option {
	return func(r *Runtime) {
		r.onPanic = h
	}
}

// NewRuntime builds a runtime. A runtime that cannot be built is fatal, so
// an invalid configuration panics rather than returning an error.
func NewRuntime(name string, opts ...Option) *Runtime {
	r := &Runtime{
		name: name,
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 0 {
		panic(fmt.Sprintf("async: runtime %s: invalid worker count %d", name, r.workers))
	}
	if r.workers == 0 {
		r.workers = int64(runtime.NumCPU())
	}
	r.sem = semaphore.NewWeighted(r.workers)
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.log.Debug().Str("runtime", name).Int64("workers", r.workers).Msg("async: runtime built")
	return r
}

// Name returns the runtime's name.
func (r *Runtime) Name() string { return r.name }

// Workers returns the concurrency limit.
func (r *Runtime) Workers() int { return int(r.workers) }

// Enter marks the runtime as current for the caller and returns the Guard
// that must be released with Exit. Guards nest; release them in reverse
// order of acquisition.
func (r *Runtime) Enter() *Guard {
	g := &Guard{rt: r, id: r.nextID.Add(1)}
	r.mu.Lock()
	r.guards = append(r.guards, g)
	r.mu.Unlock()
	return g
}

// Depth reports how many guards are currently held.
func (r *Runtime) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.guards)
}

func (r *Runtime) release(g *Guard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.guards)
	if n == 0 {
		return
	}
	if r.guards[n-1] == g {
		r.guards = r.guards[:n-1]
		return
	}
	for i, held := range r.guards {
		if held == g {
			r.guards = append(r.guards[:i], r.guards[i+1:]...)
			r.log.Error().Str("runtime", r.name).Uint64("guard", g.id).Msg("async: guard released out of order")
			return
		}
	}
}

// Shutdown cancels every in-flight task and waits for them to return, or
// for ctx to expire. Futures spawned afterwards fail with ErrShutdown.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("async: shutdown %s: %w", r.name, ctx.Err())
	}
}

// Guard is proof that the runtime has been entered.
type Guard struct {
	rt     *Runtime
	id     uint64
	exited atomic.Bool
}

// Runtime returns the runtime this guard belongs to.
func (g *Guard) Runtime() *Runtime { return g.rt }

// Exit releases the guard. Calling Exit more than once has no effect.
func (g *Guard) Exit() {
	if g.exited.CompareAndSwap(false, true) {
		g.rt.release(g)
	}
}

// Spawn schedules fn on the guard's runtime and returns a future for its
// result. fn receives a context that is cancelled when the runtime shuts
// down. A panic in fn is reported to the runtime's panic handler and then
// re-raised on the task goroutine, which terminates the process.
func Spawn[T any](g *Guard, fn func(context.Context) (T, error)) *Future[T] {
	if g == nil || g.exited.Load() {
		return Failed[T](ErrGuardExited)
	}
	r := g.rt
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Failed[T](ErrShutdown)
	}
	r.tasks.Add(1)
	r.mu.Unlock()

	f := newFuture[T]()
	go func() {
		defer r.tasks.Done()
		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			var zero T
			f.complete(zero, fmt.Errorf("async: %s: %w", r.name, ErrShutdown))
			return
		}
		defer r.sem.Release(1)
		defer r.recoverTask()

		v, err := fn(r.ctx)
		f.complete(v, err)
	}()
	return f
}

func (r *Runtime) recoverTask() {
	rec := recover()
	if rec == nil {
		return
	}
	stack := debug.Stack()
	r.log.Error().Str("runtime", r.name).Interface("panic", rec).Msg("async: task panicked")
	if r.onPanic != nil {
		r.onPanic(rec, stack)
	}
	panic(rec)
}
