package async

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// Poller is the type-erased view of a Future, used by hosts that hold
// futures of differing result types.
type Poller interface {
	// PollAny reports the result once ready. It never blocks.
	PollAny() (any, bool, error)
}

// Future is the eventual result of a spawned task.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	val   T
	err   error
	poll  func() (T, bool, error)
	ready atomic.Bool
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(v T, err error) {
	f.once.Do(func() {
		f.val = v
		f.err = err
		f.ready.Store(true)
		close(f.done)
	})
}

// Ready returns a future that is already complete with v.
func Ready[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.complete(v, nil)
	return f
}

// Failed returns a future that is already complete with err.
func Failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.complete(zero, err)
	return f
}

// FromPoll returns a future driven entirely by the caller's poll function.
// Each call to Poll invokes fn until it reports ready; the first ready
// result is then remembered.
func FromPoll[T any](fn func() (T, bool, error)) *Future[T] {
	f := newFuture[T]()
	f.poll = fn
	return f
}

// Poll reports the result if the task has finished. It never blocks.
func (f *Future[T]) Poll() (T, bool, error) {
	if f.poll != nil && !f.ready.Load() {
		v, ok, err := f.poll()
		if !ok {
			var zero T
			return zero, false, nil
		}
		f.complete(v, err)
	}
	select {
	case <-f.done:
		return f.val, true, f.err
	default:
		var zero T
		return zero, false, nil
	}
}

// PollAny implements Poller.
func (f *Future[T]) PollAny() (any, bool, error) {
	v, ok, err := f.Poll()
	if !ok {
		return nil, false, nil
	}
	return v, true, err
}

// Done returns a channel closed when the result is available. Futures built
// with FromPoll only complete by being polled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx is done. Hosts must not
// call Wait; it exists for teardown paths and tests.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	if f.poll != nil {
		for {
			v, ok, err := f.Poll()
			if ok {
				return v, err
			}
			if err := ctx.Err(); err != nil {
				var zero T
				return zero, err
			}
			runtime.Gosched()
		}
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Yield returns a future that is not ready on its first poll and ready on
// every poll after that. Each host poll hands the processor to other
// goroutines so background work progresses between host steps.
func Yield() *Future[struct{}] {
	var polled atomic.Bool
	return FromPoll(func() (struct{}, bool, error) {
		if polled.CompareAndSwap(false, true) {
			runtime.Gosched()
			return struct{}{}, false, nil
		}
		return struct{}{}, true, nil
	})
}
