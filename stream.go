package onoma

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/jward/onoma/internal/async"
	"github.com/jward/onoma/internal/resolver"
)

var (
	// ErrConcurrentNext completes a Next future that was overtaken by a
	// later Next on the same stream before it produced a result.
	ErrConcurrentNext = errors.New("onoma: next already in flight")

	// ErrStreamClosed is returned by Next after Close.
	ErrStreamClosed = errors.New("onoma: stream closed")
)

// Stream is the consuming end of one query. Items arrive in producer order
// through Next; a nil item marks the end of the stream, after which every
// Next returns nil again. A Stream belongs to one consumer.
//
// Dropping a Stream without closing it cancels the producer once the
// Stream is garbage collected.
type Stream struct {
	state *streamState
}

type streamState struct {
	env *Env
	res *resolver.Results

	// mu serializes receives; gen identifies the one Next future allowed
	// to receive.
	mu  sync.Mutex
	gen uint64

	ended  atomic.Bool
	closed atomic.Bool
}

func newStream(env *Env, res *resolver.Results) *Stream {
	st := &streamState{env: env, res: res}
	s := &Stream{state: st}
	runtime.AddCleanup(s, func(st *streamState) { st.res.Close() }, st)
	return s
}

// Next returns a future for the next symbol, or nil at end of stream. The
// future is driven by polling; it does not occupy a worker while waiting.
//
// Only the most recent Next receives. An earlier future that has not
// completed yet fails with ErrConcurrentNext on its next poll, so a future
// the host abandoned never blocks the stream. No item is lost: a future
// takes an item only when it completes.
func (s *Stream) Next() *Future[*ResolvedSymbol] {
	st := s.state
	defer st.env.sink.CapturePanic()
	switch {
	case st.closed.Load():
		return async.Failed[*ResolvedSymbol](ErrStreamClosed)
	case st.ended.Load():
		return async.Ready[*ResolvedSymbol](nil)
	}
	st.mu.Lock()
	st.gen++
	gen := st.gen
	st.mu.Unlock()
	return async.FromPoll(func() (*ResolvedSymbol, bool, error) {
		return st.poll(gen)
	})
}

func (st *streamState) poll(gen uint64) (*ResolvedSymbol, bool, error) {
	defer st.env.sink.CapturePanic()
	st.mu.Lock()
	defer st.mu.Unlock()
	switch {
	case gen != st.gen:
		return nil, true, ErrConcurrentNext
	case st.closed.Load():
		return nil, true, ErrStreamClosed
	case st.ended.Load():
		return nil, true, nil
	}
	select {
	case m, ok := <-st.res.C():
		if !ok {
			st.end()
			return nil, true, nil
		}
		return newResolvedSymbol(m), true, nil
	default:
		return nil, false, nil
	}
}

// end marks exhaustion once and logs a producer failure, which the host
// only sees as an early end of stream.
func (st *streamState) end() {
	if !st.ended.CompareAndSwap(false, true) {
		return
	}
	if err := st.res.Err(); err != nil {
		st.env.log.Error().Err(err).Msg("query stream terminated early")
	}
}

// Close cancels the producer. Later calls to Next fail with
// ErrStreamClosed. Closing twice is a no-op.
func (s *Stream) Close() {
	if s.state.closed.CompareAndSwap(false, true) {
		s.state.res.Close()
	}
}
