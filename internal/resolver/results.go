package resolver

import (
	"context"
	"sync"
)

// Match is one resolved symbol. Lines and columns are zero-based.
type Match struct {
	ID        int64
	Name      string
	Kind      string
	Path      string
	Score     int
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// Results is the consuming end of a query. Matches arrive on C in rank
// order; C is closed exactly once when the producer finishes, fails or is
// cancelled. Err reports the failure, if any, once C is closed.
type Results struct {
	c      chan Match
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func newResults(buffer int, cancel context.CancelFunc) *Results {
	return &Results{c: make(chan Match, buffer), cancel: cancel}
}

// C returns the match channel.
func (r *Results) C() <-chan Match {
	return r.c
}

// Err returns the producer's terminal error. Cancellation is not an error.
func (r *Results) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close cancels the producer. It does not wait for it and is safe to call
// more than once.
func (r *Results) Close() {
	r.cancel()
}

// finish records err and closes the channel. Only the producer calls it.
func (r *Results) finish(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	close(r.c)
}
