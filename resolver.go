package onoma

import (
	"context"
	"slices"

	"github.com/jward/onoma/internal/async"
	"github.com/jward/onoma/internal/resolver"
)

// Resolver is the host handle for symbol queries over a set of indexed
// roots. It holds no per-query state; concurrent queries are independent.
type Resolver struct {
	env    *Env
	core   resolver.Resolver
	roots  []string
	closer func() error
}

// GetResolver returns a resolver for roots. The index is opened on the
// first query, so this never touches the database.
func (e *Env) GetResolver(roots []string) (*Resolver, error) {
	defer e.sink.CapturePanic()
	if e.isClosed() {
		return nil, ErrClosed
	}
	g := e.queryRT().Enter()
	defer g.Exit()

	core, err := resolver.New(e.DatabasePath(), roots,
		resolver.WithMaxResults(e.cfg.MaxResults),
		resolver.WithBuffer(e.cfg.ChannelBuffer),
		resolver.WithLogger(e.engineLog),
		resolver.WithPanicHandler(e.sink.ReportPanic),
	)
	if err != nil {
		return nil, err
	}
	r := &Resolver{env: e, core: core, roots: core.Roots(), closer: core.Close}
	e.track(nil, r)
	e.log.Info().Msg("Created resolver for indexed directories")
	return r, nil
}

// Roots returns the directories the resolver searches.
func (r *Resolver) Roots() []string {
	return slices.Clone(r.roots)
}

// Query starts a query on the query runtime and returns a future for its
// result stream. Query itself never fails; resolution failures end the
// stream early.
func (r *Resolver) Query(text string, qc Context) *Future[*Stream] {
	defer r.env.sink.CapturePanic()
	if r.env.isClosed() {
		return async.Failed[*Stream](ErrClosed)
	}
	g := r.env.queryRT().Enter()
	defer g.Exit()
	return async.Spawn(g, func(ctx context.Context) (*Stream, error) {
		return newStream(r.env, r.core.Query(ctx, text, qc.inner)), nil
	})
}

func (r *Resolver) close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
