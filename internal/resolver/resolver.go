// Package resolver ranks indexed symbols against free-text queries and
// streams the matches.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/jward/onoma/internal/indexer"
	"github.com/jward/onoma/internal/store"
)

const (
	// DefaultMaxResults caps the number of matches a query produces.
	DefaultMaxResults = 200
	// DefaultBuffer is the capacity of the results channel.
	DefaultBuffer = 64

	pathCacheSize = 4096
)

// Resolver answers symbol queries.
type Resolver interface {
	Query(ctx context.Context, text string, qc Context) *Results
}

// DatabaseBackedResolver resolves against the SQLite index the indexer
// writes. The database is opened on the first query.
type DatabaseBackedResolver struct {
	dbDir      string
	roots      []string
	maxResults int
	buffer     int
	log        zerolog.Logger
	onPanic    func(recovered any)

	mu    sync.Mutex
	store *store.Store
	paths *lru.Cache[int64, string]
}

// Option configures a DatabaseBackedResolver.
type Option func(*DatabaseBackedResolver)

// WithMaxResults caps the matches per query. Non-positive values keep the
// default.
func WithMaxResults(n int) Option {
	return func(r *DatabaseBackedResolver) {
		if n > 0 {
			r.maxResults = n
		}
	}
}

// WithBuffer sets the results channel capacity.
func WithBuffer(n int) Option {
	return func(r *DatabaseBackedResolver) {
		if n >= 0 {
			r.buffer = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *DatabaseBackedResolver) {
		r.log = log
	}
}

// WithPanicHandler installs h to record a panic on a producer goroutine
// before it is re-raised.
func WithPanicHandler(h func(recovered any)) Option {
	return func(r *DatabaseBackedResolver) {
		r.onPanic = h
	}
}

// New returns a resolver over the index in dbDir, restricted to roots.
func New(dbDir string, roots []string, opts ...Option) (*DatabaseBackedResolver, error) {
	clean, err := indexer.CleanRoots(roots)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	paths, err := lru.New[int64, string](pathCacheSize)
	if err != nil {
		return nil, fmt.Errorf("resolver: path cache: %w", err)
	}
	r := &DatabaseBackedResolver{
		dbDir:      dbDir,
		roots:      clean,
		maxResults: DefaultMaxResults,
		buffer:     DefaultBuffer,
		log:        zerolog.Nop(),
		paths:      paths,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Roots returns the directories the resolver searches.
func (r *DatabaseBackedResolver) Roots() []string {
	return append([]string(nil), r.roots...)
}

// Close closes the database if it was opened.
func (r *DatabaseBackedResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store == nil {
		return nil
	}
	err := r.store.Close()
	r.store = nil
	r.paths.Purge()
	return err
}

func (r *DatabaseBackedResolver) open() (*store.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != nil {
		return r.store, nil
	}
	// An index nobody has written yet is empty, not an error.
	if err := os.MkdirAll(r.dbDir, 0o755); err != nil {
		return nil, err
	}
	s, err := store.Open(filepath.Join(r.dbDir, indexer.DatabaseFile))
	if err != nil {
		return nil, err
	}
	r.store = s
	return s, nil
}

// Query starts producing matches for text. It never fails at call time;
// failures are reported by the returned Results once its channel closes.
// Cancelling ctx or closing the Results stops the producer.
func (r *DatabaseBackedResolver) Query(ctx context.Context, text string, qc Context) *Results {
	ctx, cancel := context.WithCancel(ctx)
	res := newResults(r.buffer, cancel)
	go func() {
		defer r.recoverPanic()
		defer cancel()
		err := r.produce(ctx, text, qc, res.c)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			r.log.Error().Err(err).Str("query", text).Msg("resolver: query failed")
		}
		res.finish(err)
	}()
	return res
}

// recoverPanic must be deferred directly. It reports a panic to the panic
// handler and re-raises it.
func (r *DatabaseBackedResolver) recoverPanic() {
	rec := recover()
	if rec == nil {
		return
	}
	if r.onPanic != nil {
		r.onPanic(rec)
	}
	panic(rec)
}

func (r *DatabaseBackedResolver) produce(ctx context.Context, text string, qc Context, out chan<- Match) error {
	s, err := r.open()
	if err != nil {
		return fmt.Errorf("resolver: open index: %w", err)
	}
	matches, err := r.rank(ctx, s, text, qc)
	if err != nil {
		return err
	}
	for _, m := range matches {
		select {
		case out <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// rank scores every candidate and returns the best matches, highest score
// first, ties in discovery order.
func (r *DatabaseBackedResolver) rank(ctx context.Context, s *store.Store, text string, qc Context) ([]Match, error) {
	current, hasCurrent := qc.CurrentFile()
	currentDir := filepath.Dir(current)

	var matches []Match
	var lookupErr error
	filter := store.SymbolFilter{Roots: r.roots, Kinds: qc.kindNames()}
	err := s.CandidateSymbols(filter, func(sym *store.Symbol) bool {
		if ctx.Err() != nil {
			return false
		}
		score, ok := Score(text, sym.Name)
		if !ok {
			return true
		}
		path, err := r.pathOf(s, sym.FileID)
		if err != nil {
			lookupErr = err
			return false
		}
		if hasCurrent {
			switch {
			case path == current:
				score += bonusCurrentFile
			case filepath.Dir(path) == currentDir:
				score += bonusSameDir
			}
		}
		matches = append(matches, Match{
			ID:        sym.ID,
			Name:      sym.Name,
			Kind:      sym.Kind,
			Path:      path,
			Score:     score,
			StartLine: sym.StartLine,
			StartCol:  sym.StartCol,
			EndLine:   sym.EndLine,
			EndCol:    sym.EndCol,
		})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	if lookupErr != nil {
		return nil, fmt.Errorf("resolver: %w", lookupErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Candidates arrive in id order, so a stable sort keeps ties in
	// discovery order.
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > r.maxResults {
		matches = matches[:r.maxResults]
	}
	return matches, nil
}

func (r *DatabaseBackedResolver) pathOf(s *store.Store, fileID int64) (string, error) {
	if p, ok := r.paths.Get(fileID); ok {
		return p, nil
	}
	f, err := s.FileByID(fileID)
	if err != nil {
		return "", err
	}
	if f == nil {
		return "", fmt.Errorf("file %d vanished during query", fileID)
	}
	r.paths.Add(fileID, f.Path)
	return f.Path, nil
}
