// Package indexer keeps the symbol database in sync with a set of root
// directories: a full index on startup and incremental updates as files
// change.
package indexer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jward/onoma/internal/extract"
	"github.com/jward/onoma/internal/store"
)

// Database and lock file names inside the database directory.
const (
	DatabaseFile = "index.db"
	LockFile     = "index.lock"
)

// Indexer is what the watch loop and the bridge need from an indexer.
type Indexer interface {
	RunFullIndex(ctx context.Context) error
	IndexPaths(ctx context.Context, paths []string) error
	RemovePaths(ctx context.Context, paths []string) error
	Roots() []string
	Close() error
}

// Compile-time check: *DatabaseBackedIndexer satisfies Indexer.
var _ Indexer = (*DatabaseBackedIndexer)(nil)

// DatabaseBackedIndexer indexes source files under a set of roots into a
// SQLite database.
type DatabaseBackedIndexer struct {
	store     *store.Store
	lock      *writerLock
	extractor *extract.Extractor
	roots     []string
	languages map[string]bool // nil means all languages
	workers   int
	log       zerolog.Logger
	onPanic   func(recovered any)

	closeOnce sync.Once
	closeErr  error
}

// Option configures a DatabaseBackedIndexer.
type Option func(*DatabaseBackedIndexer)

// WithLanguages restricts which languages are indexed.
func WithLanguages(languages ...string) Option {
	return func(ix *DatabaseBackedIndexer) {
		if len(languages) == 0 {
			return
		}
		ix.languages = make(map[string]bool, len(languages))
		for _, lang := range languages {
			ix.languages[lang] = true
		}
	}
}

// WithWorkers sets the number of extraction workers. Zero means one per CPU.
func WithWorkers(n int) Option {
	return func(ix *DatabaseBackedIndexer) {
		ix.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(ix *DatabaseBackedIndexer) {
		ix.log = log
	}
}

// WithPanicHandler installs h to record a panic on an extraction worker
// before it is re-raised.
func WithPanicHandler(h func(recovered any)) Option {
	return func(ix *DatabaseBackedIndexer) {
		ix.onPanic = h
	}
}

// New opens (creating and migrating if needed) the database in dbDir and
// returns an indexer for roots. Roots are made absolute and cleaned.
func New(dbDir string, roots []string, opts ...Option) (*DatabaseBackedIndexer, error) {
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("indexer: create database directory: %w", err)
	}
	cleaned, err := CleanRoots(roots)
	if err != nil {
		return nil, fmt.Errorf("indexer: %w", err)
	}
	s, err := store.Open(filepath.Join(dbDir, DatabaseFile))
	if err != nil {
		return nil, fmt.Errorf("indexer: open store: %w", err)
	}

	ix := &DatabaseBackedIndexer{
		store: s,
		lock:  newWriterLock(filepath.Join(dbDir, LockFile)),
		roots: cleaned,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.workers <= 0 {
		ix.workers = runtime.NumCPU()
	}
	ix.extractor = extract.New(extract.WithLogger(ix.log))
	return ix, nil
}

// CleanRoots makes every root absolute and cleaned, dropping duplicates.
func CleanRoots(roots []string) ([]string, error) {
	seen := make(map[string]bool, len(roots))
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("resolve root %q: %w", r, err)
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	}
	return out, nil
}

// Roots returns the indexed root directories.
func (ix *DatabaseBackedIndexer) Roots() []string {
	return append([]string(nil), ix.roots...)
}

// Store returns the underlying store.
func (ix *DatabaseBackedIndexer) Store() *store.Store {
	return ix.store
}

// Close releases the database. Safe to call more than once.
func (ix *DatabaseBackedIndexer) Close() error {
	ix.closeOnce.Do(func() {
		ix.closeErr = ix.store.Close()
	})
	return ix.closeErr
}

// RunFullIndex indexes every supported file under every root, skipping
// files whose content is unchanged, and removes files that no longer exist.
func (ix *DatabaseBackedIndexer) RunFullIndex(ctx context.Context) error {
	start := time.Now()
	var all []string
	var errs []error
	for _, root := range ix.roots {
		info, err := os.Stat(root)
		if err != nil {
			errs = append(errs, fmt.Errorf("root %s: %w", root, err))
			continue
		}
		if !info.IsDir() {
			errs = append(errs, fmt.Errorf("root %s: not a directory", root))
			continue
		}
		paths, err := ix.discover(ctx, root)
		if err != nil {
			errs = append(errs, fmt.Errorf("discover %s: %w", root, err))
			continue
		}
		all = append(all, paths...)

		if err := ix.removeVanished(ctx, root, paths); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	stats, err := ix.indexFiles(ctx, all)
	ix.log.Info().
		Int("discovered", len(all)).
		Int("indexed", stats.indexed).
		Int("unchanged", stats.unchanged).
		Dur("elapsed", time.Since(start)).
		Msg("indexer: full index finished")
	if err != nil {
		return err
	}
	return ix.store.SetMetadata("last_full_index", time.Now().UTC().Format(time.RFC3339))
}

// removeVanished deletes indexed files under root that were not discovered.
func (ix *DatabaseBackedIndexer) removeVanished(ctx context.Context, root string, discovered []string) error {
	present := make(map[string]bool, len(discovered))
	for _, p := range discovered {
		present[p] = true
	}
	indexed, err := ix.store.FilesUnder(root)
	if err != nil {
		return fmt.Errorf("list indexed files under %s: %w", root, err)
	}
	var gone []string
	for _, f := range indexed {
		if !present[f.Path] {
			gone = append(gone, f.Path)
		}
	}
	return ix.RemovePaths(ctx, gone)
}

// IndexPaths re-indexes the given files. Paths outside the roots or with
// unsupported languages are ignored; paths that no longer exist are removed.
func (ix *DatabaseBackedIndexer) IndexPaths(ctx context.Context, paths []string) error {
	var present, missing []string
	for _, p := range paths {
		if !ix.underRoots(p) || !ix.accepts(p) {
			continue
		}
		info, err := os.Stat(p)
		switch {
		case errors.Is(err, os.ErrNotExist):
			missing = append(missing, p)
		case err != nil:
			return fmt.Errorf("indexer: stat %s: %w", p, err)
		case info.Mode().IsRegular():
			present = append(present, p)
		}
	}
	if err := ix.RemovePaths(ctx, missing); err != nil {
		return err
	}
	_, err := ix.indexFiles(ctx, present)
	return err
}

// RemovePaths drops the given files, and everything below them when a
// path names a directory, from the index.
func (ix *DatabaseBackedIndexer) RemovePaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := ix.lock.acquire(ctx); err != nil {
		return fmt.Errorf("indexer: %w", err)
	}
	defer ix.lock.release()

	n, err := ix.store.DeleteFilesByPath(paths)
	if err != nil {
		return fmt.Errorf("indexer: %w", err)
	}
	for _, p := range paths {
		below, err := ix.store.FilesUnder(p)
		if err != nil {
			return fmt.Errorf("indexer: %w", err)
		}
		for _, f := range below {
			if err := ix.store.DeleteFile(f.ID); err != nil {
				return fmt.Errorf("indexer: %w", err)
			}
			n++
		}
	}
	if n > 0 {
		ix.log.Debug().Int("removed", n).Msg("indexer: removed files")
	}
	return nil
}

// workItem holds everything an extraction worker needs.
type workItem struct {
	path    string
	lang    string
	hash    string
	content []byte
}

type indexStats struct {
	indexed   int
	unchanged int
}

// indexFiles runs a three-phase pipeline:
//
//	Phase A (serial):   Read, hash, and skip unchanged files.
//	Phase B (parallel): Parse and extract in a worker pool.
//	Phase C (serial):   Commit each file's symbols to SQLite.
//
// Errors on individual files are collected; processing continues.
func (ix *DatabaseBackedIndexer) indexFiles(ctx context.Context, paths []string) (indexStats, error) {
	var stats indexStats
	sort.Strings(paths)

	// ---- Phase A: Serial file preparation ----
	var items []workItem
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		item, skip, err := ix.prepareFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
			continue
		}
		if skip {
			stats.unchanged++
			continue
		}
		items = append(items, item)
	}

	if len(items) > 0 {
		if err := ix.lock.acquire(ctx); err != nil {
			return stats, fmt.Errorf("indexer: %w", err)
		}
		defer ix.lock.release()
	}

	// ---- Phase B: Parallel extraction ----
	numWorkers := max(min(ix.workers, len(items)), 1)

	workCh := make(chan workItem, len(items))
	for _, item := range items {
		workCh <- item
	}
	close(workCh)

	type result struct {
		item workItem
		syms []extract.Symbol
		err  error
	}
	resultCh := make(chan result, len(items))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer ix.recoverPanic()
			for item := range workCh {
				syms, err := ix.extractor.Extract(ctx, item.lang, item.content)
				resultCh <- result{item: item, syms: syms, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// ---- Phase C: Serial commit ----
	for res := range resultCh {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("extract %s: %w", res.item.path, res.err))
			continue
		}
		fs := toFileSymbols(res.item, res.syms)
		if err := ix.store.CommitFile(fs); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", res.item.path, err))
			continue
		}
		stats.indexed++
	}

	if len(errs) > 0 {
		return stats, fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return stats, nil
}

// recoverPanic must be deferred directly. It reports a panic to the panic
// handler and re-raises it.
func (ix *DatabaseBackedIndexer) recoverPanic() {
	rec := recover()
	if rec == nil {
		return
	}
	if ix.onPanic != nil {
		ix.onPanic(rec)
	}
	panic(rec)
}

// prepareFile does Phase A work for a single file. skip=true means the
// file is unsupported or its content is unchanged.
func (ix *DatabaseBackedIndexer) prepareFile(path string) (workItem, bool, error) {
	lang, ok := extract.LanguageForFile(path)
	if !ok || (ix.languages != nil && !ix.languages[lang]) {
		return workItem{}, true, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return workItem{}, false, fmt.Errorf("read file: %w", err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(content))

	existing, err := ix.store.FileByPath(path)
	if err != nil {
		return workItem{}, false, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && existing.Hash == hash {
		return workItem{}, true, nil // unchanged
	}
	return workItem{path: path, lang: lang, hash: hash, content: content}, false, nil
}

func toFileSymbols(item workItem, syms []extract.Symbol) *store.FileSymbols {
	fs := &store.FileSymbols{
		File: store.File{
			Path:        item.path,
			Language:    item.lang,
			Hash:        item.hash,
			LineCount:   bytes.Count(item.content, []byte{'\n'}) + 1,
			LastIndexed: time.Now(),
		},
		Symbols: make([]store.Symbol, len(syms)),
	}
	for i, s := range syms {
		sym := store.Symbol{
			Name:      s.Name,
			Kind:      string(s.Kind),
			StartLine: s.StartLine,
			StartCol:  s.StartCol,
			EndLine:   s.EndLine,
			EndCol:    s.EndCol,
		}
		if s.Parent >= 0 {
			parent := int64(s.Parent)
			sym.ParentSymbolID = &parent
		}
		fs.Symbols[i] = sym
	}
	return fs
}
