package indexer

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jward/onoma/internal/extract"
)

// SkipDirs lists directory names excluded from indexing and watching, in
// addition to hidden directories.
var SkipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// SkipDir reports whether a directory with this base name is excluded.
func SkipDir(name string) bool {
	return (strings.HasPrefix(name, ".") && name != "." && name != "..") || SkipDirs[name]
}

// discover lists the supported source files under root. If root is inside
// a git repository, uses git ls-files to respect .gitignore; otherwise
// falls back to a filesystem walk.
func (ix *DatabaseBackedIndexer) discover(ctx context.Context, root string) ([]string, error) {
	paths, err := ix.gitListFiles(ctx, root)
	if err != nil {
		ix.log.Debug().Err(err).Str("root", root).Msg("indexer: git ls-files unavailable, walking")
		return ix.walkListFiles(root)
	}
	return paths, nil
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) files under root, filtered to supported languages.
func (ix *DatabaseBackedIndexer) gitListFiles(ctx context.Context, root string) ([]string, error) {
	// --cached: tracked files, --others: untracked files,
	// --exclude-standard: respect .gitignore, .git/info/exclude, global excludes.
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		absPath := filepath.Join(root, line)
		if ix.accepts(absPath) {
			paths = append(paths, absPath)
		}
	}
	return paths, nil
}

// walkListFiles discovers files by walking the filesystem. Skips hidden
// directories, node_modules, vendor, and __pycache__.
func (ix *DatabaseBackedIndexer) walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if ix.accepts(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

// accepts reports whether path has a supported, enabled language.
func (ix *DatabaseBackedIndexer) accepts(path string) bool {
	lang, ok := extract.LanguageForFile(path)
	if !ok {
		return false
	}
	return ix.languages == nil || ix.languages[lang]
}

// underRoots reports whether path is one of, or nested below, the roots.
func (ix *DatabaseBackedIndexer) underRoots(path string) bool {
	for _, root := range ix.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
