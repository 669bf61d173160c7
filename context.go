package onoma

import (
	"github.com/jward/onoma/internal/extract"
	"github.com/jward/onoma/internal/resolver"
)

// Context is an immutable snapshot of query parameters. The zero value has
// no current file and accepts every symbol kind.
type Context struct {
	inner resolver.Context
}

// CreateContext builds a query context. A nil currentFile leaves the
// current file unset; a nil or empty kinds list accepts every kind. Kind
// names are canonical and case-sensitive, and the first unknown name fails
// the whole call.
func (e *Env) CreateContext(currentFile *string, kinds []string) (Context, error) {
	defer e.sink.CapturePanic()
	c := resolver.Context{}
	if currentFile != nil {
		c = c.WithCurrentFile(*currentFile)
	}
	if kinds != nil {
		parsed := make([]extract.SymbolKind, 0, len(kinds))
		for _, name := range kinds {
			k, err := extract.ParseSymbolKind(name)
			if err != nil {
				return Context{}, err
			}
			parsed = append(parsed, k)
		}
		c = c.WithSymbolKinds(parsed...)
	}
	return Context{inner: c}, nil
}

// CurrentFile returns the current file, if one was set.
func (c Context) CurrentFile() (string, bool) {
	return c.inner.CurrentFile()
}

// Kinds returns the accepted kinds. Nil means any.
func (c Context) Kinds() []SymbolKind {
	return c.inner.Kinds()
}
