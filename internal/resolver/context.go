package resolver

import "github.com/jward/onoma/internal/extract"

// Context narrows a query. The zero value has no current file and accepts
// every symbol kind. Context is a value: the With methods return copies.
type Context struct {
	currentFile string
	hasFile     bool
	kinds       []extract.SymbolKind
}

// WithCurrentFile returns a copy of c that ranks symbols in path, and in
// its directory, above equally good matches elsewhere.
func (c Context) WithCurrentFile(path string) Context {
	c.currentFile = path
	c.hasFile = true
	return c
}

// WithSymbolKinds returns a copy of c that only accepts the given kinds.
// An empty list removes the restriction.
func (c Context) WithSymbolKinds(kinds ...extract.SymbolKind) Context {
	if len(kinds) == 0 {
		c.kinds = nil
		return c
	}
	c.kinds = append([]extract.SymbolKind(nil), kinds...)
	return c
}

// CurrentFile returns the current file, if one was set.
func (c Context) CurrentFile() (string, bool) {
	return c.currentFile, c.hasFile
}

// Kinds returns a copy of the accepted kinds. Nil means any.
func (c Context) Kinds() []extract.SymbolKind {
	if c.kinds == nil {
		return nil
	}
	return append([]extract.SymbolKind(nil), c.kinds...)
}

func (c Context) kindNames() []string {
	names := make([]string, len(c.kinds))
	for i, k := range c.kinds {
		names[i] = string(k)
	}
	return names
}
