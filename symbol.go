package onoma

import "github.com/jward/onoma/internal/resolver"

// ResolvedSymbol is one query match as seen by the host. Lines are
// one-based and columns zero-based, the convention editors use for cursor
// positions.
type ResolvedSymbol struct {
	ID          int64
	Kind        string
	Name        string
	Path        string
	Score       int
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
}

func newResolvedSymbol(m resolver.Match) *ResolvedSymbol {
	return &ResolvedSymbol{
		ID:          m.ID,
		Kind:        m.Kind,
		Name:        m.Name,
		Path:        m.Path,
		Score:       m.Score,
		StartLine:   m.StartLine + 1,
		StartColumn: m.StartCol,
		EndLine:     m.EndLine + 1,
		EndColumn:   m.EndCol,
	}
}
