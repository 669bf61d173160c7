// Package extract parses source files with tree-sitter and extracts the
// named declarations the resolver searches over.
package extract

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	sitter "github.com/smacker/go-tree-sitter"
)

// Symbol is one extracted declaration. Lines and columns are zero-based.
// Parent is the index of the innermost enclosing symbol in the same
// result slice, or -1.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
	Parent    int

	startByte uint32
	endByte   uint32
}

type compiledRule struct {
	rule
	query   *sitter.Query
	defIdx  uint32
	nameIdx uint32
	bodyIdx int // -1 when the pattern has no @body capture
}

// Extractor turns source into symbols. It is safe for concurrent use;
// each call parses with its own parser and query cursors.
type Extractor struct {
	log zerolog.Logger

	mu    sync.Mutex
	rules map[string][]compiledRule
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used to report rules a grammar rejects.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Extractor) {
		e.log = log
	}
}

// New returns an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{log: zerolog.Nop(), rules: make(map[string][]compiledRule)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// rulesFor compiles a language's patterns on first use. A pattern the
// grammar rejects is logged and skipped so the remaining kinds still work.
func (e *Extractor) rulesFor(lang string, grammar *sitter.Language) []compiledRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	if compiled, ok := e.rules[lang]; ok {
		return compiled
	}
	var compiled []compiledRule
	for _, r := range languageRules[lang] {
		q, err := sitter.NewQuery([]byte(r.pattern), grammar)
		if err != nil {
			e.log.Warn().Err(err).Str("language", lang).Str("kind", string(r.kind)).Msg("extract: pattern rejected by grammar")
			continue
		}
		cr := compiledRule{rule: r, query: q, bodyIdx: -1}
		for i := uint32(0); i < q.CaptureCount(); i++ {
			switch q.CaptureNameForId(i) {
			case "def":
				cr.defIdx = i
			case "name":
				cr.nameIdx = i
			case "body":
				cr.bodyIdx = int(i)
			}
		}
		compiled = append(compiled, cr)
	}
	e.rules[lang] = compiled
	return compiled
}

// Extract parses src as lang and returns its symbols ordered by position.
func (e *Extractor) Extract(ctx context.Context, lang string, src []byte) ([]Symbol, error) {
	grammar, ok := GrammarForLanguage(lang)
	if !ok {
		return nil, fmt.Errorf("extract: unsupported language %q", lang)
	}
	rules := e.rulesFor(lang, grammar)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("extract: tree-sitter parse failed: %w", err)
	}
	defer tree.Close()
	root := tree.RootNode()

	type key struct {
		start, end uint32
		name       string
	}
	seen := make(map[key]bool)
	var syms []Symbol

	for _, r := range rules {
		cursor := sitter.NewQueryCursor()
		cursor.Exec(r.query, root)
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, src)

			var def, name, body *sitter.Node
			for _, c := range match.Captures {
				switch {
				case c.Index == r.defIdx:
					def = c.Node
				case c.Index == r.nameIdx:
					name = c.Node
				case r.bodyIdx >= 0 && c.Index == uint32(r.bodyIdx):
					body = c.Node
				}
			}
			if def == nil || name == nil {
				continue
			}

			text := name.Content(src)
			k := key{def.StartByte(), def.EndByte(), text}
			if text == "" || seen[k] {
				continue
			}
			seen[k] = true

			kind := r.kind
			if r.refine != nil {
				kind = r.refine(def, body)
			}
			if lang == "python" && kind == KindVariable && isConstantName(text) {
				kind = KindConstant
			}

			start, end := def.StartPoint(), def.EndPoint()
			syms = append(syms, Symbol{
				Name:      text,
				Kind:      kind,
				StartLine: int(start.Row),
				StartCol:  int(start.Column),
				EndLine:   int(end.Row),
				EndCol:    int(end.Column),
				Parent:    -1,
				startByte: def.StartByte(),
				endByte:   def.EndByte(),
			})
		}
		cursor.Close()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	assignParents(syms)
	return syms, nil
}

// assignParents orders symbols by position (outer before inner) and links
// each to the innermost symbol whose range contains it.
func assignParents(syms []Symbol) {
	sort.SliceStable(syms, func(i, j int) bool {
		if syms[i].startByte != syms[j].startByte {
			return syms[i].startByte < syms[j].startByte
		}
		return syms[i].endByte > syms[j].endByte
	})
	var stack []int
	for i := range syms {
		for len(stack) > 0 && syms[stack[len(stack)-1]].endByte <= syms[i].startByte {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			switch {
			case syms[i].startByte == syms[top].startByte && syms[i].endByte == syms[top].endByte:
				// Several names declared by one node are siblings.
				syms[i].Parent = syms[top].Parent
			case syms[i].endByte <= syms[top].endByte:
				syms[i].Parent = top
			}
		}
		stack = append(stack, i)
	}
}
