package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractSrc(t *testing.T, lang, src string) []Symbol {
	t.Helper()
	syms, err := New().Extract(context.Background(), lang, []byte(src))
	require.NoError(t, err)
	return syms
}

func findSymbol(t *testing.T, syms []Symbol, name string) (int, Symbol) {
	t.Helper()
	for i, s := range syms {
		if s.Name == name {
			return i, s
		}
	}
	t.Fatalf("symbol %q not found in %+v", name, syms)
	return -1, Symbol{}
}

func TestLanguageForFile(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"main.go":   "go",
		"app.PY":    "python",
		"x.tsx":     "typescript",
		"lib.rs":    "rust",
		"a.h":       "c",
		"Main.java": "java",
		"index.mjs": "javascript",
	}
	for path, want := range tests {
		got, ok := LanguageForFile(path)
		assert.True(t, ok, path)
		assert.Equal(t, want, got, path)
	}
	_, ok := LanguageForFile("README.md")
	assert.False(t, ok)
}

func TestGrammarForEveryLanguage(t *testing.T) {
	t.Parallel()
	for _, lang := range Languages() {
		g, ok := GrammarForLanguage(lang)
		assert.True(t, ok, lang)
		assert.NotNil(t, g, lang)
		_, hasRules := languageRules[lang]
		assert.True(t, hasRules, "language %s has no extraction rules", lang)
	}
}

func TestParseSymbolKind(t *testing.T) {
	t.Parallel()
	for _, k := range AllKinds {
		got, err := ParseSymbolKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseSymbolKind("Function")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSymbolKind)
	assert.Equal(t, "invalid symbol kind: Function", err.Error())

	_, err = ParseSymbolKind("bogus")
	assert.Equal(t, "invalid symbol kind: bogus", err.Error())
}

func TestExtract_Go(t *testing.T) {
	t.Parallel()
	src := `package demo

const MaxItems = 10

var registry = map[string]int{}

type Server struct {
	Addr string
}

type Handler interface {
	Serve()
}

type ID int

func NewServer() *Server { return &Server{} }

func (s *Server) Start() error {
	var local int
	_ = local
	return nil
}
`
	syms := extractSrc(t, "go", src)

	kinds := map[string]SymbolKind{}
	for _, s := range syms {
		kinds[s.Name] = s.Kind
	}
	assert.Equal(t, KindConstant, kinds["MaxItems"])
	assert.Equal(t, KindVariable, kinds["registry"])
	assert.Equal(t, KindStruct, kinds["Server"])
	assert.Equal(t, KindInterface, kinds["Handler"])
	assert.Equal(t, KindType, kinds["ID"])
	assert.Equal(t, KindFunction, kinds["NewServer"])
	assert.Equal(t, KindMethod, kinds["Start"])
	assert.Equal(t, KindField, kinds["Addr"])
	assert.NotContains(t, kinds, "local", "function-local vars are not symbols")

	serverIdx, server := findSymbol(t, syms, "Server")
	_, addr := findSymbol(t, syms, "Addr")
	assert.Equal(t, serverIdx, addr.Parent)
	assert.Equal(t, -1, server.Parent)
	assert.Equal(t, 6, server.StartLine)

	_, newServer := findSymbol(t, syms, "NewServer")
	assert.Equal(t, 16, newServer.StartLine)
	assert.Equal(t, 0, newServer.StartCol)
}

func TestExtract_OrderedByPosition(t *testing.T) {
	t.Parallel()
	syms := extractSrc(t, "go", "package p\n\nfunc B() {}\n\nfunc A() {}\n")
	require.Len(t, syms, 2)
	assert.Equal(t, "B", syms[0].Name)
	assert.Equal(t, "A", syms[1].Name)
}

func TestExtract_Python(t *testing.T) {
	t.Parallel()
	src := `TIMEOUT = 30
counter = 0

class Greeter:
    def greet(self):
        def inner():
            pass
        return inner

    @staticmethod
    def make():
        return Greeter()

def main():
    pass
`
	syms := extractSrc(t, "python", src)

	_, timeout := findSymbol(t, syms, "TIMEOUT")
	assert.Equal(t, KindConstant, timeout.Kind)
	_, counter := findSymbol(t, syms, "counter")
	assert.Equal(t, KindVariable, counter.Kind)

	classIdx, class := findSymbol(t, syms, "Greeter")
	assert.Equal(t, KindClass, class.Kind)

	greetIdx, greet := findSymbol(t, syms, "greet")
	assert.Equal(t, KindMethod, greet.Kind)
	assert.Equal(t, classIdx, greet.Parent)

	_, mk := findSymbol(t, syms, "make")
	assert.Equal(t, KindMethod, mk.Kind, "decorated methods are still methods")

	_, inner := findSymbol(t, syms, "inner")
	assert.Equal(t, KindFunction, inner.Kind)
	assert.Equal(t, greetIdx, inner.Parent)

	_, main := findSymbol(t, syms, "main")
	assert.Equal(t, KindFunction, main.Kind)
	assert.Equal(t, -1, main.Parent)
}

func TestExtract_UnsupportedLanguage(t *testing.T) {
	t.Parallel()
	_, err := New().Extract(context.Background(), "cobol", []byte("x"))
	require.Error(t, err)
}

func TestExtract_ConcurrentUse(t *testing.T) {
	t.Parallel()
	e := New()
	errs := make(chan error, 8)
	for range 8 {
		go func() {
			syms, err := e.Extract(context.Background(), "go", []byte("package p\nfunc F() {}\n"))
			if err == nil && len(syms) != 1 {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	for range 8 {
		require.NoError(t, <-errs)
	}
}

func TestIsConstantName(t *testing.T) {
	t.Parallel()
	assert.True(t, isConstantName("MAX_SIZE"))
	assert.True(t, isConstantName("X1"))
	assert.False(t, isConstantName("Max"))
	assert.False(t, isConstantName("__"))
	assert.False(t, isConstantName("_private"))
}
