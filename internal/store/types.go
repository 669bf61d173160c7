package store

import "time"

type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	LineCount   int
	LastIndexed time.Time
}

// Symbol is a named declaration extracted from a file. Lines and columns
// are zero-based, as reported by the parser.
type Symbol struct {
	ID             int64
	FileID         int64
	Name           string
	Kind           string
	StartLine      int
	StartCol       int
	EndLine        int
	EndCol         int
	ParentSymbolID *int64
}

// SymbolWithPath is a Symbol joined with the path of its file.
type SymbolWithPath struct {
	Symbol
	Path string
}

// FileSymbols is one file's complete extraction result, committed as a unit.
// Symbol.ParentSymbolID, when set, is an index into Symbols rather than a
// database ID; CommitFile rewrites it.
type FileSymbols struct {
	File    File
	Symbols []Symbol
}
