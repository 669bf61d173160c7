package store

import (
	"fmt"
)

// --- Symbol operations ---

// SymbolCols is the column list for symbol queries.
const SymbolCols = `id, file_id, name, kind, start_line, start_col, end_line, end_col, parent_symbol_id`

func scanSymbol(scanner interface{ Scan(...any) error }) (*Symbol, error) {
	sym := &Symbol{}
	err := scanner.Scan(
		&sym.ID, &sym.FileID, &sym.Name, &sym.Kind,
		&sym.StartLine, &sym.StartCol, &sym.EndLine, &sym.EndCol,
		&sym.ParentSymbolID,
	)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

func (s *Store) querySymbols(query string, args ...any) ([]*Symbol, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var symbols []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func (s *Store) SymbolsByFile(fileID int64) ([]*Symbol, error) {
	return s.querySymbols("SELECT "+SymbolCols+" FROM symbols WHERE file_id = ? ORDER BY id", fileID)
}

func (s *Store) SymbolsByName(name string) ([]*Symbol, error) {
	return s.querySymbols("SELECT "+SymbolCols+" FROM symbols WHERE name = ? ORDER BY id", name)
}

// SymbolFilter narrows CandidateSymbols.
type SymbolFilter struct {
	// Roots restricts results to files at or below these directories.
	// Empty means every file.
	Roots []string

	// Kinds restricts results to these kinds. Empty means every kind.
	Kinds []string
}

// CandidateSymbols returns symbols matching filter in ascending id order.
// Each symbol is passed to fn; returning false stops the scan early.
func (s *Store) CandidateSymbols(filter SymbolFilter, fn func(*Symbol) bool) error {
	where, args := underClause("f.path", filter.Roots)
	query := "SELECT s.id, s.file_id, s.name, s.kind, s.start_line, s.start_col, s.end_line, s.end_col, s.parent_symbol_id" +
		" FROM symbols s JOIN files f ON f.id = s.file_id WHERE " + where
	if len(filter.Kinds) > 0 {
		query += " AND s.kind IN (" + placeholderList(len(filter.Kinds)) + ")"
		for _, k := range filter.Kinds {
			args = append(args, k)
		}
	}
	query += " ORDER BY s.id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("candidate symbols: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return fmt.Errorf("scan symbol: %w", err)
		}
		if !fn(sym) {
			return nil
		}
	}
	return rows.Err()
}
