package store

import (
	"database/sql"
	"fmt"
)

// CommitFile replaces a file's record and all of its symbols within a
// single transaction. Any existing row for the same path is removed first,
// which cascades to its symbols. Parent references in fs.Symbols are
// indexes into the slice and are rewritten to real IDs as rows are
// inserted, so parents must precede their children.
//
// On success fs.File.ID and every fs.Symbols[i].ID hold real IDs.
func (s *Store) CommitFile(fs *FileSymbols) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit file: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM files WHERE path = ?", fs.File.Path); err != nil {
		return fmt.Errorf("commit file: delete old record: %w", err)
	}

	fileID, err := insertFileTx(tx, &fs.File)
	if err != nil {
		return fmt.Errorf("commit file: %s: %w", fs.File.Path, err)
	}

	for i := range fs.Symbols {
		sym := &fs.Symbols[i]
		sym.FileID = fileID
		if sym.ParentSymbolID != nil {
			idx := *sym.ParentSymbolID
			if idx < 0 || idx >= int64(i) {
				return fmt.Errorf("commit file: symbol %q has invalid parent index %d", sym.Name, idx)
			}
			realID := fs.Symbols[idx].ID
			sym.ParentSymbolID = &realID
		}
		if _, err := insertSymbolTx(tx, sym); err != nil {
			return fmt.Errorf("commit file: symbol %q: %w", sym.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit file: %w", err)
	}
	return nil
}

func insertFileTx(tx *sql.Tx, f *File) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO files (path, language, hash, line_count, last_indexed) VALUES (?, ?, ?, ?, ?)",
		f.Path, f.Language, f.Hash, f.LineCount, f.LastIndexed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

func insertSymbolTx(tx *sql.Tx, sym *Symbol) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO symbols (file_id, name, kind, start_line, start_col, end_line, end_col, parent_symbol_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sym.FileID, sym.Name, sym.Kind,
		sym.StartLine, sym.StartCol, sym.EndLine, sym.EndCol, sym.ParentSymbolID,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	sym.ID = id
	return id, nil
}
