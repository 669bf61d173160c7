package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// --- File operations ---

const fileCols = "id, path, language, hash, line_count, last_indexed"

func (s *Store) InsertFile(f *File) (int64, error) {
	res, err := s.db.Exec(
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

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var hash sql.NullString
	var lines sql.NullInt64
	if err := scanner.Scan(&f.ID, &f.Path, &f.Language, &hash, &lines, &f.LastIndexed); err != nil {
		return nil, err
	}
	f.Hash = hash.String
	f.LineCount = int(lines.Int64)
	return f, nil
}

// FileByPath returns the file at path, or nil if it is not indexed.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// FileByID returns the file with id, or nil if it does not exist.
func (s *Store) FileByID(id int64) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by id: %w", err)
	}
	return f, nil
}

func (s *Store) queryFiles(query string, args ...any) ([]*File, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// FilesUnder returns every indexed file whose path is root or lies below it.
func (s *Store) FilesUnder(root string) ([]*File, error) {
	where, args := underClause("path", []string{root})
	return s.queryFiles("SELECT "+fileCols+" FROM files WHERE "+where+" ORDER BY id", args...)
}

// DeleteFile removes a file and, by cascade, all of its symbols.
func (s *Store) DeleteFile(id int64) error {
	if _, err := s.db.Exec("DELETE FROM files WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// DeleteFilesByPath removes each listed file if indexed. Returns how many
// files were removed.
func (s *Store) DeleteFilesByPath(paths []string) (int, error) {
	const chunk = 500
	total := 0
	for len(paths) > 0 {
		batch := paths[:min(chunk, len(paths))]
		paths = paths[len(batch):]

		args := make([]any, len(batch))
		for i, p := range batch {
			args[i] = p
		}
		res, err := s.db.Exec("DELETE FROM files WHERE path IN ("+placeholderList(len(batch))+")", args...)
		if err != nil {
			return total, fmt.Errorf("delete files: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rows affected: %w", err)
		}
		total += int(n)
	}
	return total, nil
}

// Counts returns the number of indexed files and symbols.
func (s *Store) Counts() (files, symbols int, err error) {
	err = s.db.QueryRow("SELECT (SELECT COUNT(*) FROM files), (SELECT COUNT(*) FROM symbols)").Scan(&files, &symbols)
	if err != nil {
		return 0, 0, fmt.Errorf("counts: %w", err)
	}
	return files, symbols, nil
}

// underClause builds a WHERE fragment matching col equal to, or nested
// below, any of roots.
func underClause(col string, roots []string) (string, []any) {
	if len(roots) == 0 {
		return "1=1", nil
	}
	parts := make([]string, 0, len(roots))
	args := make([]any, 0, len(roots)*3)
	for _, root := range roots {
		root = strings.TrimRight(root, "/")
		prefix := root + "/"
		// Blob substr counts bytes, matching len(prefix).
		parts = append(parts, "("+col+" = ? OR substr(CAST("+col+" AS BLOB), 1, ?) = CAST(? AS BLOB))")
		args = append(args, root, len(prefix), prefix)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}
