package store

import (
	"database/sql"
	"fmt"
)

const fileColumns = "id, path, rel_path, kind, hash, outcome, output_path, error, lowered_bytes, last_processed"

// UpsertFile inserts f or replaces the row with the same path, and sets
// f.ID to the row's ID.
func (s *Store) UpsertFile(f *File) (int64, error) {
	return upsertFile(s.db, f)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	QueryRow(query string, args ...any) *sql.Row
}

func upsertFile(x execer, f *File) (int64, error) {
	var id int64
	err := x.QueryRow(`
INSERT INTO files (path, rel_path, kind, hash, outcome, output_path, error, lowered_bytes, last_processed)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
  rel_path = excluded.rel_path,
  kind = excluded.kind,
  hash = excluded.hash,
  outcome = excluded.outcome,
  output_path = excluded.output_path,
  error = excluded.error,
  lowered_bytes = excluded.lowered_bytes,
  last_processed = excluded.last_processed
RETURNING id`,
		f.Path, f.RelPath, f.Kind, f.Hash, f.Outcome, f.OutputPath, f.Error, f.LoweredBytes, f.LastProcessed,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert file %s: %w", f.Path, err)
	}
	f.ID = id
	return id, nil
}

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var hash, outputPath, errText sql.NullString
	var processed sql.NullTime
	if err := scanner.Scan(&f.ID, &f.Path, &f.RelPath, &f.Kind, &hash, &f.Outcome,
		&outputPath, &errText, &f.LoweredBytes, &processed); err != nil {
		return nil, err
	}
	f.Hash = hash.String
	f.OutputPath = outputPath.String
	f.Error = errText.String
	f.LastProcessed = processed.Time
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
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// FileByPath returns the manifest row for path, or nil when there is none.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// FilesByOutcome returns the rows recorded with any of the given outcomes,
// ordered by relative path. No outcomes means every row.
func (s *Store) FilesByOutcome(outcomes ...string) ([]*File, error) {
	query := "SELECT " + fileColumns + " FROM files"
	if len(outcomes) > 0 {
		query += " WHERE outcome IN (" + placeholderList(len(outcomes)) + ")"
	}
	query += " ORDER BY rel_path"
	files, err := s.queryFiles(query, stringsToArgs(outcomes)...)
	if err != nil {
		return nil, fmt.Errorf("files by outcome: %w", err)
	}
	return files, nil
}

// OutcomeCounts returns the number of files per outcome, ordered by outcome.
func (s *Store) OutcomeCounts() ([]OutcomeCount, error) {
	rows, err := s.db.Query("SELECT outcome, COUNT(*) FROM files GROUP BY outcome ORDER BY outcome")
	if err != nil {
		return nil, fmt.Errorf("outcome counts: %w", err)
	}
	defer rows.Close()
	var counts []OutcomeCount
	for rows.Next() {
		var c OutcomeCount
		if err := rows.Scan(&c.Outcome, &c.Count); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// DeleteFile removes the manifest row for path. Missing rows are not an
// error.
func (s *Store) DeleteFile(path string) error {
	if _, err := s.db.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	return nil
}
