package store

import "fmt"

// CommitBatch upserts all buffered records from a BatchedStore within a
// single transaction and then clears the buffer. On error nothing is
// written and the buffer is kept.
func (s *Store) CommitBatch(batch *BatchedStore) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	for i := range batch.Files {
		if _, err := upsertFile(tx, &batch.Files[i]); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	batch.Files = batch.Files[:0]
	clear(batch.byPath)
	return nil
}
