package store

import "sync"

// BatchedStore buffers manifest records in memory using fake (negative)
// IDs until CommitBatch writes them in one transaction. A later record for
// the same path replaces the earlier one.
//
// Thread safety: the mutex protects fake ID allocation and the buffer.
// FileByPath falls through to the underlying Store, which is safe for
// concurrent reads.
type BatchedStore struct {
	store *Store
	mu    sync.Mutex

	Files  []File
	byPath map[string]int

	nextFakeID int64 // starts at -1, decrements
}

// Compile-time check: *BatchedStore satisfies DataStore.
var _ DataStore = (*BatchedStore)(nil)

// NewBatchedStore creates a BatchedStore backed by the given Store for read
// queries.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{
		store:      s,
		byPath:     make(map[string]int),
		nextFakeID: -1,
	}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

// UpsertFile buffers f and returns its fake ID.
func (b *BatchedStore) UpsertFile(f *File) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.byPath[f.Path]; ok {
		f.ID = b.Files[i].ID
		b.Files[i] = *f
		return f.ID, nil
	}
	f.ID = b.allocFakeID()
	b.byPath[f.Path] = len(b.Files)
	b.Files = append(b.Files, *f)
	return f.ID, nil
}

// FileByPath returns the buffered record for path when there is one, else
// the committed row.
func (b *BatchedStore) FileByPath(path string) (*File, error) {
	b.mu.Lock()
	if i, ok := b.byPath[path]; ok {
		f := b.Files[i]
		b.mu.Unlock()
		return &f, nil
	}
	b.mu.Unlock()
	return b.store.FileByPath(path)
}

// Len reports the number of buffered records.
func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Files)
}
