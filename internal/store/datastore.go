package store

// DataStore is the interface for manifest access during a run. Both Store
// (direct SQLite) and BatchedStore (in-memory buffering for parallel
// workers) implement it.
type DataStore interface {
	UpsertFile(f *File) (int64, error)
	FileByPath(path string) (*File, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
