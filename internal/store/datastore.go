package store

// DataStore is the interface for writing and reading per-file scan results.
// Both Store (direct SQLite) and BatchedStore (in-memory buffering for
// parallel scans) implement it.
type DataStore interface {
	InsertReplace(r *Replace) (int64, error)
	InsertRemoval(r *Removal) (int64, error)

	ReplacesByFile(fileID int64) ([]*Replace, error)
	RemovalsByFile(fileID int64) ([]*Removal, error)
}

var _ DataStore = (*Store)(nil)
