package store

import "sync"

// BatchedStore buffers the results of one file in memory using fake
// (negative) IDs. Scan workers write to it without touching SQLite; the
// single committer goroutine then persists it with CommitBatch.
type BatchedStore struct {
	store  *Store
	FileID int64
	mu     sync.Mutex

	Replaces []Replace
	Removals []Removal
	// Err is the scan failure recorded on the file, if any.
	Err string

	nextFakeID int64 // starts at -1, decrements
}

var _ DataStore = (*BatchedStore)(nil)

// NewBatchedStore creates a BatchedStore for fileID backed by s.
func NewBatchedStore(s *Store, fileID int64) *BatchedStore {
	return &BatchedStore{
		store:      s,
		FileID:     fileID,
		nextFakeID: -1,
	}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

func (b *BatchedStore) InsertReplace(r *Replace) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r.ID = b.allocFakeID()
	r.FileID = b.FileID
	r.Ordinal = len(b.Replaces)
	b.Replaces = append(b.Replaces, *r)
	return r.ID, nil
}

func (b *BatchedStore) InsertRemoval(r *Removal) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r.ID = b.allocFakeID()
	r.FileID = b.FileID
	r.Ordinal = len(b.Removals)
	b.Removals = append(b.Removals, *r)
	return r.ID, nil
}

// ReplacesByFile returns buffered replaces for the batch's own file and
// falls through to the Store for any other file.
func (b *BatchedStore) ReplacesByFile(fileID int64) ([]*Replace, error) {
	if fileID != b.FileID {
		return b.store.ReplacesByFile(fileID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Replace, len(b.Replaces))
	for i := range b.Replaces {
		r := b.Replaces[i]
		out[i] = &r
	}
	return out, nil
}

// RemovalsByFile mirrors ReplacesByFile for removals.
func (b *BatchedStore) RemovalsByFile(fileID int64) ([]*Removal, error) {
	if fileID != b.FileID {
		return b.store.RemovalsByFile(fileID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Removal, len(b.Removals))
	for i := range b.Removals {
		r := b.Removals[i]
		out[i] = &r
	}
	return out, nil
}

// SetError records a scan failure for the file.
func (b *BatchedStore) SetError(msg string) {
	b.mu.Lock()
	b.Err = msg
	b.mu.Unlock()
}
