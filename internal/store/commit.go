package store

import (
	"database/sql"
	"fmt"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// CommitBatch inserts all buffered results of a BatchedStore within a single
// transaction. Any results already stored for the batch's file are replaced,
// and the file record is updated with the batch's error message (empty on
// success). Ordinals are assigned in buffer order.
func (s *Store) CommitBatch(batch *BatchedStore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"replaces", "removals"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE file_id = ?", batch.FileID); err != nil {
			return fmt.Errorf("commit batch: clear %s: %w", table, err)
		}
	}

	for i := range batch.Replaces {
		r := batch.Replaces[i]
		r.FileID, r.Ordinal = batch.FileID, i
		if _, err := insertReplaceTx(tx, &r); err != nil {
			return fmt.Errorf("commit batch: replace %d: %w", i, err)
		}
	}
	for i := range batch.Removals {
		r := batch.Removals[i]
		r.FileID, r.Ordinal = batch.FileID, i
		if _, err := insertRemovalTx(tx, &r); err != nil {
			return fmt.Errorf("commit batch: removal %d: %w", i, err)
		}
	}

	if _, err := tx.Exec("UPDATE files SET error = ? WHERE id = ?", nullString(batch.Err), batch.FileID); err != nil {
		return fmt.Errorf("commit batch: update file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: commit: %w", err)
	}
	return nil
}

// CommitResult stores the results of one file in a single transaction.
func (s *Store) CommitResult(fileID int64, replaces []Replace, removals []Removal) error {
	batch := NewBatchedStore(s, fileID)
	batch.Replaces = replaces
	batch.Removals = removals
	return s.CommitBatch(batch)
}

func insertReplaceTx(ex execer, r *Replace) (int64, error) {
	res, err := ex.Exec(
		"INSERT INTO replaces (file_id, ordinal, lo, hi, import_src, import_name) VALUES (?, ?, ?, ?, ?, ?)",
		r.FileID, r.Ordinal, r.Lo, r.Hi, r.ImportSrc, r.ImportName,
	)
	if err != nil {
		return 0, fmt.Errorf("insert replace: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return id, nil
}

func insertRemovalTx(ex execer, r *Removal) (int64, error) {
	res, err := ex.Exec(
		"INSERT INTO removals (file_id, ordinal, lo, hi) VALUES (?, ?, ?, ?)",
		r.FileID, r.Ordinal, r.Lo, r.Hi,
	)
	if err != nil {
		return 0, fmt.Errorf("insert removal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return id, nil
}
