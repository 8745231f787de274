package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// --- Files ---

func (s *Store) InsertFile(f *File) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO files (path, hash, dialect, config_hash, error, last_scanned) VALUES (?, ?, ?, ?, ?, ?)",
		f.Path, f.Hash, f.Dialect, f.ConfigHash, nullString(f.Error), f.LastScanned,
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

const fileColumns = "id, path, hash, dialect, config_hash, error, last_scanned"

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var hash, configHash, errMsg sql.NullString
	if err := scanner.Scan(&f.ID, &f.Path, &hash, &f.Dialect, &configHash, &errMsg, &f.LastScanned); err != nil {
		return nil, err
	}
	f.Hash, f.ConfigHash, f.Error = hash.String, configHash.String, errMsg.String
	return f, nil
}

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

// AllFiles returns every file ordered by path.
func (s *Store) AllFiles() ([]*File, error) {
	rows, err := s.db.Query("SELECT " + fileColumns + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("all files: %w", err)
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

// DeleteFileData removes the cached results of a file but keeps its record.
func (s *Store) DeleteFileData(fileID int64) error {
	for _, table := range []string{"replaces", "removals"} {
		if _, err := s.db.Exec("DELETE FROM "+table+" WHERE file_id = ?", fileID); err != nil {
			return fmt.Errorf("delete %s for file %d: %w", table, fileID, err)
		}
	}
	return nil
}

// DeleteFiles removes file records together with their results.
func (s *Store) DeleteFiles(fileIDs []int64) error {
	if len(fileIDs) == 0 {
		return nil
	}
	args := int64sToArgs(fileIDs)
	in := placeholderList(len(fileIDs))
	for _, table := range []string{"replaces", "removals"} {
		if _, err := s.db.Exec("DELETE FROM "+table+" WHERE file_id IN ("+in+")", args...); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if _, err := s.db.Exec("DELETE FROM files WHERE id IN ("+in+")", args...); err != nil {
		return fmt.Errorf("delete files: %w", err)
	}
	return nil
}

// --- Results ---

func (s *Store) InsertReplace(r *Replace) (int64, error) {
	return insertReplaceTx(s.db, r)
}

func (s *Store) InsertRemoval(r *Removal) (int64, error) {
	return insertRemovalTx(s.db, r)
}

// ReplacesByFile returns the cached call sites of a file in scan order.
func (s *Store) ReplacesByFile(fileID int64) ([]*Replace, error) {
	rows, err := s.db.Query(
		"SELECT id, file_id, ordinal, lo, hi, import_src, import_name FROM replaces WHERE file_id = ? ORDER BY ordinal",
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("replaces by file: %w", err)
	}
	defer rows.Close()
	var out []*Replace
	for rows.Next() {
		r := &Replace{}
		if err := rows.Scan(&r.ID, &r.FileID, &r.Ordinal, &r.Lo, &r.Hi, &r.ImportSrc, &r.ImportName); err != nil {
			return nil, fmt.Errorf("scan replace: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RemovalsByFile returns the cached import removals of a file in order.
func (s *Store) RemovalsByFile(fileID int64) ([]*Removal, error) {
	rows, err := s.db.Query(
		"SELECT id, file_id, ordinal, lo, hi FROM removals WHERE file_id = ? ORDER BY ordinal",
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("removals by file: %w", err)
	}
	defer rows.Close()
	var out []*Removal
	for rows.Next() {
		r := &Removal{}
		if err := rows.Scan(&r.ID, &r.FileID, &r.Ordinal, &r.Lo, &r.Hi); err != nil {
			return nil, fmt.Errorf("scan removal: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Runs ---

// InsertRun starts a new run record with a fresh UUID.
func (s *Store) InsertRun(root, configHash string) (*Run, error) {
	run := &Run{
		ID:         uuid.NewString(),
		Root:       root,
		ConfigHash: configHash,
		StartedAt:  time.Now(),
	}
	_, err := s.db.Exec(
		"INSERT INTO runs (id, root, config_hash, started_at) VALUES (?, ?, ?, ?)",
		run.ID, run.Root, run.ConfigHash, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final counters of a run.
func (s *Store) FinishRun(run *Run) error {
	now := time.Now()
	res, err := s.db.Exec(
		"UPDATE runs SET finished_at = ?, scanned = ?, skipped = ?, failed = ? WHERE id = ?",
		now, run.Scanned, run.Skipped, run.Failed, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %s", run.ID)
	}
	run.FinishedAt = &now
	return nil
}

// LatestRun returns the most recently started run, or nil when none exist.
func (s *Store) LatestRun() (*Run, error) {
	run := &Run{}
	var root, configHash sql.NullString
	var finished sql.NullTime
	err := s.db.QueryRow(
		"SELECT id, root, config_hash, started_at, finished_at, scanned, skipped, failed FROM runs ORDER BY started_at DESC LIMIT 1",
	).Scan(&run.ID, &root, &configHash, &run.StartedAt, &finished, &run.Scanned, &run.Skipped, &run.Failed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	run.Root, run.ConfigHash = root.String, configHash.String
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return run, nil
}
