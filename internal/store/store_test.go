package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestFile is a helper that inserts a file and returns it with ID set.
func insertTestFile(t *testing.T, s *Store, path string) *File {
	t.Helper()
	f := &File{
		Path:        path,
		Hash:        "abc123",
		Dialect:     "typescript",
		ConfigHash:  "cfg",
		LastScanned: time.Now().Truncate(time.Second),
	}
	id, err := s.InsertFile(f)
	require.NoError(t, err)
	require.Positive(t, id)
	return f
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"files", "replaces", "removals", "runs", "metadata"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
	require.NoError(t, s.Migrate())
}

func TestNewStore_InvalidPath(t *testing.T) {
	t.Parallel()
	_, err := NewStore("/nonexistent/dir/db.sqlite")
	require.Error(t, err)
}

func TestNewStore_Memory(t *testing.T) {
	t.Parallel()
	s, err := NewStore(MemoryPath)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate())

	insertTestFile(t, s, "/a.ts")
	files, err := s.AllFiles()
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

// =============================================================================
// Files
// =============================================================================

func TestFileByPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/src/a.ts")

	got, err := s.FileByPath("/src/a.ts")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, "abc123", got.Hash)
	assert.Equal(t, "typescript", got.Dialect)
	assert.Equal(t, "cfg", got.ConfigHash)
	assert.Empty(t, got.Error)
	assert.True(t, f.LastScanned.Equal(got.LastScanned))

	missing, err := s.FileByPath("/nope.ts")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertFile_DuplicatePath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestFile(t, s, "/a.ts")
	_, err := s.InsertFile(&File{Path: "/a.ts", Dialect: "typescript", LastScanned: time.Now()})
	require.Error(t, err)
}

func TestAllFiles_OrderedByPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestFile(t, s, "/z.ts")
	insertTestFile(t, s, "/a.ts")
	insertTestFile(t, s, "/m.ts")

	files, err := s.AllFiles()
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "/a.ts", files[0].Path)
	assert.Equal(t, "/m.ts", files[1].Path)
	assert.Equal(t, "/z.ts", files[2].Path)
}

func TestDeleteFiles(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a := insertTestFile(t, s, "/a.ts")
	b := insertTestFile(t, s, "/b.ts")
	require.NoError(t, s.CommitResult(a.ID, []Replace{{Lo: 1, Hi: 2, ImportSrc: "m", ImportName: "x"}}, nil))

	require.NoError(t, s.DeleteFiles([]int64{a.ID}))
	require.NoError(t, s.DeleteFiles(nil))

	files, err := s.AllFiles()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, b.ID, files[0].ID)

	reps, err := s.ReplacesByFile(a.ID)
	require.NoError(t, err)
	assert.Empty(t, reps)
}

// =============================================================================
// Results
// =============================================================================

func TestCommitResult_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/a.ts")

	replaces := []Replace{
		{Lo: 10, Hi: 20, ImportSrc: "./m", ImportName: "tag"},
		{Lo: 12, Hi: 18, ImportSrc: "./m", ImportName: "other"},
	}
	removals := []Removal{{Lo: 0, Hi: 9}}
	require.NoError(t, s.CommitResult(f.ID, replaces, removals))

	gotReps, err := s.ReplacesByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, gotReps, 2)
	assert.Equal(t, 0, gotReps[0].Ordinal)
	assert.Equal(t, uint32(10), gotReps[0].Lo)
	assert.Equal(t, "tag", gotReps[0].ImportName)
	assert.Equal(t, 1, gotReps[1].Ordinal)
	assert.Equal(t, "other", gotReps[1].ImportName)

	gotRems, err := s.RemovalsByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, gotRems, 1)
	assert.Equal(t, uint32(9), gotRems[0].Hi)
}

func TestCommitResult_ReplacesPreviousResults(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/a.ts")

	require.NoError(t, s.CommitResult(f.ID, []Replace{{Lo: 1, Hi: 2}, {Lo: 3, Hi: 4}}, []Removal{{Lo: 0, Hi: 1}}))
	require.NoError(t, s.CommitResult(f.ID, []Replace{{Lo: 5, Hi: 6}}, nil))

	reps, err := s.ReplacesByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, reps, 1)
	assert.Equal(t, uint32(5), reps[0].Lo)

	rems, err := s.RemovalsByFile(f.ID)
	require.NoError(t, err)
	assert.Empty(t, rems)
}

func TestCommitBatch_RecordsError(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/bad.ts")

	batch := NewBatchedStore(s, f.ID)
	batch.SetError("bad.ts:1:1: unexpected \"}\"")
	require.NoError(t, s.CommitBatch(batch))

	got, err := s.FileByPath("/bad.ts")
	require.NoError(t, err)
	assert.Equal(t, "bad.ts:1:1: unexpected \"}\"", got.Error)

	// A later successful commit clears the error.
	require.NoError(t, s.CommitBatch(NewBatchedStore(s, f.ID)))
	got, err = s.FileByPath("/bad.ts")
	require.NoError(t, err)
	assert.Empty(t, got.Error)
}

func TestDeleteFileData(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/a.ts")

	_, err := s.InsertReplace(&Replace{FileID: f.ID, Lo: 1, Hi: 2, ImportSrc: "m", ImportName: "x"})
	require.NoError(t, err)
	_, err = s.InsertRemoval(&Removal{FileID: f.ID, Lo: 0, Hi: 1})
	require.NoError(t, err)

	require.NoError(t, s.DeleteFileData(f.ID))

	reps, err := s.ReplacesByFile(f.ID)
	require.NoError(t, err)
	assert.Empty(t, reps)
	rems, err := s.RemovalsByFile(f.ID)
	require.NoError(t, err)
	assert.Empty(t, rems)

	still, err := s.FileByPath("/a.ts")
	require.NoError(t, err)
	assert.NotNil(t, still)
}

// =============================================================================
// Runs & Metadata
// =============================================================================

func TestRuns(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	none, err := s.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, none)

	run, err := s.InsertRun("/project", "cfg")
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)

	run.Scanned, run.Skipped, run.Failed = 3, 2, 1
	require.NoError(t, s.FinishRun(run))
	require.NotNil(t, run.FinishedAt)

	latest, err := s.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, "/project", latest.Root)
	assert.Equal(t, "cfg", latest.ConfigHash)
	assert.Equal(t, 3, latest.Scanned)
	assert.Equal(t, 2, latest.Skipped)
	assert.Equal(t, 1, latest.Failed)
	assert.NotNil(t, latest.FinishedAt)
}

func TestFinishRun_Unknown(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	err := s.FinishRun(&Run{ID: "missing"})
	require.Error(t, err)
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata(ConfigHashKey)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata(ConfigHashKey, "one"))
	require.NoError(t, s.SetMetadata(ConfigHashKey, "two"))

	v, err = s.GetMetadata(ConfigHashKey)
	require.NoError(t, err)
	assert.Equal(t, "two", v)
}

// =============================================================================
// Hashing
// =============================================================================

func TestComputeConfigHash(t *testing.T) {
	t.Parallel()

	base := ComputeConfigHash("macro", "", []string{"**/*.ts", "**/*.js"}, nil)
	assert.Len(t, base, 64)

	assert.Equal(t, base, ComputeConfigHash("macro", "", []string{"**/*.js", "**/*.ts"}, nil),
		"glob order must not matter")
	assert.NotEqual(t, base, ComputeConfigHash("other", "", []string{"**/*.ts", "**/*.js"}, nil))
	assert.NotEqual(t, base, ComputeConfigHash("macro", "name == 'x'", []string{"**/*.ts", "**/*.js"}, nil))
	assert.NotEqual(t, base, ComputeConfigHash("macro", "", nil, []string{"**/*.ts", "**/*.js"}),
		"include and exclude are distinct")
}

func TestContentHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ContentHash(nil))
}
