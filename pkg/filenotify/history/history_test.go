package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/filenotify/pkg/filenotify/manifest"
	"github.com/jamesainslie/filenotify/pkg/filenotify/processor"
	"github.com/jamesainslie/filenotify/pkg/filenotify/walker"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndGet(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	run := &Run{
		Root:    "/srv/shared",
		Started: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Dirs: []DirOutcome{
			{Dir: "/srv/shared/a", State: processor.StateNotified, Changed: []string{"x.pdf"}, Entries: 3},
			{Dir: "/srv/shared/b", State: processor.StateNoOp, Entries: 1},
		},
	}
	require.NoError(t, s.Record(run))
	require.NotEmpty(t, run.ID, "Record assigns an ID")

	got, err := s.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Root, got.Root)
	assert.True(t, run.Started.Equal(got.Started))
	assert.Equal(t, run.Dirs, got.Dirs)
	assert.Equal(t, 1, got.Notified())
	assert.Equal(t, 1, got.ChangedFiles())
}

func TestGet_Unknown(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	_, err := s.Get("does-not-exist")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestList_NewestFirst(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		run := &Run{Root: "/r", Started: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, s.Record(run))
		ids = append(ids, run.ID)
	}

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 5)
	for i, run := range runs {
		assert.Equal(t, ids[4-i], run.ID)
	}

	runs, err = s.List(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[4], runs[0].ID)
	assert.Equal(t, ids[3], runs[1].ID)
}

func TestList_Empty(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	runs, err := s.List(10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestCleanup(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	old := &Run{Root: "/r", Started: now.AddDate(0, 0, -40)}
	recent := &Run{Root: "/r", Started: now.AddDate(0, 0, -5)}
	require.NoError(t, s.Record(old))
	require.NoError(t, s.Record(recent))

	removed, err := s.Cleanup(0)
	require.NoError(t, err)
	assert.Zero(t, removed, "non-positive retention keeps everything")

	removed, err = s.Cleanup(30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(recent.ID)
	assert.NoError(t, err)

	runs, err := s.List(0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestReopenKeepsRuns(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "history")

	s, err := Open(dir)
	require.NoError(t, err)
	run := &Run{Root: "/r"}
	require.NoError(t, s.Record(run))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, "/r", got.Root)
}

func TestNewRun(t *testing.T) {
	t.Parallel()
	started := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	report := &walker.Report{
		Root:     "/data",
		Started:  started,
		Finished: started.Add(time.Second),
		Watched:  3,
		Results: []processor.Result{
			{Dir: "/data/a", State: processor.StateNotified, Changed: manifest.Manifest{"b": 2, "a": 1}, Entries: 2, Skipped: []string{"gone"}},
			{Dir: "/data/b", State: processor.StateNoOp, Changed: manifest.Manifest{}, Entries: 4},
		},
		Errors: []walker.WalkError{{Path: "/data/locked", Error: "permission denied"}},
		Failed: "/data/c",
	}

	run := NewRun(report, false, errors.New("notify failed"))

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "/data", run.Root)
	assert.Equal(t, 3, run.Watched)
	assert.Equal(t, 1, run.WalkErrors)
	assert.Equal(t, "/data/c", run.Failed)
	assert.Equal(t, "notify failed", run.Error)
	require.Len(t, run.Dirs, 2)
	assert.Equal(t, []string{"a", "b"}, run.Dirs[0].Changed)
	assert.Equal(t, 1, run.Dirs[0].Skipped)
	assert.Equal(t, 2, run.ChangedFiles())

	other := NewRun(report, false, nil)
	assert.NotEqual(t, run.ID, other.ID)
	assert.Empty(t, other.Error)
}
