package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/filenotify/pkg/filenotify/manifest"
	"github.com/jamesainslie/filenotify/pkg/filenotify/processor"
	"github.com/jamesainslie/filenotify/pkg/filenotify/walker"
)

func sampleReport() *walker.Report {
	started := time.Unix(1700000000, 0)
	return &walker.Report{
		Root:     "/data",
		Started:  started,
		Finished: started.Add(2 * time.Second),
		Results: []processor.Result{
			{Dir: "/data/a", State: processor.StateNotified, Changed: manifest.Manifest{"x": 1, "y": 2}, Duration: 10 * time.Millisecond},
			{Dir: "/data/b", State: processor.StateNoOp, Skipped: []string{"gone"}, Duration: time.Millisecond},
		},
		Errors: []walker.WalkError{{Path: "/data/locked", Error: "permission denied"}},
	}
}

func readTextfile(t *testing.T, r *Recorder) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sub", "filenotify.prom")
	require.NoError(t, r.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestObserve_SuccessfulRun(t *testing.T) {
	t.Parallel()
	r := New()
	r.Observe(sampleReport(), nil)

	out := readTextfile(t, r)
	assert.Contains(t, out, `filenotify_directories_processed_total{state="notified"} 1`)
	assert.Contains(t, out, `filenotify_directories_processed_total{state="no-op"} 1`)
	assert.Contains(t, out, `filenotify_directories_processed_total{state="dry-run"} 0`)
	assert.Contains(t, out, "filenotify_changed_files_total 2")
	assert.Contains(t, out, "filenotify_skipped_files_total 1")
	assert.Contains(t, out, "filenotify_walk_errors_total 1")
	assert.Contains(t, out, "filenotify_last_run_success 1")
	assert.Contains(t, out, "filenotify_last_run_timestamp_seconds 1.700000002e+09")
	assert.Contains(t, out, "filenotify_last_run_duration_seconds 2")
	assert.Contains(t, out, "filenotify_directory_duration_seconds_count 2")
}

func TestObserve_FailedRun(t *testing.T) {
	t.Parallel()
	r := New()
	report := sampleReport()
	report.Failed = "/data/c"
	r.Observe(report, errors.New("notify failed"))

	out := readTextfile(t, r)
	assert.Contains(t, out, `filenotify_directories_processed_total{state="failed"} 1`)
	assert.Contains(t, out, "filenotify_last_run_success 0")
}

func TestObserve_Accumulates(t *testing.T) {
	t.Parallel()
	r := New()
	r.Observe(sampleReport(), nil)
	r.Observe(sampleReport(), nil)

	out := readTextfile(t, r)
	assert.Contains(t, out, "filenotify_changed_files_total 4")
	assert.Contains(t, out, `filenotify_directories_processed_total{state="notified"} 2`)
}

func TestRegistry_GathersAllFamilies(t *testing.T) {
	t.Parallel()
	r := New()
	r.Observe(sampleReport(), nil)

	families, err := r.Registry().Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.ElementsMatch(t, []string{
		"filenotify_directories_processed_total",
		"filenotify_changed_files_total",
		"filenotify_skipped_files_total",
		"filenotify_walk_errors_total",
		"filenotify_last_run_timestamp_seconds",
		"filenotify_last_run_success",
		"filenotify_last_run_duration_seconds",
		"filenotify_directory_duration_seconds",
	}, names)

	for _, mf := range families {
		if mf.GetName() == "filenotify_directories_processed_total" {
			assert.Len(t, mf.GetMetric(), len(States()), "every state label is pre-initialized")
		}
	}
}

func TestWriteTextfile_BadPath(t *testing.T) {
	t.Parallel()
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	err := New().WriteTextfile(filepath.Join(file, "metrics.prom"))
	assert.Error(t, err)
}
