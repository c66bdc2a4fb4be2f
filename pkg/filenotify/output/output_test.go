package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/filenotify/pkg/filenotify/manifest"
	"github.com/jamesainslie/filenotify/pkg/filenotify/processor"
	"github.com/jamesainslie/filenotify/pkg/filenotify/walker"
)

var (
	testNow  = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	modified = testNow.Add(-2 * time.Hour)
)

func sampleReport() *walker.Report {
	return &walker.Report{
		Root:     "/srv/share",
		Started:  testNow.Add(-3 * time.Second),
		Finished: testNow,
		Watched:  3,
		Results: []processor.Result{
			{
				Dir:     "/srv/share/reports",
				State:   processor.StateNotified,
				Changed: manifest.Manifest{"q2.pdf": manifest.StampOf(modified), "q1.pdf": manifest.StampOf(modified)},
				Entries: 4,
			},
			{Dir: "/srv/share/archive", State: processor.StateNoOp, Entries: 10},
			{
				Dir:     "/srv/share/drafts",
				State:   processor.StateDryRun,
				Changed: manifest.Manifest{"memo.txt": manifest.StampOf(modified)},
				Entries: 1,
				Skipped: []string{"gone.txt"},
			},
		},
		Errors: []walker.WalkError{{Path: "/srv/share/locked", Error: "permission denied"}},
	}
}

func TestFromReport(t *testing.T) {
	r := FromReport(sampleReport(), nil, testNow)

	assert.Equal(t, "/srv/share", r.Root)
	assert.Equal(t, 3*time.Second, r.Duration)
	assert.Equal(t, Summary{Watched: 3, Processed: 3, Notified: 1, DryRun: 1, Unchanged: 1, ChangedFiles: 3}, r.Summary)
	require.Len(t, r.Directories, 3)

	reports := r.Directories[0]
	require.Len(t, reports.Changed, 2)
	assert.Equal(t, "q1.pdf", reports.Changed[0].Name, "changed files are sorted by name")
	assert.Equal(t, "/srv/share/reports/q1.pdf", reports.Changed[0].Path)
	assert.True(t, modified.Equal(reports.Changed[0].Modified))
	assert.Equal(t, 2*time.Hour, reports.Changed[0].Age)
	assert.Empty(t, r.Error)

	failed := FromReport(sampleReport(), errors.New("smtp down"), testNow)
	assert.Equal(t, "smtp down", failed.Error)
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"json", "plain", "pretty", "yaml"}, Available())

	_, err := Get("xml")
	assert.Error(t, err)

	reg := NewRegistry()
	reg.Register("plain", func() Formatter { return &PlainFormatter{} })
	f, err := reg.Get("plain")
	require.NoError(t, err)
	assert.IsType(t, &PlainFormatter{}, f)
}

func format(t *testing.T, name string, r *Result) string {
	t.Helper()
	f, err := Get(name)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, r))
	return buf.String()
}

func TestPlainFormatter(t *testing.T) {
	out := format(t, "plain", FromReport(sampleReport(), nil, testNow))

	assert.Contains(t, out, "STATE")
	assert.Contains(t, out, "/srv/share/reports/q1.pdf")
	assert.Contains(t, out, "/srv/share/drafts/memo.txt")
	assert.Contains(t, out, "dry-run")
	assert.Contains(t, out, "3 watched, 1 notified, 1 dry-run, 1 unchanged, 3 changed files")
	assert.Contains(t, out, "warning: /srv/share/locked: permission denied")
	assert.NotContains(t, out, "archive", "unchanged directories list no files")
}

func TestPlainFormatter_Failure(t *testing.T) {
	report := sampleReport()
	report.Failed = "/srv/share/zeta"
	out := format(t, "plain", FromReport(report, errors.New("notify failed"), testNow))

	assert.Contains(t, out, "failed: /srv/share/zeta: notify failed")
}

func TestJSONFormatter(t *testing.T) {
	out := format(t, "json", FromReport(sampleReport(), nil, testNow))

	var doc struct {
		Root        string `json:"root"`
		Duration    string `json:"duration"`
		Summary     Summary
		Directories []struct {
			Dir     string `json:"dir"`
			State   string `json:"state"`
			Changed []struct {
				Name string `json:"name"`
				Age  string `json:"age"`
			} `json:"changed"`
		} `json:"directories"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))

	assert.Equal(t, "/srv/share", doc.Root)
	assert.Equal(t, "3s", doc.Duration)
	assert.Equal(t, 3, doc.Summary.ChangedFiles)
	require.Len(t, doc.Directories, 3)
	assert.Equal(t, "notified", doc.Directories[0].State)
	require.Len(t, doc.Directories[0].Changed, 2)
	assert.Equal(t, "2 hours ago", doc.Directories[0].Changed[0].Age)
	assert.Empty(t, doc.Directories[1].Changed)
}

func TestYAMLFormatter(t *testing.T) {
	out := format(t, "yaml", FromReport(sampleReport(), nil, testNow))

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))

	assert.Equal(t, "/srv/share", doc["root"])
	dirs, ok := doc["directories"].([]interface{})
	require.True(t, ok)
	assert.Len(t, dirs, 3)
	assert.Contains(t, out, "state: dry-run")
	assert.Contains(t, out, "- gone.txt")
}

func TestPrettyFormatter(t *testing.T) {
	out := format(t, "pretty", FromReport(sampleReport(), nil, testNow))

	assert.Contains(t, out, "/srv/share")
	assert.Contains(t, out, "q1.pdf")
	assert.Contains(t, out, "memo.txt")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "permission denied")
}

func TestPrettyFormatter_NothingChanged(t *testing.T) {
	report := &walker.Report{
		Root:     "/srv/share",
		Started:  testNow,
		Finished: testNow,
		Watched:  1,
		Results:  []processor.Result{{Dir: "/srv/share", State: processor.StateNoOp}},
	}
	out := format(t, "pretty", FromReport(report, nil, testNow))

	assert.Contains(t, out, "No new or changed files")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
}
