// Package output renders run reports for the terminal and for scripts
// (pretty, plain, json, yaml).
//
// Formatters are registered by name and selected at runtime:
//
//	formatter, err := output.Get("plain")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, output.FromReport(report, runErr, time.Now())); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/filenotify/pkg/filenotify/processor"
	"github.com/jamesainslie/filenotify/pkg/filenotify/walker"
)

// ChangedFile is one new or changed file.
type ChangedFile struct {
	Name     string        `json:"name" yaml:"name"`
	Path     string        `json:"path" yaml:"path"`
	Modified time.Time     `json:"modified" yaml:"modified"`
	Age      time.Duration `json:"-" yaml:"-"`
}

// Directory is the outcome of one watched directory.
type Directory struct {
	Dir      string          `json:"dir" yaml:"dir"`
	State    processor.State `json:"state" yaml:"state"`
	Entries  int             `json:"entries" yaml:"entries"`
	Changed  []ChangedFile   `json:"changed,omitempty" yaml:"changed,omitempty"`
	Skipped  []string        `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Duration time.Duration   `json:"-" yaml:"-"`
}

// Summary counts directory outcomes.
type Summary struct {
	Watched      int `json:"watched" yaml:"watched"`
	Processed    int `json:"processed" yaml:"processed"`
	Notified     int `json:"notified" yaml:"notified"`
	DryRun       int `json:"dry_run" yaml:"dry_run"`
	Unchanged    int `json:"unchanged" yaml:"unchanged"`
	ChangedFiles int `json:"changed_files" yaml:"changed_files"`
}

// Result is the formatter input: one run, flattened for display.
type Result struct {
	Root        string             `json:"root" yaml:"root"`
	Started     time.Time          `json:"started" yaml:"started"`
	Duration    time.Duration      `json:"-" yaml:"-"`
	Summary     Summary            `json:"summary" yaml:"summary"`
	Directories []Directory        `json:"directories" yaml:"directories"`
	Errors      []walker.WalkError `json:"errors,omitempty" yaml:"errors,omitempty"`
	Interrupted bool               `json:"interrupted" yaml:"interrupted"`
	Failed      string             `json:"failed,omitempty" yaml:"failed,omitempty"`
	Error       string             `json:"error,omitempty" yaml:"error,omitempty"`
}

// FromReport builds a Result from a walker report. Ages are relative to now.
func FromReport(report *walker.Report, runErr error, now time.Time) *Result {
	r := &Result{
		Root:        report.Root,
		Started:     report.Started,
		Duration:    report.Finished.Sub(report.Started),
		Errors:      report.Errors,
		Interrupted: report.Interrupted,
		Failed:      report.Failed,
		Summary: Summary{
			Watched:      report.Watched,
			Processed:    len(report.Results),
			Notified:     report.Count(processor.StateNotified),
			DryRun:       report.Count(processor.StateDryRun),
			Unchanged:    report.Count(processor.StateNoOp),
			ChangedFiles: report.ChangedFiles(),
		},
		Directories: make([]Directory, 0, len(report.Results)),
	}
	if r.Duration < 0 {
		r.Duration = 0
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}

	for _, res := range report.Results {
		d := Directory{
			Dir:      res.Dir,
			State:    res.State,
			Entries:  res.Entries,
			Skipped:  res.Skipped,
			Duration: res.Duration,
		}
		for _, name := range res.Changed.Names() {
			mod := res.Changed[name].Time()
			d.Changed = append(d.Changed, ChangedFile{
				Name:     name,
				Path:     filepath.Join(res.Dir, name),
				Modified: mod,
				Age:      now.Sub(mod),
			})
		}
		r.Directories = append(r.Directories, d)
	}
	return r
}

// Formatter renders a Result.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory, replacing any with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
