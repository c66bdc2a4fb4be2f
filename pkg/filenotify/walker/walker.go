// Package walker finds the watched directories under a root and runs a
// directory pass over each of them, one at a time.
//
// A directory is watched when it holds a recipient list. Dot directories and
// dot files are never considered, and neither is anything matching an
// exclude pattern.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/gobwas/glob"

	"github.com/jamesainslie/filenotify/pkg/filenotify/logging"
	"github.com/jamesainslie/filenotify/pkg/filenotify/processor"
)

// DirProcessor runs one pass over a directory.
type DirProcessor interface {
	Process(ctx context.Context, dir string, names []string) (processor.Result, error)
}

// Options configures a Walker.
type Options struct {
	// Root is the top of the tree to scan.
	Root string

	// RecipientsName marks a directory as watched.
	RecipientsName string

	// Exclude holds glob patterns matched against base names and against
	// slash-separated paths relative to Root.
	Exclude []string

	Processor DirProcessor
}

// WalkError records a path that could not be inspected.
type WalkError struct {
	Path  string `json:"path" yaml:"path"`
	Error string `json:"error" yaml:"error"`
}

// Report summarizes one run over the tree.
type Report struct {
	Root        string             `json:"root" yaml:"root"`
	Started     time.Time          `json:"started" yaml:"started"`
	Finished    time.Time          `json:"finished" yaml:"finished"`
	Watched     int                `json:"watched" yaml:"watched"`
	Results     []processor.Result `json:"results" yaml:"results"`
	Errors      []WalkError        `json:"errors,omitempty" yaml:"errors,omitempty"`
	Interrupted bool               `json:"interrupted" yaml:"interrupted"`

	// Failed is the directory whose pass aborted the run, if any.
	Failed string `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Count returns how many directory passes ended in state.
func (r *Report) Count(state processor.State) int {
	n := 0
	for _, res := range r.Results {
		if res.State == state {
			n++
		}
	}
	return n
}

// ChangedFiles returns the total number of changed files across directories.
func (r *Report) ChangedFiles() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Changed)
	}
	return n
}

// Walker discovers watched directories and processes them sequentially.
type Walker struct {
	root           string
	recipientsName string
	exclude        []glob.Glob
	proc           DirProcessor
	log            *logging.Logger
}

// New creates a Walker. Exclude patterns are compiled up front.
func New(opts Options) (*Walker, error) {
	if opts.RecipientsName == "" {
		return nil, errors.New("walker: recipient list name is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("walker: processor is required")
	}

	root := opts.Root
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	patterns := make([]glob.Glob, 0, len(opts.Exclude))
	for _, p := range opts.Exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		patterns = append(patterns, g)
	}

	return &Walker{
		root:           abs,
		recipientsName: opts.RecipientsName,
		exclude:        patterns,
		proc:           opts.Processor,
		log:            logging.Get("walker"),
	}, nil
}

// Root returns the absolute root of the walk.
func (w *Walker) Root() string {
	return w.root
}

// Run scans the tree once. A failing directory pass stops the run; its error
// is returned together with the report of what was done so far. Cancellation
// is checked between directories, never inside a pass.
func (w *Walker) Run(ctx context.Context) (*Report, error) {
	report := &Report{Root: w.root, Started: time.Now()}
	defer func() { report.Finished = time.Now() }()

	info, err := os.Stat(w.root)
	if err != nil {
		return report, fmt.Errorf("cannot access root: %w", err)
	}
	if !info.IsDir() {
		return report, fmt.Errorf("root is not a directory: %s", w.root)
	}

	dirs, walkErrs, err := w.discover(ctx)
	report.Errors = append(report.Errors, walkErrs...)
	if err != nil {
		report.Interrupted = ctx.Err() != nil
		return report, err
	}
	report.Watched = len(dirs)
	w.log.Info("scan started", "root", w.root, "watched", len(dirs))

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			report.Interrupted = true
			return report, err
		}

		names, err := w.candidates(dir)
		if err != nil {
			w.log.Warn("cannot read directory", "dir", dir, "error", err)
			report.Errors = append(report.Errors, WalkError{Path: dir, Error: err.Error()})
			continue
		}

		res, err := w.proc.Process(ctx, dir, names)
		if err != nil {
			report.Failed = dir
			w.log.Error("directory pass failed", "dir", dir, "error", err)
			return report, err
		}
		report.Results = append(report.Results, res)
	}

	w.log.Info("scan finished", "root", w.root,
		"notified", report.Count(processor.StateNotified),
		"dry_run", report.Count(processor.StateDryRun),
		"unchanged", report.Count(processor.StateNoOp))
	return report, nil
}

// discover returns the sorted list of watched directories under the root.
func (w *Walker) discover(ctx context.Context) ([]string, []WalkError, error) {
	var (
		mu   sync.Mutex
		dirs []string
		errs []WalkError
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, w.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			w.log.Warn("walk error", "path", path, "error", err)
			mu.Lock()
			errs = append(errs, WalkError{Path: path, Error: err.Error()})
			mu.Unlock()
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		if path != w.root && (isHidden(d.Name()) || w.excluded(path)) {
			w.log.Debug("ignoring directory", "dir", path)
			return fastwalk.SkipDir
		}

		if w.watched(path) {
			mu.Lock()
			dirs = append(dirs, path)
			mu.Unlock()
		} else {
			w.log.Debug("no recipient list, ignoring directory", "dir", path)
		}
		return nil
	})
	if err != nil {
		return nil, errs, fmt.Errorf("walking %s: %w", w.root, err)
	}

	sort.Strings(dirs)
	sort.Slice(errs, func(i, j int) bool { return errs[i].Path < errs[j].Path })
	return dirs, errs, nil
}

// watched reports whether dir holds a regular recipient list file.
func (w *Walker) watched(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, w.recipientsName))
	return err == nil && info.Mode().IsRegular()
}

// candidates lists the file names of dir that are eligible for its manifest.
func (w *Walker) candidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if isHidden(name) || w.excluded(filepath.Join(dir, name)) {
			continue
		}
		if !isFile(dir, e) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// excluded reports whether path matches an exclude pattern, by base name or
// by its slash-separated path relative to the root.
func (w *Walker) excluded(path string) bool {
	if len(w.exclude) == 0 {
		return false
	}
	base := filepath.Base(path)
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	for _, g := range w.exclude {
		if g.Match(base) || g.Match(rel) {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// isFile reports whether e is a regular file or a symlink to one.
func isFile(dir string, e fs.DirEntry) bool {
	if e.Type().IsRegular() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.Mode().IsRegular()
}
