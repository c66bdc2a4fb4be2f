// Package processor runs one change-detection pass over a single directory:
// load the previous manifest, snapshot the directory, diff the two, and when
// something changed, notify the recipients and persist the new manifest.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesainslie/filenotify/pkg/filenotify/logging"
	"github.com/jamesainslie/filenotify/pkg/filenotify/manifest"
)

// State is the terminal state of a directory pass.
type State string

const (
	// StateNoOp means nothing changed; nothing was sent or written.
	StateNoOp State = "no-op"
	// StateNotified means recipients were notified and the manifest persisted.
	StateNotified State = "notified"
	// StateDryRun means changes were found but neither sent nor persisted.
	StateDryRun State = "dry-run"
)

var (
	// ErrNotify wraps a failure to deliver a notification. The manifest is not
	// written, so the same changes are reported again on the next run.
	ErrNotify = errors.New("notification failed")

	// ErrPersist wraps a failure to write the new manifest after a successful
	// notification.
	ErrPersist = errors.New("persisting manifest failed")
)

// Store loads and saves per-directory manifests.
type Store interface {
	Read(dir string) (manifest.Manifest, error)
	Write(dir string, m manifest.Manifest) error
}

// Notifier delivers the changed entries of a directory to its recipients.
type Notifier interface {
	Notify(ctx context.Context, dir string, changed manifest.Manifest) error
}

// Result describes the outcome of one directory pass.
type Result struct {
	Dir      string            `json:"dir" yaml:"dir"`
	State    State             `json:"state" yaml:"state"`
	Changed  manifest.Manifest `json:"changed,omitempty" yaml:"changed,omitempty"`
	Entries  int               `json:"entries" yaml:"entries"`
	Skipped  []string          `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Duration time.Duration     `json:"duration" yaml:"duration"`
}

// Options configures a Processor.
type Options struct {
	Store    Store
	Builder  *manifest.Builder
	Notifier Notifier

	// DryRun reports changes without notifying or persisting.
	DryRun bool
}

// Processor runs directory passes. It keeps no state between calls; the only
// memory across runs is the persisted manifest.
type Processor struct {
	store    Store
	builder  *manifest.Builder
	notifier Notifier
	dryRun   bool
	log      *logging.Logger
}

// New creates a Processor from opts.
func New(opts Options) (*Processor, error) {
	if opts.Store == nil {
		return nil, errors.New("processor: store is required")
	}
	if opts.Builder == nil {
		return nil, errors.New("processor: builder is required")
	}
	if opts.Notifier == nil && !opts.DryRun {
		return nil, errors.New("processor: notifier is required unless dry-run is set")
	}

	return &Processor{
		store:    opts.Store,
		builder:  opts.Builder,
		notifier: opts.Notifier,
		dryRun:   opts.DryRun,
		log:      logging.Get("processor"),
	}, nil
}

// Process runs one pass over dir using names as the candidate file names.
func (p *Processor) Process(ctx context.Context, dir string, names []string) (Result, error) {
	start := time.Now()
	result := Result{Dir: dir}
	log := p.log.With("dir", dir)

	prev, err := p.store.Read(dir)
	if err != nil {
		return result, fmt.Errorf("reading manifest of %s: %w", dir, err)
	}
	if len(prev) == 0 {
		log.Info("no previous manifest, treating every file as new")
	}

	next, accessErrs := p.builder.Build(dir, names)
	for _, e := range accessErrs {
		var fae *manifest.FileAccessError
		if errors.As(e, &fae) {
			result.Skipped = append(result.Skipped, fae.Name)
		}
		log.Warn("skipping file", "error", e)
	}
	result.Entries = len(next)

	delta := manifest.Diff(prev, next)
	result.Changed = delta

	switch {
	case len(delta) == 0:
		result.State = StateNoOp
		log.Debug("no changes", "entries", len(next))

	case p.dryRun:
		result.State = StateDryRun
		log.Info("changes found (dry run)", "changed", len(delta))

	default:
		if err := p.commit(ctx, dir, delta, next); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		result.State = StateNotified
		log.Info("notified", "changed", len(delta))
	}

	result.Duration = time.Since(start)
	return result, nil
}

// commit notifies about delta and then persists next. Persisting comes only
// after a confirmed notification; a failed notification writes nothing.
func (p *Processor) commit(ctx context.Context, dir string, delta, next manifest.Manifest) error {
	if err := p.notifier.Notify(ctx, dir, delta); err != nil {
		return fmt.Errorf("%w for %s: %w", ErrNotify, dir, err)
	}
	if err := p.store.Write(dir, next); err != nil {
		return fmt.Errorf("%w for %s: %w", ErrPersist, dir, err)
	}
	return nil
}
