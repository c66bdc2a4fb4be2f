// Package history keeps an audit log of filenotify runs in a Badger database.
//
// The log records what each run did; it is not a copy of the per-directory
// manifests, which remain the only state that drives change detection.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/jamesainslie/filenotify/pkg/filenotify/processor"
	"github.com/jamesainslie/filenotify/pkg/filenotify/walker"
)

// Key prefixes
const (
	prefixRun   = "r:" // r:<started, 20 digit unix nanos>:<id> -> Run
	prefixIndex = "i:" // i:<id> -> run key
	schemaKey   = "m:__schema__"
)

// SchemaVersion is written on first open.
const SchemaVersion = 1

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// DirOutcome is what happened to one directory during a run.
type DirOutcome struct {
	Dir      string          `json:"dir"`
	State    processor.State `json:"state"`
	Changed  []string        `json:"changed,omitempty"`
	Entries  int             `json:"entries"`
	Skipped  int             `json:"skipped,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// Run is one recorded pass over a tree.
type Run struct {
	ID          string       `json:"id"`
	Root        string       `json:"root"`
	Started     time.Time    `json:"started"`
	Finished    time.Time    `json:"finished"`
	DryRun      bool         `json:"dry_run"`
	Watched     int          `json:"watched"`
	Dirs        []DirOutcome `json:"dirs,omitempty"`
	WalkErrors  int          `json:"walk_errors,omitempty"`
	Interrupted bool         `json:"interrupted,omitempty"`
	Failed      string       `json:"failed,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Notified returns the number of directories that sent a notification.
func (r *Run) Notified() int {
	n := 0
	for _, d := range r.Dirs {
		if d.State == processor.StateNotified {
			n++
		}
	}
	return n
}

// ChangedFiles returns the total number of changed files in the run.
func (r *Run) ChangedFiles() int {
	n := 0
	for _, d := range r.Dirs {
		n += len(d.Changed)
	}
	return n
}

// NewRun converts a walker report and the run's error into a Run with a fresh ID.
func NewRun(report *walker.Report, dryRun bool, runErr error) Run {
	run := Run{
		ID:          uuid.New().String(),
		Root:        report.Root,
		Started:     report.Started,
		Finished:    report.Finished,
		DryRun:      dryRun,
		Watched:     report.Watched,
		WalkErrors:  len(report.Errors),
		Interrupted: report.Interrupted,
		Failed:      report.Failed,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	for _, res := range report.Results {
		run.Dirs = append(run.Dirs, DirOutcome{
			Dir:      res.Dir,
			State:    res.State,
			Changed:  res.Changed.Names(),
			Entries:  res.Entries,
			Skipped:  len(res.Skipped),
			Duration: res.Duration,
		})
	}
	return run
}

// Store is the run history backed by Badger DB.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens or creates a store in the directory path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a run. A run without an ID is given one.
func (s *Store) Record(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Started.IsZero() {
		run.Started = s.now()
	}

	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	key := runKey(run)

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set([]byte(prefixIndex+run.ID), key)
	})
}

// Get retrieves a run by ID.
func (s *Store) Get(id string) (*Run, error) {
	var run Run

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixIndex + id))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &run)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return &run, nil
}

// List returns up to limit runs, newest first. A limit of zero returns all.
func (s *Store) List(limit int) ([]*Run, error) {
	var runs []*Run

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixRun)
		for it.Seek(append([]byte(prefixRun), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var run Run
				if err := json.Unmarshal(val, &run); err != nil {
					return err
				}
				runs = append(runs, &run)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	return runs, err
}

// Cleanup removes runs that started more than retentionDays ago and returns
// how many were removed. A non-positive retention keeps everything.
func (s *Store) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	limit := []byte(fmt.Sprintf("%s%020d", prefixRun, cutoff.UnixNano()))

	var removed int
	err := s.db.Update(func(txn *badger.Txn) error {
		keys, ids, err := expired(txn, limit)
		if err != nil {
			return err
		}
		for i, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete([]byte(prefixIndex + ids[i])); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})

	return removed, err
}

// expired collects the keys and IDs of runs whose key sorts before limit.
func expired(txn *badger.Txn, limit []byte) (keys [][]byte, ids []string, err error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := []byte(prefixRun)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		if bytes.Compare(item.Key(), limit) >= 0 {
			break
		}
		err := item.Value(func(val []byte) error {
			var run Run
			if err := json.Unmarshal(val, &run); err != nil {
				return err
			}
			ids = append(ids, run.ID)
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, item.KeyCopy(nil))
	}
	return keys, ids, nil
}

func runKey(run *Run) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixRun, run.Started.UnixNano(), run.ID))
}

type schema struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ensureSchema stamps a new database with the current schema version and
// refuses databases written by a newer version.
func (s *Store) ensureSchema() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			data, err := json.Marshal(schema{Version: SchemaVersion, UpdatedAt: s.now()})
			if err != nil {
				return err
			}
			return txn.Set([]byte(schemaKey), data)
		}
		if err != nil {
			return err
		}

		var sc schema
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sc)
		}); err != nil {
			return fmt.Errorf("reading history schema: %w", err)
		}
		if sc.Version > SchemaVersion {
			return fmt.Errorf("history database schema %d is newer than supported %d", sc.Version, SchemaVersion)
		}
		return nil
	})
}
