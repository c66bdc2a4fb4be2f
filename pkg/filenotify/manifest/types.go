// Package manifest records which files a watched directory contains and when
// each was last modified, and computes what changed between two scans.
package manifest

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Separator splits a file name from its stamp in a persisted record line.
const Separator = "\t"

// Stamp is the change token of a file: its modification time in Unix
// nanoseconds. Two entries are unchanged exactly when their stamps are equal.
type Stamp int64

// StampOf returns the stamp for a modification time.
func StampOf(t time.Time) Stamp {
	return Stamp(t.UnixNano())
}

// Time converts the stamp back to a time in the local zone.
func (s Stamp) Time() time.Time {
	return time.Unix(0, int64(s))
}

// String formats the stamp as a decimal integer.
func (s Stamp) String() string {
	return strconv.FormatInt(int64(s), 10)
}

// ParseStamp parses a stamp written by String.
func ParseStamp(s string) (Stamp, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Stamp(n), nil
}

// Manifest maps the base names of the files in one directory to their stamps.
// An empty manifest is never persisted.
type Manifest map[string]Stamp

// Names returns the manifest's keys in sorted order.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether two manifests hold the same entries.
func (m Manifest) Equal(other Manifest) bool {
	if len(m) != len(other) {
		return false
	}
	for name, stamp := range m {
		if s, ok := other[name]; !ok || s != stamp {
			return false
		}
	}
	return true
}

var (
	// ErrMalformedManifest is returned when a persisted record contains a line
	// that cannot be decoded. The whole read is rejected.
	ErrMalformedManifest = errors.New("malformed manifest")

	// ErrUnencodableName is returned for file names that cannot be stored in a
	// record line (they contain the separator or a line break).
	ErrUnencodableName = errors.New("file name cannot be recorded")
)

// FileAccessError reports a candidate file whose metadata could not be read
// while building a manifest. The file is left out of the built manifest.
type FileAccessError struct {
	Name string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("file %q: %v", e.Name, e.Err)
}

func (e *FileAccessError) Unwrap() error {
	return e.Err
}
