package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Codec reads and writes the manifest record kept inside each watched directory.
type Codec struct {
	name string
}

// NewCodec creates a Codec for records stored under the given file name.
func NewCodec(name string) (*Codec, error) {
	if name == "" {
		return nil, errors.New("manifest file name cannot be empty")
	}
	if strings.ContainsRune(name, filepath.Separator) {
		return nil, fmt.Errorf("manifest file name %q must be a base name", name)
	}
	return &Codec{name: name}, nil
}

// Name returns the record's file name.
func (c *Codec) Name() string {
	return c.name
}

// Path returns the location of the record for dir.
func (c *Codec) Path(dir string) string {
	return filepath.Join(dir, c.name)
}

// Read loads the manifest of dir. A missing record reads as an empty manifest.
func (c *Codec) Read(dir string) (Manifest, error) {
	path := c.Path(dir)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, nil
		}
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Decode parses a manifest record. Blank lines are skipped; any other line
// must be name, separator, stamp.
func Decode(r io.Reader) (Manifest, error) {
	m := Manifest{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSuffix(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		name, raw, ok := strings.Cut(line, Separator)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: line %d: missing separator", ErrMalformedManifest, lineNo)
		}
		stamp, err := ParseStamp(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad stamp %q", ErrMalformedManifest, lineNo, raw)
		}
		m[name] = stamp
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	return m, nil
}

// Encode writes m as a record, one line per entry sorted by name.
func Encode(w io.Writer, m Manifest) error {
	bw := bufio.NewWriter(w)
	for _, name := range m.Names() {
		if _, err := fmt.Fprintf(bw, "%s%s%s\n", name, Separator, m[name]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Write replaces the record of dir with m. An empty manifest is not written
// and any existing record is left untouched.
func (c *Codec) Write(dir string, m Manifest) error {
	if len(m) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	return writeAtomic(c.Path(dir), buf.Bytes())
}

// writeAtomic writes data to a temp file next to path and renames it into
// place, so readers see either the old record or the new one.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
