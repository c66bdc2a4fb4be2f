package manifest

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Builder snapshots the current state of a directory as a Manifest.
type Builder struct {
	// exclude holds names that never enter a manifest: the record itself and
	// the recipient list.
	exclude map[string]struct{}
	stat    func(string) (fs.FileInfo, error)
}

// NewBuilder creates a Builder that leaves out the manifest record and the
// recipient list by exact name.
func NewBuilder(manifestName, recipientsName string) *Builder {
	return &Builder{
		exclude: map[string]struct{}{
			manifestName:   {},
			recipientsName: {},
		},
		stat: os.Stat,
	}
}

// Build stats every candidate name in dir and records its stamp. Names whose
// metadata cannot be read are left out and returned as *FileAccessError values;
// they never stop the build.
func (b *Builder) Build(dir string, names []string) (Manifest, []error) {
	m := make(Manifest, len(names))
	var errs []error

	for _, name := range names {
		if _, skip := b.exclude[name]; skip {
			continue
		}
		if strings.ContainsAny(name, Separator+"\r\n") {
			errs = append(errs, &FileAccessError{Name: name, Err: ErrUnencodableName})
			continue
		}

		info, err := b.stat(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, &FileAccessError{Name: name, Err: err})
			continue
		}
		m[name] = StampOf(info.ModTime())
	}

	return m, errs
}
