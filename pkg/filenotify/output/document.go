package output

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/filenotify/pkg/filenotify/processor"
	"github.com/jamesainslie/filenotify/pkg/filenotify/walker"
)

// document is the structured form shared by the json and yaml formatters.
type document struct {
	Root        string             `json:"root" yaml:"root"`
	Started     time.Time          `json:"started" yaml:"started"`
	Duration    string             `json:"duration" yaml:"duration"`
	Summary     Summary            `json:"summary" yaml:"summary"`
	Directories []docDir           `json:"directories" yaml:"directories"`
	Errors      []walker.WalkError `json:"errors,omitempty" yaml:"errors,omitempty"`
	Interrupted bool               `json:"interrupted" yaml:"interrupted"`
	Failed      string             `json:"failed,omitempty" yaml:"failed,omitempty"`
	Error       string             `json:"error,omitempty" yaml:"error,omitempty"`
}

type docDir struct {
	Dir      string          `json:"dir" yaml:"dir"`
	State    processor.State `json:"state" yaml:"state"`
	Entries  int             `json:"entries" yaml:"entries"`
	Duration string          `json:"duration" yaml:"duration"`
	Changed  []docChange     `json:"changed,omitempty" yaml:"changed,omitempty"`
	Skipped  []string        `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

type docChange struct {
	Name     string    `json:"name" yaml:"name"`
	Path     string    `json:"path" yaml:"path"`
	Modified time.Time `json:"modified" yaml:"modified"`
	Age      string    `json:"age" yaml:"age"`
}

func newDocument(r *Result) document {
	doc := document{
		Root:        r.Root,
		Started:     r.Started,
		Duration:    r.Duration.String(),
		Summary:     r.Summary,
		Directories: make([]docDir, 0, len(r.Directories)),
		Errors:      r.Errors,
		Interrupted: r.Interrupted,
		Failed:      r.Failed,
		Error:       r.Error,
	}
	for _, d := range r.Directories {
		dd := docDir{
			Dir:      d.Dir,
			State:    d.State,
			Entries:  d.Entries,
			Duration: d.Duration.String(),
			Skipped:  d.Skipped,
		}
		for _, c := range d.Changed {
			dd.Changed = append(dd.Changed, docChange{
				Name:     c.Name,
				Path:     c.Path,
				Modified: c.Modified,
				Age:      humanize.RelTime(c.Modified, c.Modified.Add(c.Age), "ago", "from now"),
			})
		}
		doc.Directories = append(doc.Directories, dd)
	}
	return doc
}

// JSONFormatter formats output as a single indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(newDocument(r))
}

// YAMLFormatter formats output as YAML with the same structure as JSON.
type YAMLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *YAMLFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(newDocument(r)); err != nil {
		return err
	}
	return encoder.Close()
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
	Register("yaml", func() Formatter {
		return &YAMLFormatter{}
	})
}

// Ensure the structured formatters implement Formatter.
var (
	_ Formatter = (*JSONFormatter)(nil)
	_ Formatter = (*YAMLFormatter)(nil)
)
