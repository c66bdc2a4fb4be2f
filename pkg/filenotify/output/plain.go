package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// PlainFormatter prints one line per changed file, tab aligned, followed by
// a one-line summary. No colors or styling are applied.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := fmt.Fprintln(tw, "STATE\tMODIFIED\tPATH"); err != nil {
		return err
	}
	for _, d := range r.Directories {
		for _, c := range d.Changed {
			if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", d.State, c.Modified.Format("2006-01-02 15:04:05"), c.Path); err != nil {
				return err
			}
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "%d watched, %d notified, %d dry-run, %d unchanged, %d changed files in %s\n",
		r.Summary.Watched, r.Summary.Notified, r.Summary.DryRun, r.Summary.Unchanged,
		r.Summary.ChangedFiles, formatDuration(r.Duration))
	for _, e := range r.Errors {
		fmt.Fprintf(w, "warning: %s: %s\n", e.Path, e.Error)
	}
	if r.Interrupted {
		fmt.Fprintln(w, "interrupted")
	}
	if r.Failed != "" {
		fmt.Fprintf(w, "failed: %s: %s\n", r.Failed, r.Error)
	}
	return nil
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
