package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// PrettyFormatter formats output with colors and boxes for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatDirectories(r))
	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")

	if len(r.Errors) > 0 || r.Failed != "" {
		w.WriteString(f.formatProblems(r))
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	lines := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Root:"), ValueStyle.Render(r.Root)),
		fmt.Sprintf("%s %s  %s %s",
			LabelStyle.Render("Watched:"), ValueStyle.Render(fmt.Sprintf("%d directories", r.Summary.Watched)),
			LabelStyle.Render("Took:"), ValueStyle.Render(formatDuration(r.Duration))),
	}
	if r.Interrupted {
		lines = append(lines, WarningStyle.Bold(true).Render("Run interrupted"))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatDirectories(r *Result) string {
	var sb strings.Builder
	shown := 0
	for _, d := range r.Directories {
		if len(d.Changed) == 0 {
			continue
		}
		shown++
		sb.WriteString(fmt.Sprintf("%s %s\n",
			DirStyle.Render(d.Dir),
			stateStyle(string(d.State)).Render("["+string(d.State)+"]")))
		for _, c := range d.Changed {
			sb.WriteString(fmt.Sprintf("  %s  %s\n",
				ValueStyle.Render(c.Name),
				MutedStyle.Render(humanize.RelTime(c.Modified, c.Modified.Add(c.Age), "ago", "from now"))))
		}
	}
	if shown == 0 {
		return MutedStyle.Render("  No new or changed files") + "\n"
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Result) string {
	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Notified:"), SuccessStyle.Render(fmt.Sprintf("%d", r.Summary.Notified))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Dry-run:"), WarningStyle.Render(fmt.Sprintf("%d", r.Summary.DryRun))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Unchanged:"), ValueStyle.Render(fmt.Sprintf("%d", r.Summary.Unchanged))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Files:"), ValueStyle.Render(humanize.Comma(int64(r.Summary.ChangedFiles)))),
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) formatProblems(r *Result) string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
		sb.WriteString("\n")
		for _, e := range r.Errors {
			sb.WriteString(WarningStyle.Render(fmt.Sprintf("  %s: %s", e.Path, e.Error)))
			sb.WriteString("\n")
		}
	}
	if r.Failed != "" {
		sb.WriteString(ErrorStyle.Bold(true).Render("Failed: "))
		sb.WriteString(ErrorStyle.Render(fmt.Sprintf("%s: %s", r.Failed, r.Error)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
