package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/filenotify/pkg/filenotify/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View run history",
	Long: `View the history of filenotify runs.

Every run records which directories it processed, which files it reported
and whether it finished cleanly.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a specific run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove runs older than the retention period",
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of runs to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// openHistory opens the configured history database.
func openHistory() (*history.Store, int, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, 0, err
	}
	s, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open history: %w", err)
	}
	return s, cfg.History.RetentionDays, nil
}

// runHistory lists recent runs.
func runHistory(cmd *cobra.Command, args []string) error {
	s, _, err := openHistory()
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(runs) == 0 {
		printInfo("No runs recorded yet.")
		printInfo("Run 'filenotify [path]' to scan a tree.")
		return nil
	}

	if err := printRuns(cmd.OutOrStdout(), runs, time.Now()); err != nil {
		return err
	}
	printInfo("\nUse 'filenotify history show <id>' for details on a specific run.")
	return nil
}

// printRuns writes the run table.
func printRuns(w io.Writer, runs []*history.Run, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tROOT\tDIRS\tNOTIFIED\tFILES\tSTATUS")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.ID,
			humanize.RelTime(run.Started, now, "ago", "from now"),
			run.Root,
			len(run.Dirs),
			run.Notified(),
			run.ChangedFiles(),
			runStatus(run),
		)
	}
	return tw.Flush()
}

func runStatus(run *history.Run) string {
	switch {
	case run.Error != "" && !run.Interrupted:
		return "failed"
	case run.Interrupted:
		return "interrupted"
	case run.DryRun:
		return "dry-run"
	default:
		return "ok"
	}
}

// runHistoryShow displays details of a specific run.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	s, _, err := openHistory()
	if err != nil {
		return err
	}
	defer s.Close()

	run, err := s.Get(args[0])
	if err != nil {
		return err
	}
	printRun(cmd.OutOrStdout(), run)
	return nil
}

// printRun writes the details of one run.
func printRun(w io.Writer, run *history.Run) {
	fmt.Fprintln(w, "Run Details")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "ID:        %s\n", run.ID)
	fmt.Fprintf(w, "Started:   %s\n", run.Started.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Took:      %s\n", run.Finished.Sub(run.Started).Round(time.Millisecond))
	fmt.Fprintf(w, "Root:      %s\n", run.Root)
	fmt.Fprintf(w, "Status:    %s\n", runStatus(run))
	fmt.Fprintf(w, "Watched:   %d directories\n", run.Watched)
	if run.WalkErrors > 0 {
		fmt.Fprintf(w, "Warnings:  %d unreadable paths\n", run.WalkErrors)
	}
	if run.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", run.Error)
	}

	for _, d := range run.Dirs {
		if len(d.Changed) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s [%s]\n", d.Dir, d.State)
		for _, name := range d.Changed {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
}

// runHistoryClean removes runs past the retention period.
func runHistoryClean(cmd *cobra.Command, args []string) error {
	s, retention, err := openHistory()
	if err != nil {
		return err
	}
	defer s.Close()

	removed, err := s.Cleanup(retention)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	printInfo("Removed %d runs older than %d days.", removed, retention)
	return nil
}
