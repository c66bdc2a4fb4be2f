package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/filenotify/pkg/filenotify/manifest"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect per-directory records",
	Long: `Inspect the record file that filenotify keeps in every watched directory.

The record lists each file's modification time as of the last notification.`,
}

var manifestShowCmd = &cobra.Command{
	Use:   "show <dir>",
	Short: "Print a directory's record",
	Args:  cobra.ExactArgs(1),
	RunE:  runManifestShow,
}

func init() {
	manifestCmd.AddCommand(manifestShowCmd)
	rootCmd.AddCommand(manifestCmd)
}

// runManifestShow decodes and prints the record of one directory.
func runManifestShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	codec, err := manifest.NewCodec(cfg.ManifestName)
	if err != nil {
		return err
	}
	m, err := codec.Read(args[0])
	if err != nil {
		return err
	}

	if len(m) == 0 {
		printInfo("No %s in %s", codec.Name(), args[0])
		return nil
	}
	return printManifest(cmd.OutOrStdout(), m, time.Now())
}

// printManifest writes one line per entry, sorted by name.
func printManifest(w io.Writer, m manifest.Manifest, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODIFIED\tAGE")
	for _, name := range m.Names() {
		mod := m[name].Time()
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, mod.Format("2006-01-02 15:04:05"), humanize.RelTime(mod, now, "ago", "from now"))
	}
	return tw.Flush()
}
