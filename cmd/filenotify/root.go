package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/filenotify/pkg/filenotify/config"
	"github.com/jamesainslie/filenotify/pkg/filenotify/logging"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "filenotify [path]",
		Short: "Email people about new and changed files in shared directories",
		Long: `filenotify scans a directory tree for directories that carry a recipient
list (mailaddresses.txt by default). For each of them it compares the files'
modification times with the .MANIFEST record left by the previous run and
emails the listed addresses about every new or changed file.

Deleted files are never reported. A directory's record is only updated after
its notification was sent, so a failed delivery is retried on the next run.

Examples:
  filenotify /srv/share              # Scan once and send notifications
  filenotify -d /srv/share           # Show what would be sent, change nothing
  filenotify --interval 15m          # Scan the configured root every 15 minutes
  filenotify manifest show ./docs    # Print a directory's record
  filenotify history                 # List recent runs`,
		Args:              cobra.MaximumNArgs(1),
		SilenceUsage:      true,
		PersistentPreRunE: setupConfig,
		RunE:              runNotify,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/filenotify/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().String("manifest-name", "", "per-directory record file name (default .MANIFEST)")
	rootCmd.PersistentFlags().String("recipients-name", "", "per-directory recipient list file name (default mailaddresses.txt)")

	rootCmd.Flags().BoolP("dry-run", "d", false, "report changes without sending mail or updating records")
	rootCmd.Flags().StringSliceP("exclude", "e", nil, "exclude patterns (can be specified multiple times)")
	rootCmd.Flags().Duration("interval", 0, "repeat the scan at this interval until interrupted")
	rootCmd.Flags().StringP("output", "o", "", "report format: plain, json, yaml, pretty")
	rootCmd.Flags().Bool("no-history", false, "do not record this run in the history database")

	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("manifest_name", rootCmd.PersistentFlags().Lookup("manifest-name"))
	_ = viper.BindPFlag("recipients_name", rootCmd.PersistentFlags().Lookup("recipients-name"))
	_ = viper.BindPFlag("dry_run", rootCmd.Flags().Lookup("dry-run"))
	_ = viper.BindPFlag("exclude", rootCmd.Flags().Lookup("exclude"))
	_ = viper.BindPFlag("interval", rootCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("no_history", rootCmd.Flags().Lookup("no-history"))
}

// setupConfig reads the config file and environment into the global viper.
func setupConfig(cmd *cobra.Command, args []string) error {
	return config.Configure(viper.GetViper(), cfgFile)
}

// Execute runs the root command.
func Execute() error {
	defer func() { _ = logging.Close() }()
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}
