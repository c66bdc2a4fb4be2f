package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/filenotify/pkg/filenotify/config"
	"github.com/jamesainslie/filenotify/pkg/filenotify/history"
	"github.com/jamesainslie/filenotify/pkg/filenotify/logging"
	"github.com/jamesainslie/filenotify/pkg/filenotify/manifest"
	"github.com/jamesainslie/filenotify/pkg/filenotify/metrics"
	"github.com/jamesainslie/filenotify/pkg/filenotify/notify"
	"github.com/jamesainslie/filenotify/pkg/filenotify/output"
	"github.com/jamesainslie/filenotify/pkg/filenotify/processor"
	"github.com/jamesainslie/filenotify/pkg/filenotify/runlock"
	"github.com/jamesainslie/filenotify/pkg/filenotify/walker"
)

// runNotify scans the tree once, or repeatedly with --interval.
func runNotify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	root := cfg.Root
	if len(args) == 1 {
		root = args[0]
	}

	formatter, err := output.Get(cfg.Output)
	if err != nil {
		return fmt.Errorf("unknown output format %q: available formats are %v", cfg.Output, output.Available())
	}

	notifier, err := newNotifier(cfg)
	if err != nil {
		return err
	}
	w, err := buildWalker(cfg, root, notifier)
	if err != nil {
		return err
	}

	lock, err := runlock.Acquire(config.DefaultLockPath())
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	r := &runner{
		walker:    w,
		dryRun:    cfg.DryRun,
		formatter: formatter,
		out:       cmd.OutOrStdout(),
		quiet:     getQuiet(),
		metrics:   metrics.New(),
		textfile:  cfg.Metrics.Textfile,
		log:       logging.Get("run"),
	}

	if cfg.History.Enabled && !viper.GetBool("no_history") {
		hist, err := history.Open(cfg.HistoryPath())
		if err != nil {
			r.log.Warn("run history unavailable", "path", cfg.HistoryPath(), "error", err)
		} else {
			defer func() { _ = hist.Close() }()
			if n, err := hist.Cleanup(cfg.History.RetentionDays); err != nil {
				r.log.Warn("pruning run history failed", "error", err)
			} else if n > 0 {
				r.log.Info("pruned run history", "removed", n)
			}
			r.history = hist
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DryRun {
		printVerbose("Dry run: no mail is sent and no records are written")
	}
	if cfg.Interval > 0 {
		printVerbose("Scanning %s every %s", w.Root(), cfg.Interval)
		return r.loop(ctx, cfg.Interval)
	}
	return r.once(ctx)
}

// newNotifier returns the mail notifier, or nil in dry-run mode where
// nothing is ever sent.
func newNotifier(cfg *config.Config) (processor.Notifier, error) {
	if cfg.DryRun {
		return nil, nil
	}
	m, err := notify.NewMailer(cfg.MailerOptions())
	if err != nil {
		return nil, fmt.Errorf("configuring mail: %w", err)
	}
	return m, nil
}

// buildWalker wires the manifest store, builder and processor under a walker.
func buildWalker(cfg *config.Config, root string, notifier processor.Notifier) (*walker.Walker, error) {
	codec, err := manifest.NewCodec(cfg.ManifestName)
	if err != nil {
		return nil, err
	}
	proc, err := processor.New(processor.Options{
		Store:    codec,
		Builder:  manifest.NewBuilder(cfg.ManifestName, cfg.RecipientsName),
		Notifier: notifier,
		DryRun:   cfg.DryRun,
	})
	if err != nil {
		return nil, err
	}
	return walker.New(walker.Options{
		Root:           root,
		RecipientsName: cfg.RecipientsName,
		Exclude:        cfg.Exclude,
		Processor:      proc,
	})
}

// runner executes runs and publishes their outcome.
type runner struct {
	walker    *walker.Walker
	dryRun    bool
	formatter output.Formatter
	out       io.Writer
	quiet     bool
	history   *history.Store
	metrics   *metrics.Recorder
	textfile  string
	log       *logging.Logger
}

// once performs a single run. Interruption is not an error.
func (r *runner) once(ctx context.Context) error {
	report, runErr := r.walker.Run(ctx)
	r.record(report, runErr)

	if interrupted(ctx, runErr) {
		if !r.quiet {
			fmt.Fprintln(r.out, "Interrupted, stopping")
		}
		return nil
	}

	if !r.quiet {
		var buf bytes.Buffer
		if err := r.formatter.Format(&buf, output.FromReport(report, runErr, time.Now())); err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Fprint(r.out, buf.String())
	}
	return runErr
}

// interrupted reports whether runErr is only the end of ctx, by signal or
// deadline.
func interrupted(ctx context.Context, runErr error) bool {
	ctxErr := ctx.Err()
	return ctxErr != nil && errors.Is(runErr, ctxErr)
}

// loop runs every interval until ctx is done or a run fails.
func (r *runner) loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := r.once(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// record stores the run in history and metrics. Failures are logged only.
func (r *runner) record(report *walker.Report, runErr error) {
	if r.history != nil {
		run := history.NewRun(report, r.dryRun, runErr)
		if err := r.history.Record(&run); err != nil {
			r.log.Warn("recording run failed", "error", err)
		} else {
			r.log.Debug("run recorded", "id", run.ID)
		}
	}

	if r.metrics != nil {
		r.metrics.Observe(report, runErr)
		if r.textfile != "" {
			if err := r.metrics.WriteTextfile(r.textfile); err != nil {
				r.log.Warn("writing metrics failed", "path", r.textfile, "error", err)
			}
		}
	}
}
