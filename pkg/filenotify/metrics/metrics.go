// Package metrics exports run statistics in the Prometheus text format for
// node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jamesainslie/filenotify/pkg/filenotify/processor"
	"github.com/jamesainslie/filenotify/pkg/filenotify/walker"
)

// Recorder holds the metrics of one process on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	directoriesProcessed *prometheus.CounterVec
	changedFiles         prometheus.Counter
	skippedFiles         prometheus.Counter
	walkErrors           prometheus.Counter
	lastRunTimestamp     prometheus.Gauge
	lastRunSuccess       prometheus.Gauge
	lastRunDuration      prometheus.Gauge
	directoryDuration    prometheus.Histogram
}

// New creates a Recorder with all metrics registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Recorder{
		registry: reg,
		directoriesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filenotify_directories_processed_total",
				Help: "Directories processed, by outcome",
			},
			[]string{"state"},
		),
		changedFiles: factory.NewCounter(prometheus.CounterOpts{
			Name: "filenotify_changed_files_total",
			Help: "New or changed files detected",
		}),
		skippedFiles: factory.NewCounter(prometheus.CounterOpts{
			Name: "filenotify_skipped_files_total",
			Help: "Files that could not be inspected",
		}),
		walkErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "filenotify_walk_errors_total",
			Help: "Paths that could not be walked",
		}),
		lastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "filenotify_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
		lastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "filenotify_last_run_success",
			Help: "1 if the last run completed without a fatal error",
		}),
		lastRunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "filenotify_last_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		directoryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "filenotify_directory_duration_seconds",
			Help:    "Time spent processing one directory",
			Buckets: prometheus.DefBuckets,
		}),
	}
	for _, state := range States() {
		r.directoriesProcessed.WithLabelValues(state)
	}
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe folds one run into the metrics.
func (r *Recorder) Observe(report *walker.Report, runErr error) {
	for _, res := range report.Results {
		r.directoriesProcessed.WithLabelValues(string(res.State)).Inc()
		r.changedFiles.Add(float64(len(res.Changed)))
		r.skippedFiles.Add(float64(len(res.Skipped)))
		r.directoryDuration.Observe(res.Duration.Seconds())
	}
	if report.Failed != "" {
		r.directoriesProcessed.WithLabelValues("failed").Inc()
	}
	r.walkErrors.Add(float64(len(report.Errors)))

	finished := report.Finished
	if finished.IsZero() {
		finished = time.Now()
	}
	r.lastRunTimestamp.Set(float64(finished.Unix()))
	if !report.Started.IsZero() {
		r.lastRunDuration.Set(finished.Sub(report.Started).Seconds())
	}
	if runErr == nil {
		r.lastRunSuccess.Set(1)
	} else {
		r.lastRunSuccess.Set(0)
	}
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// States lists the outcome label values reported for directories.
func States() []string {
	return []string{
		string(processor.StateNoOp),
		string(processor.StateNotified),
		string(processor.StateDryRun),
		"failed",
	}
}
