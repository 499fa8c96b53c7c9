package metrics

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"IdeaDigest/internal/usecase"
)

const namespace = "ideadigest"

var _ usecase.RunObserver = (*Recorder)(nil)

// Recorder collects per-run telemetry in its own registry. When a textfile
// path is set, every finished run is flushed there for node-exporter.
type Recorder struct {
	registry *prometheus.Registry
	textfile string
	logger   *slog.Logger

	sourceFetches  *prometheus.CounterVec
	sourceItems    *prometheus.GaugeVec
	sourceDuration *prometheus.HistogramVec
	runs           *prometheus.CounterVec
	upserts        *prometheus.CounterVec
	scoringFailed  prometheus.Counter
	digestItems    prometheus.Gauge
	lastRun        prometheus.Gauge
	lastRunSeconds prometheus.Gauge
}

// NewRecorder registers all collectors. textfile may be empty.
func NewRecorder(textfile string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		textfile: textfile,
		logger:   logger.With("component", "metrics"),
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Source fetch attempts by outcome.",
		}, []string{"source", "status"}),
		sourceItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_items_fetched",
			Help:      "Ideas returned by the last fetch of each source.",
		}, []string{"source"}),
		sourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Wall time of source fetches.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"source"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"status"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upsert_records_total",
			Help:      "Records written to the store by result.",
		}, []string{"result"}),
		scoringFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_failures_total",
			Help:      "Ideas kept unscored after a scoring error.",
		}),
		digestItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "digest_items",
			Help:      "Ideas included in the last written digest.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		lastRunSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the last run.",
		}),
	}
	r.registry.MustRegister(
		r.sourceFetches, r.sourceItems, r.sourceDuration,
		r.runs, r.upserts, r.scoringFailed,
		r.digestItems, r.lastRun, r.lastRunSeconds,
	)
	return r
}

// Registry exposes the underlying registry, e.g. for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ObserveSource(result usecase.SourceResult) {
	status := "success"
	if !result.Success {
		status = "failure"
	}
	r.sourceFetches.WithLabelValues(result.SourceName, status).Inc()
	r.sourceItems.WithLabelValues(result.SourceName).Set(float64(result.ItemsFetched))
	r.sourceDuration.WithLabelValues(result.SourceName).Observe(result.Duration.Seconds())
}

func (r *Recorder) ObserveRun(result *usecase.RunResult) {
	status := "success"
	if result.Failed() {
		status = "failure"
	}
	r.runs.WithLabelValues(status).Inc()
	r.scoringFailed.Add(float64(result.ScoringFailures))

	if result.Upsert != nil {
		r.upserts.WithLabelValues("inserted").Add(float64(result.Upsert.Inserted))
		r.upserts.WithLabelValues("updated").Add(float64(result.Upsert.Updated))
		r.upserts.WithLabelValues("failed").Add(float64(result.Upsert.Failed))
	}
	if result.Digest != nil && result.Digest.Success {
		r.digestItems.Set(float64(result.Digest.ItemsIncluded))
	}
	r.lastRun.Set(float64(result.FinishedAt.Unix()))
	r.lastRunSeconds.Set(result.Duration().Seconds())

	if err := r.Flush(); err != nil {
		r.logger.Warn("metrics export failed", "path", r.textfile, "error", err)
	}
}

// Flush writes the textfile when one is configured.
func (r *Recorder) Flush() error {
	if r.textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(r.textfile, r.registry); err != nil {
		return fmt.Errorf("write textfile: %w", err)
	}
	return nil
}
