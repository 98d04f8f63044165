package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline holds the self-observability instruments for the collection
// pipeline. It is constructed once at startup against an explicit
// registry and passed into the orchestrator and scheduler; there is no
// package-level registry.
type Pipeline struct {
	JobsStarted   *prometheus.CounterVec
	JobsSucceeded *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobRetries    *prometheus.CounterVec

	RecordsWritten *prometheus.CounterVec
	SourceErrors   *prometheus.CounterVec

	CollectionDuration *prometheus.HistogramVec
}

// NewPipeline creates and registers the pipeline instruments on reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		JobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_collection_jobs_started_total",
			Help: "Collection jobs started, by provider.",
		}, []string{"provider"}),
		JobsSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_collection_jobs_succeeded_total",
			Help: "Collection jobs that completed successfully, by provider.",
		}, []string{"provider"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_collection_jobs_failed_total",
			Help: "Collection jobs that failed terminally, by provider.",
		}, []string{"provider"}),
		JobRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_collection_job_retries_total",
			Help: "Collection job retry submissions, by provider.",
		}, []string{"provider"}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_records_written_total",
			Help: "Metric records written to the columnar store, by kind.",
		}, []string{"kind"}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_source_errors_total",
			Help: "Source-level fetch failures, by provider.",
		}, []string{"provider"}),
		CollectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pulse_collection_duration_seconds",
			Help:    "Wall-clock duration of one collection run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"provider"}),
	}

	reg.MustRegister(
		p.JobsStarted,
		p.JobsSucceeded,
		p.JobsFailed,
		p.JobRetries,
		p.RecordsWritten,
		p.SourceErrors,
		p.CollectionDuration,
	)
	return p
}
