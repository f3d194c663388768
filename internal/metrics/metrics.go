// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for item results.
const (
	OutcomePublished      = "published"
	OutcomeAlreadyClaimed = "already_claimed"
	OutcomeDuplicate      = "duplicate"
	OutcomeExcluded       = "excluded"
	OutcomeFailed         = "failed"
	OutcomeAborted        = "aborted"
)

// Recorder collects pipeline metrics. The zero value and a nil *Recorder
// are both no-ops.
type Recorder struct {
	registry    *prometheus.Registry
	runs        prometheus.Counter
	aborts      *prometheus.CounterVec
	items       *prometheus.CounterVec
	failures    *prometheus.CounterVec
	postPublish *prometheus.CounterVec
	runSeconds  prometheus.Histogram
}

// New registers all collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "content_pipeline",
			Name:      "runs_total",
			Help:      "Completed orchestrator runs.",
		}),
		aborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "content_pipeline",
			Name:      "run_aborts_total",
			Help:      "Runs stopped before the batch was exhausted.",
		}, []string{"reason"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "content_pipeline",
			Name:      "items_total",
			Help:      "Per-item outcomes.",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "content_pipeline",
			Name:      "item_failures_total",
			Help:      "Item-fatal failures by stage.",
		}, []string{"stage"}),
		postPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "content_pipeline",
			Name:      "post_publish_failures_total",
			Help:      "Non-fatal failures after publish by stage.",
		}, []string{"stage"}),
		runSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "content_pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of one run.",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		}),
	}
	r.registry.MustRegister(
		r.runs, r.aborts, r.items, r.failures, r.postPublish, r.runSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil || r.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Item(outcome string) {
	if r == nil || r.items == nil {
		return
	}
	r.items.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Failure(stage string) {
	if r == nil || r.failures == nil {
		return
	}
	if stage == "" {
		stage = "unknown"
	}
	r.failures.WithLabelValues(stage).Inc()
}

func (r *Recorder) PostPublishFailure(stage string) {
	if r == nil || r.postPublish == nil {
		return
	}
	r.postPublish.WithLabelValues(stage).Inc()
}

func (r *Recorder) Run(seconds float64, aborted bool, reason string) {
	if r == nil || r.runs == nil {
		return
	}
	r.runs.Inc()
	r.runSeconds.Observe(seconds)
	if aborted {
		r.aborts.WithLabelValues(reason).Inc()
	}
}
