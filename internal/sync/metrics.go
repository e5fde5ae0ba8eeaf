package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calsync_runs_total",
		Help: "Total number of synchronization runs by outcome.",
	}, []string{"status"})

	syncRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "calsync_run_duration_seconds",
		Help:    "Histogram of synchronization run durations.",
		Buckets: prometheus.DefBuckets,
	})

	syncEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calsync_events_total",
		Help: "Total number of events processed by action.",
	}, []string{"action"}) // imported, exported, updated, skipped

	syncEventErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calsync_event_errors_total",
		Help: "Total number of per-event failures by pass.",
	}, []string{"op"})
)

func recordRunMetrics(res *Result) {
	status := "success"
	if len(res.Errors) > 0 {
		status = "partial"
	}
	syncRunsTotal.WithLabelValues(status).Inc()
	syncRunDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())

	syncEventsTotal.WithLabelValues("imported").Add(float64(res.ImportedCount))
	syncEventsTotal.WithLabelValues("exported").Add(float64(res.ExportedCount))
	syncEventsTotal.WithLabelValues("updated").Add(float64(res.UpdatedCount))
	syncEventsTotal.WithLabelValues("skipped").Add(float64(res.SkippedCount))

	for _, ee := range res.EventErrors {
		syncEventErrorsTotal.WithLabelValues(ee.Op).Inc()
	}
}

func recordFailedRun() {
	syncRunsTotal.WithLabelValues("failed").Inc()
}
