package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exercisegrade_executions_total",
			Help: "Total number of executions by language and outcome",
		},
		[]string{"language", "outcome"}, // outcome: "success" or an ErrorKind
	)

	executionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exercisegrade_execution_duration_ms",
			Help:    "Wall-clock execution time in milliseconds",
			Buckets: []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"language"},
	)

	lateResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exercisegrade_late_results_total",
			Help: "Adapter results that arrived after the caller gave up and were discarded",
		},
	)

	staleResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exercisegrade_stale_results_total",
			Help: "Results returned for an exercise the learner already left",
		},
	)

	busyRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exercisegrade_busy_rejections_total",
			Help: "Runs rejected because another execution was in flight",
		},
	)

	bootstrapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exercisegrade_bootstraps_total",
			Help: "Interpreter bootstraps by runtime and status",
		},
		[]string{"runtime", "status"},
	)

	bootstrapDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exercisegrade_bootstrap_duration_ms",
			Help:    "Interpreter bootstrap time in milliseconds",
			Buckets: []float64{1, 10, 50, 250, 1000, 5000},
		},
		[]string{"runtime"},
	)
)

func observeBootstrap(name string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	bootstrapsTotal.WithLabelValues(name, status).Inc()
	bootstrapDuration.WithLabelValues(name).Observe(float64(d.Milliseconds()))
}

func observeExecution(lang Language, res ExecuteResult) {
	outcome := "success"
	if res.Error != nil {
		outcome = string(res.Error.Kind)
	}
	executionsTotal.WithLabelValues(string(lang), outcome).Inc()
	executionDuration.WithLabelValues(string(lang)).Observe(float64(res.Elapsed.Milliseconds()))
	if res.Stale {
		staleResultsTotal.Inc()
	}
}
