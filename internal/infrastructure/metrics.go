package infrastructure

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counters for the import pipeline, exposed on /metrics.
var (
	RoutineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cnabd_routine_runs_total",
		Help: "Routine executions by resulting routine status.",
	}, []string{"status"})

	FilesImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cnabd_files_imported_total",
		Help: "Files imported successfully into the target system.",
	})

	ImportFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cnabd_import_failures_total",
		Help: "Failed import attempts by failure reason.",
	}, []string{"reason"})
)

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
