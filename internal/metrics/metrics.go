// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pathology"

var (
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Record store operations by record kind, operation and outcome.",
		},
		[]string{"kind", "op", "outcome"},
	)

	HistoryMigrations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_records_migrated_total",
			Help:      "History records rewritten from potentialDiagnosis to differentialDiagnosis on read.",
		},
	)

	Analyses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Slide analyses by outcome (success, transport_error, schema_violation, rejected, store_error).",
		},
		[]string{"outcome"},
	)

	Commits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_commits_total",
			Help:      "Report edit commits by outcome.",
		},
		[]string{"outcome"},
	)
)

// Outcome returns "ok" for a nil error and "error" otherwise.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
