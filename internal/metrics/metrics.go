// Package metrics holds the Prometheus collectors for statement ingestion.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "creditpilot"

var (
	// DocumentsProcessed counts imports by the lifecycle status they ended in.
	DocumentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_processed_total",
		Help:      "Statement documents processed, by resulting status.",
	}, []string{"status"})

	// Allocations counts allocation attempts by outcome: exact, partial,
	// none, existing or conflict.
	Allocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "allocations_total",
		Help:      "Payment allocation attempts against advance transfers, by result.",
	}, []string{"result"})

	TransactionsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_classified_total",
		Help:      "Transactions classified, by category.",
	}, []string{"category"})

	ExtractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "extraction_duration_seconds",
		Help:      "Time spent turning document bytes into transactions.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"bank"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
