// Package metrics holds the Prometheus collectors of the auth backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for AuthRequests.
const (
	OutcomeSuccess            = "success"
	OutcomeValidation         = "validation_error"
	OutcomeDuplicateEmail     = "duplicate_email"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeUnauthorized       = "unauthorized"
	OutcomeNotFound           = "not_found"
	OutcomeError              = "error"
)

// AuthRequests counts auth service operations by result.
// Use RegisterMetrics to expose it on /metrics.
var AuthRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "manru_auth_requests_total",
		Help: "Total number of auth service operations",
	},
	[]string{"operation", "outcome"},
)

// EventsPruned counts account events removed by the retention job.
var EventsPruned = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "manru_events_pruned_total",
		Help: "Total number of account events removed by retention",
	},
)

// RegisterMetrics registers the collectors with reg. Panics if registration
// fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AuthRequests)
	reg.MustRegister(EventsPruned)
}

// RecordAuthRequest increments AuthRequests for one finished operation.
func RecordAuthRequest(operation, outcome string) {
	AuthRequests.WithLabelValues(operation, outcome).Inc()
}
