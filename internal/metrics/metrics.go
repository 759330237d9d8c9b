// Package metrics exposes the outcome counters the validator (C4), SQL
// emitter (C5), and approval store (C6) drive, via the same
// prometheus/client_golang registry the rest of this ecosystem's
// services expose on /metrics.
package metrics

import (
	"net/http"

	"github.com/cori-do/cori/internal/validate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps the counters this kernel emits. A nil *Registry is
// valid everywhere it's accepted and every method becomes a no-op, so
// callers don't need a separate "metrics disabled" branch.
type Registry struct {
	validationOutcomes *prometheus.CounterVec
	mutationOutcomes   *prometheus.CounterVec
	approvalOutcomes   *prometheus.CounterVec
	rowsAffected       *prometheus.HistogramVec
}

// New registers the kernel's counters against reg and returns a Registry
// bound to it. Pass prometheus.NewRegistry() for an isolated registry in
// tests, or prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		validationOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cori",
			Subsystem: "validate",
			Name:      "outcomes_total",
			Help:      "Validation outcomes by table, operation, and result.",
		}, []string{"table", "operation", "result"}),
		mutationOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cori",
			Subsystem: "sqlgen",
			Name:      "outcomes_total",
			Help:      "SQL emitter outcomes by table, operation, and result.",
		}, []string{"table", "operation", "result"}),
		approvalOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cori",
			Subsystem: "approval",
			Name:      "outcomes_total",
			Help:      "Approval queue outcomes by decision.",
		}, []string{"decision"}),
		rowsAffected: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cori",
			Subsystem: "sqlgen",
			Name:      "rows_affected",
			Help:      "Rows returned or affected by a successful mutation.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}, []string{"table", "operation"}),
	}
}

// ObserveValidation records a validator decision. result is "accepted" or
// the validate.ErrorKind that rejected the call.
func (r *Registry) ObserveValidation(table, operation, result string) {
	if r == nil {
		return
	}
	r.validationOutcomes.WithLabelValues(table, operation, result).Inc()
}

// ObserveValidationError is a convenience wrapper for rejection paths
// that already hold a typed *validate.Error.
func (r *Registry) ObserveValidationError(table, operation string, err *validate.Error) {
	if r == nil {
		return
	}
	r.ObserveValidation(table, operation, string(err.Kind))
}

// ObserveMutation records a C5 outcome and, on success, the row count.
func (r *Registry) ObserveMutation(table, operation, result string, rows int) {
	if r == nil {
		return
	}
	r.mutationOutcomes.WithLabelValues(table, operation, result).Inc()
	if result == "success" {
		r.rowsAffected.WithLabelValues(table, operation).Observe(float64(rows))
	}
}

// ObserveApproval records an approval-queue outcome; callers record
// "requested", "approved", and "stale" (snapshot check refused execution).
func (r *Registry) ObserveApproval(decision string) {
	if r == nil {
		return
	}
	r.approvalOutcomes.WithLabelValues(decision).Inc()
}

// Handler returns the /metrics HTTP handler for the given gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
