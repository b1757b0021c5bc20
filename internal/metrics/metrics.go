// Package metrics exposes the pipeline's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweshisj/HealthcareApp/internal/domain"
)

const namespace = "claims"

// Metrics holds the counters shared by the API, worker and republisher.
type Metrics struct {
	registry *prometheus.Registry

	submitted       prometheus.Counter
	publishFailures prometheus.Counter
	outcomes        *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	republished     prometheus.Counter
}

// New creates the instruments on a dedicated registry that also carries
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submitted_total",
			Help:      "Claims accepted and stored as Pending.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Claims stored but whose submitted event could not be published.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adjudication_outcomes_total",
			Help:      "Adjudication attempts by outcome (ack, retry, dead_letter).",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Winning status transitions by resulting status.",
		}, []string{"status"}),
		republished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "republished_total",
			Help:      "Unpublished Pending claims handed to the broker by the republisher.",
		}),
	}

	reg.MustRegister(m.submitted, m.publishFailures, m.outcomes, m.transitions, m.republished)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ClaimSubmitted counts an accepted claim.
func (m *Metrics) ClaimSubmitted() { m.submitted.Inc() }

// NotifyPublishFailure implements domain.PublishFailureNotifier.
func (m *Metrics) NotifyPublishFailure(*domain.Claim, error) { m.publishFailures.Inc() }

// ObserveOutcome counts one adjudication attempt.
func (m *Metrics) ObserveOutcome(outcome domain.Outcome) {
	m.outcomes.WithLabelValues(string(outcome)).Inc()
}

// ObserveTransition counts a winning status write.
func (m *Metrics) ObserveTransition(status domain.ClaimStatus) {
	m.transitions.WithLabelValues(string(status)).Inc()
}

// Republished counts claims re-published by the outbox sweep.
func (m *Metrics) Republished(n int) { m.republished.Add(float64(n)) }
