// ABOUTME: Prometheus collectors for engine and dispatch activity
// ABOUTME: Registered against an injectable registerer so tests stay isolated

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors exported on /metrics.
type Metrics struct {
	InboundMessages    *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	Artifacts          *prometheus.CounterVec
	DispatchRetries    prometheus.Counter
	TransitionSeconds  prometheus.Histogram
}

// New creates and registers the collectors. Pass
// prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InboundMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bellhop_inbound_messages_total",
				Help: "Inbound messages received, by channel.",
			},
			[]string{"channel"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bellhop_transitions_total",
				Help: "Conversation transitions, by vertical and outcome.",
			},
			[]string{"vertical", "outcome"},
		),
		ValidationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bellhop_validation_failures_total",
				Help: "User inputs rejected by a state validator, by vertical.",
			},
			[]string{"vertical"},
		),
		Artifacts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bellhop_artifacts_total",
				Help: "Terminal artifacts emitted, by type.",
			},
			[]string{"type"},
		),
		DispatchRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bellhop_dispatch_retries_total",
				Help: "Outbound delivery attempts beyond the first.",
			},
		),
		TransitionSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bellhop_transition_duration_seconds",
				Help:    "Wall time of one engine transition including persistence.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(
		m.InboundMessages,
		m.Transitions,
		m.ValidationFailures,
		m.Artifacts,
		m.DispatchRetries,
		m.TransitionSeconds,
	)
	return m
}

// Nop returns metrics registered nowhere, for tests that don't assert on them.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
