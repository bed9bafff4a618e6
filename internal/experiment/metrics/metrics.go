package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the experiment engine.
type Metrics struct {
	// Evaluations by outcome
	Evaluations *prometheus.CounterVec

	// Exposure and conversion events recorded, by test
	Exposures   *prometheus.CounterVec
	Conversions *prometheus.CounterVec

	// Sticky assignment reuse vs fresh bucketing
	StickyHits prometheus.Counter

	// Config provider degradations to fallback
	ConfigFallbacks prometheus.Counter

	// Events dropped because the buffer was full
	DroppedEvents prometheus.Counter

	// Full evaluation latency including store lookups
	EvaluateLatency prometheus.Histogram
}

// New creates a Metrics instance registered against the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates a Metrics instance registered against reg. Tests pass a
// fresh registry to avoid duplicate registration across cases.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "splitlab_evaluations_total",
			Help: "Total evaluations by outcome",
		}, []string{"outcome"}), // outcome: "assigned", "control", "excluded", "unknown_test", "error"

		Exposures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "splitlab_exposures_total",
			Help: "Total exposure events recorded by test",
		}, []string{"test"}),

		Conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "splitlab_conversions_total",
			Help: "Total conversion events recorded by test",
		}, []string{"test"}),

		StickyHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitlab_sticky_hits_total",
			Help: "Total evaluations served from a stored assignment",
		}),

		ConfigFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitlab_config_fallbacks_total",
			Help: "Total config fetches that degraded to the fallback provider",
		}),

		DroppedEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitlab_dropped_events_total",
			Help: "Total events dropped because the event buffer was full",
		}),

		EvaluateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "splitlab_evaluate_duration_seconds",
			Help:    "Duration of full variant evaluation including store lookups",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

// IncrementEvaluation records an evaluation outcome.
func (m *Metrics) IncrementEvaluation(outcome string) {
	if m != nil {
		m.Evaluations.WithLabelValues(outcome).Inc()
	}
}

// IncrementExposure records an exposure event for a test.
func (m *Metrics) IncrementExposure(testID string) {
	if m != nil {
		m.Exposures.WithLabelValues(testID).Inc()
	}
}

// IncrementConversion records a conversion event for a test.
func (m *Metrics) IncrementConversion(testID string) {
	if m != nil {
		m.Conversions.WithLabelValues(testID).Inc()
	}
}

// IncrementStickyHit records an evaluation served from a stored assignment.
func (m *Metrics) IncrementStickyHit() {
	if m != nil {
		m.StickyHits.Inc()
	}
}

// IncrementConfigFallback records a degradation to the fallback provider.
func (m *Metrics) IncrementConfigFallback() {
	if m != nil {
		m.ConfigFallbacks.Inc()
	}
}

// IncrementDroppedEvents records an event dropped on buffer overflow.
func (m *Metrics) IncrementDroppedEvents() {
	if m != nil {
		m.DroppedEvents.Inc()
	}
}

// ObserveEvaluateLatency records the total evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}
