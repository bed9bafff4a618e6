// Package events defines the exposure/conversion/metric event stream and the
// fire-and-forget machinery that carries it to analytics sinks.
package events

import (
	"time"

	"splitlab/internal/experiment/models"
)

// Kind discriminates the three event types. Exposure and conversion are kept
// strictly separate so re-renders never bias analysis.
type Kind string

const (
	KindExposure   Kind = "exposure"
	KindConversion Kind = "conversion"
	KindMetric     Kind = "metric"
)

// Event is a write-once record emitted to an external analytics sink.
type Event struct {
	ID        string           `json:"id"`
	TestID    models.TestID    `json:"test_id"`
	VariantID models.VariantID `json:"variant_id"`
	Kind      Kind             `json:"kind"`
	Payload   map[string]any   `json:"payload,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
