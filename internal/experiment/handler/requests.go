package handler

import (
	"strings"

	"splitlab/internal/experiment/models"
	dErrors "splitlab/pkg/domainerrors"
)

// VisitorContext holds the targeting attributes a client reports about the
// visitor.
type VisitorContext struct {
	Segment     string `json:"segment,omitempty"`
	Device      string `json:"device,omitempty"`
	Geolocation string `json:"geolocation,omitempty"`
}

// EvaluateRequest is the HTTP request body for POST /evaluate.
type EvaluateRequest struct {
	TestID string `json:"test_id"`

	// Identity overrides cookie-based resolution, for server-side callers
	// that manage their own visitor ids.
	Identity string `json:"identity,omitempty"`

	// Force pins a variant for QA. Never persisted.
	Force string `json:"force,omitempty"`

	// TrackExposure defaults to true when omitted.
	TrackExposure *bool `json:"track_exposure,omitempty"`

	Visitor *VisitorContext `json:"visitor,omitempty"`
}

// Validate validates and normalizes the request.
func (r *EvaluateRequest) Validate() error {
	r.TestID = strings.TrimSpace(r.TestID)
	if r.TestID == "" {
		return dErrors.New(dErrors.CodeValidation, "test_id is required")
	}
	r.Identity = strings.TrimSpace(r.Identity)
	return nil
}

// ToVisitor converts the reported context to the targeting model, filling the
// device class from the user agent when the client did not report one.
func (r *EvaluateRequest) ToVisitor(deviceFromUA string) *models.Visitor {
	if r.Visitor == nil {
		if deviceFromUA == "" {
			return nil
		}
		return &models.Visitor{Device: deviceFromUA}
	}
	v := &models.Visitor{
		Segment:     r.Visitor.Segment,
		Device:      r.Visitor.Device,
		Geolocation: r.Visitor.Geolocation,
	}
	if v.Device == "" {
		v.Device = deviceFromUA
	}
	return v
}

// ConversionRequest is the HTTP request body for POST /conversions.
type ConversionRequest struct {
	TestID         string `json:"test_id"`
	Identity       string `json:"identity,omitempty"`
	ConversionType string `json:"conversion_type,omitempty"`
}

// Validate validates and normalizes the request.
func (r *ConversionRequest) Validate() error {
	r.TestID = strings.TrimSpace(r.TestID)
	if r.TestID == "" {
		return dErrors.New(dErrors.CodeValidation, "test_id is required")
	}
	r.Identity = strings.TrimSpace(r.Identity)
	return nil
}

// MetricRequest is the HTTP request body for POST /metrics.
type MetricRequest struct {
	TestID   string  `json:"test_id"`
	Identity string  `json:"identity,omitempty"`
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
}

// Validate validates and normalizes the request.
func (r *MetricRequest) Validate() error {
	r.TestID = strings.TrimSpace(r.TestID)
	if r.TestID == "" {
		return dErrors.New(dErrors.CodeValidation, "test_id is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	r.Identity = strings.TrimSpace(r.Identity)
	return nil
}
