package handler

import (
	"splitlab/internal/experiment/models"
)

// EvaluateResponse is the HTTP response for POST /evaluate.
type EvaluateResponse struct {
	TestID       string `json:"test_id"`
	Identity     string `json:"identity"`
	InExperiment bool   `json:"in_experiment"`

	// Variant fields are omitted when the visitor is outside the experiment.
	VariantID   string         `json:"variant_id,omitempty"`
	VariantName string         `json:"variant_name,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// FromVariant converts an evaluation outcome to an HTTP response. A nil
// variant means the visitor sees the default experience.
func FromVariant(testID, identity string, variant *models.Variant) *EvaluateResponse {
	resp := &EvaluateResponse{
		TestID:   testID,
		Identity: identity,
	}
	if variant != nil {
		resp.InExperiment = true
		resp.VariantID = string(variant.ID)
		resp.VariantName = variant.Name
		resp.Metadata = variant.Metadata
	}
	return resp
}

// ActiveResponse is the HTTP response for GET /tests/{testID}/active.
type ActiveResponse struct {
	TestID string `json:"test_id"`
	Active bool   `json:"active"`
}

// AcceptedResponse acknowledges a recorded event.
type AcceptedResponse struct {
	Status string `json:"status"`
}
