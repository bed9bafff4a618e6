// Package models defines the test-configuration model the assignment and
// statistics engines operate on.
package models

import (
	"math"
	"strings"
	"time"

	dErrors "splitlab/pkg/domainerrors"
)

// TestID identifies a test within a config set.
type TestID string

// VariantID identifies a variant within a test.
type VariantID string

// weightTolerance absorbs floating error when checking that weights sum to 100.
const weightTolerance = 1e-3

// controlName is the conventional id/name marking the control arm.
const controlName = "control"

// Variant is one treatment arm of a test.
type Variant struct {
	ID       VariantID      `json:"id" yaml:"id"`
	Name     string         `json:"name" yaml:"name"`
	Weight   float64        `json:"weight" yaml:"weight"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Targeting narrows a test to visitors matching any of the listed values per
// dimension. Empty slices match everyone.
type Targeting struct {
	Segments     []string `json:"segments,omitempty" yaml:"segments,omitempty"`
	Devices      []string `json:"devices,omitempty" yaml:"devices,omitempty"`
	Geolocations []string `json:"geolocations,omitempty" yaml:"geolocations,omitempty"`
}

// Visitor carries the attributes targeting is evaluated against.
type Visitor struct {
	Segment     string `json:"segment,omitempty"`
	Device      string `json:"device,omitempty"`
	Geolocation string `json:"geolocation,omitempty"`
}

// Matches reports whether the visitor satisfies every non-empty targeting
// dimension. A nil visitor only matches fully open targeting.
func (t *Targeting) Matches(v *Visitor) bool {
	if t == nil {
		return true
	}
	if v == nil {
		return len(t.Segments) == 0 && len(t.Devices) == 0 && len(t.Geolocations) == 0
	}
	return matchesDimension(t.Segments, v.Segment) &&
		matchesDimension(t.Devices, v.Device) &&
		matchesDimension(t.Geolocations, v.Geolocation)
}

func matchesDimension(allowed []string, got string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(a, got) {
			return true
		}
	}
	return false
}

// Test is a single experiment definition.
type Test struct {
	ID        TestID     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Enabled   bool       `json:"enabled" yaml:"enabled"`
	Variants  []Variant  `json:"variants" yaml:"variants"`
	Traffic   float64    `json:"traffic" yaml:"traffic"`
	StartAt   *time.Time `json:"start_at,omitempty" yaml:"start_at,omitempty"`
	EndAt     *time.Time `json:"end_at,omitempty" yaml:"end_at,omitempty"`
	Targeting *Targeting `json:"targeting,omitempty" yaml:"targeting,omitempty"`
}

// Validate rejects definitions that must never reach the assignment engine.
func (t Test) Validate() error {
	if t.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "test id is required")
	}
	if len(t.Variants) == 0 {
		return dErrors.Newf(dErrors.CodeValidation, "test %s has no variants", t.ID)
	}
	if t.Traffic < 0 || t.Traffic > 100 {
		return dErrors.Newf(dErrors.CodeValidation, "test %s traffic %.2f out of range [0,100]", t.ID, t.Traffic)
	}

	seen := make(map[VariantID]struct{}, len(t.Variants))
	var sum float64
	for _, v := range t.Variants {
		if v.ID == "" {
			return dErrors.Newf(dErrors.CodeValidation, "test %s has a variant with no id", t.ID)
		}
		if _, dup := seen[v.ID]; dup {
			return dErrors.Newf(dErrors.CodeValidation, "test %s has duplicate variant id %s", t.ID, v.ID)
		}
		seen[v.ID] = struct{}{}
		if v.Weight < 0 {
			return dErrors.Newf(dErrors.CodeValidation, "test %s variant %s has negative weight", t.ID, v.ID)
		}
		sum += v.Weight
	}
	if math.Abs(sum-100) > weightTolerance {
		return dErrors.Newf(dErrors.CodeValidation, "test %s variant weights sum to %.3f, want 100", t.ID, sum)
	}

	if t.StartAt != nil && t.EndAt != nil && t.EndAt.Before(*t.StartAt) {
		return dErrors.Newf(dErrors.CodeValidation, "test %s ends before it starts", t.ID)
	}
	return nil
}

// ActiveAt reports whether the test should be evaluated at the given time.
func (t Test) ActiveAt(now time.Time) bool {
	if !t.Enabled {
		return false
	}
	if t.StartAt != nil && now.Before(*t.StartAt) {
		return false
	}
	if t.EndAt != nil && now.After(*t.EndAt) {
		return false
	}
	return true
}

// Control returns the control arm: the variant literally named or id'd
// "control", falling back to the first variant.
func (t Test) Control() Variant {
	for _, v := range t.Variants {
		if strings.EqualFold(string(v.ID), controlName) || strings.EqualFold(v.Name, controlName) {
			return v
		}
	}
	return t.Variants[0]
}

// FindVariant looks a variant up by id.
func (t Test) FindVariant(id VariantID) (Variant, bool) {
	for _, v := range t.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Clone deep-copies the test so callers can never mutate a shared snapshot.
func (t Test) Clone() Test {
	out := t
	out.Variants = make([]Variant, len(t.Variants))
	for i, v := range t.Variants {
		out.Variants[i] = v
		if v.Metadata != nil {
			md := make(map[string]any, len(v.Metadata))
			for k, val := range v.Metadata {
				md[k] = val
			}
			out.Variants[i].Metadata = md
		}
	}
	if t.StartAt != nil {
		s := *t.StartAt
		out.StartAt = &s
	}
	if t.EndAt != nil {
		e := *t.EndAt
		out.EndAt = &e
	}
	if t.Targeting != nil {
		tg := Targeting{
			Segments:     append([]string(nil), t.Targeting.Segments...),
			Devices:      append([]string(nil), t.Targeting.Devices...),
			Geolocations: append([]string(nil), t.Targeting.Geolocations...),
		}
		out.Targeting = &tg
	}
	return out
}

// ConfigSet maps test ids to definitions, loaded wholesale from a provider.
type ConfigSet map[TestID]Test

// Clone deep-copies the set.
func (cs ConfigSet) Clone() ConfigSet {
	out := make(ConfigSet, len(cs))
	for id, t := range cs {
		out[id] = t.Clone()
	}
	return out
}

// Validated returns the subset of tests that pass validation together with
// the validation errors for the dropped ones. An invalid test must behave as
// not-found downstream, never reach bucketing.
func (cs ConfigSet) Validated() (ConfigSet, []error) {
	out := make(ConfigSet, len(cs))
	var errs []error
	for id, t := range cs {
		if t.ID == "" {
			t.ID = id
		}
		if err := t.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		out[id] = t
	}
	return out, errs
}

// Counts is the aggregated exposure/conversion tally for one variant, the
// input shape of the statistics engine.
type Counts struct {
	Views       int64 `json:"views"`
	Conversions int64 `json:"conversions"`
}
