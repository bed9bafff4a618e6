// Package config provides test-configuration providers: a frozen in-process
// default set, a YAML file loader, a remote edge store client, and the
// caching/fallback combinators that keep assignment fail-open.
package config

import (
	"context"

	"splitlab/internal/experiment/models"
)

// Static serves a fixed configuration set, deep-copied on every read so no
// caller can mutate the shared snapshot. It is the terminal fallback of every
// provider chain.
type Static struct {
	set models.ConfigSet
}

// NewStatic freezes the given set. Invalid tests are dropped up front; the
// returned errors let the caller log what was rejected.
func NewStatic(set models.ConfigSet) (*Static, []error) {
	valid, errs := set.Validated()
	return &Static{set: valid.Clone()}, errs
}

// Defaults is the hardcoded fail-open set used when nothing else is
// configured: no experiments, so every slot renders its control content.
func Defaults() *Static {
	s, _ := NewStatic(models.ConfigSet{})
	return s
}

func (s *Static) GetConfig(_ context.Context) (models.ConfigSet, error) {
	return s.set.Clone(), nil
}
