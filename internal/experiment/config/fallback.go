package config

import (
	"context"
	"log/slog"

	"splitlab/internal/experiment/models"
	"splitlab/internal/experiment/ports"
)

// Fallback serves the primary provider's configuration, degrading to the
// fallback when the primary errors or returns nothing. Experimentation fails
// open: a broken config store must never break page rendering.
type Fallback struct {
	primary    ports.ConfigProvider
	fallback   ports.ConfigProvider
	logger     *slog.Logger
	onFallback func()
}

// NewFallback wires a primary and a fallback provider. onFallback (optional)
// is invoked once per degraded read, typically a metrics counter increment.
func NewFallback(primary, fallback ports.ConfigProvider, logger *slog.Logger, onFallback func()) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		primary:    primary,
		fallback:   fallback,
		logger:     logger,
		onFallback: onFallback,
	}
}

func (f *Fallback) GetConfig(ctx context.Context) (models.ConfigSet, error) {
	set, err := f.primary.GetConfig(ctx)
	if err == nil && len(set) > 0 {
		return set, nil
	}

	if err != nil {
		f.logger.WarnContext(ctx, "config store unavailable, serving fallback defaults", "error", err)
	} else {
		f.logger.WarnContext(ctx, "config store returned no tests, serving fallback defaults")
	}
	if f.onFallback != nil {
		f.onFallback()
	}
	return f.fallback.GetConfig(ctx)
}
