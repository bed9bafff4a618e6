// Package service implements the assignment engine: traffic inclusion,
// sticky assignment, weighted bucketing and event emission.
package service

import (
	"context"
	"log/slog"
	"time"

	"splitlab/internal/bucket"
	"splitlab/internal/events"
	"splitlab/internal/experiment/metrics"
	"splitlab/internal/experiment/models"
	"splitlab/internal/experiment/ports"
	dErrors "splitlab/pkg/domainerrors"
)

// Evaluation outcomes for metrics.
const (
	outcomeAssigned    = "assigned"
	outcomeControl     = "control"
	outcomeExcluded    = "excluded"
	outcomeUnknownTest = "unknown_test"
	outcomeError       = "error"
)

// Service decides which variant a visitor sees. Evaluation fails open: any
// config or store failure yields the default experience, never an error page.
type Service struct {
	config      ports.ConfigProvider
	assignments ports.AssignmentStore
	publisher   events.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPublisher sets the event publisher. Without one, no events are emitted.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithClock overrides the time source, for tests of scheduling windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs the assignment engine.
func New(config ports.ConfigProvider, assignments ports.AssignmentStore, opts ...Option) *Service {
	s := &Service{
		config:      config,
		assignments: assignments,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// EvaluateOptions tunes a single evaluation.
type EvaluateOptions struct {
	// ForceVariant bypasses bucketing for QA. Unknown ids fall back to
	// control. The forced choice is never persisted.
	ForceVariant models.VariantID

	// TrackExposure controls exposure emission. Nil means track.
	TrackExposure *bool

	// Visitor carries the attributes targeting rules are matched against.
	Visitor *models.Visitor
}

func (o EvaluateOptions) trackExposure() bool {
	return o.TrackExposure == nil || *o.TrackExposure
}

// Evaluate returns the variant for an identity, or nil when the visitor is
// outside the experiment and should see the default experience. A nil
// variant with a nil error is the normal exclusion path, not a failure.
func (s *Service) Evaluate(ctx context.Context, identity string, testID models.TestID, opts EvaluateOptions) (*models.Variant, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveEvaluateLatency(time.Since(start))
	}()

	if identity == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity is required")
	}

	cfg, err := s.config.GetConfig(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "config unavailable, serving default experience",
			"test_id", testID,
			"error", err,
		)
		s.metrics.IncrementEvaluation(outcomeError)
		return nil, nil
	}

	test, ok := cfg[testID]
	if !ok {
		s.metrics.IncrementEvaluation(outcomeUnknownTest)
		return nil, nil
	}

	if !test.ActiveAt(s.now()) {
		control := test.Control()
		s.metrics.IncrementEvaluation(outcomeControl)
		return &control, nil
	}

	if opts.ForceVariant != "" {
		variant, ok := test.FindVariant(opts.ForceVariant)
		if !ok {
			variant = test.Control()
		}
		if opts.trackExposure() {
			s.emitExposure(ctx, test.ID, variant.ID, identity)
		}
		s.metrics.IncrementEvaluation(outcomeAssigned)
		return &variant, nil
	}

	if !test.Targeting.Matches(opts.Visitor) {
		s.metrics.IncrementEvaluation(outcomeExcluded)
		return nil, nil
	}

	if float64(bucket.TrafficBucket(identity, string(test.ID))) >= test.Traffic {
		s.metrics.IncrementEvaluation(outcomeExcluded)
		return nil, nil
	}

	// Sticky assignments win over recomputation so reweighting a running
	// test never flips visitors who already saw a variant.
	if stored, err := s.assignments.Get(ctx, identity, test.ID); err == nil {
		if variant, ok := test.FindVariant(stored); ok {
			s.metrics.IncrementStickyHit()
			if opts.trackExposure() {
				s.emitExposure(ctx, test.ID, variant.ID, identity)
			}
			s.metrics.IncrementEvaluation(outcomeAssigned)
			return &variant, nil
		}
	} else if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		// A store outage is a miss: the hash recomputes the same value.
		s.logger.WarnContext(ctx, "assignment lookup failed, rebucketing",
			"test_id", test.ID,
			"error", err,
		)
	}

	variant := pickVariant(test, identity)

	if err := s.assignments.Put(ctx, identity, test.ID, variant.ID); err != nil {
		s.logger.WarnContext(ctx, "assignment write failed",
			"test_id", test.ID,
			"variant_id", variant.ID,
			"error", err,
		)
	}

	if opts.trackExposure() {
		s.emitExposure(ctx, test.ID, variant.ID, identity)
	}
	s.metrics.IncrementEvaluation(outcomeAssigned)
	return &variant, nil
}

// pickVariant maps the identity's bucket onto the cumulative weight ranges.
// Weights sum to 100 by validation, so the fallback only catches float
// shortfall at the top of the range; it lands on the first variant.
func pickVariant(test models.Test, identity string) models.Variant {
	b := float64(bucket.VariantBucket(identity, string(test.ID)))
	var cum float64
	for _, v := range test.Variants {
		cum += v.Weight
		if b < cum {
			return v
		}
	}
	return test.Variants[0]
}

// IsActive reports whether a test is enabled and inside its schedule window.
func (s *Service) IsActive(ctx context.Context, testID models.TestID) (bool, error) {
	cfg, err := s.config.GetConfig(ctx)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "get config")
	}
	test, ok := cfg[testID]
	if !ok {
		return false, nil
	}
	return test.ActiveAt(s.now()), nil
}

// RecordConversion attributes a conversion to the visitor's stored variant.
// Conversions without a prior assignment are dropped: counting them would
// credit variants the visitor never saw.
func (s *Service) RecordConversion(ctx context.Context, identity string, testID models.TestID, conversionType string) error {
	if identity == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "identity is required")
	}

	variantID, err := s.assignments.Get(ctx, identity, testID)
	if err != nil {
		s.logger.WarnContext(ctx, "conversion without assignment dropped",
			"test_id", testID,
			"error", err,
		)
		return nil
	}

	payload := map[string]any{"identity": identity}
	if conversionType != "" {
		payload["conversion_type"] = conversionType
	}
	s.emit(ctx, events.Event{
		TestID:    testID,
		VariantID: variantID,
		Kind:      events.KindConversion,
		Payload:   payload,
	})
	s.metrics.IncrementConversion(string(testID))
	return nil
}

// RecordMetric attributes a named numeric observation to the visitor's
// stored variant, for custom goals beyond binary conversion.
func (s *Service) RecordMetric(ctx context.Context, identity string, testID models.TestID, name string, value float64) error {
	if identity == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "identity is required")
	}
	if name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "metric name is required")
	}

	variantID, err := s.assignments.Get(ctx, identity, testID)
	if err != nil {
		s.logger.WarnContext(ctx, "metric without assignment dropped",
			"test_id", testID,
			"metric", name,
			"error", err,
		)
		return nil
	}

	s.emit(ctx, events.Event{
		TestID:    testID,
		VariantID: variantID,
		Kind:      events.KindMetric,
		Payload: map[string]any{
			"identity": identity,
			"name":     name,
			"value":    value,
		},
	})
	return nil
}

func (s *Service) emitExposure(ctx context.Context, testID models.TestID, variantID models.VariantID, identity string) {
	s.emit(ctx, events.Event{
		TestID:    testID,
		VariantID: variantID,
		Kind:      events.KindExposure,
		Payload:   map[string]any{"identity": identity},
	})
	s.metrics.IncrementExposure(string(testID))
}

func (s *Service) emit(ctx context.Context, ev events.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Emit(ctx, ev)
}
