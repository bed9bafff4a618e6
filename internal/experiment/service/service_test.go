package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitlab/internal/events"
	"splitlab/internal/experiment/metrics"
	"splitlab/internal/experiment/models"
	"splitlab/internal/experiment/store/assignment"
	dErrors "splitlab/pkg/domainerrors"
)

type stubProvider struct {
	set models.ConfigSet
	err error
}

func (p *stubProvider) GetConfig(ctx context.Context) (models.ConfigSet, error) {
	return p.set, p.err
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Emit(ctx context.Context, ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *capturePublisher) all() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func (p *capturePublisher) byKind(kind events.Kind) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func fiftyFifty(traffic float64) models.Test {
	return models.Test{
		ID:      "checkout-button",
		Name:    "Checkout button color",
		Enabled: true,
		Traffic: traffic,
		Variants: []models.Variant{
			{ID: "control", Name: "control", Weight: 50},
			{ID: "b", Name: "green button", Weight: 50},
		},
	}
}

func newEngine(t models.Test, opts ...Option) (*Service, *capturePublisher) {
	pub := &capturePublisher{}
	provider := &stubProvider{set: models.ConfigSet{t.ID: t}}
	opts = append([]Option{
		WithPublisher(pub),
		WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)
	return New(provider, assignment.NewMemory(), opts...), pub
}

func TestEvaluateRequiresIdentity(t *testing.T) {
	svc, _ := newEngine(fiftyFifty(100))
	_, err := svc.Evaluate(context.Background(), "", "checkout-button", EvaluateOptions{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestEvaluateIsDeterministic(t *testing.T) {
	svc, pub := newEngine(fiftyFifty(100))
	ctx := context.Background()

	first, err := svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, models.VariantID("b"), first.ID)

	for i := 0; i < 99; i++ {
		got, err := svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, first.ID, got.ID)
	}

	// Every render tracks an exposure for the same variant.
	exposures := pub.byKind(events.KindExposure)
	require.Len(t, exposures, 100)
	for _, ev := range exposures {
		assert.Equal(t, models.VariantID("b"), ev.VariantID)
		assert.Equal(t, "user-42", ev.Payload["identity"])
	}
}

func TestEvaluateStickyOverridesReweighting(t *testing.T) {
	test := fiftyFifty(100)
	pub := &capturePublisher{}
	provider := &stubProvider{set: models.ConfigSet{test.ID: test}}
	store := assignment.NewMemory()
	svc := New(provider, store, WithPublisher(pub), WithLogger(slog.New(slog.DiscardHandler)))
	ctx := context.Background()

	got, err := svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, models.VariantID("b"), got.ID)

	// Reweight to 90/10. Fresh bucketing would now land user-42 (bucket 64)
	// on control, but the stored assignment wins.
	reweighted := fiftyFifty(100)
	reweighted.Variants[0].Weight = 90
	reweighted.Variants[1].Weight = 10
	provider.set = models.ConfigSet{reweighted.ID: reweighted}

	got, err = svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.VariantID("b"), got.ID)

	// A fresh visitor lands by the new weights.
	fresh := New(provider, assignment.NewMemory(), WithLogger(slog.New(slog.DiscardHandler)))
	got, err = fresh.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.VariantID("control"), got.ID)
}

func TestEvaluateTrafficInclusion(t *testing.T) {
	ctx := context.Background()

	t.Run("zero traffic excludes everyone", func(t *testing.T) {
		svc, pub := newEngine(fiftyFifty(0))
		for i := 0; i < 50; i++ {
			got, err := svc.Evaluate(ctx, fmt.Sprintf("user-%d", i), "checkout-button", EvaluateOptions{})
			require.NoError(t, err)
			assert.Nil(t, got)
		}
		assert.Empty(t, pub.all())
	})

	t.Run("full traffic includes everyone", func(t *testing.T) {
		svc, _ := newEngine(fiftyFifty(100))
		for i := 0; i < 50; i++ {
			got, err := svc.Evaluate(ctx, fmt.Sprintf("user-%d", i), "checkout-button", EvaluateOptions{})
			require.NoError(t, err)
			assert.NotNil(t, got)
		}
	})

	t.Run("ramping up never drops included visitors", func(t *testing.T) {
		// user-42 sits in traffic bucket 80: out at 80 percent, in at 81.
		svc, _ := newEngine(fiftyFifty(80))
		got, err := svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{})
		require.NoError(t, err)
		assert.Nil(t, got)

		svc, _ = newEngine(fiftyFifty(81))
		got, err = svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{})
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}

func TestEvaluateWeightDistribution(t *testing.T) {
	test := models.Test{
		ID:      "pricing-page",
		Enabled: true,
		Traffic: 100,
		Variants: []models.Variant{
			{ID: "control", Weight: 20},
			{ID: "b", Weight: 30},
			{ID: "c", Weight: 50},
		},
	}
	off := false
	svc, _ := newEngine(test)
	ctx := context.Background()

	const n = 10000
	counts := make(map[models.VariantID]int)
	for i := 0; i < n; i++ {
		got, err := svc.Evaluate(ctx, fmt.Sprintf("user-%d", i), "pricing-page", EvaluateOptions{TrackExposure: &off})
		require.NoError(t, err)
		require.NotNil(t, got)
		counts[got.ID]++
	}

	assert.InDelta(t, n*0.20, counts["control"], n*0.05)
	assert.InDelta(t, n*0.30, counts["b"], n*0.05)
	assert.InDelta(t, n*0.50, counts["c"], n*0.05)
}

func TestEvaluateWeightShortfallFallsBackToFirstVariant(t *testing.T) {
	// The stub provider skips validation, so the cumulative ranges can be
	// made to stop short of the bucket. user-42 lands in variant bucket 64,
	// past the 20 the weights cover, and must fall back to the first variant.
	test := fiftyFifty(100)
	test.Variants[0].Weight = 10
	test.Variants[1].Weight = 10
	svc, _ := newEngine(test)

	got, err := svc.Evaluate(context.Background(), "user-42", "checkout-button", EvaluateOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.VariantID("control"), got.ID)
}

func TestEvaluateUnknownTest(t *testing.T) {
	svc, pub := newEngine(fiftyFifty(100))
	got, err := svc.Evaluate(context.Background(), "user-42", "nope", EvaluateOptions{})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, pub.all())
}

func TestEvaluateConfigFailureFailsOpen(t *testing.T) {
	provider := &stubProvider{err: dErrors.New(dErrors.CodeUnavailable, "edge down")}
	svc := New(provider, assignment.NewMemory(), WithLogger(slog.New(slog.DiscardHandler)))

	got, err := svc.Evaluate(context.Background(), "user-42", "checkout-button", EvaluateOptions{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEvaluateInactiveServesControl(t *testing.T) {
	test := fiftyFifty(100)
	test.Enabled = false
	svc, pub := newEngine(test)

	got, err := svc.Evaluate(context.Background(), "user-42", "checkout-button", EvaluateOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.VariantID("control"), got.ID)

	// Inactive tests never track exposures.
	assert.Empty(t, pub.all())
}

func TestEvaluateScheduleWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)
	ctx := context.Background()

	t.Run("not yet started", func(t *testing.T) {
		test := fiftyFifty(100)
		test.StartAt = &after
		svc, _ := newEngine(test, WithClock(func() time.Time { return now }))
		got, err := svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.VariantID("control"), got.ID)
	})

	t.Run("already ended", func(t *testing.T) {
		test := fiftyFifty(100)
		test.EndAt = &before
		svc, _ := newEngine(test, WithClock(func() time.Time { return now }))
		got, err := svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.VariantID("control"), got.ID)
	})

	t.Run("inside window", func(t *testing.T) {
		test := fiftyFifty(100)
		test.StartAt = &before
		test.EndAt = &after
		svc, _ := newEngine(test, WithClock(func() time.Time { return now }))
		got, err := svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.VariantID("b"), got.ID)
	})
}

func TestEvaluateForcedVariant(t *testing.T) {
	ctx := context.Background()

	t.Run("known variant", func(t *testing.T) {
		svc, pub := newEngine(fiftyFifty(0)) // forcing bypasses traffic too
		got, err := svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{ForceVariant: "b"})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.VariantID("b"), got.ID)
		assert.Len(t, pub.byKind(events.KindExposure), 1)
	})

	t.Run("unknown variant falls back to control", func(t *testing.T) {
		svc, _ := newEngine(fiftyFifty(100))
		got, err := svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{ForceVariant: "nope"})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.VariantID("control"), got.ID)
	})
}

func TestEvaluateTargeting(t *testing.T) {
	test := fiftyFifty(100)
	test.Targeting = &models.Targeting{Segments: []string{"beta"}}
	ctx := context.Background()

	t.Run("matching visitor is bucketed", func(t *testing.T) {
		svc, _ := newEngine(test)
		got, err := svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{
			Visitor: &models.Visitor{Segment: "Beta"},
		})
		require.NoError(t, err)
		assert.NotNil(t, got)
	})

	t.Run("mismatched visitor is excluded", func(t *testing.T) {
		svc, _ := newEngine(test)
		got, err := svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{
			Visitor: &models.Visitor{Segment: "stable"},
		})
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("missing visitor is excluded", func(t *testing.T) {
		svc, _ := newEngine(test)
		got, err := svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{})
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestEvaluateExposureOptOut(t *testing.T) {
	svc, pub := newEngine(fiftyFifty(100))
	off := false

	got, err := svc.Evaluate(context.Background(), "user-42", "checkout-button", EvaluateOptions{TrackExposure: &off})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, pub.all())
}

func TestIsActive(t *testing.T) {
	test := fiftyFifty(100)
	svc, _ := newEngine(test)
	ctx := context.Background()

	active, err := svc.IsActive(ctx, "checkout-button")
	require.NoError(t, err)
	assert.True(t, active)

	active, err = svc.IsActive(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, active)

	disabled := fiftyFifty(100)
	disabled.Enabled = false
	svc, _ = newEngine(disabled)
	active, err = svc.IsActive(ctx, "checkout-button")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestRecordConversion(t *testing.T) {
	ctx := context.Background()

	t.Run("attributes to stored variant", func(t *testing.T) {
		svc, pub := newEngine(fiftyFifty(100))
		_, err := svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{})
		require.NoError(t, err)

		require.NoError(t, svc.RecordConversion(ctx, "user-42", "checkout-button", "purchase"))

		conversions := pub.byKind(events.KindConversion)
		require.Len(t, conversions, 1)
		assert.Equal(t, models.VariantID("b"), conversions[0].VariantID)
		assert.Equal(t, "purchase", conversions[0].Payload["conversion_type"])
	})

	t.Run("dropped without assignment", func(t *testing.T) {
		svc, pub := newEngine(fiftyFifty(100))
		require.NoError(t, svc.RecordConversion(ctx, "stranger", "checkout-button", ""))
		assert.Empty(t, pub.byKind(events.KindConversion))
	})

	t.Run("requires identity", func(t *testing.T) {
		svc, _ := newEngine(fiftyFifty(100))
		err := svc.RecordConversion(ctx, "", "checkout-button", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestRecordMetric(t *testing.T) {
	ctx := context.Background()
	svc, pub := newEngine(fiftyFifty(100))

	_, err := svc.Evaluate(ctx, "user-42", "checkout-button", EvaluateOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.RecordMetric(ctx, "user-42", "checkout-button", "revenue", 19.99))

	metricsEvents := pub.byKind(events.KindMetric)
	require.Len(t, metricsEvents, 1)
	assert.Equal(t, "revenue", metricsEvents[0].Payload["name"])
	assert.Equal(t, 19.99, metricsEvents[0].Payload["value"])

	err = svc.RecordMetric(ctx, "user-42", "checkout-button", "", 1)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestEvaluateWithMetrics(t *testing.T) {
	m := metrics.NewWith(prometheus.NewRegistry())
	svc, _ := newEngine(fiftyFifty(100), WithMetrics(m))

	got, err := svc.Evaluate(context.Background(), "user-42", "checkout-button", EvaluateOptions{})
	require.NoError(t, err)
	assert.NotNil(t, got)
}
