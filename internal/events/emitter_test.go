package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct {
	calls int
}

func (s *failingSink) Emit(context.Context, Event) error {
	s.calls++
	return errors.New("sink down")
}

func TestEmitterStampsAndFansOut(t *testing.T) {
	ctx := context.Background()
	a := NewMemorySink()
	b := NewMemorySink()
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	em := NewEmitter([]Sink{a, b}, WithClock(func() time.Time { return fixed }))
	em.Emit(ctx, Event{TestID: "exp-1", VariantID: "control", Kind: KindExposure})

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)

	got := a.Events()[0]
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, fixed, got.Timestamp)
	assert.Equal(t, b.Events()[0].ID, got.ID, "both sinks see the same stamped event")
}

func TestEmitterSwallowsSinkFailures(t *testing.T) {
	ctx := context.Background()
	bad := &failingSink{}
	good := NewMemorySink()

	em := NewEmitter([]Sink{bad, good}, WithLogger(slog.New(slog.DiscardHandler)))

	// Must not panic or skip later sinks.
	em.Emit(ctx, Event{TestID: "exp-1", Kind: KindConversion})

	assert.Equal(t, 1, bad.calls)
	assert.Len(t, good.Events(), 1)
}

func TestQueueDropsOnOverflow(t *testing.T) {
	ctx := context.Background()
	var drops int
	q := NewQueue(2, slog.New(slog.DiscardHandler), func() { drops++ })

	for i := 0; i < 5; i++ {
		q.Emit(ctx, Event{TestID: "exp-1", Kind: KindExposure})
	}

	assert.Equal(t, 3, drops)
	assert.Len(t, q.Inbox(), 2)
}

func TestWorkerDrainsQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := NewMemorySink()
	em := NewEmitter([]Sink{sink})
	q := NewQueue(16, slog.New(slog.DiscardHandler), nil)
	w := NewWorker(em, q.Inbox())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := 0; i < 10; i++ {
		q.Emit(ctx, Event{TestID: "exp-1", Kind: KindExposure})
	}

	assert.Eventually(t, func() bool {
		return len(sink.Events()) == 10
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestMemorySinkConcurrent(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = sink.Emit(ctx, Event{TestID: "exp-1", Kind: KindMetric})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, sink.Events(), goroutines*20)
}

func TestMemorySinkByKind(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()
	_ = sink.Emit(ctx, Event{Kind: KindExposure})
	_ = sink.Emit(ctx, Event{Kind: KindConversion})
	_ = sink.Emit(ctx, Event{Kind: KindExposure})

	assert.Len(t, sink.ByKind(KindExposure), 2)
	assert.Len(t, sink.ByKind(KindConversion), 1)
	assert.Empty(t, sink.ByKind(KindMetric))
}
