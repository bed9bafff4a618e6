package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sink receives events. Implementations must tolerate being called
// concurrently.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Publisher is the producer-facing side: emission never returns an error
// because sink failures must not reach the rendering path.
type Publisher interface {
	Emit(ctx context.Context, ev Event)
}

// Emitter fans events out to its sinks synchronously, swallowing and logging
// per-sink failures.
type Emitter struct {
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithLogger sets the logger used for sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) {
		e.logger = logger
	}
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		e.now = now
	}
}

// NewEmitter builds an emitter over the given sinks.
func NewEmitter(sinks []Sink, opts ...Option) *Emitter {
	e := &Emitter{
		sinks:  sinks,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit stamps the event and delivers it to every sink. Failures are logged,
// never propagated.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	for _, sink := range e.sinks {
		if err := sink.Emit(ctx, ev); err != nil {
			e.logger.WarnContext(ctx, "event sink failed",
				"event_id", ev.ID,
				"test_id", ev.TestID,
				"kind", ev.Kind,
				"error", err,
			)
		}
	}
}
