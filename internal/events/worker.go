package events

import (
	"context"
	"log/slog"
)

// Queue decouples event producers from sink latency. Emit never blocks: when
// the buffer is full the event is dropped and counted, because a slow
// analytics backend must not slow a page render.
type Queue struct {
	inbox   chan Event
	logger  *slog.Logger
	dropped func()
}

// NewQueue creates a queue with the given buffer size. onDrop (optional) is
// invoked once per dropped event, typically a metrics counter increment.
func NewQueue(size int, logger *slog.Logger, onDrop func()) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		inbox:   make(chan Event, size),
		logger:  logger,
		dropped: onDrop,
	}
}

// Emit enqueues without blocking, dropping on overflow.
func (q *Queue) Emit(ctx context.Context, ev Event) {
	select {
	case q.inbox <- ev:
	default:
		if q.dropped != nil {
			q.dropped()
		}
		q.logger.WarnContext(ctx, "event queue full, dropping event",
			"test_id", ev.TestID,
			"kind", ev.Kind,
		)
	}
}

// Inbox exposes the consumer side for a Worker.
func (q *Queue) Inbox() <-chan Event {
	return q.inbox
}

// Worker drains a queue into an emitter until the context is cancelled.
type Worker struct {
	emitter *Emitter
	inbox   <-chan Event
}

// NewWorker wires a queue's inbox to an emitter.
func NewWorker(emitter *Emitter, inbox <-chan Event) *Worker {
	return &Worker{emitter: emitter, inbox: inbox}
}

// Run processes events until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-w.inbox:
			w.emitter.Emit(ctx, ev)
		}
	}
}
