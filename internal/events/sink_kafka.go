package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	dErrors "splitlab/pkg/domainerrors"
)

// KafkaSink streams events to a Kafka topic as JSON records, keyed by test id
// so per-test ordering is preserved within a partition. Production is
// fire-and-forget; delivery failures are logged from the produce callback.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// KafkaOption configures a KafkaSink.
type KafkaOption func(*KafkaSink)

// WithKafkaLogger sets the logger for delivery failures.
func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(s *KafkaSink) {
		s.logger = logger
	}
}

// NewKafkaSink connects a producer to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string, opts ...KafkaOption) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one kafka broker is required")
	}
	if topic == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "kafka topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "create kafka client")
	}

	s := &KafkaSink{
		client: client,
		topic:  topic,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *KafkaSink) Emit(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "marshal event")
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(ev.TestID),
		Value: value,
	}
	s.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			s.logger.Warn("kafka delivery failed",
				"event_id", ev.ID,
				"test_id", ev.TestID,
				"kind", ev.Kind,
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes pending records and releases the client.
func (s *KafkaSink) Close() {
	s.client.Close()
}
