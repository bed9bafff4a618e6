package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"splitlab/internal/experiment/models"
	dErrors "splitlab/pkg/domainerrors"
)

// Redis key prefix for sticky assignments.
const assignmentKeyPrefix = "assign:"

// RedisStore shares sticky assignments across instances. The
// production-recommended store for multi-instance deployments: concurrent
// renders for the same identity may both write, but they write the same
// hash-derived value, so last-write-wins is safe.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL bounds how long an assignment stays sticky. Zero means no expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedis constructs a Redis-backed assignment store.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func assignmentKey(identity string, testID models.TestID) string {
	return fmt.Sprintf("%s%s:%s", assignmentKeyPrefix, identity, testID)
}

func (s *RedisStore) Get(ctx context.Context, identity string, testID models.TestID) (models.VariantID, error) {
	val, err := s.client.Get(ctx, assignmentKey(identity, testID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "get assignment")
	}
	return models.VariantID(val), nil
}

func (s *RedisStore) Put(ctx context.Context, identity string, testID models.TestID, variantID models.VariantID) error {
	err := s.client.Set(ctx, assignmentKey(identity, testID), string(variantID), s.ttl).Err()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "put assignment")
	}
	return nil
}
