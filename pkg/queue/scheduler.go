// Package queue is the Redis-backed task transport between pipeline
// stages. Tasks are JSON payloads on a single list; delivery is
// at-least-once, so every consumer must be idempotent.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/models"
	"github.com/sourcearchive/indexer/pkg/services"
)

// RedisScheduler pushes tasks onto a Redis list.
type RedisScheduler struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

var _ services.Scheduler = (*RedisScheduler)(nil)

// NewRedisScheduler creates a scheduler pushing to the given list key.
func NewRedisScheduler(client *redis.Client, key string, logger *zap.Logger) *RedisScheduler {
	return &RedisScheduler{
		client: client,
		key:    key,
		logger: logger.Named("scheduler"),
	}
}

// Schedule encodes the task and pushes it for later delivery.
func (s *RedisScheduler) Schedule(ctx context.Context, task models.IndexTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task.RunID, err)
	}

	if err := s.client.LPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push task %s: %w", task.RunID, err)
	}

	s.logger.Debug("task scheduled",
		zap.String("run_id", task.RunID),
		zap.String("stage", string(task.Stage)),
		zap.String("origin", task.OriginURL))
	return nil
}
