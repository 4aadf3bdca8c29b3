package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/models"
)

// popTimeout bounds each blocking pop so the consumer notices context
// cancellation promptly.
const popTimeout = 2 * time.Second

// Handler processes one delivered task. A returned error causes the task
// to be requeued for another attempt.
type Handler interface {
	Handle(ctx context.Context, task models.IndexTask) error
}

// Consumer pops tasks from the Redis list and feeds them to a handler.
type Consumer struct {
	client  *redis.Client
	key     string
	handler Handler
	logger  *zap.Logger
}

// NewConsumer creates a Consumer for the given list key.
func NewConsumer(client *redis.Client, key string, handler Handler, logger *zap.Logger) *Consumer {
	return &Consumer{
		client:  client,
		key:     key,
		handler: handler,
		logger:  logger.Named("consumer"),
	}
}

// Run consumes tasks until the context is cancelled. Payloads that do not
// decode are logged and dropped; a poison message must not wedge the
// queue. Handler errors requeue the task, which under at-least-once
// delivery is the right default: idempotent stages absorb the duplicate.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started", zap.String("queue", c.key))
	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info("consumer stopped")
			return err
		}

		res, err := c.client.BRPop(ctx, popTimeout, c.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("consumer stopped")
				return ctx.Err()
			}
			return fmt.Errorf("failed to pop task: %w", err)
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}

		var task models.IndexTask
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			c.logger.Error("dropping undecodable task payload", zap.Error(err))
			continue
		}

		if err := c.handler.Handle(ctx, task); err != nil {
			c.logger.Warn("task failed, requeueing",
				zap.String("run_id", task.RunID),
				zap.String("stage", string(task.Stage)),
				zap.Error(err))
			if pushErr := c.client.LPush(ctx, c.key, res[1]).Err(); pushErr != nil {
				return fmt.Errorf("failed to requeue task %s: %w", task.RunID, pushErr)
			}
		}
	}
}
