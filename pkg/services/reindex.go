package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/models"
)

// OriginLister yields batches of origin URLs. A nil batch with a nil error
// ends the iteration. Implementations typically page through the archive's
// origin listing.
type OriginLister func(ctx context.Context) ([]string, error)

// Reindexer enqueues fresh pipeline runs for existing origins. It is the
// recovery path after a destructive schema migration or a tool upgrade:
// wipe the affected facts, then reindex.
type Reindexer struct {
	scheduler Scheduler
	logger    *zap.Logger
}

// NewReindexer creates a Reindexer.
func NewReindexer(scheduler Scheduler, logger *zap.Logger) *Reindexer {
	return &Reindexer{
		scheduler: scheduler,
		logger:    logger.Named("reindex"),
	}
}

// Reindex enqueues one pending run per listed origin for the given tool.
// Returns the number of runs enqueued.
func (r *Reindexer) Reindex(ctx context.Context, list OriginLister, toolID int64) (int, error) {
	var enqueued int
	for {
		batch, err := list(ctx)
		if err != nil {
			return enqueued, fmt.Errorf("failed to list origins: %w", err)
		}
		if batch == nil {
			break
		}

		for _, originURL := range batch {
			task := models.IndexTask{
				RunID:     uuid.New().String(),
				Stage:     models.StagePending,
				OriginURL: originURL,
				ToolID:    toolID,
			}
			if err := r.scheduler.Schedule(ctx, task); err != nil {
				return enqueued, fmt.Errorf("failed to enqueue %s: %w", originURL, err)
			}
			enqueued++
		}
	}

	r.logger.Info("reindex enqueued", zap.Int("origins", enqueued), zap.Int64("tool_id", toolID))
	return enqueued, nil
}
