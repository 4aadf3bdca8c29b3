package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/apperrors"
	"github.com/sourcearchive/indexer/pkg/models"
	"github.com/sourcearchive/indexer/pkg/repositories"
)

// Scheduler hands a task to the transport for later delivery. Delivery is
// at-least-once: the same task may come back more than once, and every
// stage must tolerate that.
type Scheduler interface {
	Schedule(ctx context.Context, task models.IndexTask) error
}

// Dispatcher runs one pipeline stage per delivered task and schedules the
// successor stage. The stage graph itself lives in models.NextStage; the
// dispatcher only binds stages to effects.
type Dispatcher struct {
	resolver   *HeadResolver
	extractor  *DirectoryExtractor
	aggregator *OriginAggregator
	dirMeta    repositories.DirectoryMetadataRepository
	scheduler  Scheduler
	logger     *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(
	resolver *HeadResolver,
	extractor *DirectoryExtractor,
	aggregator *OriginAggregator,
	dirMeta repositories.DirectoryMetadataRepository,
	scheduler Scheduler,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		resolver:   resolver,
		extractor:  extractor,
		aggregator: aggregator,
		dirMeta:    dirMeta,
		scheduler:  scheduler,
		logger:     logger.Named("dispatcher"),
	}
}

// Handle executes the stage named by the task.
//
// A returned error means the stage hit a transient fault and the task
// should be redelivered. Terminal conditions (no canonical branch, origin
// unknown to the archive) end the run as Failed and return nil so the
// transport does not retry what cannot succeed.
func (d *Dispatcher) Handle(ctx context.Context, task models.IndexTask) error {
	logger := d.logger.With(
		zap.String("run_id", task.RunID),
		zap.String("origin", task.OriginURL),
		zap.String("stage", string(task.Stage)))

	switch task.Stage {
	case models.StagePending:
		dirID, err := d.resolver.Resolve(ctx, task.OriginURL)
		if err != nil {
			if errors.Is(err, apperrors.ErrNoCanonicalBranch) || errors.Is(err, apperrors.ErrNotFound) {
				return d.failRun(ctx, logger, err)
			}
			return fmt.Errorf("failed to resolve head: %w", err)
		}
		task.DirectoryID = dirID
		task.IsOriginHead = true
		return d.advance(ctx, logger, task)

	case models.StageHeadResolved:
		if _, err := d.extractor.IndexDirectory(ctx, task.DirectoryID, task.ToolID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return d.failRun(ctx, logger, err)
			}
			return fmt.Errorf("failed to index directory: %w", err)
		}
		return d.advance(ctx, logger, task)

	case models.StageDirectoryIndexed:
		if !task.IsOriginHead {
			// Nothing to attribute to the origin; the directory fact
			// already stands on its own.
			return d.advance(ctx, logger, task)
		}
		rows, err := d.dirMeta.Get(ctx, []models.Sha1{task.DirectoryID})
		if err != nil {
			return fmt.Errorf("failed to load directory fact: %w", err)
		}
		dir, ok := pickFact(rows, task.ToolID)
		if !ok {
			return d.failRun(ctx, logger, fmt.Errorf("directory fact for %s: %w", task.DirectoryID, apperrors.ErrNotFound))
		}
		if err := d.aggregator.AggregateIntrinsic(ctx, task.OriginURL, dir); err != nil {
			return err
		}
		return d.advance(ctx, logger, task)

	case models.StageOriginAggregated:
		task.Stage = models.StageDone
		logger.Info("run complete")
		return nil

	case models.StageDone, models.StageFailed:
		// Redelivered terminal task; at-least-once transport makes these
		// routine.
		logger.Debug("ignoring redelivered terminal task")
		return nil

	default:
		return d.failRun(ctx, logger, fmt.Errorf("unknown stage %q", task.Stage))
	}
}

// advance moves the task to its next stage and schedules it.
func (d *Dispatcher) advance(ctx context.Context, logger *zap.Logger, task models.IndexTask) error {
	next, err := models.NextStage(task.Stage)
	if err != nil {
		return err
	}
	task.Stage = next

	if err := d.scheduler.Schedule(ctx, task); err != nil {
		return fmt.Errorf("failed to schedule stage %s: %w", next, err)
	}
	logger.Info("stage complete", zap.String("next_stage", string(next)))
	return nil
}

// failRun ends the run. The failure is a fact about the origin, so it is
// logged and swallowed; retrying would reproduce it forever.
func (d *Dispatcher) failRun(_ context.Context, logger *zap.Logger, cause error) error {
	logger.Warn("run failed", zap.Error(cause))
	return nil
}

// pickFact selects the fact row written by the given tool.
func pickFact(rows []models.DirectoryIntrinsicRow, toolID int64) (models.DirectoryIntrinsicRow, bool) {
	for _, row := range rows {
		if row.ToolID == toolID {
			return row, true
		}
	}
	return models.DirectoryIntrinsicRow{}, false
}
