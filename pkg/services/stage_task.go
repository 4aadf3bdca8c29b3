package services

import (
	"context"
	"fmt"

	"github.com/sourcearchive/indexer/pkg/models"
	"github.com/sourcearchive/indexer/pkg/services/workqueue"
)

// StageTask adapts one delivered pipeline task to the worker pool. Stages
// that bulk-write facts are flagged so the pool serializes them; head
// resolution only reads the graph and may fan out.
type StageTask struct {
	workqueue.BaseTask
	task       models.IndexTask
	dispatcher *Dispatcher
}

var _ workqueue.Task = (*StageTask)(nil)

// NewStageTask wraps a delivered task for execution on the work queue.
func NewStageTask(dispatcher *Dispatcher, task models.IndexTask) *StageTask {
	writesFacts := task.Stage == models.StageHeadResolved || task.Stage == models.StageDirectoryIndexed
	name := fmt.Sprintf("%s %s", task.Stage, task.OriginURL)
	return &StageTask{
		BaseTask:   workqueue.NewBaseTask(name, writesFacts),
		task:       task,
		dispatcher: dispatcher,
	}
}

// Execute runs the stage. Successor stages travel through the transport,
// not the local enqueuer, so other workers can pick them up.
func (t *StageTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	return t.dispatcher.Handle(ctx, t.task)
}
