package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/models"
)

const testKey = "indexer:tasks"

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type recordingHandler struct {
	mu    sync.Mutex
	tasks []models.IndexTask
	errs  map[string]error // run id -> error to return once
}

func (h *recordingHandler) Handle(_ context.Context, task models.IndexTask) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tasks = append(h.tasks, task)
	if err, ok := h.errs[task.RunID]; ok {
		delete(h.errs, task.RunID)
		return err
	}
	return nil
}

func (h *recordingHandler) handled() []models.IndexTask {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.IndexTask, len(h.tasks))
	copy(out, h.tasks)
	return out
}

func TestRedisScheduler_RoundTrip(t *testing.T) {
	client := newTestRedis(t)
	scheduler := NewRedisScheduler(client, testKey, zap.NewNop())

	task := models.IndexTask{
		RunID:     "run-1",
		Stage:     models.StagePending,
		OriginURL: "https://github.com/example/project",
		ToolID:    7,
	}
	require.NoError(t, scheduler.Schedule(context.Background(), task))

	handler := &recordingHandler{}
	consumer := NewConsumer(client, testKey, handler, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = consumer.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(handler.handled()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	got := handler.handled()[0]
	assert.Equal(t, task, got)
}

func TestConsumer_PreservesFIFOOrder(t *testing.T) {
	client := newTestRedis(t)
	scheduler := NewRedisScheduler(client, testKey, zap.NewNop())

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, scheduler.Schedule(ctx, models.IndexTask{
			RunID: id,
			Stage: models.StagePending,
		}))
	}

	handler := &recordingHandler{}
	consumer := NewConsumer(client, testKey, handler, zap.NewNop())

	runCtx, cancel := context.WithCancel(ctx)
	go func() { _ = consumer.Run(runCtx) }()

	require.Eventually(t, func() bool {
		return len(handler.handled()) == 3
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	var order []string
	for _, task := range handler.handled() {
		order = append(order, task.RunID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestConsumer_RequeuesFailedTask(t *testing.T) {
	client := newTestRedis(t)
	scheduler := NewRedisScheduler(client, testKey, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, scheduler.Schedule(ctx, models.IndexTask{
		RunID: "flaky",
		Stage: models.StageHeadResolved,
	}))

	handler := &recordingHandler{
		errs: map[string]error{"flaky": assert.AnError},
	}
	consumer := NewConsumer(client, testKey, handler, zap.NewNop())

	runCtx, cancel := context.WithCancel(ctx)
	go func() { _ = consumer.Run(runCtx) }()

	// First delivery fails and is requeued; second succeeds.
	require.Eventually(t, func() bool {
		return len(handler.handled()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
}

func TestConsumer_DropsUndecodablePayload(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.LPush(ctx, testKey, "not json").Err())
	require.NoError(t, NewRedisScheduler(client, testKey, zap.NewNop()).Schedule(ctx, models.IndexTask{
		RunID: "good",
		Stage: models.StagePending,
	}))

	handler := &recordingHandler{}
	consumer := NewConsumer(client, testKey, handler, zap.NewNop())

	runCtx, cancel := context.WithCancel(ctx)
	go func() { _ = consumer.Run(runCtx) }()

	require.Eventually(t, func() bool {
		return len(handler.handled()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	assert.Equal(t, "good", handler.handled()[0].RunID)
}
