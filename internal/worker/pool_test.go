package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/ailab_server/internal/pkg/pubsub"
	"github.com/qs3c/ailab_server/internal/pkg/queue"
)

type recordingExecutor struct {
	mu   sync.Mutex
	seen []string
	fail map[string]bool
}

func (e *recordingExecutor) Execute(ctx context.Context, job *queue.LabJobMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, job.ExperimentID)
	if e.fail[job.ExperimentID] {
		return errors.New("boom")
	}
	return nil
}

func (e *recordingExecutor) ids() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.seen...)
}

type recordingCanceller struct {
	mu        sync.Mutex
	cancelled []string
}

func (c *recordingCanceller) CancelLocal(experimentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, experimentID)
	return true
}

func (c *recordingCanceller) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cancelled)
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPool_Run(t *testing.T) {
	client := setupRedis(t)
	jobQueue := queue.NewQueue(client, "lab_runs_test")
	executor := &recordingExecutor{fail: map[string]bool{"exp-2": true}}

	ctx := context.Background()
	for _, id := range []string{"exp-1", "exp-2", "exp-3"} {
		require.NoError(t, jobQueue.Push(ctx, &queue.LabJobMessage{ExperimentID: id, Prompt: "ping"}))
	}

	pool := NewPool(jobQueue, executor, 2)
	pool.popTimeout = time.Second

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- pool.Run(runCtx) }()

	// 某个任务失败不影响后续任务
	require.Eventually(t, func() bool { return len(executor.ids()) == 3 }, 5*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, []string{"exp-1", "exp-2", "exp-3"}, executor.ids())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}

	n, err := jobQueue.Length(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewPool_MinimumWorkers(t *testing.T) {
	pool := NewPool(nil, &recordingExecutor{}, 0)
	assert.Equal(t, 1, pool.workers)
	assert.Equal(t, defaultPopTimeout, pool.popTimeout)
}

func TestListenCancel(t *testing.T) {
	client := setupRedis(t)
	canceller := &recordingCanceller{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ListenCancel(ctx, pubsub.NewSubscriber(client), canceller) }()

	publisher := pubsub.NewPublisher(client)
	require.Eventually(t, func() bool {
		_ = publisher.PublishCancel(context.Background(), "exp-1")
		return canceller.count() > 0
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}
