package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/ailab_server/internal/model/dto"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, cleanup
}

func TestQueue_PushPop(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	q := NewQueue(client, "lab_runs")

	timeout := 30000
	original := &LabJobMessage{
		ExperimentID:   "exp-1",
		UserID:         7,
		Prompt:         "ping",
		MaxConcurrency: 2,
		Targets: []dto.LabTarget{
			{Label: "A", ProviderURL: "https://a.example.com/v1", APIKey: "sk-real", TimeoutMs: &timeout},
			{Label: "B"},
		},
	}

	require.NoError(t, q.Push(ctx, original))

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	result, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "exp-1", result.ExperimentID)
	assert.Equal(t, int64(7), result.UserID)
	assert.Equal(t, 2, result.MaxConcurrency)
	require.Len(t, result.Targets, 2)
	// 队列里保留真实 key，worker 要用它调用 provider
	assert.Equal(t, "sk-real", result.Targets[0].APIKey)
	require.NotNil(t, result.Targets[0].TimeoutMs)
	assert.Equal(t, 30000, *result.Targets[0].TimeoutMs)
	assert.Equal(t, "B", result.Targets[1].Label)
}

func TestQueue_FIFO(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	q := NewQueue(client, "test_fifo_queue")

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(ctx, &LabJobMessage{ExperimentID: id}))
	}

	for _, id := range []string{"a", "b", "c"} {
		result, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, id, result.ExperimentID)
	}
}

func TestQueue_PopEmpty(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test_empty_queue")

	// miniredis 对 BRPOP 超时的支持不完整，只要求不返回任务
	result, err := q.Pop(context.Background(), 10*time.Millisecond)
	if err == nil {
		assert.Nil(t, result)
	}
}

func TestQueue_PopMalformed(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	q := NewQueue(client, "test_bad_queue")
	require.NoError(t, client.LPush(ctx, "test_bad_queue", "not json").Err())

	result, err := q.Pop(ctx, time.Second)
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestQueue_MultipleQueues(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	q1 := NewQueue(client, "queue_1")
	q2 := NewQueue(client, "queue_2")

	require.NoError(t, q1.Push(ctx, &LabJobMessage{ExperimentID: "one"}))
	require.NoError(t, q2.Push(ctx, &LabJobMessage{ExperimentID: "two"}))

	len1, _ := q1.Length(ctx)
	len2, _ := q2.Length(ctx)
	assert.Equal(t, int64(1), len1)
	assert.Equal(t, int64(1), len2)

	result1, _ := q1.Pop(ctx, time.Second)
	result2, _ := q2.Pop(ctx, time.Second)
	assert.Equal(t, "one", result1.ExperimentID)
	assert.Equal(t, "two", result2.ExperimentID)
}
