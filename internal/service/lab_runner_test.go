package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/ailab_server/internal/model/dto"
	"github.com/qs3c/ailab_server/internal/pkg/provider"
	"github.com/qs3c/ailab_server/internal/repository"
	"github.com/qs3c/ailab_server/internal/testutil"
)

func TestTargetRunner_Success(t *testing.T) {
	var payload map[string]any
	server := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &payload)
		w.Write([]byte(`{"model":"served-model","choices":[{"message":{"content":"pong"}}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`))
	})

	out := newTestRunner(testConfig()).Run(context.Background(), "ping", dto.LabTarget{
		Label:        "A",
		ModelName:    "requested-model",
		SystemPrompt: "be brief",
		Temperature:  floatPtr(0),
		ProviderURL:  server.URL,
		TimeoutMs:    intPtr(10000),
	})

	require.True(t, out.Completed, out.Error)
	assert.Equal(t, "A", out.Label)
	assert.Equal(t, "pong", out.AnswerText)
	require.NotNil(t, out.ModelName)
	assert.Equal(t, "served-model", *out.ModelName, "the provider's model name wins")
	assert.Equal(t, 4, *out.TotalTokens)
	require.NotNil(t, out.LatencyMs)
	require.NotNil(t, out.SpeedScore)
	assert.Less(t, *out.SpeedScore, 1.0)
	assert.Nil(t, out.CostEstimate)
	assert.Empty(t, out.Error)

	assert.Equal(t, "requested-model", payload["model"])
	assert.Equal(t, 0.0, payload["temperature"])
	messages := payload["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestTargetRunner_FallsBackToSettings(t *testing.T) {
	var gotAuth string
	server := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(pongBody))
	})

	cfg := testConfig()
	cfg.AIProvider.URL = server.URL
	cfg.AIProvider.APIKey = "sk-global"
	runner := newTestRunner(cfg)

	t.Run("global url and key", func(t *testing.T) {
		out := runner.Run(context.Background(), "ping", dto.LabTarget{Label: "A"})
		require.True(t, out.Completed, out.Error)
		assert.Equal(t, "Bearer sk-global", gotAuth)
	})

	t.Run("target key with global url", func(t *testing.T) {
		out := runner.Run(context.Background(), "ping", dto.LabTarget{Label: "A", APIKey: "sk-target"})
		require.True(t, out.Completed, out.Error)
		assert.Equal(t, "Bearer sk-target", gotAuth)
	})

	t.Run("target url does not inherit the global key", func(t *testing.T) {
		out := runner.Run(context.Background(), "ping", dto.LabTarget{Label: "A", ProviderURL: server.URL})
		require.True(t, out.Completed, out.Error)
		assert.Empty(t, gotAuth)
	})
}

func TestTargetRunner_LatencyExcludesSettingsLoad(t *testing.T) {
	db := testutil.SetupTestDB(t)
	// 读取 provider 设置时人为变慢
	err := db.Callback().Query().Before("gorm:query").Register("test:slow_query", func(*gorm.DB) {
		time.Sleep(300 * time.Millisecond)
	})
	require.NoError(t, err)

	cfg := testConfig()
	settings := NewSettingsService(repository.NewSettingsRepository(db), cfg)
	runner := NewTargetRunner(provider.NewClient(nil), settings, cfg)
	server := pongProvider(t)

	out := runner.Run(context.Background(), "ping", dto.LabTarget{
		Label:       "A",
		ProviderURL: server.URL,
		TimeoutMs:   intPtr(10000),
	})

	require.True(t, out.Completed, out.Error)
	require.NotNil(t, out.LatencyMs)
	assert.Less(t, *out.LatencyMs, int64(300))
	assert.Equal(t, out.CompletedAt.Sub(out.StartedAt).Milliseconds(), *out.LatencyMs)
}

func TestTargetRunner_HTTPError(t *testing.T) {
	server := statusProvider(t, http.StatusTooManyRequests)

	out := newTestRunner(testConfig()).Run(context.Background(), "ping", dto.LabTarget{Label: "A", ProviderURL: server.URL})

	assert.False(t, out.Completed)
	assert.Equal(t, "Provider returned 429: Too Many Requests", out.Error)
	assert.NotNil(t, out.LatencyMs)
	assert.JSONEq(t, `{"raw":"upstream exploded"}`, string(out.Payload))
	assert.Nil(t, out.SpeedScore)
}

func TestTargetRunner_Timeout(t *testing.T) {
	server := hangingProvider(t)

	start := time.Now()
	out := newTestRunner(testConfig()).Run(context.Background(), "ping", dto.LabTarget{
		Label: "slow", ProviderURL: server.URL, TimeoutMs: intPtr(1000),
	})

	assert.False(t, out.Completed)
	assert.Contains(t, out.Error, "timed out after 1000ms")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTargetRunner_NoURL(t *testing.T) {
	out := newTestRunner(testConfig()).Run(context.Background(), "ping", dto.LabTarget{Label: "A"})

	assert.False(t, out.Completed)
	assert.Equal(t, "No AI Provider URL configured", out.Error)
}

func TestFailedOutcome(t *testing.T) {
	assert.Equal(t, "Experiment cancelled", failedOutcome("a", context.Canceled).Error)
	assert.Equal(t, "Unknown error occurred", failedOutcome("a", nil).Error)
	assert.Equal(t, "boom", failedOutcome("a", errors.New("boom")).Error)
	assert.Nil(t, failedOutcome("a", nil).LatencyMs)
}
