package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/qs3c/ailab_server/config"
	"github.com/qs3c/ailab_server/internal/model/dto"
	"github.com/qs3c/ailab_server/internal/pkg/normalize"
	"github.com/qs3c/ailab_server/internal/pkg/provider"
	"github.com/qs3c/ailab_server/internal/pkg/scoring"
)

const unknownErrorMessage = "Unknown error occurred"

// TargetOutcome 单个 target 调用的统一结果，失败时 Error 非空
type TargetOutcome struct {
	Label            string
	Completed        bool
	ModelName        *string
	LatencyMs        *int64
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	SpeedScore       *float64
	CostEstimate     *float64
	AnswerText       string
	Payload          json.RawMessage
	Error            string
	StartedAt        time.Time
	CompletedAt      time.Time
}

// TargetRunner 对一个 target 发起调用并把结果整理为 TargetOutcome。
// 任何失败都收敛在返回值里，Run 不会返回 error。
type TargetRunner struct {
	client   *provider.Client
	settings *SettingsService
	labCfg   config.LabConfig
}

func NewTargetRunner(client *provider.Client, settings *SettingsService, cfg *config.Config) *TargetRunner {
	return &TargetRunner{
		client:   client,
		settings: settings,
		labCfg:   cfg.Lab,
	}
}

// Run 执行一次调用
func (r *TargetRunner) Run(ctx context.Context, prompt string, target dto.LabTarget) *TargetOutcome {
	out := &TargetOutcome{
		Label:     target.Label,
		ModelName: nonEmpty(target.ModelName),
		StartedAt: time.Now(),
	}

	settings, err := r.settings.Current()
	if err != nil {
		return out.fail(fmt.Sprintf("failed to load provider settings: %v", err))
	}

	url, apiKey := target.ProviderURL, target.APIKey
	if url == "" {
		url = settings.URL
		if apiKey == "" {
			apiKey = settings.APIKey
		}
	}
	if url == "" {
		return out.fail(provider.ErrNoProviderURL.Error())
	}

	timeoutMs := r.timeoutFor(target, settings)
	payload := provider.BuildChatPayload(prompt, provider.GenerationParams{
		Model:            target.ModelName,
		SystemPrompt:     target.SystemPrompt,
		Temperature:      target.Temperature,
		TopP:             target.TopP,
		TopK:             target.TopK,
		MaxTokens:        target.MaxTokens,
		FrequencyPenalty: target.FrequencyPenalty,
		PresencePenalty:  target.PresencePenalty,
	})

	out.StartedAt = time.Now()
	resp, err := r.client.Invoke(ctx, &provider.Request{
		URL:     url,
		APIKey:  apiKey,
		Payload: payload,
		Timeout: time.Duration(timeoutMs) * time.Millisecond,
	})
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = unknownErrorMessage
		}
		return out.fail(msg)
	}

	out.Payload = resp.Body
	if !resp.OK {
		return out.fail(fmt.Sprintf("Provider returned %d: %s", resp.Status, resp.StatusText))
	}

	out.finish()
	norm := normalize.Normalize(resp.Text)
	out.Completed = true
	out.AnswerText = norm.AnswerText
	if norm.ModelName != nil {
		out.ModelName = norm.ModelName
	}
	out.PromptTokens = norm.PromptTokens
	out.CompletionTokens = norm.CompletionTokens
	out.TotalTokens = norm.TotalTokens

	speed := scoring.ComputeSpeedScore(*out.LatencyMs, int64(timeoutMs))
	out.SpeedScore = &speed
	out.CostEstimate = scoring.ComputeCost(norm.PromptTokens, norm.CompletionTokens,
		target.InputTokensPerMillion, target.OutputTokensPerMillion)
	return out
}

func (r *TargetRunner) timeoutFor(target dto.LabTarget, settings *dto.ProviderSettings) int {
	if target.TimeoutMs != nil {
		return *target.TimeoutMs
	}
	if settings.TimeoutMs > 0 {
		return settings.TimeoutMs
	}
	return r.labCfg.DefaultTimeoutMs
}

func (o *TargetOutcome) finish() {
	if o.LatencyMs != nil {
		return
	}
	o.CompletedAt = time.Now()
	latency := o.CompletedAt.Sub(o.StartedAt).Milliseconds()
	o.LatencyMs = &latency
}

func (o *TargetOutcome) fail(msg string) *TargetOutcome {
	o.finish()
	o.Completed = false
	o.Error = msg
	return o
}

// failedOutcome 未能正常执行（取消、panic）的 target
func failedOutcome(label string, err error) *TargetOutcome {
	msg := unknownErrorMessage
	switch {
	case errors.Is(err, context.Canceled):
		msg = cancelledMessage
	case err != nil && err.Error() != "":
		msg = err.Error()
	}
	now := time.Now()
	return &TargetOutcome{Label: label, Error: msg, StartedAt: now, CompletedAt: now}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
