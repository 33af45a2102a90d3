package dto

import (
	"bytes"
	"encoding/json"
)

// LabTarget 一个被测的 AI Provider 端点及其生成参数
type LabTarget struct {
	Label                  string   `json:"label" yaml:"label" binding:"required,min=1,max=60"`
	ModelName              string   `json:"model_name,omitempty" yaml:"model_name,omitempty" binding:"omitempty,max=100"`
	Color                  string   `json:"color,omitempty" yaml:"color,omitempty" binding:"omitempty,max=32"`
	TimeoutMs              *int     `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty" binding:"omitempty,min=1000,max=120000"`
	SystemPrompt           string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty" binding:"omitempty,max=8000"`
	Temperature            *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" binding:"omitempty,min=0,max=2"`
	TopP                   *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty" binding:"omitempty,min=0,max=1"`
	TopK                   *int     `json:"top_k,omitempty" yaml:"top_k,omitempty" binding:"omitempty,min=0,max=1000"`
	MaxTokens              *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" binding:"omitempty,min=1,max=200000"`
	FrequencyPenalty       *float64 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty" binding:"omitempty,min=-2,max=2"`
	PresencePenalty        *float64 `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty" binding:"omitempty,min=-2,max=2"`
	ProviderURL            string   `json:"provider_url,omitempty" yaml:"provider_url,omitempty" binding:"omitempty,url,max=500"`
	APIKey                 string   `json:"api_key,omitempty" yaml:"api_key,omitempty" binding:"omitempty,max=500"`
	InputTokensPerMillion  *float64 `json:"input_tokens_per_million,omitempty" yaml:"input_tokens_per_million,omitempty" binding:"omitempty,min=0"`
	OutputTokensPerMillion *float64 `json:"output_tokens_per_million,omitempty" yaml:"output_tokens_per_million,omitempty" binding:"omitempty,min=0"`
}

// CreateExperimentRequest 创建实验请求
type CreateExperimentRequest struct {
	Label          string      `json:"label" binding:"required,max=120"`
	Prompt         string      `json:"prompt" binding:"required,max=20000"`
	ExpectedAnswer *string     `json:"expected_answer,omitempty" binding:"omitempty,max=20000"`
	Notes          *string     `json:"notes,omitempty" binding:"omitempty,max=2000"`
	MaxConcurrency *int        `json:"max_concurrency,omitempty" binding:"omitempty,min=1,max=6"`
	Targets        []LabTarget `json:"targets" binding:"required,min=1,max=6,dive"`
	Async          bool        `json:"async,omitempty"`
}

// ExperimentListItem 实验列表项
type ExperimentListItem struct {
	ID                       string   `json:"id"`
	Label                    string   `json:"label"`
	Status                   string   `json:"status"`
	TotalTargets             int      `json:"total_targets"`
	TotalCompleted           int      `json:"total_completed"`
	DurationMs               *int64   `json:"duration_ms"`
	CalculatedAccuracyLast10 *float64 `json:"calculated_accuracy_last10"`
	StartedAt                string   `json:"started_at"`
	CompletedAt              string   `json:"completed_at,omitempty"`
}

// FeedbackRequest 人工评审。字段缺省表示不修改，显式 null 表示清空
type FeedbackRequest struct {
	ReviewScore     Nullable[int]     `json:"review_score" binding:"omitempty,min=1,max=5"`
	FeedbackNotes   Nullable[string]  `json:"feedback_notes" binding:"omitempty,max=2000"`
	AccuracyPercent Nullable[float64] `json:"accuracy_percent" binding:"omitempty,min=0,max=100"`
}

// Empty 三个字段都未出现
func (r *FeedbackRequest) Empty() bool {
	return !r.ReviewScore.Set && !r.FeedbackNotes.Set && !r.AccuracyPercent.Set
}

// QuickRunRequest quick-run 请求，targets 和 preset_ids 二选一
type QuickRunRequest struct {
	Prompt    string      `json:"prompt" binding:"required,max=20000"`
	Targets   []LabTarget `json:"targets,omitempty" binding:"required_without=PresetIDs,omitempty,max=6,dive"`
	PresetIDs []string    `json:"preset_ids,omitempty" binding:"required_without=Targets,omitempty,max=6,dive,required"`
}

// QuickRunResponse quick-run 响应
type QuickRunResponse struct {
	Success      bool             `json:"success"`
	DurationMs   int64            `json:"duration_ms"`
	TotalTargets int              `json:"total_targets"`
	Successful   int              `json:"successful"`
	Failed       int              `json:"failed"`
	Results      []QuickRunResult `json:"results"`
}

// QuickRunResult 单个 target 的即时结果
type QuickRunResult struct {
	Target  string        `json:"target"`
	Success bool          `json:"success"`
	Data    *QuickRunData `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type QuickRunData struct {
	Label            string          `json:"label"`
	ModelName        *string         `json:"model_name"`
	LatencyMs        int64           `json:"latency_ms"`
	PromptTokens     *int            `json:"prompt_tokens"`
	CompletionTokens *int            `json:"completion_tokens"`
	TotalTokens      *int            `json:"total_tokens"`
	CostEstimate     *float64        `json:"cost_estimate"`
	SpeedScore       *float64        `json:"speed_score"`
	Answer           string          `json:"answer"`
	ResponsePayload  json.RawMessage `json:"response_payload,omitempty"`
}

// SavePresetRequest 保存预设，带 id 时覆盖已有预设
type SavePresetRequest struct {
	ID           string    `json:"id,omitempty" binding:"omitempty,uuid"`
	Name         string    `json:"name" binding:"required,max=54"`
	RequestCount int       `json:"request_count,omitempty" binding:"omitempty,min=1,max=6"`
	Target       LabTarget `json:"target"`
}

// ProviderSettings 全局 AI Provider 设置
type ProviderSettings struct {
	URL       string `json:"ai_provider_url"`
	APIKeySet bool   `json:"ai_provider_api_key_set"`
	TimeoutMs int    `json:"timeout_ms"`
	APIKey    string `json:"-"`
}

// UpdateSettingsRequest 更新全局设置，空串表示清空
type UpdateSettingsRequest struct {
	AIProviderURL    *string `json:"ai_provider_url,omitempty" binding:"omitempty,max=500"`
	AIProviderAPIKey *string `json:"ai_provider_api_key,omitempty" binding:"omitempty,max=500"`
}

// LabModel 模型目录项
type LabModel struct {
	Name                   string  `json:"name"`
	DisplayName            string  `json:"display_name"`
	Description            string  `json:"description"`
	InputTokensPerMillion  float64 `json:"input_tokens_per_million"`
	OutputTokensPerMillion float64 `json:"output_tokens_per_million"`
	Available              bool    `json:"available"`
}

// Nullable 区分 JSON 中字段缺省和显式 null
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// Of 构造一个有值的 Nullable
func Of[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// Null 构造一个显式 null
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}
