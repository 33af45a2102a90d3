package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/ailab_server/internal/model/dto"
)

// 实验状态
const (
	ExperimentPending   = "PENDING"
	ExperimentRunning   = "RUNNING"
	ExperimentCompleted = "COMPLETED"
	ExperimentFailed    = "FAILED"
)

// 单个 target 结果状态
const (
	ResultQueued    = "QUEUED"
	ResultRunning   = "RUNNING"
	ResultCompleted = "COMPLETED"
	ResultFailed    = "FAILED"
)

type Experiment struct {
	ID                       string         `gorm:"primaryKey;size:36" json:"id"`
	UserID                   int64          `gorm:"not null;index" json:"user_id"`
	Label                    string         `gorm:"size:120;not null" json:"label"`
	Prompt                   string         `gorm:"type:text;not null" json:"prompt"`
	ExpectedAnswer           *string        `gorm:"type:text" json:"expected_answer"`
	Notes                    *string        `gorm:"type:text" json:"notes"`
	MaxConcurrency           int            `gorm:"not null" json:"max_concurrency"`
	TotalTargets             int            `gorm:"not null" json:"total_targets"`
	TotalCompleted           int            `gorm:"default:0" json:"total_completed"`
	Status                   string         `gorm:"size:20;default:PENDING;index" json:"status"`
	StartedAt                time.Time      `gorm:"index" json:"started_at"`
	CompletedAt              *time.Time     `json:"completed_at"`
	DurationMs               *int64         `json:"duration_ms"`
	TargetsSnapshot          datatypes.JSON `json:"targets_snapshot"`
	CalculatedAccuracyLast10 *float64       `gorm:"column:calculated_accuracy_last10" json:"calculated_accuracy_last10"`
	ArchiveURL               string         `gorm:"size:500" json:"archive_url,omitempty"`
	CreatedAt                time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt                time.Time      `json:"updated_at"`

	// 关联
	Results []*ExperimentResult `gorm:"foreignKey:ExperimentID" json:"results,omitempty"`
}

func (Experiment) TableName() string {
	return "lab_experiments"
}

func (e *Experiment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// ExperimentResult 实验中单个 target 的结果，按 SlotIndex 排序
type ExperimentResult struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	ExperimentID     string         `gorm:"size:36;not null;index" json:"experiment_id"`
	SlotIndex        int            `gorm:"not null" json:"slot_index"`
	Label            string         `gorm:"size:60;not null" json:"label"`
	Color            *string        `gorm:"size:32" json:"color"`
	ModelName        *string        `gorm:"size:100" json:"model_name"`
	Status           string         `gorm:"size:20;default:QUEUED;index" json:"status"`
	LatencyMs        *int64         `json:"latency_ms"`
	PromptTokens     *int           `json:"prompt_tokens"`
	CompletionTokens *int           `json:"completion_tokens"`
	TotalTokens      *int           `json:"total_tokens"`
	AccuracyScore    *float64       `json:"accuracy_score"`
	SpeedScore       *float64       `json:"speed_score"`
	CostEstimate     *float64       `json:"cost_estimate"`
	StartedAt        *time.Time     `json:"started_at"`
	CompletedAt      *time.Time     `gorm:"index" json:"completed_at"`
	AnswerText       *string        `gorm:"type:text" json:"answer_text"`
	ResponsePayload  datatypes.JSON `json:"response_payload"`
	ErrorMessage     *string        `gorm:"type:text" json:"error_message"`
	ReviewScore      *int           `json:"review_score"`
	FeedbackNotes    *string        `gorm:"type:text" json:"feedback_notes"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (ExperimentResult) TableName() string {
	return "lab_experiment_results"
}

func (r *ExperimentResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// SavedPreset 用户保存的模型预设，quick-run 时可按 RequestCount 展开
type SavedPreset struct {
	ID           string                            `gorm:"primaryKey;size:36" json:"id"`
	UserID       int64                             `gorm:"not null;index" json:"user_id"`
	Name         string                            `gorm:"size:60;not null" json:"name"`
	RequestCount int                               `gorm:"default:1" json:"request_count"`
	Target       datatypes.JSONType[dto.LabTarget] `json:"target"`
	CreatedAt    time.Time                         `json:"created_at"`
	UpdatedAt    time.Time                         `json:"updated_at"`
}

func (SavedPreset) TableName() string {
	return "lab_presets"
}

func (p *SavedPreset) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Setting 全局 AI Provider 设置（单行），为空的字段回退到配置文件
type Setting struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	AIProviderURL    *string   `gorm:"column:ai_provider_url;size:500" json:"ai_provider_url"`
	AIProviderAPIKey *string   `gorm:"column:ai_provider_api_key;size:500" json:"-"`
	UpdatedBy        int64     `json:"updated_by"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}
