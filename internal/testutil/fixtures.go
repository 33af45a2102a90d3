package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/ailab_server/internal/model"
	"github.com/qs3c/ailab_server/internal/model/dto"
)

var seq atomic.Int64

func nextSeq() int64 {
	return seq.Add(1)
}

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := nextSeq()
	email := fmt.Sprintf("test_%d_%d@example.com", time.Now().UnixNano(), n)
	passwordHash := "$2a$10$abcdefghijklmnopqrstuvwxyz123456" // bcrypt hash placeholder
	user := &model.User{
		Username:     fmt.Sprintf("testuser_%d", n),
		Email:        &email,
		PasswordHash: &passwordHash,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = &email
	}
}

// WithPasswordHash 设置密码哈希
func WithPasswordHash(hash string) func(*model.User) {
	return func(u *model.User) {
		u.PasswordHash = &hash
	}
}

// WithAdmin 设置为管理员
func WithAdmin() func(*model.User) {
	return func(u *model.User) {
		u.IsAdmin = true
	}
}

// TestExperiment 创建测试实验（默认 RUNNING、两个 target）
func TestExperiment(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Experiment)) *model.Experiment {
	t.Helper()

	experiment := &model.Experiment{
		UserID:          userID,
		Label:           fmt.Sprintf("Test Experiment %d", nextSeq()),
		Prompt:          "ping",
		MaxConcurrency:  2,
		TotalTargets:    2,
		Status:          model.ExperimentRunning,
		StartedAt:       time.Now(),
		TargetsSnapshot: datatypes.JSON(`[]`),
	}

	for _, opt := range opts {
		opt(experiment)
	}

	if err := db.Omit("Results").Create(experiment).Error; err != nil {
		t.Fatalf("Failed to create test experiment: %v", err)
	}

	return experiment
}

// WithExperimentStatus 设置实验状态
func WithExperimentStatus(status string) func(*model.Experiment) {
	return func(e *model.Experiment) {
		e.Status = status
	}
}

// WithStartedAt 设置实验开始时间
func WithStartedAt(at time.Time) func(*model.Experiment) {
	return func(e *model.Experiment) {
		e.StartedAt = at
	}
}

// WithCompletedAt 设置实验完成时间
func WithCompletedAt(at time.Time) func(*model.Experiment) {
	return func(e *model.Experiment) {
		e.CompletedAt = &at
	}
}

// WithTotalTargets 设置 target 数
func WithTotalTargets(n int) func(*model.Experiment) {
	return func(e *model.Experiment) {
		e.TotalTargets = n
	}
}

// TestResult 创建测试结果（默认 QUEUED）
func TestResult(t *testing.T, db *gorm.DB, experimentID string, slot int, opts ...func(*model.ExperimentResult)) *model.ExperimentResult {
	t.Helper()

	result := &model.ExperimentResult{
		ExperimentID: experimentID,
		SlotIndex:    slot,
		Label:        fmt.Sprintf("Target %d", slot),
		Status:       model.ResultQueued,
	}

	for _, opt := range opts {
		opt(result)
	}

	if err := db.Create(result).Error; err != nil {
		t.Fatalf("Failed to create test result: %v", err)
	}

	return result
}

// WithResultStatus 设置结果状态，FAILED 时附带错误信息
func WithResultStatus(status string) func(*model.ExperimentResult) {
	return func(r *model.ExperimentResult) {
		r.Status = status
		if status == model.ResultFailed {
			msg := "Provider returned 500: Internal Server Error"
			r.ErrorMessage = &msg
		}
	}
}

// WithAccuracy 设置准确率（0-1）
func WithAccuracy(score float64) func(*model.ExperimentResult) {
	return func(r *model.ExperimentResult) {
		r.AccuracyScore = &score
	}
}

// WithResultCompletedAt 设置结果完成时间
func WithResultCompletedAt(at time.Time) func(*model.ExperimentResult) {
	return func(r *model.ExperimentResult) {
		r.CompletedAt = &at
	}
}

// TestPreset 创建测试预设
func TestPreset(t *testing.T, db *gorm.DB, userID int64, name string, requestCount int, target dto.LabTarget) *model.SavedPreset {
	t.Helper()

	preset := &model.SavedPreset{
		UserID:       userID,
		Name:         name,
		RequestCount: requestCount,
		Target:       datatypes.NewJSONType(target),
	}

	if err := db.Create(preset).Error; err != nil {
		t.Fatalf("Failed to create test preset: %v", err)
	}

	return preset
}
