package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/ailab_server/internal/model"
)

type ResultRepository struct {
	db *gorm.DB
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func (r *ResultRepository) GetByID(id string) (*model.ExperimentResult, error) {
	var result model.ExperimentResult
	err := r.db.Where("id = ?", id).First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListByExperimentID 按 slot_index 升序
func (r *ResultRepository) ListByExperimentID(experimentID string) ([]*model.ExperimentResult, error) {
	var results []*model.ExperimentResult
	err := r.db.Where("experiment_id = ?", experimentID).
		Order("slot_index ASC").
		Find(&results).Error
	return results, err
}

func (r *ResultRepository) UpdateFields(id string, fields map[string]interface{}) error {
	return r.db.Model(&model.ExperimentResult{}).Where("id = ?", id).Updates(fields).Error
}

// MarkRunning QUEUED -> RUNNING，结果已被取消或已被其他进程领取时返回 false
func (r *ResultRepository) MarkRunning(id string, startedAt time.Time) (bool, error) {
	result := r.db.Model(&model.ExperimentResult{}).
		Where("id = ? AND status = ?", id, model.ResultQueued).
		Updates(map[string]interface{}{
			"status":     model.ResultRunning,
			"started_at": startedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ResultRepository) CountByStatus(experimentID, status string) (int64, error) {
	var count int64
	err := r.db.Model(&model.ExperimentResult{}).
		Where("experiment_id = ? AND status = ?", experimentID, status).
		Count(&count).Error
	return count, err
}

// FailByStatus 把处于给定状态的结果标记为 FAILED
func (r *ResultRepository) FailByStatus(experimentID string, statuses []string, message string, at time.Time) (int64, error) {
	result := r.db.Model(&model.ExperimentResult{}).
		Where("experiment_id = ? AND status IN ?", experimentID, statuses).
		Updates(map[string]interface{}{
			"status":        model.ResultFailed,
			"error_message": message,
			"completed_at":  at,
		})
	return result.RowsAffected, result.Error
}

// ListRecentScored 最近完成的、已有准确率评分的结果
func (r *ResultRepository) ListRecentScored(experimentID string, limit int) ([]*model.ExperimentResult, error) {
	var results []*model.ExperimentResult
	err := r.db.Where("experiment_id = ? AND accuracy_score IS NOT NULL", experimentID).
		Order("completed_at DESC").
		Order("slot_index ASC").
		Limit(limit).
		Find(&results).Error
	return results, err
}
