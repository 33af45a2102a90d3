package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/ailab_server/internal/model"
)

type ExperimentRepository struct {
	db *gorm.DB
}

func NewExperimentRepository(db *gorm.DB) *ExperimentRepository {
	return &ExperimentRepository{db: db}
}

// CreateWithResults 在同一事务中写入实验和全部占位结果
func (r *ExperimentRepository) CreateWithResults(experiment *model.Experiment, results []*model.ExperimentResult) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Results").Create(experiment).Error; err != nil {
			return err
		}
		for _, res := range results {
			res.ExperimentID = experiment.ID
			if err := tx.Create(res).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ExperimentRepository) GetByID(id string) (*model.Experiment, error) {
	var experiment model.Experiment
	err := r.db.Where("id = ?", id).First(&experiment).Error
	if err != nil {
		return nil, err
	}
	return &experiment, nil
}

// GetByIDWithResults 结果按 slot_index 升序
func (r *ExperimentRepository) GetByIDWithResults(id string) (*model.Experiment, error) {
	var experiment model.Experiment
	err := r.db.Preload("Results", func(db *gorm.DB) *gorm.DB {
		return db.Order("slot_index ASC")
	}).Where("id = ?", id).First(&experiment).Error
	if err != nil {
		return nil, err
	}
	return &experiment, nil
}

// ListByUserID 获取用户的实验列表
func (r *ExperimentRepository) ListByUserID(userID int64, page, pageSize int, status string) ([]*model.Experiment, int64, error) {
	var experiments []*model.Experiment
	var total int64

	query := r.db.Model(&model.Experiment{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("started_at DESC").Offset(offset).Limit(pageSize).Find(&experiments).Error; err != nil {
		return nil, 0, err
	}

	return experiments, total, nil
}

func (r *ExperimentRepository) UpdateFields(id string, fields map[string]interface{}) error {
	return r.db.Model(&model.Experiment{}).Where("id = ?", id).Updates(fields).Error
}

// FinalizeIfRunning 仅当实验仍为 RUNNING 时写入终态，返回是否写入
func (r *ExperimentRepository) FinalizeIfRunning(id string, fields map[string]interface{}) (bool, error) {
	result := r.db.Model(&model.Experiment{}).
		Where("id = ? AND status = ?", id, model.ExperimentRunning).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListStaleRunning 获取开始时间早于 before 仍在运行的实验
func (r *ExperimentRepository) ListStaleRunning(before time.Time) ([]*model.Experiment, error) {
	var experiments []*model.Experiment
	err := r.db.Where("status = ? AND started_at < ?", model.ExperimentRunning, before).
		Order("started_at ASC").
		Find(&experiments).Error
	return experiments, err
}

// ListFinishedBefore 获取完成时间早于 before 的实验
func (r *ExperimentRepository) ListFinishedBefore(before time.Time) ([]*model.Experiment, error) {
	var experiments []*model.Experiment
	err := r.db.Where("status IN ? AND completed_at < ?",
		[]string{model.ExperimentCompleted, model.ExperimentFailed}, before).
		Order("completed_at ASC").
		Find(&experiments).Error
	return experiments, err
}

// DeleteWithResults 删除实验及其全部结果
func (r *ExperimentRepository) DeleteWithResults(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("experiment_id = ?", id).Delete(&model.ExperimentResult{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&model.Experiment{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
