package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/ailab_server/internal/model"
)

// PresetRepository 数据库中的用户预设
type PresetRepository struct {
	db *gorm.DB
}

func NewPresetRepository(db *gorm.DB) *PresetRepository {
	return &PresetRepository{db: db}
}

// Load 获取用户全部预设，按创建时间升序
func (r *PresetRepository) Load(ctx context.Context, userID int64) ([]*model.SavedPreset, error) {
	var presets []*model.SavedPreset
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&presets).Error
	return presets, err
}

// Save 新建或覆盖预设；覆盖时要求预设属于该用户
func (r *PresetRepository) Save(ctx context.Context, userID int64, preset *model.SavedPreset) error {
	preset.UserID = userID
	db := r.db.WithContext(ctx)

	if preset.ID == "" {
		return db.Create(preset).Error
	}

	var existing model.SavedPreset
	err := db.Where("id = ? AND user_id = ?", preset.ID, userID).First(&existing).Error
	if err != nil {
		return err
	}
	preset.CreatedAt = existing.CreatedAt
	return db.Save(preset).Error
}

func (r *PresetRepository) Delete(ctx context.Context, userID int64, presetID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", presetID, userID).
		Delete(&model.SavedPreset{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
