package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/ailab_server/internal/model"
)

const settingsRowID = 1

type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get 未保存过设置时返回 gorm.ErrRecordNotFound
func (r *SettingsRepository) Get() (*model.Setting, error) {
	var setting model.Setting
	err := r.db.Where("id = ?", settingsRowID).First(&setting).Error
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *SettingsRepository) Save(setting *model.Setting) error {
	setting.ID = settingsRowID
	return r.db.Save(setting).Error
}
