package service

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/qs3c/ailab_server/config"
	"github.com/qs3c/ailab_server/internal/model"
	"github.com/qs3c/ailab_server/internal/model/dto"
	"github.com/qs3c/ailab_server/internal/repository"
)

// SettingsService 全局 AI Provider 设置：数据库中的值优先，其次是配置文件
type SettingsService struct {
	settingsRepo *repository.SettingsRepository
	cfg          *config.Config
}

// NewSettingsService settingsRepo 为 nil 时只使用配置文件（CLI 场景）
func NewSettingsService(settingsRepo *repository.SettingsRepository, cfg *config.Config) *SettingsService {
	return &SettingsService{
		settingsRepo: settingsRepo,
		cfg:          cfg,
	}
}

// Current 当前生效的设置
func (s *SettingsService) Current() (*dto.ProviderSettings, error) {
	settings := &dto.ProviderSettings{
		URL:       s.cfg.AIProvider.URL,
		APIKey:    s.cfg.AIProvider.APIKey,
		TimeoutMs: s.cfg.AIProvider.TimeoutMs,
	}
	if settings.TimeoutMs <= 0 {
		settings.TimeoutMs = s.cfg.Lab.DefaultTimeoutMs
	}

	if s.settingsRepo != nil {
		row, err := s.settingsRepo.Get()
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if row != nil {
			if row.AIProviderURL != nil && *row.AIProviderURL != "" {
				settings.URL = *row.AIProviderURL
			}
			if row.AIProviderAPIKey != nil && *row.AIProviderAPIKey != "" {
				settings.APIKey = *row.AIProviderAPIKey
			}
		}
	}

	settings.APIKeySet = settings.APIKey != ""
	return settings, nil
}

// Update 更新设置，需要管理员权限。空串清空对应字段
func (s *SettingsService) Update(userID int64, req *dto.UpdateSettingsRequest) (*dto.ProviderSettings, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if s.settingsRepo == nil {
		return nil, errors.New("settings storage not configured")
	}

	row, err := s.settingsRepo.Get()
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		row = &model.Setting{}
	}

	if req.AIProviderURL != nil {
		row.AIProviderURL = blankToNil(*req.AIProviderURL)
	}
	if req.AIProviderAPIKey != nil {
		row.AIProviderAPIKey = blankToNil(*req.AIProviderAPIKey)
	}
	row.UpdatedBy = userID

	if err := s.settingsRepo.Save(row); err != nil {
		return nil, err
	}
	return s.Current()
}

func blankToNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
