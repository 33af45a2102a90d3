package service

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/ailab_server/internal/model"
	"github.com/qs3c/ailab_server/internal/model/dto"
)

var ErrPresetNotFound = errors.New("预设不存在")

// SavedPresetStore 预设存储：API 使用数据库，命令行使用 YAML 文件
type SavedPresetStore interface {
	Load(ctx context.Context, userID int64) ([]*model.SavedPreset, error)
	Save(ctx context.Context, userID int64, preset *model.SavedPreset) error
	Delete(ctx context.Context, userID int64, id string) error
}

type PresetService struct {
	store  SavedPresetStore
	access *AccessService
}

func NewPresetService(store SavedPresetStore, access *AccessService) *PresetService {
	return &PresetService{store: store, access: access}
}

// List 获取用户的预设
func (s *PresetService) List(ctx context.Context, userID int64) ([]*model.SavedPreset, error) {
	if err := s.requireAdmin(userID); err != nil {
		return nil, err
	}
	return s.store.Load(ctx, userID)
}

// Save 新建或覆盖预设，target 未填 label 时使用预设名
func (s *PresetService) Save(ctx context.Context, userID int64, req *dto.SavePresetRequest) (*model.SavedPreset, error) {
	req.Name = strings.TrimSpace(req.Name)
	if strings.TrimSpace(req.Target.Label) == "" {
		req.Target.Label = req.Name
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if err := s.requireAdmin(userID); err != nil {
		return nil, err
	}

	count := req.RequestCount
	if count == 0 {
		count = 1
	}

	preset := &model.SavedPreset{
		ID:           req.ID,
		Name:         req.Name,
		RequestCount: count,
		Target:       datatypes.NewJSONType(req.Target),
	}
	if err := s.store.Save(ctx, userID, preset); err != nil {
		return nil, presetError(err)
	}
	return preset, nil
}

// Delete 删除预设
func (s *PresetService) Delete(ctx context.Context, userID int64, id string) error {
	if err := s.requireAdmin(userID); err != nil {
		return err
	}
	return presetError(s.store.Delete(ctx, userID, id))
}

func (s *PresetService) requireAdmin(userID int64) error {
	if s.access == nil {
		return nil
	}
	return s.access.RequireAdmin(userID)
}

// presetError 两种存储的"不存在"统一为 ErrPresetNotFound
func presetError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, fs.ErrNotExist) {
		return ErrPresetNotFound
	}
	return err
}
