package service

import (
	"errors"

	"gorm.io/gorm"

	"github.com/qs3c/ailab_server/internal/repository"
)

var (
	ErrAdminRequired = errors.New("需要管理员权限")
)

// AccessService 实验相关的权限判断
type AccessService struct {
	userRepo       *repository.UserRepository
	experimentRepo *repository.ExperimentRepository
}

func NewAccessService(userRepo *repository.UserRepository, experimentRepo *repository.ExperimentRepository) *AccessService {
	return &AccessService{
		userRepo:       userRepo,
		experimentRepo: experimentRepo,
	}
}

// IsAdmin 用户不存在时视为非管理员
func (s *AccessService) IsAdmin(userID int64) (bool, error) {
	return s.userRepo.IsAdmin(userID)
}

// RequireAdmin 非管理员返回 ErrAdminRequired
func (s *AccessService) RequireAdmin(userID int64) error {
	ok, err := s.IsAdmin(userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAdminRequired
	}
	return nil
}

// OwnsExperiment 实验不存在时返回 ErrExperimentNotFound
func (s *AccessService) OwnsExperiment(userID int64, experimentID string) (bool, error) {
	experiment, err := s.experimentRepo.GetByID(experimentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrExperimentNotFound
		}
		return false, err
	}
	return experiment.UserID == userID, nil
}
