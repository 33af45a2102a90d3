package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/ailab_server/config"
	"github.com/qs3c/ailab_server/internal/model/dto"
	"github.com/qs3c/ailab_server/internal/pkg/response"
	"github.com/qs3c/ailab_server/internal/service"
)

type ModelsHandler struct {
	cfg      *config.Config
	settings *service.SettingsService
}

func NewModelsHandler(cfg *config.Config, settings *service.SettingsService) *ModelsHandler {
	return &ModelsHandler{cfg: cfg, settings: settings}
}

// List 模型目录。模型自带 provider_url 或全局设置了 provider 时可用
// GET /api/v1/lab/models
func (h *ModelsHandler) List(c *gin.Context) {
	current, err := h.settings.Current()
	if err != nil {
		handleError(c, err)
		return
	}

	models := make([]dto.LabModel, len(h.cfg.Lab.Models))
	for i, m := range h.cfg.Lab.Models {
		models[i] = dto.LabModel{
			Name:                   m.Name,
			DisplayName:            m.DisplayName,
			Description:            m.Description,
			InputTokensPerMillion:  m.InputTokensPerMillion,
			OutputTokensPerMillion: m.OutputTokensPerMillion,
			Available:              m.ProviderURL != "" || current.URL != "",
		}
	}

	response.Success(c, gin.H{
		"models": models,
	})
}
