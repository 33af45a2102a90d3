package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/ailab_server/internal/model/dto"
	"github.com/qs3c/ailab_server/internal/pkg/response"
	"github.com/qs3c/ailab_server/internal/service"
)

type SettingsHandler struct {
	settingsService *service.SettingsService
}

func NewSettingsHandler(settingsService *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

// Get 当前生效的 provider 设置，API key 只返回是否已设置
// GET /api/v1/lab/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	current, err := h.settingsService.Current()
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, current)
}

// Update PUT /api/v1/lab/settings
func (h *SettingsHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.UpdateSettingsRequest
	if !bindJSON(c, &req) {
		return
	}

	current, err := h.settingsService.Update(userID, &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, current)
}
