package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/ailab_server/internal/model/dto"
	"github.com/qs3c/ailab_server/internal/pkg/response"
	"github.com/qs3c/ailab_server/internal/service"
)

type PresetHandler struct {
	presetService *service.PresetService
}

func NewPresetHandler(presetService *service.PresetService) *PresetHandler {
	return &PresetHandler{presetService: presetService}
}

// List GET /api/v1/lab/presets
func (h *PresetHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	presets, err := h.presetService.List(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{"presets": presets})
}

// Save 新建或覆盖（带 id）预设。target.label 为空时使用预设名
// POST /api/v1/lab/presets
func (h *PresetHandler) Save(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.SavePresetRequest
	if !decodeJSON(c, &req) {
		return
	}

	preset, err := h.presetService.Save(c.Request.Context(), userID, &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, preset)
}

// Delete DELETE /api/v1/lab/presets/:id
func (h *PresetHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.presetService.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		handleError(c, err)
		return
	}

	response.SuccessWithMessage(c, "删除成功", nil)
}
