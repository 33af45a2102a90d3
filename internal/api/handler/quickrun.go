package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/ailab_server/internal/model/dto"
	"github.com/qs3c/ailab_server/internal/pkg/response"
	"github.com/qs3c/ailab_server/internal/service"
)

type QuickRunHandler struct {
	quickRunService *service.QuickRunService
}

func NewQuickRunHandler(quickRunService *service.QuickRunService) *QuickRunHandler {
	return &QuickRunHandler{quickRunService: quickRunService}
}

// Run 快速对比，不落库。客户端断开时中止全部调用
// POST /api/v1/lab/quick-run
func (h *QuickRunHandler) Run(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.QuickRunRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.quickRunService.Run(c.Request.Context(), userID, &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, resp)
}
