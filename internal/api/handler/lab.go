package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/ailab_server/internal/model/dto"
	"github.com/qs3c/ailab_server/internal/pkg/response"
	"github.com/qs3c/ailab_server/internal/service"
)

type LabHandler struct {
	labService *service.LabService
}

func NewLabHandler(labService *service.LabService) *LabHandler {
	return &LabHandler{labService: labService}
}

// Create 创建实验。同步模式下客户端断开不会中断运行，只能通过 cancel 接口停止
// POST /api/v1/lab/experiments
func (h *LabHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateExperimentRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	experiment, err := h.labService.Create(ctx, userID, &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, experiment)
}

// List 当前用户的实验列表，按开始时间倒序
// GET /api/v1/lab/experiments?page=1&page_size=20&status=COMPLETED
func (h *LabHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	page, pageSize := pageParams(c)
	items, total, err := h.labService.List(userID, page, pageSize, c.Query("status"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Get 实验详情
// GET /api/v1/lab/experiments/:id
func (h *LabHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	experiment, err := h.labService.Get(userID, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, experiment)
}

// Delete 删除实验
// DELETE /api/v1/lab/experiments/:id
func (h *LabHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.labService.Delete(userID, c.Param("id")); err != nil {
		handleError(c, err)
		return
	}

	response.SuccessWithMessage(c, "删除成功", nil)
}

// Cancel 取消运行中的实验
// POST /api/v1/lab/experiments/:id/cancel
func (h *LabHandler) Cancel(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.labService.Cancel(c.Request.Context(), userID, c.Param("id")); err != nil {
		handleError(c, err)
		return
	}

	response.SuccessWithMessage(c, "已取消", nil)
}

// Feedback 提交人工评审
// POST /api/v1/lab/results/:id/feedback
func (h *LabHandler) Feedback(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.FeedbackRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.labService.SubmitFeedback(userID, c.Param("id"), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, result)
}
