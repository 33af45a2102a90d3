package handler

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/qs3c/ailab_server/internal/api/middleware"
	"github.com/qs3c/ailab_server/internal/pkg/response"
	"github.com/qs3c/ailab_server/internal/service"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ConfigureBinding 请求体严格解码（拒绝未知字段），并与服务层共用校验规则
func ConfigureBinding() {
	binding.Validator = service.StructValidator{}
	binding.EnableDecoderDisallowUnknownFields = true
}

// bindJSON 解析并校验请求体，失败时已写入响应
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			response.ValidationError(c, "参数校验失败", verr.Fields)
			return false
		}
		response.ParamError(c, "请求格式错误: "+err.Error())
		return false
	}
	return true
}

// decodeJSON 只做严格解码不校验，由服务层补默认值后再校验
func decodeJSON(c *gin.Context, obj interface{}) bool {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(obj); err != nil {
		response.ParamError(c, "请求格式错误: "+err.Error())
		return false
	}
	return true
}

// currentUser 取当前登录用户，未登录时已写入响应
func currentUser(c *gin.Context) (int64, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
	}
	return userID, ok
}

// pageParams 解析 page / page_size，非法值回退到默认值
func pageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// handleError 服务层错误到统一响应的映射
func handleError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		response.ValidationError(c, "参数校验失败", verr.Fields)
	case errors.Is(err, service.ErrAdminRequired),
		errors.Is(err, service.ErrExperimentPermission):
		response.PermissionError(c, err.Error())
	case errors.Is(err, service.ErrExperimentNotFound),
		errors.Is(err, service.ErrResultNotFound),
		errors.Is(err, service.ErrPresetNotFound),
		errors.Is(err, service.ErrUserNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrNoFeedbackFields),
		errors.Is(err, service.ErrExperimentNotRunning),
		errors.Is(err, service.ErrEmailExists),
		errors.Is(err, service.ErrUsernameExists):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		response.AuthError(c, err.Error())
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		response.ServerError(c, "")
	}
}
