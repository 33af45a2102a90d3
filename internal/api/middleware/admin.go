package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/ailab_server/internal/pkg/response"
)

// AdminChecker 判断用户是否为管理员
type AdminChecker interface {
	IsAdmin(userID int64) (bool, error)
}

// AdminOnly 管理员权限中间件，需挂在 Auth 之后
func AdminOnly(checker AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		isAdmin, err := checker.IsAdmin(userID)
		if err != nil {
			response.ServerError(c, "权限检查失败")
			c.Abort()
			return
		}
		if !isAdmin {
			response.PermissionError(c, "需要管理员权限")
			c.Abort()
			return
		}

		c.Next()
	}
}
