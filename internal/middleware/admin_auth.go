package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminAuth 校验管理接口的访问令牌。token 为空时不启用校验（本地开发）。
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-Admin-Token") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的管理令牌"})
			return
		}
		c.Next()
	}
}
