package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware 检查客户端是否具有管理员权限。
// 此中间件必须在 AuthMiddleware 之后使用；认证关闭时上下文中没有 claims，直接放行。
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(claimsKey); !exists {
			c.Next()
			return
		}

		claims := Claims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "客户端凭证类型错误"})
			return
		}
		if !claims.Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "权限不足，需要管理员权限"})
			return
		}
		c.Next()
	}
}
