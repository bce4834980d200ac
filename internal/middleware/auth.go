// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ragflow-bridge/pkg/log"
	"ragflow-bridge/pkg/token"
)

const claimsKey = "claims"

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// enabled 为 false 时所有请求直接放行，不写入 claims。
func AuthMiddleware(jwtManager *token.JWTManager, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" && websocket.IsWebSocketUpgrade(c.Request) && c.Query("token") != "" {
			// 浏览器无法为 WebSocket 握手设置请求头，允许通过 query 传递 token
			authHeader = "Bearer " + c.Query("token")
		}
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头"})
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式"})
			return
		}

		claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			log.Warnf("[Auth] token 校验失败, path: %s, error: %v", c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// Claims 返回 AuthMiddleware 写入上下文的 claims，未认证时返回 nil。
func Claims(c *gin.Context) *token.CustomClaims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*token.CustomClaims)
	return claims
}

// ClientID 返回当前请求的客户端标识，未认证时为空串。
func ClientID(c *gin.Context) string {
	if claims := Claims(c); claims != nil {
		return claims.ClientID
	}
	return ""
}
