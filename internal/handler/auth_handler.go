package handler

import (
	"errors"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"ragflow-bridge/internal/config"
	"ragflow-bridge/pkg/log"
	"ragflow-bridge/pkg/token"
)

// AuthHandler 使用 API Key 为客户端签发访问令牌。
type AuthHandler struct {
	jwtManager *token.JWTManager
	cfg        config.AuthConfig
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(jwtManager *token.JWTManager, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{jwtManager: jwtManager, cfg: cfg}
}

type tokenRequest struct {
	ClientID string `json:"clientId" binding:"required"`
	APIKey   string `json:"apiKey" binding:"required"`
}

// IssueToken 处理 POST /auth/token。
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := token.VerifyAPIKey(h.cfg.APIKeys, req.ClientID, req.APIKey); err != nil {
		if errors.Is(err, token.ErrInvalidCredentials) {
			log.Warnf("[Auth] 客户端凭证校验失败, clientId: %s", req.ClientID)
			fail(c, http.StatusUnauthorized, "客户端凭证无效")
			return
		}
		handleError(c, "签发令牌", err)
		return
	}

	admin := slices.Contains(h.cfg.AdminClients, req.ClientID)
	tokenString, expiresAt, err := h.jwtManager.GenerateToken(req.ClientID, admin)
	if err != nil {
		handleError(c, "签发令牌", err)
		return
	}
	log.Infof("[Auth] 已为客户端 %s 签发令牌, admin: %v", req.ClientID, admin)
	success(c, "令牌签发成功", gin.H{
		"token":     tokenString,
		"expiresAt": expiresAt.Unix(),
		"admin":     admin,
	})
}
