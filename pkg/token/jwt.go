// Package token 提供了用于生成和验证 JSON Web Tokens (JWT) 的功能，以及 API Key 的校验。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials 表示客户端名称或 API Key 不正确。
var ErrInvalidCredentials = errors.New("invalid client credentials")

// JWTManager 负责管理 JWT 的生成和验证。
type JWTManager struct {
	secretKey []byte
	tokenDur  time.Duration
}

// CustomClaims 定义了我们想要在 JWT 中存储的自定义数据。
type CustomClaims struct {
	ClientID string `json:"clientId"`
	Admin    bool   `json:"admin"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
func NewJWTManager(secret string, expireHours int) *JWTManager {
	if expireHours <= 0 {
		expireHours = 24
	}
	return &JWTManager{
		secretKey: []byte(secret),
		tokenDur:  time.Hour * time.Duration(expireHours),
	}
}

// GenerateToken 为 API 客户端签发访问令牌，返回令牌及其过期时间。
func (m *JWTManager) GenerateToken(clientID string, admin bool) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(m.tokenDur)
	claims := CustomClaims{
		ClientID: clientID,
		Admin:    admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	return signed, expires, err
}

// VerifyToken 验证给定的 token 字符串。
// 如果 token 无效（例如，签名不匹配或已过期），则返回错误。
func (m *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// HashAPIKey 生成 API Key 的 bcrypt 哈希，用于写入配置文件。
func HashAPIKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(b), err
}

// VerifyAPIKey 使用配置中的 bcrypt 哈希校验客户端的 API Key。
func VerifyAPIKey(hashes map[string]string, clientID, key string) error {
	hash, ok := hashes[clientID]
	if !ok || key == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
