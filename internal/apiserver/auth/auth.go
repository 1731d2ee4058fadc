// Package auth 用户认证：JWT 令牌管理、密码哈希、重置令牌、HTTP 中间件
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"account-admin/internal/shared/model"
)

// contextKey context 键类型
type contextKey string

const ctxKeyAuthUser contextKey = "auth_user"

// Config 认证配置
//
// 签名密钥和各类有效期在启动时装配完成，业务逻辑不再读环境变量。
type Config struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`       // 会话令牌有效期
	BcryptCost    int           `yaml:"bcrypt_cost"`     // bcrypt 成本因子
	ResetTokenTTL time.Duration `yaml:"reset_token_ttl"` // 重置令牌有效期
	MaxAttempts   int           `yaml:"max_attempts"`    // 敏感端点窗口内最大请求数
	AttemptWindow time.Duration `yaml:"attempt_window"`  // 限流窗口长度
	DevMode       bool          `yaml:"-"`               // 开发环境暴露错误细节
}

// DefaultConfig 返回默认认证配置
func DefaultConfig() Config {
	return Config{
		JWTSecret:     "",
		TokenTTL:      24 * time.Hour,
		BcryptCost:    12,
		ResetTokenTTL: 10 * time.Minute,
		MaxAttempts:   10,
		AttemptWindow: 15 * time.Minute,
	}
}

// ============================================================================
// 密码哈希
// ============================================================================

// HashPassword 使用 bcrypt 哈希密码
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = 12
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

// CheckPassword 验证密码
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ============================================================================
// JWT Token
// ============================================================================

var (
	// ErrTokenExpired 令牌格式正确但已过期
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid 令牌无效（签名错误、格式错误等）
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims JWT 声明，仅 sub/iat/exp
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken 为用户生成会话令牌
func GenerateToken(cfg Config, userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseToken 解析并验证会话令牌
//
// 过期返回 ErrTokenExpired，其他任何验证失败返回 ErrTokenInvalid，
// 调用方据此返回不同的提示消息。
func ParseToken(cfg Config, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ============================================================================
// Context 辅助函数
// ============================================================================

// WithAuthUser 将认证用户注入 context
func WithAuthUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, ctxKeyAuthUser, user)
}

// GetAuthUser 从 context 获取认证用户
func GetAuthUser(ctx context.Context) *model.User {
	user, _ := ctx.Value(ctxKeyAuthUser).(*model.User)
	return user
}
