package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"account-admin/internal/shared/apperror"
	"account-admin/internal/shared/model"
)

// UserStore 认证所需的用户存储能力
//
// internal/shared/storage 的各实现均满足此接口。
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserWithSecretsByID(ctx context.Context, id string) (*model.User, error)
	GetUserWithSecretsByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error)
	SetUserResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ClearUserResetToken(ctx context.Context, id string) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
}

// ============================================================================
// 认证中间件
// ============================================================================

// Protect 创建 JWT 认证中间件
//
// 按序执行：提取 Bearer 令牌 -> 解析验证 -> 加载用户 ->
// 密码改动时间检查 -> 注入 context。任一步失败返回 401。
func Protect(store UserStore, cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				apperror.Write(w, cfg.DevMode, apperror.Authentication("You are not logged in."))
				return
			}

			claims, err := ParseToken(cfg, tokenString)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					apperror.Write(w, cfg.DevMode, apperror.Authentication("Token has expired."))
				} else {
					apperror.Write(w, cfg.DevMode, apperror.Authentication("Invalid token."))
				}
				return
			}

			// 必须带凭据字段查询，密码改动时间参与校验
			user, err := store.GetUserWithSecretsByID(r.Context(), claims.Subject)
			if err != nil {
				apperror.Write(w, cfg.DevMode, apperror.Operational("failed to load user", err))
				return
			}
			if user == nil {
				apperror.Write(w, cfg.DevMode, apperror.Authentication("User not found."))
				return
			}

			// 改密后签发时间早于改动时间的旧令牌全部失效
			if claims.IssuedAt != nil && user.HasChangedPasswordSince(claims.IssuedAt.Unix()) {
				apperror.Write(w, cfg.DevMode, apperror.Authentication("User recently changed password. Log in again."))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), user)))
		})
	}
}

// extractBearerToken 从 Authorization 头提取 Bearer 令牌
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// ============================================================================
// 授权中间件
// ============================================================================

// RestrictTo 角色限制中间件，必须在 Protect 之后挂载
func RestrictTo(devMode bool, roles ...model.UserRole) func(http.Handler) http.Handler {
	allowed := make(map[model.UserRole]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetAuthUser(r.Context())
			if user == nil {
				// Protect 未挂载属于编码错误
				apperror.Write(w, devMode, apperror.Operational("authorization check without authenticated user", nil))
				return
			}
			if !allowed[user.Role] {
				apperror.Write(w, devMode, apperror.Authorization("You do not have permission to perform this action."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
