package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"account-admin/internal/shared/apperror"
	"account-admin/internal/shared/cache"
	"account-admin/internal/shared/email"
	"account-admin/internal/shared/model"
	"account-admin/internal/shared/storage"
)

// Handler 认证 HTTP 处理器
type Handler struct {
	store   UserStore
	cfg     Config
	limiter cache.RateLimiter
	mailer  email.Sender
	metrics MetricsRecorder
}

// MetricsRecorder 认证相关指标上报
type MetricsRecorder interface {
	RecordLogin(outcome string)
	RecordRegistration()
	RecordPasswordReset(stage string)
}

// noopMetrics 未注入指标时的占位实现
type noopMetrics struct{}

func (noopMetrics) RecordLogin(string)         {}
func (noopMetrics) RecordRegistration()        {}
func (noopMetrics) RecordPasswordReset(string) {}

// NewHandler 创建认证处理器
func NewHandler(store UserStore, cfg Config, limiter cache.RateLimiter, mailer email.Sender) *Handler {
	if limiter == nil {
		limiter = cache.NewNoOpCache()
	}
	return &Handler{store: store, cfg: cfg, limiter: limiter, mailer: mailer, metrics: noopMetrics{}}
}

// SetMetrics 注入指标上报器
func (h *Handler) SetMetrics(m MetricsRecorder) {
	if m != nil {
		h.metrics = m
	}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/forgot-password", h.ForgotPassword)
	mux.HandleFunc("PATCH /api/v1/auth/reset-password/{token}", h.ResetPassword)

	protect := Protect(h.store, h.cfg)
	mux.Handle("PATCH /api/v1/auth/update-password", protect(http.HandlerFunc(h.UpdatePassword)))
	mux.Handle("GET /api/v1/auth/me", protect(http.HandlerFunc(h.Me)))
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Role            string `json:"role,omitempty"`
	PhoneNumber     string `json:"phoneNumber,omitempty"`
	Company         string `json:"company,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type authResponse struct {
	User  *model.User `json:"user,omitempty"`
	Token string      `json:"token"`
}

// ============================================================================
// Handlers
// ============================================================================

// Register 用户注册
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, apperror.Validation("invalid request body"))
		return
	}

	if msg := validateName(req.Name); msg != "" {
		h.fail(w, apperror.Validation(msg))
		return
	}
	if msg := validateEmail(req.Email); msg != "" {
		h.fail(w, apperror.Validation(msg))
		return
	}
	if msg := validatePasswordPair(req.Password, req.ConfirmPassword); msg != "" {
		h.fail(w, apperror.Validation(msg))
		return
	}

	role := model.UserRoleUser
	if req.Role != "" {
		role = model.UserRole(req.Role)
		// 公开注册不能自封管理员；管理员只能来自启动引导或管理端创建
		if !role.Valid() || role == model.UserRoleAdmin {
			h.fail(w, apperror.Validation("Invalid role."))
			return
		}
	}
	if msg := validateRolePayload(role, req.PhoneNumber, req.Company); msg != "" {
		h.fail(w, apperror.Validation(msg))
		return
	}

	hash, err := HashPassword(req.Password, h.cfg.BcryptCost)
	if err != nil {
		h.fail(w, apperror.Operational("failed to hash password", err))
		return
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        normalizeEmail(req.Email),
		PasswordHash: hash,
		Role:         role,
		PhoneNumber:  req.PhoneNumber,
		Company:      req.Company,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			h.fail(w, apperror.Validation("Email already in use."))
			return
		}
		h.fail(w, apperror.Operational("failed to create user", err))
		return
	}

	token, err := GenerateToken(h.cfg, user.ID)
	if err != nil {
		h.fail(w, apperror.Operational("failed to generate token", err))
		return
	}

	h.metrics.RecordRegistration()
	log.Printf("[auth] User registered: %s (%s)", user.Email, user.ID)
	writeJSON(w, http.StatusCreated, authResponse{User: user.Sanitized(), Token: token})
}

// Login 用户登录
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, apperror.Validation("invalid request body"))
		return
	}

	if msg := validateEmail(req.Email); msg != "" {
		h.fail(w, apperror.Validation(msg))
		return
	}
	if msg := validatePassword(req.Password); msg != "" {
		h.fail(w, apperror.Validation(msg))
		return
	}

	emailAddr := normalizeEmail(req.Email)
	if !h.allow(r.Context(), "login:"+emailAddr) {
		h.metrics.RecordLogin("throttled")
		h.fail(w, apperror.RateLimited("Too many login attempts. Try again later."))
		return
	}

	user, err := h.store.GetUserWithSecretsByEmail(r.Context(), emailAddr)
	if err != nil {
		h.fail(w, apperror.Operational("failed to load user", err))
		return
	}
	// 账号不存在和密码错误返回同一消息，不泄露账号存在性
	if user == nil || !CheckPassword(req.Password, user.PasswordHash) {
		h.metrics.RecordLogin("failure")
		h.fail(w, apperror.Authentication("Incorrect email or password."))
		return
	}

	token, err := GenerateToken(h.cfg, user.ID)
	if err != nil {
		h.fail(w, apperror.Operational("failed to generate token", err))
		return
	}

	if err := h.limiter.Reset(r.Context(), "login:"+emailAddr); err != nil {
		log.Printf("[auth.login] reset rate limit: %v", err)
	}

	h.metrics.RecordLogin("success")
	log.Printf("[auth] User logged in: %s", user.Email)
	writeJSON(w, http.StatusOK, authResponse{Token: token})
}

// ForgotPassword 发起找回密码流程
//
// 生成重置令牌，哈希入库，明文通过邮件发送。
// 邮件发送失败时回滚令牌字段，避免悬挂状态。
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, apperror.Validation("invalid request body"))
		return
	}
	if msg := validateEmail(req.Email); msg != "" {
		h.fail(w, apperror.Validation(msg))
		return
	}

	emailAddr := normalizeEmail(req.Email)
	if !h.allow(r.Context(), "forgot:"+emailAddr) {
		h.fail(w, apperror.RateLimited("Too many requests. Try again later."))
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), emailAddr)
	if err != nil {
		h.fail(w, apperror.Operational("failed to load user", err))
		return
	}
	if user == nil {
		h.fail(w, apperror.NotFound("User not found."))
		return
	}

	plain, hash, err := NewResetToken()
	if err != nil {
		h.fail(w, apperror.Operational("failed to generate reset token", err))
		return
	}

	expiresAt := time.Now().Add(h.cfg.ResetTokenTTL)
	if err := h.store.SetUserResetToken(r.Context(), user.ID, hash, expiresAt); err != nil {
		h.fail(w, apperror.Operational("failed to store reset token", err))
		return
	}

	resetURL := fmt.Sprintf("%s://%s/api/v1/auth/reset-password/%s", requestScheme(r), r.Host, plain)
	if err := h.mailer.Send(email.ResetMessage(user.Email, resetURL)); err != nil {
		// 发信失败则清除令牌，保持可重试的干净状态
		if clearErr := h.store.ClearUserResetToken(r.Context(), user.ID); clearErr != nil {
			log.Printf("[auth.forgot] clear reset token: %v", clearErr)
		}
		h.metrics.RecordPasswordReset("rolled_back")
		h.fail(w, apperror.Operational("There was an error sending the email. Try again later.", err))
		return
	}

	h.metrics.RecordPasswordReset("issued")
	log.Printf("[auth] Reset token issued for %s", user.Email)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Token sent to email!",
	})
}

// ResetPassword 用邮件中的令牌重置密码
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	plain := r.PathValue("token")

	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, apperror.Validation("invalid request body"))
		return
	}
	if msg := validatePasswordPair(req.Password, req.ConfirmPassword); msg != "" {
		h.fail(w, apperror.Validation(msg))
		return
	}

	// 过期与不存在走同一分支，不给探测信号
	user, err := h.store.GetUserByResetToken(r.Context(), HashResetToken(plain), time.Now())
	if err != nil {
		h.fail(w, apperror.Operational("failed to look up reset token", err))
		return
	}
	if user == nil {
		h.fail(w, apperror.Validation("Token is invalid or has expired."))
		return
	}

	hash, err := HashPassword(req.Password, h.cfg.BcryptCost)
	if err != nil {
		h.fail(w, apperror.Operational("failed to hash password", err))
		return
	}

	// 回拨 1 秒，避免同一瞬间签发的新令牌被误判为改密前的旧令牌
	changedAt := time.Now().Add(-time.Second)
	if err := h.store.UpdateUserPassword(r.Context(), user.ID, hash, changedAt); err != nil {
		h.fail(w, apperror.Operational("failed to update password", err))
		return
	}

	token, err := GenerateToken(h.cfg, user.ID)
	if err != nil {
		h.fail(w, apperror.Operational("failed to generate token", err))
		return
	}

	h.metrics.RecordPasswordReset("completed")
	log.Printf("[auth] Password reset for %s", user.Email)
	writeJSON(w, http.StatusOK, authResponse{Token: token})
}

// UpdatePassword 已登录用户修改密码
func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		h.fail(w, apperror.Authentication("You are not logged in."))
		return
	}

	var req updatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, apperror.Validation("invalid request body"))
		return
	}
	if req.CurrentPassword == "" {
		h.fail(w, apperror.Validation("currentPassword is required"))
		return
	}
	if msg := validatePasswordPair(req.Password, req.ConfirmPassword); msg != "" {
		h.fail(w, apperror.Validation(msg))
		return
	}

	if !CheckPassword(req.CurrentPassword, authUser.PasswordHash) {
		h.fail(w, apperror.Authentication("Your current password is wrong."))
		return
	}

	hash, err := HashPassword(req.Password, h.cfg.BcryptCost)
	if err != nil {
		h.fail(w, apperror.Operational("failed to hash password", err))
		return
	}

	changedAt := time.Now().Add(-time.Second)
	if err := h.store.UpdateUserPassword(r.Context(), authUser.ID, hash, changedAt); err != nil {
		h.fail(w, apperror.Operational("failed to update password", err))
		return
	}

	token, err := GenerateToken(h.cfg, authUser.ID)
	if err != nil {
		h.fail(w, apperror.Operational("failed to generate token", err))
		return
	}

	log.Printf("[auth] Password updated for %s", authUser.Email)
	writeJSON(w, http.StatusOK, authResponse{Token: token})
}

// Me 获取当前用户信息
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		h.fail(w, apperror.Authentication("You are not logged in."))
		return
	}
	writeJSON(w, http.StatusOK, map[string]*model.User{"user": authUser.Sanitized()})
}

// ============================================================================
// Admin Bootstrap
// ============================================================================

// EnsureAdminUser 确保管理员用户存在（启动时调用）
//
// 配置了 adminEmail 且数据库中不存在该用户时自动创建。
func EnsureAdminUser(store UserStore, cfg Config, adminEmail, adminPassword string) error {
	if adminEmail == "" || adminPassword == "" {
		return nil
	}

	ctx := context.Background()
	adminEmail = normalizeEmail(adminEmail)
	existing, err := store.GetUserByEmail(ctx, adminEmail)
	if err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if existing != nil {
		log.Printf("[auth] Admin user already exists: %s (%s)", adminEmail, existing.ID)
		return nil
	}

	hash, err := HashPassword(adminPassword, cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.NewString(),
		Name:         "Admin",
		Email:        adminEmail,
		PasswordHash: hash,
		Role:         model.UserRoleAdmin,
		PhoneNumber:  "n/a",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Printf("[auth] Created admin user: %s (%s)", adminEmail, user.ID)
	return nil
}

// ============================================================================
// 工具函数
// ============================================================================

func (h *Handler) fail(w http.ResponseWriter, err error) {
	apperror.Write(w, h.cfg.DevMode, err)
}

// allow 限流判定，Redis 故障时放行并记录日志
func (h *Handler) allow(ctx context.Context, key string) bool {
	ok, err := h.limiter.Allow(ctx, key, h.cfg.MaxAttempts, h.cfg.AttemptWindow)
	if err != nil {
		log.Printf("[auth] rate limiter error: %v", err)
		return true
	}
	return ok
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
