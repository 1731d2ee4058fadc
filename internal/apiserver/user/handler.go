// Package user 用户领域 - 管理端 CRUD 与个人资料维护
package user

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"account-admin/internal/apiserver/auth"
	"account-admin/internal/shared/apperror"
	"account-admin/internal/shared/model"
	"account-admin/internal/shared/storage"
)

// Handler 用户领域 HTTP 处理器
type Handler struct {
	store storage.UserStore
	cfg   auth.Config
}

// NewHandler 创建用户处理器
func NewHandler(store storage.UserStore, cfg auth.Config) *Handler {
	return &Handler{store: store, cfg: cfg}
}

// RegisterRoutes 注册用户相关路由
//
// 全部路由要求登录；/api/v1/users 及 /{id} 级操作仅限管理员。
// update-me/delete-me 为字面量路径，优先于 {id} 通配匹配。
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	protect := auth.Protect(h.store, h.cfg)
	adminOnly := auth.RestrictTo(h.cfg.DevMode, model.UserRoleAdmin)

	mux.Handle("PATCH /api/v1/users/update-me", protect(http.HandlerFunc(h.UpdateMe)))
	mux.Handle("DELETE /api/v1/users/delete-me", protect(http.HandlerFunc(h.DeleteMe)))

	mux.Handle("GET /api/v1/users", protect(adminOnly(http.HandlerFunc(h.List))))
	mux.Handle("POST /api/v1/users", protect(adminOnly(http.HandlerFunc(h.Create))))
	mux.Handle("GET /api/v1/users/{id}", protect(adminOnly(http.HandlerFunc(h.Get))))
	mux.Handle("PATCH /api/v1/users/{id}", protect(adminOnly(http.HandlerFunc(h.Update))))
	mux.Handle("DELETE /api/v1/users/{id}", protect(adminOnly(http.HandlerFunc(h.Delete))))
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type createUserRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Role            string `json:"role,omitempty"`
	PhoneNumber     string `json:"phoneNumber,omitempty"`
	Company         string `json:"company,omitempty"`
}

type updateUserRequest struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	Role        *string `json:"role"`
	PhoneNumber *string `json:"phoneNumber"`
	Company     *string `json:"company"`

	// 密码不允许从此路由修改，出现即拒绝
	Password        *string `json:"password"`
	ConfirmPassword *string `json:"confirmPassword"`
}

type updateMeRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`

	Password        *string `json:"password"`
	ConfirmPassword *string `json:"confirmPassword"`
}

// ============================================================================
// 管理员 CRUD
// ============================================================================

// List 列出全部在用账号
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.fail(w, apperror.Operational("failed to list users", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": len(users),
		"users":   users,
	})
}

// Get 查询单个用户
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUserByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, apperror.Operational("failed to load user", err))
		return
	}
	if user == nil {
		h.fail(w, apperror.NotFound("User not found."))
		return
	}
	writeJSON(w, http.StatusOK, map[string]*model.User{"user": user})
}

// Create 管理员创建用户
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, apperror.Validation("invalid request body"))
		return
	}

	user, appErr := buildUser(req, h.cfg.BcryptCost)
	if appErr != nil {
		h.fail(w, appErr)
		return
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			h.fail(w, apperror.Validation("Email already in use."))
			return
		}
		h.fail(w, apperror.Operational("failed to create user", err))
		return
	}

	log.Printf("[user] Created by admin: %s (%s)", user.Email, user.ID)
	writeJSON(w, http.StatusCreated, map[string]*model.User{"user": user.Sanitized()})
}

// Update 管理员更新用户资料
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, apperror.Validation("invalid request body"))
		return
	}
	if req.Password != nil || req.ConfirmPassword != nil {
		h.fail(w, apperror.Validation("You cannot update passwords using this route."))
		return
	}

	upd, appErr := buildUpdate(req)
	if appErr != nil {
		h.fail(w, appErr)
		return
	}
	if upd.Empty() {
		h.fail(w, apperror.Validation("nothing to update"))
		return
	}

	user, err := h.store.UpdateUser(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			h.fail(w, apperror.NotFound("User not found."))
		case errors.Is(err, storage.ErrDuplicate):
			h.fail(w, apperror.Validation("Email already in use."))
		default:
			h.fail(w, apperror.Operational("failed to update user", err))
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]*model.User{"user": user})
}

// Delete 管理员硬删除用户
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.fail(w, apperror.NotFound("User not found."))
			return
		}
		h.fail(w, apperror.Operational("failed to delete user", err))
		return
	}
	log.Printf("[user] Deleted by admin: %s", r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// 个人资料
// ============================================================================

// UpdateMe 当前用户更新个人资料，仅允许 name/email
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		h.fail(w, apperror.Authentication("You are not logged in."))
		return
	}

	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, apperror.Validation("invalid request body"))
		return
	}
	if req.Password != nil || req.ConfirmPassword != nil {
		h.fail(w, apperror.Validation("You cannot update your password using this route, use /forgot-password"))
		return
	}

	upd := model.UserUpdate{}
	if req.Name != nil {
		if msg := validateName(*req.Name); msg != "" {
			h.fail(w, apperror.Validation(msg))
			return
		}
		upd.Name = req.Name
	}
	if req.Email != nil {
		normalized, msg := normalizedEmail(*req.Email)
		if msg != "" {
			h.fail(w, apperror.Validation(msg))
			return
		}
		upd.Email = &normalized
	}
	if upd.Empty() {
		h.fail(w, apperror.Validation("nothing to update"))
		return
	}

	user, err := h.store.UpdateUser(r.Context(), authUser.ID, upd)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			h.fail(w, apperror.Validation("Email already in use."))
			return
		}
		h.fail(w, apperror.Operational("failed to update profile", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]*model.User{"user": user})
}

// DeleteMe 当前用户注销账号（软删除）
func (h *Handler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		h.fail(w, apperror.Authentication("You are not logged in."))
		return
	}

	if err := h.store.DeactivateUser(r.Context(), authUser.ID); err != nil {
		h.fail(w, apperror.Operational("failed to deactivate account", err))
		return
	}
	log.Printf("[user] Deactivated: %s", authUser.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// 工具函数
// ============================================================================

// buildUser 校验创建请求并组装用户
func buildUser(req createUserRequest, bcryptCost int) (*model.User, *apperror.Error) {
	if msg := validateName(req.Name); msg != "" {
		return nil, apperror.Validation(msg)
	}
	emailAddr, msg := normalizedEmail(req.Email)
	if msg != "" {
		return nil, apperror.Validation(msg)
	}
	if msg := validatePasswordPair(req.Password, req.ConfirmPassword); msg != "" {
		return nil, apperror.Validation(msg)
	}

	role := model.UserRoleUser
	if req.Role != "" {
		role = model.UserRole(req.Role)
		if !role.Valid() {
			return nil, apperror.Validation("Invalid role.")
		}
	}
	if msg := validateRolePayload(role, req.PhoneNumber, req.Company); msg != "" {
		return nil, apperror.Validation(msg)
	}

	hash, err := auth.HashPassword(req.Password, bcryptCost)
	if err != nil {
		return nil, apperror.Operational("failed to hash password", err)
	}

	now := time.Now()
	return &model.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        emailAddr,
		PasswordHash: hash,
		Role:         role,
		PhoneNumber:  req.PhoneNumber,
		Company:      req.Company,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// buildUpdate 校验管理员更新请求并组装更新集
func buildUpdate(req updateUserRequest) (model.UserUpdate, *apperror.Error) {
	upd := model.UserUpdate{}
	if req.Name != nil {
		if msg := validateName(*req.Name); msg != "" {
			return upd, apperror.Validation(msg)
		}
		upd.Name = req.Name
	}
	if req.Email != nil {
		normalized, msg := normalizedEmail(*req.Email)
		if msg != "" {
			return upd, apperror.Validation(msg)
		}
		upd.Email = &normalized
	}
	if req.Role != nil {
		role := model.UserRole(*req.Role)
		if !role.Valid() {
			return upd, apperror.Validation("Invalid role.")
		}
		upd.Role = &role
	}
	upd.PhoneNumber = req.PhoneNumber
	upd.Company = req.Company
	return upd, nil
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	apperror.Write(w, h.cfg.DevMode, err)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
