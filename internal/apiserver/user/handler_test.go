package user

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-admin/internal/apiserver/auth"
	"account-admin/internal/shared/model"
	"account-admin/internal/shared/storage/memstore"
)

type userTestEnv struct {
	store      *memstore.Store
	mux        *http.ServeMux
	cfg        auth.Config
	adminToken string
	userToken  string
}

func newUserTestEnv(t *testing.T) *userTestEnv {
	t.Helper()
	cfg := auth.DefaultConfig()
	cfg.JWTSecret = "test-secret"
	cfg.BcryptCost = 4
	cfg.DevMode = true

	store := memstore.NewStore()
	mux := http.NewServeMux()
	NewHandler(store, cfg).RegisterRoutes(mux)

	env := &userTestEnv{store: store, mux: mux, cfg: cfg}
	env.adminToken = env.seed(t, "admin-1", "admin@x.com", model.UserRoleAdmin)
	env.userToken = env.seed(t, "user-1", "bob@x.com", model.UserRoleUser)
	return env
}

// seed 写入用户并返回其会话令牌
func (e *userTestEnv) seed(t *testing.T, id, emailAddr string, role model.UserRole) string {
	t.Helper()
	hash, err := auth.HashPassword("password123", 4)
	require.NoError(t, err)
	now := time.Now()
	user := &model.User{
		ID:           id,
		Name:         "Seeded",
		Email:        emailAddr,
		PasswordHash: hash,
		Role:         role,
		PhoneNumber:  "000",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.store.CreateUser(context.Background(), user))

	token, err := auth.GenerateToken(e.cfg, id)
	require.NoError(t, err)
	return token
}

func (e *userTestEnv) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	var s string
	if raw, ok := body["message"]; ok {
		require.NoError(t, json.Unmarshal(raw, &s))
	}
	return s
}

// ============================================================================
// 访问控制
// ============================================================================

func TestAdminRoutes_RequireAdminRole(t *testing.T) {
	env := newUserTestEnv(t)

	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/users"},
		{"POST", "/api/v1/users"},
		{"GET", "/api/v1/users/user-1"},
		{"PATCH", "/api/v1/users/user-1"},
		{"DELETE", "/api/v1/users/user-1"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			// 未登录
			rec := env.do(tt.method, tt.path, nil, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			// 普通用户
			rec = env.do(tt.method, tt.path, nil, env.userToken)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, "You do not have permission to perform this action.", message(t, rec))
		})
	}
}

// ============================================================================
// 管理员 CRUD
// ============================================================================

func TestList(t *testing.T) {
	env := newUserTestEnv(t)

	rec := env.do("GET", "/api/v1/users", nil, env.adminToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results int           `json:"results"`
		Users   []*model.User `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Results)
	assert.Len(t, body.Users, 2)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestGet(t *testing.T) {
	env := newUserTestEnv(t)

	rec := env.do("GET", "/api/v1/users/user-1", nil, env.adminToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		User *model.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bob@x.com", body.User.Email)

	rec = env.do("GET", "/api/v1/users/no-such-id", nil, env.adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found.", message(t, rec))
}

func TestCreate(t *testing.T) {
	env := newUserTestEnv(t)

	rec := env.do("POST", "/api/v1/users", map[string]string{
		"name":            "Carol",
		"email":           "carol@x.com",
		"password":        "password123",
		"confirmPassword": "password123",
		"role":            "supplier",
		"company":         "Carol Ltd",
	}, env.adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created, err := env.store.GetUserByEmail(context.Background(), "carol@x.com")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, model.UserRoleSupplier, created.Role)

	// 重复邮箱
	rec = env.do("POST", "/api/v1/users", map[string]string{
		"name":            "Carol Again",
		"email":           "carol@x.com",
		"password":        "password123",
		"confirmPassword": "password123",
	}, env.adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already in use.", message(t, rec))
}

func TestUpdate(t *testing.T) {
	env := newUserTestEnv(t)

	rec := env.do("PATCH", "/api/v1/users/user-1", map[string]string{
		"name": "Robert",
		"role": "supplier",
	}, env.adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		User *model.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Robert", body.User.Name)
	assert.Equal(t, model.UserRoleSupplier, body.User.Role)

	// 密码字段走专用路由
	rec = env.do("PATCH", "/api/v1/users/user-1", map[string]string{
		"password": "newpass1234",
	}, env.adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 不存在的用户
	rec = env.do("PATCH", "/api/v1/users/no-such-id", map[string]string{
		"name": "Ghost",
	}, env.adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDelete(t *testing.T) {
	env := newUserTestEnv(t)

	rec := env.do("DELETE", "/api/v1/users/user-1", nil, env.adminToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// 硬删除后彻底不可见
	user, err := env.store.GetUserWithSecretsByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, user)

	rec = env.do("DELETE", "/api/v1/users/user-1", nil, env.adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================================================
// 个人资料
// ============================================================================

func TestUpdateMe(t *testing.T) {
	env := newUserTestEnv(t)

	rec := env.do("PATCH", "/api/v1/users/update-me", map[string]string{
		"name":  "Bobby",
		"email": "bobby@x.com",
	}, env.userToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		User *model.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Bobby", body.User.Name)
	assert.Equal(t, "bobby@x.com", body.User.Email)
}

func TestUpdateMe_RejectsPassword(t *testing.T) {
	env := newUserTestEnv(t)

	rec := env.do("PATCH", "/api/v1/users/update-me", map[string]string{
		"password":        "newpass1234",
		"confirmPassword": "newpass1234",
	}, env.userToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "You cannot update your password using this route, use /forgot-password", message(t, rec))
}

func TestDeleteMe(t *testing.T) {
	env := newUserTestEnv(t)

	rec := env.do("DELETE", "/api/v1/users/delete-me", nil, env.userToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// 软删除：默认读取不可见
	user, err := env.store.GetUserByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, user)

	// 注销后旧令牌随即失效
	rec = env.do("PATCH", "/api/v1/users/update-me", map[string]string{"name": "Zombie"}, env.userToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "User not found.", message(t, rec))
}
