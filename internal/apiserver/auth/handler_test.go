package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-admin/internal/shared/email"
	"account-admin/internal/shared/model"
	"account-admin/internal/shared/storage/memstore"
)

type authTestEnv struct {
	store  *memstore.Store
	mailer *email.MockSender
	mux    *http.ServeMux
}

func newAuthTestEnv(t *testing.T) *authTestEnv {
	t.Helper()
	store := memstore.NewStore()
	mailer := email.NewMockSender()
	h := NewHandler(store, testConfig(), nil, mailer)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return &authTestEnv{store: store, mailer: mailer, mux: mux}
}

func (e *authTestEnv) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
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

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func bodyString(t *testing.T, rec *httptest.ResponseRecorder, key string) string {
	t.Helper()
	var s string
	raw, ok := decodeBody(t, rec)[key]
	if !ok {
		return ""
	}
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

// issueTokenAt 以指定签发时间构造会话令牌
func issueTokenAt(t *testing.T, cfg Config, userID string, issuedAt time.Time) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(cfg.TokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)
	return token
}

func registerAlice(t *testing.T, env *authTestEnv) string {
	t.Helper()
	rec := env.do("POST", "/api/v1/auth/register", map[string]string{
		"name":            "Alice",
		"email":           "alice@x.com",
		"password":        "password123",
		"confirmPassword": "password123",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	token := bodyString(t, rec, "token")
	require.NotEmpty(t, token)
	return token
}

// ============================================================================
// 注册
// ============================================================================

func TestRegister_Validation(t *testing.T) {
	env := newAuthTestEnv(t)

	tests := []struct {
		name    string
		payload map[string]string
		wantMsg string
	}{
		{
			"missing name",
			map[string]string{"email": "a@x.com", "password": "password123", "confirmPassword": "password123"},
			"Name must be 1 character or more.",
		},
		{
			"bad email",
			map[string]string{"name": "A", "email": "not-an-email", "password": "password123", "confirmPassword": "password123"},
			"Invalid email format.",
		},
		{
			"short password",
			map[string]string{"name": "A", "email": "a@x.com", "password": "short", "confirmPassword": "short"},
			"Password length must be 8 characters or more.",
		},
		{
			"mismatched confirm",
			map[string]string{"name": "A", "email": "a@x.com", "password": "password123", "confirmPassword": "password456"},
			"Passwords do not match.",
		},
		{
			"admin role not self-assignable",
			map[string]string{"name": "A", "email": "a@x.com", "password": "password123", "confirmPassword": "password123", "role": "admin"},
			"Invalid role.",
		},
		{
			"supplier without company",
			map[string]string{"name": "A", "email": "a@x.com", "password": "password123", "confirmPassword": "password123", "role": "supplier"},
			"company is required for supplier accounts",
		},
		{
			"unknown role",
			map[string]string{"name": "A", "email": "a@x.com", "password": "password123", "confirmPassword": "password123", "role": "superuser"},
			"Invalid role.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do("POST", "/api/v1/auth/register", tt.payload, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantMsg, bodyString(t, rec, "message"))
		})
	}
}

func TestRegister_NameLengthCountsCharacters(t *testing.T) {
	env := newAuthTestEnv(t)

	// 124 个多字节字符是合法边界（按字符计数，不是字节）
	rec := env.do("POST", "/api/v1/auth/register", map[string]string{
		"name":            strings.Repeat("名", 124),
		"email":           "cjk@x.com",
		"password":        "password123",
		"confirmPassword": "password123",
	}, "")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do("POST", "/api/v1/auth/register", map[string]string{
		"name":            strings.Repeat("名", 125),
		"email":           "cjk2@x.com",
		"password":        "password123",
		"confirmPassword": "password123",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Name must be 124 characters or less.", bodyString(t, rec, "message"))
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newAuthTestEnv(t)
	registerAlice(t, env)

	rec := env.do("POST", "/api/v1/auth/register", map[string]string{
		"name":            "Alice Again",
		"email":           "Alice@X.com", // 大小写不同也算重复
		"password":        "password123",
		"confirmPassword": "password123",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already in use.", bodyString(t, rec, "message"))
}

func TestRegister_ResponseOmitsSecrets(t *testing.T) {
	env := newAuthTestEnv(t)
	rec := env.do("POST", "/api/v1/auth/register", map[string]string{
		"name":            "Alice",
		"email":           "alice@x.com",
		"password":        "password123",
		"confirmPassword": "password123",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "reset_token")
}

func TestRegister_CannotSelfEscalateToAdmin(t *testing.T) {
	env := newAuthTestEnv(t)

	// 带齐管理员载荷也不行：公开注册一律拒绝 admin
	rec := env.do("POST", "/api/v1/auth/register", map[string]string{
		"name":            "Mallory",
		"email":           "mallory@x.com",
		"password":        "password123",
		"confirmPassword": "password123",
		"role":            "admin",
		"phoneNumber":     "555-0100",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid role.", bodyString(t, rec, "message"))

	user, err := env.store.GetUserByEmail(context.Background(), "mallory@x.com")
	require.NoError(t, err)
	assert.Nil(t, user, "rejected registration must not create an account")

	// 管理员路由对普通注册用户依然关闭
	token := registerAlice(t, env)
	adminOnly := RestrictTo(true, model.UserRoleAdmin)
	guarded := Protect(env.store, testConfig())(adminOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest("GET", "/admin-check", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	guarded.ServeHTTP(res, req)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRegister_SupplierRole(t *testing.T) {
	env := newAuthTestEnv(t)
	rec := env.do("POST", "/api/v1/auth/register", map[string]string{
		"name":            "Supply Co",
		"email":           "supplier@x.com",
		"password":        "password123",
		"confirmPassword": "password123",
		"role":            "supplier",
		"company":         "ACME Ltd",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	user, err := env.store.GetUserByEmail(context.Background(), "supplier@x.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, model.UserRoleSupplier, user.Role)
	assert.Equal(t, "ACME Ltd", user.Company)
}

// ============================================================================
// 登录
// ============================================================================

func TestLoginScenario(t *testing.T) {
	env := newAuthTestEnv(t)
	registerAlice(t, env)

	// 密码错误
	rec := env.do("POST", "/api/v1/auth/login", map[string]string{
		"email":    "alice@x.com",
		"password": "wrongpass1",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Incorrect email or password.", bodyString(t, rec, "message"))

	// 账号不存在，消息必须一致
	rec = env.do("POST", "/api/v1/auth/login", map[string]string{
		"email":    "nobody@x.com",
		"password": "password123",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Incorrect email or password.", bodyString(t, rec, "message"))

	// 正确凭据
	rec = env.do("POST", "/api/v1/auth/login", map[string]string{
		"email":    "alice@x.com",
		"password": "password123",
	}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, bodyString(t, rec, "token"))
}

// ============================================================================
// 找回/重置密码
// ============================================================================

var resetURLRegex = regexp.MustCompile(`reset-password/([0-9a-f]{64})`)

func TestForgotPassword_UnknownEmail(t *testing.T) {
	env := newAuthTestEnv(t)
	rec := env.do("POST", "/api/v1/auth/forgot-password", map[string]string{
		"email": "nobody@x.com",
	}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found.", bodyString(t, rec, "message"))
}

func TestForgotPassword_EmailFailureRollsBack(t *testing.T) {
	env := newAuthTestEnv(t)
	registerAlice(t, env)
	env.mailer.Err = assert.AnError

	rec := env.do("POST", "/api/v1/auth/forgot-password", map[string]string{
		"email": "alice@x.com",
	}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// 发信失败后令牌字段必须被清除
	user, err := env.store.GetUserWithSecretsByEmail(context.Background(), "alice@x.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Empty(t, user.ResetTokenHash)
	assert.Nil(t, user.ResetTokenExpires)
}

func TestResetPasswordFlow(t *testing.T) {
	env := newAuthTestEnv(t)
	registerAlice(t, env)

	rec := env.do("POST", "/api/v1/auth/forgot-password", map[string]string{
		"email": "alice@x.com",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	msg := env.mailer.Last()
	require.NotNil(t, msg)
	assert.Equal(t, "alice@x.com", msg.To)
	matches := resetURLRegex.FindStringSubmatch(msg.Body)
	require.Len(t, matches, 2, "reset mail must contain the plaintext token")
	plain := matches[1]

	// 库里只有哈希，不落明文
	user, err := env.store.GetUserWithSecretsByEmail(context.Background(), "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, HashResetToken(plain), user.ResetTokenHash)
	assert.NotEqual(t, plain, user.ResetTokenHash)

	// 重置前签发的会话令牌（签发时间取一分钟前，避开改密时间 1 秒回拨的同秒容差）
	oldToken := issueTokenAt(t, testConfig(), user.ID, time.Now().Add(-time.Minute))
	rec = env.do("GET", "/api/v1/auth/me", nil, oldToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// 重置成功
	rec = env.do("PATCH", "/api/v1/auth/reset-password/"+plain, map[string]string{
		"password":        "newpass1234",
		"confirmPassword": "newpass1234",
	}, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, bodyString(t, rec, "token"))

	// 同一令牌只能用一次
	rec = env.do("PATCH", "/api/v1/auth/reset-password/"+plain, map[string]string{
		"password":        "anotherpass1",
		"confirmPassword": "anotherpass1",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Token is invalid or has expired.", bodyString(t, rec, "message"))

	// 重置后，先前签发的会话令牌全部失效
	rec = env.do("GET", "/api/v1/auth/me", nil, oldToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "User recently changed password. Log in again.", bodyString(t, rec, "message"))

	// 旧密码失效，新密码可登录
	rec = env.do("POST", "/api/v1/auth/login", map[string]string{
		"email":    "alice@x.com",
		"password": "password123",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do("POST", "/api/v1/auth/login", map[string]string{
		"email":    "alice@x.com",
		"password": "newpass1234",
	}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetPassword_BogusToken(t *testing.T) {
	env := newAuthTestEnv(t)
	registerAlice(t, env)

	rec := env.do("PATCH", "/api/v1/auth/reset-password/deadbeef", map[string]string{
		"password":        "newpass1234",
		"confirmPassword": "newpass1234",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Token is invalid or has expired.", bodyString(t, rec, "message"))
}

// ============================================================================
// 修改密码 / Me
// ============================================================================

func TestUpdatePassword(t *testing.T) {
	env := newAuthTestEnv(t)
	token := registerAlice(t, env)

	// 当前密码错误
	rec := env.do("PATCH", "/api/v1/auth/update-password", map[string]string{
		"currentPassword": "wrongpass1",
		"password":        "newpass1234",
		"confirmPassword": "newpass1234",
	}, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Your current password is wrong.", bodyString(t, rec, "message"))

	// 正确修改
	rec = env.do("PATCH", "/api/v1/auth/update-password", map[string]string{
		"currentPassword": "password123",
		"password":        "newpass1234",
		"confirmPassword": "newpass1234",
	}, token)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, bodyString(t, rec, "token"))

	rec = env.do("POST", "/api/v1/auth/login", map[string]string{
		"email":    "alice@x.com",
		"password": "newpass1234",
	}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMe(t *testing.T) {
	env := newAuthTestEnv(t)
	token := registerAlice(t, env)

	rec := env.do("GET", "/api/v1/auth/me", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		User *model.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.User)
	assert.Equal(t, "alice@x.com", body.User.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = env.do("GET", "/api/v1/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================================================
// 管理员引导
// ============================================================================

func TestEnsureAdminUser(t *testing.T) {
	store := memstore.NewStore()
	cfg := testConfig()

	require.NoError(t, EnsureAdminUser(store, cfg, "admin@x.com", "adminpass123"))

	user, err := store.GetUserWithSecretsByEmail(context.Background(), "admin@x.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, model.UserRoleAdmin, user.Role)
	assert.True(t, CheckPassword("adminpass123", user.PasswordHash))

	// 幂等：重复调用不报错也不重复创建
	require.NoError(t, EnsureAdminUser(store, cfg, "admin@x.com", "adminpass123"))
	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)

	// 未配置时跳过
	empty := memstore.NewStore()
	require.NoError(t, EnsureAdminUser(empty, cfg, "", ""))
	users, err = empty.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}
