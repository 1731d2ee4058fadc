package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-admin/internal/shared/model"
	"account-admin/internal/shared/storage/memstore"
)

func seedUser(t *testing.T, store *memstore.Store, id, emailAddr, password string, role model.UserRole) *model.User {
	t.Helper()
	hash, err := HashPassword(password, 4)
	require.NoError(t, err)
	now := time.Now()
	user := &model.User{
		ID:           id,
		Name:         "Test User",
		Email:        emailAddr,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

func protectedEcho(t *testing.T, store UserStore, cfg Config) http.Handler {
	t.Helper()
	return Protect(store, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetAuthUser(r.Context())
		require.NotNil(t, user)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(user.ID))
	}))
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["message"]
}

func TestProtect_MissingToken(t *testing.T) {
	store := memstore.NewStore()
	handler := protectedEcho(t, store, testConfig())

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc123"},
		{"bare token", "token-without-scheme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "You are not logged in.", errorMessage(t, rec))
		})
	}
}

func TestProtect_InvalidToken(t *testing.T) {
	store := memstore.NewStore()
	cfg := testConfig()
	handler := protectedEcho(t, store, cfg)

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token.", errorMessage(t, rec))
}

func TestProtect_ExpiredToken(t *testing.T) {
	store := memstore.NewStore()
	cfg := testConfig()
	seedUser(t, store, "user-1", "alice@x.com", "password123", model.UserRoleUser)

	expiredCfg := cfg
	expiredCfg.TokenTTL = -time.Hour
	token, err := GenerateToken(expiredCfg, "user-1")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedEcho(t, store, cfg).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token has expired.", errorMessage(t, rec))
}

func TestProtect_UserGone(t *testing.T) {
	store := memstore.NewStore()
	cfg := testConfig()

	token, err := GenerateToken(cfg, "ghost")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedEcho(t, store, cfg).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "User not found.", errorMessage(t, rec))
}

func TestProtect_DeactivatedUser(t *testing.T) {
	store := memstore.NewStore()
	cfg := testConfig()
	seedUser(t, store, "user-1", "alice@x.com", "password123", model.UserRoleUser)
	require.NoError(t, store.DeactivateUser(context.Background(), "user-1"))

	token, err := GenerateToken(cfg, "user-1")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedEcho(t, store, cfg).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "User not found.", errorMessage(t, rec))
}

func TestProtect_PasswordChangedAfterIssue(t *testing.T) {
	store := memstore.NewStore()
	cfg := testConfig()
	seedUser(t, store, "user-1", "alice@x.com", "password123", model.UserRoleUser)

	token, err := GenerateToken(cfg, "user-1")
	require.NoError(t, err)

	// 令牌签发后改密
	hash, err := HashPassword("newpass1234", 4)
	require.NoError(t, err)
	require.NoError(t, store.UpdateUserPassword(context.Background(), "user-1", hash, time.Now().Add(5*time.Second)))

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedEcho(t, store, cfg).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "User recently changed password. Log in again.", errorMessage(t, rec))
}

func TestProtect_ValidToken(t *testing.T) {
	store := memstore.NewStore()
	cfg := testConfig()
	seedUser(t, store, "user-1", "alice@x.com", "password123", model.UserRoleUser)

	token, err := GenerateToken(cfg, "user-1")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedEcho(t, store, cfg).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
}

func TestRestrictTo(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		role     model.UserRole
		allowed  []model.UserRole
		wantCode int
	}{
		{"admin allowed", model.UserRoleAdmin, []model.UserRole{model.UserRoleAdmin}, http.StatusOK},
		{"user rejected", model.UserRoleUser, []model.UserRole{model.UserRoleAdmin}, http.StatusForbidden},
		{"supplier rejected", model.UserRoleSupplier, []model.UserRole{model.UserRoleAdmin}, http.StatusForbidden},
		{"user in multi-role list", model.UserRoleUser, []model.UserRole{model.UserRoleAdmin, model.UserRoleUser}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RestrictTo(true, tt.allowed...)(next)

			req := httptest.NewRequest("GET", "/api/v1/users", nil)
			req = req.WithContext(WithAuthUser(req.Context(), &model.User{ID: "u1", Role: tt.role}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusForbidden {
				assert.Equal(t, "You do not have permission to perform this action.", errorMessage(t, rec))
			}
		})
	}
}

func TestRestrictTo_NoAuthUser(t *testing.T) {
	handler := RestrictTo(true, model.UserRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not run")
	}))

	req := httptest.NewRequest("GET", "/api/v1/users", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
