package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-admin/internal/apiserver/auth"
	"account-admin/internal/shared/email"
	"account-admin/internal/shared/storage/memstore"
)

// Prometheus 指标注册到全局 Registry，整个测试进程只建一个 Handler
func TestRouter(t *testing.T) {
	cfg := auth.DefaultConfig()
	cfg.JWTSecret = "test-secret"
	cfg.BcryptCost = 4
	cfg.DevMode = true

	store := memstore.NewStore()
	router := NewHandler(store, cfg, nil, email.NewMockSender()).Router()

	do := func(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("health", func(t *testing.T) {
		rec := do("GET", "/health", nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("cors preflight", func(t *testing.T) {
		rec := do("OPTIONS", "/api/v1/auth/login", nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	})

	t.Run("register then me", func(t *testing.T) {
		rec := do("POST", "/api/v1/auth/register", map[string]string{
			"name":            "Alice",
			"email":           "alice@x.com",
			"password":        "password123",
			"confirmPassword": "password123",
		}, "")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var body struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.NotEmpty(t, body.Token)

		rec = do("GET", "/api/v1/auth/me", nil, body.Token)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "alice@x.com")
	})

	t.Run("protected routes wired", func(t *testing.T) {
		rec := do("GET", "/api/v1/users", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		rec := do("GET", "/metrics", nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "account_http_requests_total")
		// 注册子测试已触发存储操作
		assert.Contains(t, rec.Body.String(), "account_db_queries_total")
	})
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/users/abc-123", "/api/v1/users/{id}"},
		{"/api/v1/users/update-me", "/api/v1/users/update-me"},
		{"/api/v1/users/delete-me", "/api/v1/users/delete-me"},
		{"/api/v1/auth/reset-password/deadbeef", "/api/v1/auth/reset-password/{token}"},
		{"/api/v1/auth/login", "/api/v1/auth/login"},
		{"/health", "/health"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}
