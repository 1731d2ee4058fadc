package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWTSecret = "test-secret"
	cfg.BcryptCost = 4 // 最低成本，加速测试
	return cfg
}

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("password123", 4)
	require.NoError(t, err)
	assert.NotEqual(t, "password123", hash)

	assert.True(t, CheckPassword("password123", hash))
	assert.False(t, CheckPassword("wrongpass", hash))
	assert.False(t, CheckPassword("", hash))
}

func TestHashPassword_DistinctSalts(t *testing.T) {
	h1, err := HashPassword("password123", 4)
	require.NoError(t, err)
	h2, err := HashPassword("password123", 4)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestGenerateToken_ParseRoundTrip(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateToken(cfg, "user-1")
	require.NoError(t, err)

	claims, err := ParseToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.NotNil(t, claims.IssuedAt)
	assert.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(cfg.TokenTTL), claims.ExpiresAt.Time, 5*time.Second)
}

func TestParseToken_Expired(t *testing.T) {
	cfg := testConfig()
	cfg.TokenTTL = -time.Hour

	token, err := GenerateToken(cfg, "user-1")
	require.NoError(t, err)

	_, err = ParseToken(cfg, token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseToken_WrongSecret(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateToken(cfg, "user-1")
	require.NoError(t, err)

	other := cfg
	other.JWTSecret = "different-secret"
	_, err = ParseToken(other, token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseToken_Garbage(t *testing.T) {
	cfg := testConfig()

	for _, tokenString := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := ParseToken(cfg, tokenString)
		assert.ErrorIs(t, err, ErrTokenInvalid, "token %q", tokenString)
	}
}
