package auth

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResetToken(t *testing.T) {
	plain, hash, err := NewResetToken()
	require.NoError(t, err)

	// 32 随机字节的 hex 编码
	assert.Len(t, plain, 64)
	_, err = hex.DecodeString(plain)
	assert.NoError(t, err)

	// 入库哈希与明文可重算对应
	assert.Equal(t, hash, HashResetToken(plain))
	assert.NotEqual(t, plain, hash)
	assert.Len(t, hash, 64)
}

func TestNewResetToken_Unique(t *testing.T) {
	p1, _, err := NewResetToken()
	require.NoError(t, err)
	p2, _, err := NewResetToken()
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}
