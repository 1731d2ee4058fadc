package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// ============================================================================
// 密码重置令牌
// ============================================================================

// NewResetToken 生成密码重置令牌
//
// 返回明文（通过邮件发给用户）和 sha256 哈希（入库）。
// 数据库只存哈希，明文泄露库也无法伪造。
func NewResetToken() (plain, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	plain = hex.EncodeToString(buf)
	return plain, HashResetToken(plain), nil
}

// HashResetToken 计算重置令牌的存储哈希
func HashResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
