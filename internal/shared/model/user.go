// Package model 定义核心数据模型
//
// user.go 包含用户账号相关的数据模型定义：
//   - User：用户账号（含凭据与重置令牌字段）
//   - UserRole：用户角色枚举（带角色专属载荷）
//   - UserUpdate：局部更新载体
package model

import "time"

// ============================================================================
// UserRole - 用户角色
// ============================================================================

// UserRole 用户角色
//
// 角色是封闭枚举，角色专属字段（标签变体）：
//   - admin 要求 phone_number
//   - supplier 要求 company
//   - user 无额外字段
type UserRole string

const (
	// UserRoleAdmin 管理员
	UserRoleAdmin UserRole = "admin"

	// UserRoleUser 普通用户（默认，最低权限）
	UserRoleUser UserRole = "user"

	// UserRoleSupplier 供应商（业务运营角色）
	UserRoleSupplier UserRole = "supplier"
)

// Valid 判断角色是否属于封闭枚举
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleUser, UserRoleSupplier:
		return true
	}
	return false
}

// ============================================================================
// User - 用户账号
// ============================================================================

// User 用户账号
//
// 凭据字段（PasswordHash、PasswordChangedAt、重置令牌）默认不出现在
// 存储层读取结果中，需要时必须通过 GetUserWithSecrets* 显式请求；
// JSON 序列化时永远不暴露。
//
// 软删除：Active=false 的账号在默认查询中不可见，仅管理员硬删除路径
// 会真正移除文档。
type User struct {
	ID           string   `json:"id" bson:"_id" db:"id"`
	Name         string   `json:"name" bson:"name" db:"name"`
	Email        string   `json:"email" bson:"email" db:"email"` // 唯一，存储前统一小写
	PasswordHash string   `json:"-" bson:"password_hash,omitempty" db:"password_hash"`
	Role         UserRole `json:"role" bson:"role" db:"role"`

	// 角色专属载荷（标签变体，按 Role 取舍）
	PhoneNumber string `json:"phone_number,omitempty" bson:"phone_number,omitempty" db:"phone_number"` // admin
	Company     string `json:"company,omitempty" bson:"company,omitempty" db:"company"`                // supplier

	// PasswordChangedAt 最近一次密码变更时间
	// 首次注册不写入；每次密码变更时写入（比变更时刻回拨 1 秒，
	// 容忍同一瞬间签发的令牌，见 auth.Protect 的新鲜度检查）
	PasswordChangedAt *time.Time `json:"-" bson:"password_changed_at,omitempty" db:"password_changed_at"`

	// 密码重置令牌（只存 SHA-256 哈希，明文仅通过邮件出站）
	// 同一账号同时最多存在一个未消费令牌，签发新令牌隐式作废旧令牌
	ResetTokenHash    string     `json:"-" bson:"reset_token_hash,omitempty" db:"reset_token_hash"`
	ResetTokenExpires *time.Time `json:"-" bson:"reset_token_expires,omitempty" db:"reset_token_expires"`

	Active    bool      `json:"-" bson:"active" db:"active"` // 软删除标记
	CreatedAt time.Time `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// HasChangedPasswordSince 判断密码是否在令牌签发之后被修改过
//
// issuedAt 为令牌签发时间的 Unix 秒。比较按秒进行且使用严格大于，
// 与 PasswordChangedAt 写入时的 1 秒回拨配合，避免注册/改密后
// 立刻签发的令牌被误判为过期凭据。
func (u *User) HasChangedPasswordSince(issuedAt int64) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Unix() > issuedAt
}

// HasValidResetToken 判断当前是否存在未过期的重置令牌
func (u *User) HasValidResetToken(now time.Time) bool {
	if u.ResetTokenHash == "" || u.ResetTokenExpires == nil {
		return false
	}
	return u.ResetTokenExpires.After(now)
}

// Sanitized 返回去除全部凭据字段的副本，用于写入响应前兜底
func (u *User) Sanitized() *User {
	c := *u
	c.PasswordHash = ""
	c.PasswordChangedAt = nil
	c.ResetTokenHash = ""
	c.ResetTokenExpires = nil
	return &c
}

// ============================================================================
// UserUpdate - 局部更新
// ============================================================================

// UserUpdate 用户局部更新载体
//
// nil 字段表示不修改。密码相关字段不在此处：密码变更必须走
// UpdateUserPassword 的原子路径（同一次更新写入哈希并清除重置令牌）。
type UserUpdate struct {
	Name        *string   `json:"name,omitempty"`
	Email       *string   `json:"email,omitempty"`
	Role        *UserRole `json:"role,omitempty"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	Company     *string   `json:"company,omitempty"`
}

// Empty 判断是否没有任何待更新字段
func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Role == nil &&
		u.PhoneNumber == nil && u.Company == nil
}
