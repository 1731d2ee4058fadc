// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：mongostore/（文档库，默认）、repository/（SQL）、
//     memstore/（内存，测试用）
//   - 初始化时通过依赖注入传入实现
package storage

import (
	"context"
	"time"

	"account-admin/internal/shared/model"
)

// UserStore 用户存储接口
//
// 投影约定：默认读取（GetUserByID/GetUserByEmail/ListUsers）不返回凭据
// 字段（password_hash、password_changed_at、重置令牌），且排除 Active=false
// 的软删除账号。需要凭据的调用点（登录、认证中间件的新鲜度检查、改密）
// 必须显式使用 GetUserWithSecrets* 方法。
//
// 原子性约定：所有写操作都是单文档更新，依赖底层存储的单文档原子性；
// UpdateUserPassword 在同一次更新中写入新哈希并清除重置令牌字段，
// 保证重置令牌严格单次消费。
type UserStore interface {
	// CreateUser 创建用户；邮箱唯一键冲突返回 ErrDuplicate
	CreateUser(ctx context.Context, user *model.User) error

	// GetUserByID 按 ID 查找（净化投影）；不存在或已软删除返回 (nil, nil)
	GetUserByID(ctx context.Context, id string) (*model.User, error)

	// GetUserByEmail 按邮箱查找（净化投影）；不存在或已软删除返回 (nil, nil)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// GetUserWithSecretsByID 按 ID 查找，包含凭据字段
	GetUserWithSecretsByID(ctx context.Context, id string) (*model.User, error)

	// GetUserWithSecretsByEmail 按邮箱查找，包含凭据字段
	GetUserWithSecretsByEmail(ctx context.Context, email string) (*model.User, error)

	// GetUserByResetToken 按重置令牌哈希查找，要求令牌未过期（expires > now）。
	// 令牌错误与令牌过期统一表现为 (nil, nil)，调用方不得区分两者
	GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error)

	// ListUsers 列出全部有效用户（净化投影），按创建时间倒序
	ListUsers(ctx context.Context) ([]*model.User, error)

	// UpdateUser 局部更新资料字段并返回更新后的用户（净化投影）；
	// 不存在返回 ErrNotFound，邮箱冲突返回 ErrDuplicate
	UpdateUser(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error)

	// UpdateUserPassword 原子更新密码：写入新哈希与 password_changed_at，
	// 同时清除 reset_token_hash / reset_token_expires
	UpdateUserPassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error

	// SetUserResetToken 写入重置令牌哈希与过期时间（覆盖任何旧令牌）
	SetUserResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error

	// ClearUserResetToken 清除重置令牌字段（邮件发送失败时的回滚路径）
	ClearUserResetToken(ctx context.Context, id string) error

	// DeactivateUser 软删除（active=false）
	DeactivateUser(ctx context.Context, id string) error

	// DeleteUser 硬删除（管理员特权路径）；不存在返回 ErrNotFound
	DeleteUser(ctx context.Context, id string) error
}

// PersistentStore 持久化存储组合接口
type PersistentStore interface {
	UserStore
	Close() error
}
