// Package memstore 实现基于内存的 storage.PersistentStore
//
// 用于单元测试和无数据库的本地开发。语义与 mongostore 对齐：
// 净化投影、软删除过滤、单"文档"原子更新（持锁完成）。
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"account-admin/internal/shared/model"
	"account-admin/internal/shared/storage"
)

// Store 内存存储
type Store struct {
	mu    sync.RWMutex
	users map[string]*model.User
}

// NewStore 创建内存存储实例
func NewStore() *Store {
	return &Store{users: make(map[string]*model.User)}
}

// Close 实现 PersistentStore 接口
func (s *Store) Close() error {
	return nil
}

// clone 返回深拷贝，避免调用方持有内部指针
func clone(u *model.User) *model.User {
	c := *u
	if u.PasswordChangedAt != nil {
		t := *u.PasswordChangedAt
		c.PasswordChangedAt = &t
	}
	if u.ResetTokenExpires != nil {
		t := *u.ResetTokenExpires
		c.ResetTokenExpires = &t
	}
	return &c
}

// sanitize 模拟默认投影：去除凭据字段
func sanitize(u *model.User) *model.User {
	return u.Sanitized()
}

// ============================================================================
// UserStore
// ============================================================================

func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return storage.ErrDuplicate
	}
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return storage.ErrDuplicate
		}
	}
	s.users[user.ID] = clone(user)
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok || !u.Active {
		return nil, nil
	}
	return sanitize(clone(u)), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email && u.Active {
			return sanitize(clone(u)), nil
		}
	}
	return nil, nil
}

func (s *Store) GetUserWithSecretsByID(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok || !u.Active {
		return nil, nil
	}
	return clone(u), nil
}

func (s *Store) GetUserWithSecretsByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email && u.Active {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (s *Store) GetUserByResetToken(_ context.Context, tokenHash string, now time.Time) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Active && u.ResetTokenHash == tokenHash &&
			u.ResetTokenExpires != nil && u.ResetTokenExpires.After(now) {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (s *Store) ListUsers(_ context.Context) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := []*model.User{}
	for _, u := range s.users {
		if u.Active {
			users = append(users, sanitize(clone(u)))
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || !u.Active {
		return nil, storage.ErrNotFound
	}
	if upd.Email != nil {
		for otherID, other := range s.users {
			if otherID != id && other.Email == *upd.Email {
				return nil, storage.ErrDuplicate
			}
		}
		u.Email = *upd.Email
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.PhoneNumber != nil {
		u.PhoneNumber = *upd.PhoneNumber
	}
	if upd.Company != nil {
		u.Company = *upd.Company
	}
	u.UpdatedAt = time.Now()
	return sanitize(clone(u)), nil
}

func (s *Store) UpdateUserPassword(_ context.Context, id, passwordHash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || !u.Active {
		return storage.ErrNotFound
	}
	u.PasswordHash = passwordHash
	t := changedAt
	u.PasswordChangedAt = &t
	u.ResetTokenHash = ""
	u.ResetTokenExpires = nil
	u.UpdatedAt = time.Now()
	return nil
}

func (s *Store) SetUserResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || !u.Active {
		return storage.ErrNotFound
	}
	u.ResetTokenHash = tokenHash
	t := expiresAt
	u.ResetTokenExpires = &t
	u.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ClearUserResetToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || !u.Active {
		return storage.ErrNotFound
	}
	u.ResetTokenHash = ""
	u.ResetTokenExpires = nil
	return nil
}

func (s *Store) DeactivateUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || !u.Active {
		return storage.ErrNotFound
	}
	u.Active = false
	u.UpdatedAt = time.Now()
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.users, id)
	return nil
}
