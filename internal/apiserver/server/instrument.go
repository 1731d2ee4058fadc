// Package server 存储层指标装饰器
package server

import (
	"context"
	"time"

	"account-admin/internal/shared/model"
	"account-admin/internal/shared/storage"
	"account-admin/pkg/logging"
)

// instrumentedStore 包装 PersistentStore，记录每次存储操作的指标与慢查询日志
type instrumentedStore struct {
	next    storage.PersistentStore
	metrics *Metrics
	logger  *logging.Logger
}

var _ storage.PersistentStore = (*instrumentedStore)(nil)

func newInstrumentedStore(next storage.PersistentStore, metrics *Metrics, logger *logging.Logger) *instrumentedStore {
	return &instrumentedStore{next: next, metrics: metrics, logger: logger}
}

// observe 记录单次操作的耗时指标与日志
func (s *instrumentedStore) observe(operation string, start time.Time, err error) {
	d := time.Since(start)
	s.metrics.RecordDBQuery(operation, "users", d)
	s.logger.DBQueryLog(operation, "users", d, err)
}

func (s *instrumentedStore) CreateUser(ctx context.Context, user *model.User) error {
	start := time.Now()
	err := s.next.CreateUser(ctx, user)
	s.observe("create_user", start, err)
	return err
}

func (s *instrumentedStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	start := time.Now()
	u, err := s.next.GetUserByID(ctx, id)
	s.observe("get_user_by_id", start, err)
	return u, err
}

func (s *instrumentedStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	start := time.Now()
	u, err := s.next.GetUserByEmail(ctx, email)
	s.observe("get_user_by_email", start, err)
	return u, err
}

func (s *instrumentedStore) GetUserWithSecretsByID(ctx context.Context, id string) (*model.User, error) {
	start := time.Now()
	u, err := s.next.GetUserWithSecretsByID(ctx, id)
	s.observe("get_user_with_secrets_by_id", start, err)
	return u, err
}

func (s *instrumentedStore) GetUserWithSecretsByEmail(ctx context.Context, email string) (*model.User, error) {
	start := time.Now()
	u, err := s.next.GetUserWithSecretsByEmail(ctx, email)
	s.observe("get_user_with_secrets_by_email", start, err)
	return u, err
}

func (s *instrumentedStore) GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
	start := time.Now()
	u, err := s.next.GetUserByResetToken(ctx, tokenHash, now)
	s.observe("get_user_by_reset_token", start, err)
	return u, err
}

func (s *instrumentedStore) ListUsers(ctx context.Context) ([]*model.User, error) {
	start := time.Now()
	users, err := s.next.ListUsers(ctx)
	s.observe("list_users", start, err)
	return users, err
}

func (s *instrumentedStore) UpdateUser(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	start := time.Now()
	u, err := s.next.UpdateUser(ctx, id, upd)
	s.observe("update_user", start, err)
	return u, err
}

func (s *instrumentedStore) UpdateUserPassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	start := time.Now()
	err := s.next.UpdateUserPassword(ctx, id, passwordHash, changedAt)
	s.observe("update_user_password", start, err)
	return err
}

func (s *instrumentedStore) SetUserResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	start := time.Now()
	err := s.next.SetUserResetToken(ctx, id, tokenHash, expiresAt)
	s.observe("set_user_reset_token", start, err)
	return err
}

func (s *instrumentedStore) ClearUserResetToken(ctx context.Context, id string) error {
	start := time.Now()
	err := s.next.ClearUserResetToken(ctx, id)
	s.observe("clear_user_reset_token", start, err)
	return err
}

func (s *instrumentedStore) DeactivateUser(ctx context.Context, id string) error {
	start := time.Now()
	err := s.next.DeactivateUser(ctx, id)
	s.observe("deactivate_user", start, err)
	return err
}

func (s *instrumentedStore) DeleteUser(ctx context.Context, id string) error {
	start := time.Now()
	err := s.next.DeleteUser(ctx, id)
	s.observe("delete_user", start, err)
	return err
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
