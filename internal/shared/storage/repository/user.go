package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"account-admin/internal/shared/model"
	"account-admin/internal/shared/storage"
)

// sanitizedColumns 净化投影的列集合（不含凭据字段）
const sanitizedColumns = "id, name, email, role, phone_number, company, active, created_at, updated_at"

// secretColumns 完整列集合（含凭据字段）
const secretColumns = "id, name, email, password_hash, role, phone_number, company, " +
	"password_changed_at, reset_token_hash, reset_token_expires, active, created_at, updated_at"

// wrapError 将 SQL 错误转换为领域错误
func (s *Store) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if s.dialect.IsUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	return err
}

// scanSanitized 扫描净化投影的一行
func scanSanitized(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	var phone, company sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &phone, &company,
		&u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.PhoneNumber = phone.String
	u.Company = company.String
	return u, nil
}

// scanWithSecrets 扫描完整列集合的一行
func scanWithSecrets(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	var phone, company, resetHash sql.NullString
	var changedAt, resetExpires sql.NullTime
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &phone, &company,
		&changedAt, &resetHash, &resetExpires, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.PhoneNumber = phone.String
	u.Company = company.String
	u.ResetTokenHash = resetHash.String
	if changedAt.Valid {
		t := changedAt.Time
		u.PasswordChangedAt = &t
	}
	if resetExpires.Valid {
		t := resetExpires.Time
		u.ResetTokenExpires = &t
	}
	return u, nil
}

// nullable 空字符串转 NULL
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// ============================================================================
// UserStore
// ============================================================================

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO users (id, name, email, password_hash, role, phone_number, company, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`),
		user.ID, user.Name, user.Email, user.PasswordHash, user.Role,
		nullable(user.PhoneNumber), nullable(user.Company),
		user.Active, user.CreatedAt, user.UpdatedAt,
	)
	return s.wrapError(err)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+sanitizedColumns+` FROM users WHERE id = $1 AND active = `+s.dialect.BooleanLiteral(true)), id)
	u, err := scanSanitized(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, s.wrapError(err)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+sanitizedColumns+` FROM users WHERE email = $1 AND active = `+s.dialect.BooleanLiteral(true)), email)
	u, err := scanSanitized(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, s.wrapError(err)
}

func (s *Store) GetUserWithSecretsByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+secretColumns+` FROM users WHERE id = $1 AND active = `+s.dialect.BooleanLiteral(true)), id)
	u, err := scanWithSecrets(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, s.wrapError(err)
}

func (s *Store) GetUserWithSecretsByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+secretColumns+` FROM users WHERE email = $1 AND active = `+s.dialect.BooleanLiteral(true)), email)
	u, err := scanWithSecrets(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, s.wrapError(err)
}

func (s *Store) GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+secretColumns+` FROM users
		 WHERE reset_token_hash = $1 AND reset_token_expires > $2
		   AND active = `+s.dialect.BooleanLiteral(true)), tokenHash, now)
	u, err := scanWithSecrets(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, s.wrapError(err)
}

func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+sanitizedColumns+` FROM users
		 WHERE active = `+s.dialect.BooleanLiteral(true)+` ORDER BY created_at DESC`))
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		u, err := scanSanitized(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	sets := []string{}
	args := []any{}
	n := 1
	add := func(col string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, v)
		n++
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.Role != nil {
		add("role", *upd.Role)
	}
	if upd.PhoneNumber != nil {
		add("phone_number", nullable(*upd.PhoneNumber))
	}
	if upd.Company != nil {
		add("company", nullable(*upd.Company))
	}
	sets = append(sets, "updated_at = "+s.dialect.CurrentTimestamp())

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d AND active = %s`,
		strings.Join(sets, ", "), n, s.dialect.BooleanLiteral(true))

	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.wrapError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, storage.ErrNotFound
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	// 单语句更新：写入新哈希的同时消费掉重置令牌
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET password_hash = $1, password_changed_at = $2,
		        reset_token_hash = NULL, reset_token_expires = NULL,
		        updated_at = `+s.dialect.CurrentTimestamp()+`
		 WHERE id = $3 AND active = `+s.dialect.BooleanLiteral(true)),
		passwordHash, changedAt, id)
	if err != nil {
		return s.wrapError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SetUserResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET reset_token_hash = $1, reset_token_expires = $2,
		        updated_at = `+s.dialect.CurrentTimestamp()+`
		 WHERE id = $3 AND active = `+s.dialect.BooleanLiteral(true)),
		tokenHash, expiresAt, id)
	if err != nil {
		return s.wrapError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ClearUserResetToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET reset_token_hash = NULL, reset_token_expires = NULL
		 WHERE id = $1 AND active = `+s.dialect.BooleanLiteral(true)), id)
	if err != nil {
		return s.wrapError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeactivateUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET active = `+s.dialect.BooleanLiteral(false)+`,
		        updated_at = `+s.dialect.CurrentTimestamp()+`
		 WHERE id = $1 AND active = `+s.dialect.BooleanLiteral(true)), id)
	if err != nil {
		return s.wrapError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM users WHERE id = $1`), id)
	if err != nil {
		return s.wrapError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
