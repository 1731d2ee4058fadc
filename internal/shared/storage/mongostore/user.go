package mongostore

import (
	"context"
	"errors"
	"time"

	"account-admin/internal/shared/model"
	"account-admin/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// UserStore
// ============================================================================

// sanitizedProjection 默认投影：排除全部凭据字段
func sanitizedProjection() bson.D {
	return bson.D{
		{Key: "password_hash", Value: 0},
		{Key: "password_changed_at", Value: 0},
		{Key: "reset_token_hash", Value: 0},
		{Key: "reset_token_expires", Value: 0},
	}
}

// activeOnly 追加软删除过滤：active != false
// 用 $ne 而非等值匹配，兼容历史文档缺失 active 字段的情况
func activeOnly(filter bson.D) bson.D {
	return append(filter, bson.E{Key: "active", Value: bson.D{{Key: "$ne", Value: false}}})
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return insertOne(ctx, s.col(ColUsers), user)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers),
		activeOnly(bson.D{{Key: "_id", Value: id}}),
		options.FindOne().SetProjection(sanitizedProjection()))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers),
		activeOnly(bson.D{{Key: "email", Value: email}}),
		options.FindOne().SetProjection(sanitizedProjection()))
}

func (s *Store) GetUserWithSecretsByID(ctx context.Context, id string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers),
		activeOnly(bson.D{{Key: "_id", Value: id}}))
}

func (s *Store) GetUserWithSecretsByEmail(ctx context.Context, email string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers),
		activeOnly(bson.D{{Key: "email", Value: email}}))
}

func (s *Store) GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
	// 令牌错误与过期统一为查无此人，不区分失败原因
	return findOne[model.User](ctx, s.col(ColUsers),
		activeOnly(bson.D{
			{Key: "reset_token_hash", Value: tokenHash},
			{Key: "reset_token_expires", Value: bson.D{{Key: "$gt", Value: now}}},
		}))
}

func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetProjection(sanitizedProjection())
	return findMany[model.User](ctx, s.col(ColUsers), activeOnly(bson.D{}), opts)
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	set := bson.D{{Key: "updated_at", Value: time.Now()}}
	if upd.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *upd.Name})
	}
	if upd.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *upd.Email})
	}
	if upd.Role != nil {
		set = append(set, bson.E{Key: "role", Value: *upd.Role})
	}
	if upd.PhoneNumber != nil {
		set = append(set, bson.E{Key: "phone_number", Value: *upd.PhoneNumber})
	}
	if upd.Company != nil {
		set = append(set, bson.E{Key: "company", Value: *upd.Company})
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(sanitizedProjection())

	var updated model.User
	err := s.col(ColUsers).FindOneAndUpdate(ctx,
		activeOnly(bson.D{{Key: "_id", Value: id}}),
		bson.D{{Key: "$set", Value: set}},
		opts,
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, wrapError(err)
	}
	return &updated, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	// 单文档原子更新：写入新哈希的同时消费掉重置令牌
	return updateOne(ctx, s.col(ColUsers),
		activeOnly(bson.D{{Key: "_id", Value: id}}),
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "password_hash", Value: passwordHash},
				{Key: "password_changed_at", Value: changedAt},
				{Key: "updated_at", Value: time.Now()},
			}},
			{Key: "$unset", Value: bson.D{
				{Key: "reset_token_hash", Value: ""},
				{Key: "reset_token_expires", Value: ""},
			}},
		})
}

func (s *Store) SetUserResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return updateOne(ctx, s.col(ColUsers),
		activeOnly(bson.D{{Key: "_id", Value: id}}),
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "reset_token_hash", Value: tokenHash},
			{Key: "reset_token_expires", Value: expiresAt},
			{Key: "updated_at", Value: time.Now()},
		}}})
}

func (s *Store) ClearUserResetToken(ctx context.Context, id string) error {
	return updateOne(ctx, s.col(ColUsers),
		activeOnly(bson.D{{Key: "_id", Value: id}}),
		bson.D{{Key: "$unset", Value: bson.D{
			{Key: "reset_token_hash", Value: ""},
			{Key: "reset_token_expires", Value: ""},
		}}})
}

func (s *Store) DeactivateUser(ctx context.Context, id string) error {
	return updateOne(ctx, s.col(ColUsers),
		activeOnly(bson.D{{Key: "_id", Value: id}}),
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "active", Value: false},
			{Key: "updated_at", Value: time.Now()},
		}}})
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return deleteOne(ctx, s.col(ColUsers), bson.D{{Key: "_id", Value: id}})
}
