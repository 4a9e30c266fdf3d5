package auth

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"counsel/internal/model/auth"
	"counsel/internal/repository"
)

// UsageRepository 用量计数仓库接口
type UsageRepository interface {
	// GetUsage 读取用量，用户不存在返回 repository.ErrNotFound
	GetUsage(ctx context.Context, userID string) (*auth.AIUsage, error)
	// IncrementUsage 用量 +1，用户文档不存在时创建（nextReset 非空时作为首个重置时间）
	IncrementUsage(ctx context.Context, userID, firmID string, nextReset *time.Time) error
	// ResetUsage 仅当 reset_at 已过期（或从未设置）时归零并设置下一次重置时间
	ResetUsage(ctx context.Context, userID string, now, nextReset time.Time) error
}

// UserRepo 用户仓库
// 使用UUID作为ID，无需ObjectID转换
type UserRepo struct {
	collection *mongo.Collection
}

// NewUserRepo 创建用户仓库
func NewUserRepo(db *mongo.Database) *UserRepo {
	var u auth.User
	return &UserRepo{
		collection: db.Collection(u.Collection()),
	}
}

// GetUsage 读取用量
func (r *UserRepo) GetUsage(ctx context.Context, userID string) (*auth.AIUsage, error) {
	var user auth.User
	opts := options.FindOne().SetProjection(bson.M{"ai_usage": 1})
	if err := r.collection.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&user); err != nil {
		return nil, repository.Translate(err)
	}
	return &user.AIUsage, nil
}

// IncrementUsage 用量 +1
func (r *UserRepo) IncrementUsage(ctx context.Context, userID, firmID string, nextReset *time.Time) error {
	now := time.Now()
	onInsert := bson.M{
		"firm_id":    firmID,
		"created_at": now,
	}
	if nextReset != nil {
		onInsert["ai_usage.reset_at"] = *nextReset
	}
	update := bson.M{
		"$inc":         bson.M{"ai_usage.used": 1},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": onInsert,
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true))
	return err
}

// ResetUsage 到期后归零，首次调用时开启计数周期
func (r *UserRepo) ResetUsage(ctx context.Context, userID string, now, nextReset time.Time) error {
	filter := bson.M{
		"_id": userID,
		"$or": bson.A{
			bson.M{"ai_usage.reset_at": bson.M{"$lte": now}},
			bson.M{"ai_usage.reset_at": nil},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"ai_usage.used":     0,
			"ai_usage.reset_at": nextReset,
			"updated_at":        now,
		},
	}
	_, err := r.collection.UpdateOne(ctx, filter, update)
	return err
}
