package auth

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// User 律所成员
// 账号本身由身份服务维护，本服务只读写 AI 用量计数
type User struct {
	ID        string    `bson:"_id,omitempty" json:"id"` // UUID格式的ID
	FirmID    string    `bson:"firm_id" json:"firm_id"`
	AIUsage   AIUsage   `bson:"ai_usage" json:"ai_usage"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// AIUsage AI 调用用量
// Limit<=0 表示不限；ResetAt 到期后 Used 归零
type AIUsage struct {
	Used    int64      `bson:"used" json:"used"`
	Limit   int64      `bson:"limit" json:"limit"`
	ResetAt *time.Time `bson:"reset_at,omitempty" json:"reset_at,omitempty"`
}

// Exceeded 是否已用尽
func (u AIUsage) Exceeded() bool {
	return u.Limit > 0 && u.Used >= u.Limit
}

// Collection 返回集合名称
func (u *User) Collection() string {
	return "users"
}

// EnsureIndexes 创建和维护索引
func (u *User) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(u.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "firm_id", Value: 1}},
			Options: options.Index().SetName("idx_firm"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
