package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"counsel/internal/model/assistant"
	"counsel/internal/model/auth"
	"counsel/internal/model/document"
)

// EnsureIndexes 创建所有模型的索引
// 在应用启动时调用一次
func EnsureIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return EnsureAllIndexes(ctx, db,
		&assistant.Interaction{},
		&assistant.Thread{},
		&document.Document{},
		&auth.User{},
	)
}
