package document

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"counsel/internal/model/document"
)

// DocumentRepository 文档仓库接口
type DocumentRepository interface {
	// FindByIDs 返回属于律所且未删除的文档，不存在的ID直接忽略
	FindByIDs(ctx context.Context, firmID string, ids []string) ([]*document.Document, error)
}

// DocumentRepo 实现 DocumentRepository
type DocumentRepo struct {
	collection *mongo.Collection
}

// NewDocumentRepo 创建文档仓库
func NewDocumentRepo(db *mongo.Database) *DocumentRepo {
	var doc document.Document
	return &DocumentRepo{
		collection: db.Collection(doc.Collection()),
	}
}

// FindByIDs 批量查询文档
func (r *DocumentRepo) FindByIDs(ctx context.Context, firmID string, ids []string) ([]*document.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	filter := bson.M{
		"_id":        bson.M{"$in": ids},
		"firm_id":    firmID,
		"deleted_at": nil,
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*document.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
