package assistant

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"counsel/internal/model/assistant"
	"counsel/internal/repository"
)

// ThreadRepository 会话仓库接口
type ThreadRepository interface {
	Create(ctx context.Context, t *assistant.Thread) error
	FindByID(ctx context.Context, id string) (*assistant.Thread, error)
	// ListActive 按最近消息时间倒序返回未归档会话（不含消息窗口）
	ListActive(ctx context.Context, userID, firmID string, limit int64) ([]*assistant.Thread, error)
	// ListIDs 返回用户全部会话ID（含已归档）
	ListIDs(ctx context.Context, userID, firmID string) ([]string, error)
	// Update 以 expectedVersion 做比较并整体替换，成功后 t.Version 自增
	Update(ctx context.Context, t *assistant.Thread, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
}

// ThreadRepo 实现 ThreadRepository
type ThreadRepo struct {
	coll *mongo.Collection
}

// NewThreadRepo 创建会话仓库
func NewThreadRepo(db *mongo.Database) *ThreadRepo {
	var t assistant.Thread
	return &ThreadRepo{coll: db.Collection(t.Collection())}
}

// Create 创建会话
func (r *ThreadRepo) Create(ctx context.Context, t *assistant.Thread) error {
	if t.Turns == nil {
		t.Turns = []assistant.Turn{}
	}
	_, err := r.coll.InsertOne(ctx, t)
	return repository.Translate(err)
}

// FindByID 根据ID查询
func (r *ThreadRepo) FindByID(ctx context.Context, id string) (*assistant.Thread, error) {
	var t assistant.Thread
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return nil, repository.Translate(err)
	}
	return &t, nil
}

// ListActive 查询未归档会话
func (r *ThreadRepo) ListActive(ctx context.Context, userID, firmID string, limit int64) ([]*assistant.Thread, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "updated_at", Value: -1}}).
		SetProjection(bson.M{"turns": 0})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID, "firm_id": firmID, "archived": false}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var list []*assistant.Thread
	if err := cur.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ListIDs 返回用户全部会话ID
func (r *ThreadRepo) ListIDs(ctx context.Context, userID, firmID string) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID, "firm_id": firmID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

// Update 比较版本后整体替换
func (r *ThreadRepo) Update(ctx context.Context, t *assistant.Thread, expectedVersion int64) error {
	next := *t
	next.Version = expectedVersion + 1
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": t.ID, "version": expectedVersion}, &next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrVersionConflict
	}
	t.Version = next.Version
	return nil
}

// Delete 删除会话（仅用于回滚本轮新建的会话）
func (r *ThreadRepo) Delete(ctx context.Context, id string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
