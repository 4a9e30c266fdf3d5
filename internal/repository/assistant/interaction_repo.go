package assistant

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"counsel/internal/model/assistant"
	"counsel/internal/repository"
)

// InteractionRepository 交互记录仓库接口
type InteractionRepository interface {
	Create(ctx context.Context, it *assistant.Interaction) error
	FindByID(ctx context.Context, id, userID, firmID string) (*assistant.Interaction, error)
	// ListByOwner 按创建时间升序返回用户的全部记录（迁移使用）
	ListByOwner(ctx context.Context, userID, firmID string) ([]*assistant.Interaction, error)
	List(ctx context.Context, filter InteractionFilter) ([]*assistant.Interaction, int64, error)
	UpdateFeedback(ctx context.Context, id, userID, firmID string, fb *assistant.Feedback) error
	UpdateTemplate(ctx context.Context, id, userID, firmID string, isTemplate bool, name string) error
	// ReassignThread 把仍指向 from 的记录改写为 to（仅迁移使用），返回实际改写的条数
	ReassignThread(ctx context.Context, ids []string, from, to string) (int64, error)
	Delete(ctx context.Context, id, userID, firmID string) error
}

// InteractionFilter 交互记录查询条件
type InteractionFilter struct {
	UserID   string
	FirmID   string
	Kind     assistant.Kind
	ThreadID string
	Page     int64
	PageSize int64
}

// InteractionRepo 实现 InteractionRepository
type InteractionRepo struct {
	coll *mongo.Collection
}

// NewInteractionRepo 创建交互记录仓库
func NewInteractionRepo(db *mongo.Database) *InteractionRepo {
	var it assistant.Interaction
	return &InteractionRepo{coll: db.Collection(it.Collection())}
}

func ownerFilter(id, userID, firmID string) bson.M {
	return bson.M{"_id": id, "user_id": userID, "firm_id": firmID}
}

// Create 创建交互记录
func (r *InteractionRepo) Create(ctx context.Context, it *assistant.Interaction) error {
	now := time.Now()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = now
	_, err := r.coll.InsertOne(ctx, it)
	return err
}

// FindByID 根据ID查询（校验归属）
func (r *InteractionRepo) FindByID(ctx context.Context, id, userID, firmID string) (*assistant.Interaction, error) {
	var it assistant.Interaction
	if err := r.coll.FindOne(ctx, ownerFilter(id, userID, firmID)).Decode(&it); err != nil {
		return nil, repository.Translate(err)
	}
	return &it, nil
}

// ListByOwner 按创建时间升序返回用户的全部记录
func (r *InteractionRepo) ListByOwner(ctx context.Context, userID, firmID string) ([]*assistant.Interaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID, "firm_id": firmID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var list []*assistant.Interaction
	if err := cur.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// List 分页查询交互记录（按创建时间倒序）
func (r *InteractionRepo) List(ctx context.Context, f InteractionFilter) ([]*assistant.Interaction, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 || f.PageSize > 100 {
		f.PageSize = 20
	}

	filter := bson.M{"user_id": f.UserID, "firm_id": f.FirmID}
	if f.Kind != "" {
		filter["kind"] = f.Kind
	}
	if f.ThreadID != "" {
		filter["thread_id"] = f.ThreadID
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((f.Page - 1) * f.PageSize).
		SetLimit(f.PageSize)

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var list []*assistant.Interaction
	if err := cur.All(ctx, &list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// UpdateFeedback 写入用户反馈
func (r *InteractionRepo) UpdateFeedback(ctx context.Context, id, userID, firmID string, fb *assistant.Feedback) error {
	return r.updateOwned(ctx, id, userID, firmID, bson.M{"feedback": fb})
}

// UpdateTemplate 设置模板标记
func (r *InteractionRepo) UpdateTemplate(ctx context.Context, id, userID, firmID string, isTemplate bool, name string) error {
	return r.updateOwned(ctx, id, userID, firmID, bson.M{"is_template": isTemplate, "template_name": name})
}

func (r *InteractionRepo) updateOwned(ctx context.Context, id, userID, firmID string, set bson.M) error {
	set["updated_at"] = time.Now()
	res, err := r.coll.UpdateOne(ctx, ownerFilter(id, userID, firmID), bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ReassignThread 改写一组记录的 thread_id
// 只改写 thread_id 仍为 from 的记录，已被其他迁移改写的记录不受影响
func (r *InteractionRepo) ReassignThread(ctx context.Context, ids []string, from, to string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "thread_id": from},
		bson.M{"$set": bson.M{"thread_id": to, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// Delete 删除交互记录
func (r *InteractionRepo) Delete(ctx context.Context, id, userID, firmID string) error {
	res, err := r.coll.DeleteOne(ctx, ownerFilter(id, userID, firmID))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
