package assistant

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Interaction 交互记录
// 一次成功的模型调用对应一条记录，是对话内容的持久事实来源。
// 创建后 prompt/response 不再修改，只有 feedback 和模板标记可变；
// thread_id 只允许被历史数据迁移改写一次。
type Interaction struct {
	ID       string `bson:"_id" json:"id"`                              // 记录ID（UUID）
	FirmID   string `bson:"firm_id" json:"firm_id"`                     // 所属律所
	UserID   string `bson:"user_id" json:"user_id"`                     // 所属用户
	CaseID   string `bson:"case_id,omitempty" json:"case_id,omitempty"` // 关联案件
	ThreadID string `bson:"thread_id,omitempty" json:"thread_id,omitempty"`

	Kind    Kind               `bson:"kind" json:"kind"`
	Prompt  string             `bson:"prompt" json:"prompt"`
	Context InteractionContext `bson:"context" json:"context"`

	Response Response  `bson:"response" json:"response"`
	Feedback *Feedback `bson:"feedback,omitempty" json:"feedback,omitempty"`

	IsTemplate   bool   `bson:"is_template" json:"is_template"`
	TemplateName string `bson:"template_name,omitempty" json:"template_name,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// InteractionContext 交互上下文
type InteractionContext struct {
	DocumentIDs           []string `bson:"document_ids,omitempty" json:"document_ids,omitempty"`
	PreviousInteractionID string   `bson:"previous_interaction_id,omitempty" json:"previous_interaction_id,omitempty"`
	Notes                 string   `bson:"notes,omitempty" json:"notes,omitempty"`
}

// Response 模型回复
// EstimatedTokens 是按字符数估算的值，不等同于供应商计费的 token 数
type Response struct {
	Content         string     `bson:"content,omitempty" json:"content,omitempty"`
	Citations       []Citation `bson:"citations,omitempty" json:"citations,omitempty"`
	Model           string     `bson:"model,omitempty" json:"model,omitempty"`
	EstimatedTokens int        `bson:"estimated_tokens,omitempty" json:"estimated_tokens,omitempty"`
	LatencyMs       int64      `bson:"latency_ms,omitempty" json:"latency_ms,omitempty"`
	Confidence      float64    `bson:"confidence,omitempty" json:"confidence,omitempty"`
}

// IsEmpty 是否没有任何回复内容
func (r Response) IsEmpty() bool {
	return r.Content == "" && r.Model == ""
}

// Citation 引用来源
type Citation struct {
	DocumentID string `bson:"document_id,omitempty" json:"document_id,omitempty"`
	Title      string `bson:"title" json:"title"`
	Excerpt    string `bson:"excerpt,omitempty" json:"excerpt,omitempty"`
}

// Feedback 用户反馈
type Feedback struct {
	Rating      int       `bson:"rating,omitempty" json:"rating,omitempty"` // 1-5
	Helpful     *bool     `bson:"helpful,omitempty" json:"helpful,omitempty"`
	Comment     string    `bson:"comment,omitempty" json:"comment,omitempty"`
	SubmittedAt time.Time `bson:"submitted_at" json:"submitted_at"`
}

// Collection 返回集合名称
func (i *Interaction) Collection() string {
	return "ai_interactions"
}

// EnsureIndexes 创建和维护索引
func (i *Interaction) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(i.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "firm_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_owner_created"),
		},
		{
			Keys:    bson.D{{Key: "thread_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_thread_created"),
		},
		{
			Keys:    bson.D{{Key: "firm_id", Value: 1}, {Key: "kind", Value: 1}},
			Options: options.Index().SetName("idx_firm_kind"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
