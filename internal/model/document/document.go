package document

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Document 律所文档
// 文件存储与文本抽取由文档服务负责，这里只读取抽取后的文本作为对话上下文。
type Document struct {
	ID            string     `bson:"_id" json:"id"`                                            // 文档ID（UUID）
	FirmID        string     `bson:"firm_id" json:"firm_id"`                                   // 所属律所
	UploadedBy    string     `bson:"uploaded_by" json:"uploaded_by"`                           // 上传者
	Title         string     `bson:"title" json:"title"`                                       // 文档标题
	FileName      string     `bson:"file_name" json:"file_name"`                               // 原始文件名
	ContentType   string     `bson:"content_type" json:"content_type"`                         // MIME类型
	ExtractedText string     `bson:"extracted_text,omitempty" json:"-"`                        // 抽取后的正文
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`                             // 创建时间
	UpdatedAt     time.Time  `bson:"updated_at" json:"updated_at"`                             // 更新时间
	DeletedAt     *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`         // 软删除时间
}

// Snippet 文档上下文片段
type Snippet struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// Collection 返回集合名称
func (d *Document) Collection() string {
	return "documents"
}

// EnsureIndexes 创建和维护索引
func (d *Document) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(d.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "firm_id", Value: 1}, bson.E{Key: "deleted_at", Value: 1}},
			Options: options.Index().SetName("idx_firm_deleted"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
