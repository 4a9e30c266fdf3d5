package assistant

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PlaceholderTitle 无法从提问生成标题时使用的占位标题
const PlaceholderTitle = "New conversation"

// Thread 会话
// Turns 是最近若干条消息的窗口缓存，完整历史以 Interaction 为准。
// Turns 与 TurnCount/LastPrompt/LastResponsePreview/LastMessageAt 只能通过
// AppendTurn 或 ReplaceProjection 修改，以保证摘要字段与消息窗口一致。
type Thread struct {
	ID     string `bson:"_id" json:"id"`                              // 会话ID（UUID）
	FirmID string `bson:"firm_id" json:"firm_id"`                     // 所属律所
	UserID string `bson:"user_id" json:"user_id"`                     // 所属用户
	CaseID string `bson:"case_id,omitempty" json:"case_id,omitempty"` // 关联案件

	Title       string   `bson:"title" json:"title"`
	Kind        Kind     `bson:"kind" json:"kind"`
	Model       string   `bson:"model,omitempty" json:"model,omitempty"` // 最近使用的模型
	DocumentIDs []string `bson:"document_ids,omitempty" json:"document_ids,omitempty"`
	Archived    bool     `bson:"archived" json:"archived"`

	Turns               []Turn     `bson:"turns" json:"turns"`
	TurnCount           int        `bson:"turn_count" json:"turn_count"` // 累计轮数，不受窗口截断影响
	LastMessageAt       *time.Time `bson:"last_message_at,omitempty" json:"last_message_at,omitempty"`
	LastPrompt          string     `bson:"last_prompt,omitempty" json:"last_prompt,omitempty"`
	LastResponsePreview string     `bson:"last_response_preview,omitempty" json:"last_response_preview,omitempty"`

	Version   int64     `bson:"version" json:"-"` // 乐观锁版本号
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Turn 会话中的一条消息
type Turn struct {
	Role          Role      `bson:"role" json:"role"`
	Content       string    `bson:"content" json:"content"`
	Response      *Response `bson:"response,omitempty" json:"response,omitempty"` // 仅 assistant 消息
	InteractionID string    `bson:"interaction_id,omitempty" json:"interaction_id,omitempty"`
	Timestamp     time.Time `bson:"timestamp" json:"timestamp"`
}

// ThreadPolicy 会话窗口与摘要的长度限制
type ThreadPolicy struct {
	MaxTurns      int // 消息窗口上限（条）
	TitleLength   int // 标题最大字符数
	PreviewLength int // 回复预览最大字符数
}

// DefaultThreadPolicy 默认限制
var DefaultThreadPolicy = ThreadPolicy{
	MaxTurns:      200,
	TitleLength:   60,
	PreviewLength: 200,
}

// TurnMeta 追加一轮时附带的元信息
type TurnMeta struct {
	InteractionID string    // 本轮对应的交互记录，窗口中已存在时不再追加
	Model         string    // 本轮使用的模型，为空则不更新
	At            time.Time // 本轮时间
}

// Projection 由交互记录推导出的会话投影（迁移时整体替换）
type Projection struct {
	Kind                Kind
	Model               string
	CaseID              string
	Turns               []Turn
	TurnCount           int
	LastMessageAt       *time.Time
	LastPrompt          string
	LastResponsePreview string
	UpdatedAt           time.Time
}

// NewThread 创建空会话
func NewThread(id, firmID, userID string, kind Kind, seedPrompt string, policy ThreadPolicy, now time.Time) *Thread {
	return &Thread{
		ID:        id,
		FirmID:    firmID,
		UserID:    userID,
		Title:     DeriveTitle(seedPrompt, policy.TitleLength),
		Kind:      kind,
		Turns:     []Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// OwnedBy 是否属于指定用户和律所
func (t *Thread) OwnedBy(userID, firmID string) bool {
	return t.UserID == userID && t.FirmID == firmID
}

// AppendTurn 追加一轮问答，返回是否追加
// 先写 user 再写 assistant，两条同一时间戳；TurnCount 每轮 +1；
// 超出窗口时从头部丢弃最旧的消息。
// meta.InteractionID 已在窗口中（例如迁移已按记录重建）时不做任何修改。
func (t *Thread) AppendTurn(prompt string, resp Response, meta TurnMeta, policy ThreadPolicy) bool {
	if t.HasInteraction(meta.InteractionID) {
		return false
	}
	at := meta.At
	r := resp
	t.Turns = append(t.Turns,
		Turn{Role: RoleUser, Content: prompt, InteractionID: meta.InteractionID, Timestamp: at},
		Turn{Role: RoleAssistant, Content: resp.Content, Response: &r, InteractionID: meta.InteractionID, Timestamp: at},
	)
	t.Turns = TrimTurns(t.Turns, policy.MaxTurns)

	t.TurnCount++
	t.LastMessageAt = &at
	t.LastPrompt = prompt
	t.LastResponsePreview = Preview(resp.Content, policy.PreviewLength)
	if meta.Model != "" {
		t.Model = meta.Model
	}
	if t.Title == PlaceholderTitle && strings.TrimSpace(prompt) != "" {
		t.Title = DeriveTitle(prompt, policy.TitleLength)
	}
	t.UpdatedAt = at
	return true
}

// HasInteraction 窗口中是否已有该交互记录的消息
func (t *Thread) HasInteraction(interactionID string) bool {
	if interactionID == "" {
		return false
	}
	for i := range t.Turns {
		if t.Turns[i].InteractionID == interactionID {
			return true
		}
	}
	return false
}

// ReplaceProjection 用推导出的投影整体替换会话的派生字段
func (t *Thread) ReplaceProjection(p Projection, policy ThreadPolicy) {
	t.Kind = p.Kind
	t.Model = p.Model
	t.CaseID = p.CaseID
	t.Turns = TrimTurns(p.Turns, policy.MaxTurns)
	t.TurnCount = p.TurnCount
	t.LastMessageAt = p.LastMessageAt
	t.LastPrompt = p.LastPrompt
	t.LastResponsePreview = p.LastResponsePreview
	t.UpdatedAt = p.UpdatedAt
}

// Projection 返回会话当前的派生字段
func (t *Thread) Projection() Projection {
	return Projection{
		Kind:                t.Kind,
		Model:               t.Model,
		CaseID:              t.CaseID,
		Turns:               t.Turns,
		TurnCount:           t.TurnCount,
		LastMessageAt:       t.LastMessageAt,
		LastPrompt:          t.LastPrompt,
		LastResponsePreview: t.LastResponsePreview,
		UpdatedAt:           t.UpdatedAt,
	}
}

// RecentPairs 返回最近 n 组完整的 user/assistant 问答
func (t *Thread) RecentPairs(n int) []Turn {
	if n <= 0 {
		return nil
	}
	var pairs []Turn
	for i := len(t.Turns) - 1; i > 0 && len(pairs) < 2*n; i-- {
		if t.Turns[i].Role == RoleAssistant && t.Turns[i-1].Role == RoleUser {
			pairs = append([]Turn{t.Turns[i-1], t.Turns[i]}, pairs...)
			i--
		}
	}
	return pairs
}

// TrimTurns 只保留最后 max 条消息，顺序不变
func TrimTurns(turns []Turn, max int) []Turn {
	if max <= 0 || len(turns) <= max {
		return turns
	}
	kept := make([]Turn, max)
	copy(kept, turns[len(turns)-max:])
	return kept
}

// DeriveTitle 取提问前 n 个字符作为标题
func DeriveTitle(prompt string, n int) string {
	title := strings.Join(strings.Fields(prompt), " ")
	if n > 0 && utf8.RuneCountInString(title) > n {
		title = strings.TrimSpace(string([]rune(title)[:n]))
	}
	if title == "" {
		return PlaceholderTitle
	}
	return title
}

// Preview 截取前 n 个字符
func Preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Collection 返回集合名称
func (t *Thread) Collection() string {
	return "ai_threads"
}

// EnsureIndexes 创建和维护索引
func (t *Thread) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(t.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "firm_id", Value: 1},
				{Key: "user_id", Value: 1},
				{Key: "archived", Value: 1},
				{Key: "last_message_at", Value: -1},
			},
			Options: options.Index().SetName("idx_owner_active_recent"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
