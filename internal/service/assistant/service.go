package assistant

import (
	"context"

	"counsel/internal/model/assistant"
	"counsel/internal/model/auth"
	"counsel/internal/pkg/ctxutil"
)

// AssistantService 对话助手服务接口
// 定义 assistant 模块 service 层提供的能力
type AssistantService interface {
	// SubmitTurn 提交一轮对话
	SubmitTurn(ctx context.Context, owner ctxutil.Owner, req *TurnRequest) (*TurnResult, error)

	// ListThreads 列出未归档会话（会先执行历史迁移）
	ListThreads(ctx context.Context, owner ctxutil.Owner, limit int64) ([]*assistant.Thread, error)

	// GetThread 获取会话详情
	GetThread(ctx context.Context, owner ctxutil.Owner, threadID string) (*assistant.Thread, error)

	// RenameThread 修改会话标题
	RenameThread(ctx context.Context, owner ctxutil.Owner, threadID, title string) (*assistant.Thread, error)

	// ArchiveThread 归档会话
	ArchiveThread(ctx context.Context, owner ctxutil.Owner, threadID string) error

	// UpdateThreadDocuments 替换会话关联的文档
	UpdateThreadDocuments(ctx context.Context, owner ctxutil.Owner, threadID string, documentIDs []string) (*assistant.Thread, error)

	// RunLegacyMigration 执行历史记录迁移
	RunLegacyMigration(ctx context.Context, owner ctxutil.Owner) (*MigrationReport, error)

	// ListInteractions 分页查询交互记录
	ListInteractions(ctx context.Context, owner ctxutil.Owner, q InteractionQuery) (*InteractionPage, error)

	// GetInteraction 获取交互记录
	GetInteraction(ctx context.Context, owner ctxutil.Owner, interactionID string) (*assistant.Interaction, error)

	// SubmitFeedback 提交反馈
	SubmitFeedback(ctx context.Context, owner ctxutil.Owner, interactionID string, in FeedbackInput) (*assistant.Interaction, error)

	// MarkTemplate 设置模板标记
	MarkTemplate(ctx context.Context, owner ctxutil.Owner, interactionID string, isTemplate bool, name string) (*assistant.Interaction, error)

	// DeleteInteraction 删除交互记录
	DeleteInteraction(ctx context.Context, owner ctxutil.Owner, interactionID string) error

	// GetQuota 查询当前用量
	GetQuota(ctx context.Context, owner ctxutil.Owner) (*auth.AIUsage, error)
}

var _ AssistantService = (*Service)(nil)
