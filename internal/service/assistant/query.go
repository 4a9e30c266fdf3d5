package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"counsel/internal/ai"
	"counsel/internal/config"
	"counsel/internal/model/assistant"
	"counsel/internal/model/document"
	"counsel/internal/pkg/ctxutil"
	"counsel/internal/pkg/id"
	assistantrepo "counsel/internal/repository/assistant"
	authrepo "counsel/internal/repository/auth"
	docrepo "counsel/internal/repository/document"
)

// Repositories 对话助手依赖的仓库
type Repositories struct {
	Interactions assistantrepo.InteractionRepository
	Threads      assistantrepo.ThreadRepository
	Documents    docrepo.DocumentRepository
	Usage        authrepo.UsageRepository
}

// TurnRequest 一轮对话请求
type TurnRequest struct {
	Kind                  assistant.Kind
	Prompt                string
	DocumentIDs           []string
	ThreadID              string // 为空表示新会话
	Model                 string // 客户端指定的模型，可为空
	CaseID                string
	Notes                 string
	PreviousInteractionID string
}

// TurnResult 一轮对话结果
type TurnResult struct {
	Thread        *assistant.Thread      `json:"thread"`
	Interaction   *assistant.Interaction `json:"interaction"`
	ThreadCreated bool                   `json:"thread_created"`
	QuotaConsumed bool                   `json:"quota_consumed"` // false 表示本轮未计入用量
}

// Service 对话助手服务
// 唯一同时写入交互记录和会话的组件。一轮对话的顺序为：
// 校验 -> 配额检查 -> 文档上下文 -> 模型调用 -> 持久化（记录、会话、配额）。
// 模型调用失败时不产生任何写入；新会话在持久化阶段才创建。
type Service struct {
	ai           *ai.Client
	records      assistantrepo.InteractionRepository
	sessions     *SessionManager
	migrator     *Migrator
	quota        *QuotaGuard
	docs         *DocumentContextBuilder
	historyPairs int
	now          func() time.Time
}

// NewService 创建对话助手服务，cache 可以为 nil
// opts 作用于历史迁移器（例如跨进程迁移锁）
func NewService(aiClient *ai.Client, repos Repositories, cache ThreadCache, cfg config.AssistantConfig, quotaCfg config.QuotaConfig, opts ...MigratorOption) *Service {
	cfg = cfg.WithDefaults()
	opts = append([]MigratorOption{WithMigrationCache(cache)}, opts...)
	return &Service{
		ai:           aiClient,
		records:      repos.Interactions,
		sessions:     NewSessionManager(repos.Threads, cache, cfg),
		migrator:     NewMigrator(repos.Threads, repos.Interactions, cfg, opts...),
		quota:        NewQuotaGuard(repos.Usage, quotaCfg),
		docs:         NewDocumentContextBuilder(repos.Documents, cfg.SnippetLength),
		historyPairs: cfg.HistoryPairs,
		now:          time.Now,
	}
}

// Sessions 返回会话管理器
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// Migrator 返回迁移器
func (s *Service) Migrator() *Migrator {
	return s.migrator
}

// SubmitTurn 处理一轮对话
func (s *Service) SubmitTurn(ctx context.Context, owner ctxutil.Owner, req *TurnRequest) (*TurnResult, error) {
	logger := log.With().Str("user_id", owner.UserID).Str("firm_id", owner.FirmID).Logger()

	// 1. 校验
	kind, prompt, err := validateTurn(owner, req)
	if err != nil {
		return nil, err
	}
	var thread *assistant.Thread
	if strings.TrimSpace(req.ThreadID) != "" {
		if thread, err = s.sessions.Resolve(ctx, owner, strings.TrimSpace(req.ThreadID)); err != nil {
			return nil, err
		}
		logger = logger.With().Str("thread_id", thread.ID).Logger()
	}

	// 2. 配额检查
	if err := s.quota.Check(ctx, owner); err != nil {
		return nil, err
	}

	// 3. 文档上下文（尽力而为）
	docIDs := uniqueIDs(req.DocumentIDs)
	if len(docIDs) == 0 && thread != nil {
		docIDs = thread.DocumentIDs
	}
	snippets := s.docs.Build(ctx, docIDs, owner)
	enrichment := &ai.Enrichment{
		History:   historyOf(thread, s.historyPairs),
		Documents: snippets,
		Notes:     req.Notes,
	}

	if err := ctx.Err(); err != nil {
		return nil, newError(KindTimeout, "请求已取消", err)
	}

	// 4. 模型调用
	result, err := s.ai.Invoke(ctx, &ai.Request{
		Prompt:        prompt,
		System:        systemPrompt(kind),
		Enrichment:    enrichment,
		ModelOverride: req.Model,
	})
	if err != nil {
		logger.Error().Err(err).Msg("ai invoke failed")
		return nil, fromAIError(err)
	}
	if ctx.Err() != nil {
		logger.Warn().Msg("request canceled after ai call succeeded, persisting anyway")
	}

	// 5. 持久化：模型已经返回，不再受调用方取消影响
	res, err := s.persist(context.WithoutCancel(ctx), logger, owner, thread, kind, prompt, docIDs, snippets, req, result)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("thread_id", res.Thread.ID).
		Str("interaction_id", res.Interaction.ID).
		Str("model", result.ModelUsed).
		Int("estimated_tokens", result.EstimatedTokens).
		Bool("thread_created", res.ThreadCreated).
		Msg("turn completed")
	return res, nil
}

// persist 依次写入会话（如需新建）、交互记录、消息窗口，最后扣减配额
// 前三步任何一步失败都回滚已写入的部分
func (s *Service) persist(
	ctx context.Context,
	logger zerolog.Logger,
	owner ctxutil.Owner,
	thread *assistant.Thread,
	kind assistant.Kind,
	prompt string,
	docIDs []string,
	snippets []document.Snippet,
	req *TurnRequest,
	result *ai.Result,
) (*TurnResult, error) {
	at := s.now()
	resp := assistant.Response{
		Content:         result.Text,
		Citations:       citationsOf(snippets),
		Model:           result.ModelUsed,
		EstimatedTokens: result.EstimatedTokens,
		LatencyMs:       result.Latency.Milliseconds(),
	}

	created := false
	if thread == nil {
		var err error
		thread, err = s.sessions.Create(ctx, owner, NewThreadParams{
			Kind:        kind,
			Model:       result.ModelUsed,
			CaseID:      req.CaseID,
			DocumentIDs: docIDs,
			SeedPrompt:  prompt,
			At:          at,
		})
		if err != nil {
			return nil, err
		}
		created = true
	}

	record := &assistant.Interaction{
		ID:       id.New(),
		FirmID:   owner.FirmID,
		UserID:   owner.UserID,
		CaseID:   req.CaseID,
		ThreadID: thread.ID,
		Kind:     kind,
		Prompt:   prompt,
		Context: assistant.InteractionContext{
			DocumentIDs:           docIDs,
			PreviousInteractionID: req.PreviousInteractionID,
			Notes:                 strings.TrimSpace(req.Notes),
		},
		Response:  resp,
		CreatedAt: at,
		UpdatedAt: at,
	}

	rollback := func(recordWritten bool) {
		if recordWritten {
			if err := s.records.Delete(ctx, record.ID, owner.UserID, owner.FirmID); err != nil {
				logger.Error().Err(err).Str("interaction_id", record.ID).Msg("failed to roll back interaction")
			}
		}
		if created {
			if err := s.sessions.Discard(ctx, thread.ID); err != nil {
				logger.Error().Err(err).Str("thread_id", thread.ID).Msg("failed to roll back thread")
			}
		}
	}

	if err := s.records.Create(ctx, record); err != nil {
		rollback(false)
		return nil, persistenceError("保存交互记录失败", err)
	}

	meta := assistant.TurnMeta{InteractionID: record.ID, Model: result.ModelUsed, At: at}
	if err := s.sessions.AppendTurn(ctx, thread, prompt, resp, meta); err != nil {
		rollback(true)
		return nil, err
	}

	// 配额最后扣减：失败时少计一次，结果上标记 QuotaConsumed=false
	consumed := true
	if err := s.quota.Consume(ctx, owner); err != nil {
		consumed = false
		logger.Error().Err(err).Str("interaction_id", record.ID).Msg("failed to consume quota for completed turn")
	}

	return &TurnResult{Thread: thread, Interaction: record, ThreadCreated: created, QuotaConsumed: consumed}, nil
}

// ListThreads 先执行历史迁移，再列出未归档会话
func (s *Service) ListThreads(ctx context.Context, owner ctxutil.Owner, limit int64) ([]*assistant.Thread, error) {
	if !owner.Valid() {
		return nil, ErrUnauthenticated
	}
	if _, err := s.migrator.Run(ctx, owner); err != nil {
		log.Warn().Err(err).Str("user_id", owner.UserID).Msg("legacy migration failed, listing existing threads")
	}
	return s.sessions.ListActive(ctx, owner, limit)
}

// GetThread 查询会话详情
func (s *Service) GetThread(ctx context.Context, owner ctxutil.Owner, threadID string) (*assistant.Thread, error) {
	return s.sessions.GetByID(ctx, owner, threadID)
}

// RenameThread 修改会话标题
func (s *Service) RenameThread(ctx context.Context, owner ctxutil.Owner, threadID, title string) (*assistant.Thread, error) {
	return s.sessions.Rename(ctx, owner, threadID, title)
}

// ArchiveThread 归档会话
func (s *Service) ArchiveThread(ctx context.Context, owner ctxutil.Owner, threadID string) error {
	return s.sessions.Archive(ctx, owner, threadID)
}

// UpdateThreadDocuments 替换会话关联的文档
func (s *Service) UpdateThreadDocuments(ctx context.Context, owner ctxutil.Owner, threadID string, documentIDs []string) (*assistant.Thread, error) {
	return s.sessions.UpdateDocuments(ctx, owner, threadID, documentIDs)
}

// RunLegacyMigration 手动触发历史迁移
func (s *Service) RunLegacyMigration(ctx context.Context, owner ctxutil.Owner) (*MigrationReport, error) {
	return s.migrator.Run(ctx, owner)
}

func validateTurn(owner ctxutil.Owner, req *TurnRequest) (assistant.Kind, string, error) {
	if !owner.Valid() {
		return "", "", ErrUnauthenticated
	}
	if req == nil {
		return "", "", ErrEmptyPrompt
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", "", ErrEmptyPrompt
	}
	kind := req.Kind
	if kind == "" {
		kind = assistant.KindChat
	}
	if !kind.IsValid() {
		return "", "", ErrInvalidKind
	}
	if req.ThreadID != "" && !id.IsValid(strings.TrimSpace(req.ThreadID)) {
		return "", "", ErrInvalidThreadID
	}
	if req.PreviousInteractionID != "" && !id.IsValid(req.PreviousInteractionID) {
		return "", "", ErrInvalidID
	}
	return kind, prompt, nil
}

// historyOf 取会话最近 n 组问答作为上下文
func historyOf(t *assistant.Thread, n int) []ai.HistoryPair {
	if t == nil {
		return nil
	}
	turns := t.RecentPairs(n)
	pairs := make([]ai.HistoryPair, 0, len(turns)/2)
	for i := 0; i+1 < len(turns); i += 2 {
		pairs = append(pairs, ai.HistoryPair{Prompt: turns[i].Content, Response: turns[i+1].Content})
	}
	return pairs
}

// citationsOf 把参与上下文的文档记为引用来源
func citationsOf(snippets []document.Snippet) []assistant.Citation {
	if len(snippets) == 0 {
		return nil
	}
	out := make([]assistant.Citation, len(snippets))
	for i, sn := range snippets {
		out[i] = assistant.Citation{
			DocumentID: sn.ID,
			Title:      sn.Title,
			Excerpt:    assistant.Preview(sn.Content, 200),
		}
	}
	return out
}
