package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"counsel/internal/config"
	"counsel/internal/model/assistant"
	"counsel/internal/pkg/ctxutil"
	"counsel/internal/pkg/id"
	"counsel/internal/repository"
	assistantrepo "counsel/internal/repository/assistant"
)

// ThreadCache 会话读缓存（可选）
type ThreadCache interface {
	Get(ctx context.Context, threadID string) (*assistant.Thread, error)
	Set(ctx context.Context, t *assistant.Thread) error
	Invalidate(ctx context.Context, threadID string) error
}

// errNoChange apply 判断无需写入
var errNoChange = errors.New("no change")

// NewThreadParams 新建会话参数
type NewThreadParams struct {
	Kind        assistant.Kind
	Model       string
	CaseID      string
	DocumentIDs []string
	SeedPrompt  string
	At          time.Time
}

// SessionManager 会话生命周期管理
// 所有写入都以版本号做比较交换，冲突时重新读取并重放修改，
// 保证同一会话的并发追加不会让摘要字段回退或与消息窗口不一致。
type SessionManager struct {
	repo      assistantrepo.ThreadRepository
	cache     ThreadCache
	policy    assistant.ThreadPolicy
	retries   int
	listLimit int64
	now       func() time.Time
}

// NewSessionManager 创建会话管理器，cache 可以为 nil
func NewSessionManager(repo assistantrepo.ThreadRepository, cache ThreadCache, cfg config.AssistantConfig) *SessionManager {
	cfg = cfg.WithDefaults()
	return &SessionManager{
		repo:  repo,
		cache: cache,
		policy: assistant.ThreadPolicy{
			MaxTurns:      cfg.MaxTurns,
			TitleLength:   cfg.TitleLength,
			PreviewLength: cfg.PreviewLength,
		},
		retries:   cfg.AppendRetries,
		listLimit: cfg.ThreadListLimit,
		now:       time.Now,
	}
}

// Policy 返回会话窗口策略
func (m *SessionManager) Policy() assistant.ThreadPolicy {
	return m.policy
}

// Resolve 按ID查找调用者的未归档会话
func (m *SessionManager) Resolve(ctx context.Context, owner ctxutil.Owner, threadID string) (*assistant.Thread, error) {
	if !id.IsValid(threadID) {
		return nil, ErrInvalidThreadID
	}
	t, err := m.repo.FindByID(ctx, threadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, persistenceError("查询会话失败", err)
	}
	if !t.OwnedBy(owner.UserID, owner.FirmID) || t.Archived {
		return nil, ErrThreadNotFound
	}
	return t, nil
}

// Create 新建空会话，标题取自 SeedPrompt
func (m *SessionManager) Create(ctx context.Context, owner ctxutil.Owner, p NewThreadParams) (*assistant.Thread, error) {
	at := p.At
	if at.IsZero() {
		at = m.now()
	}
	t := assistant.NewThread(id.New(), owner.FirmID, owner.UserID, p.Kind, p.SeedPrompt, m.policy, at)
	t.Model = p.Model
	t.CaseID = p.CaseID
	t.DocumentIDs = uniqueIDs(p.DocumentIDs)

	if err := m.repo.Create(ctx, t); err != nil {
		return nil, persistenceError("创建会话失败", err)
	}
	log.Info().Str("thread_id", t.ID).Str("user_id", owner.UserID).Msg("thread created")
	return t, nil
}

// ResolveOrCreate threadID 为空时新建会话，否则返回已有会话
func (m *SessionManager) ResolveOrCreate(ctx context.Context, owner ctxutil.Owner, threadID string, p NewThreadParams) (*assistant.Thread, bool, error) {
	if strings.TrimSpace(threadID) == "" {
		t, err := m.Create(ctx, owner, p)
		return t, err == nil, err
	}
	t, err := m.Resolve(ctx, owner, threadID)
	return t, false, err
}

// AppendTurn 追加一轮问答，t 更新为写入后的状态
// 同一交互记录已在窗口中时（迁移抢先按记录重建）不重复追加
func (m *SessionManager) AppendTurn(ctx context.Context, t *assistant.Thread, prompt string, resp assistant.Response, meta assistant.TurnMeta) error {
	return m.mutate(ctx, t, func(cur *assistant.Thread) error {
		if !cur.AppendTurn(prompt, resp, meta, m.policy) {
			return errNoChange
		}
		return nil
	})
}

// Rename 修改标题
func (m *SessionManager) Rename(ctx context.Context, owner ctxutil.Owner, threadID, title string) (*assistant.Thread, error) {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return nil, ErrEmptyTitle
	}
	title = assistant.Preview(title, m.policy.TitleLength)

	return m.mutateOwned(ctx, owner, threadID, func(cur *assistant.Thread) error {
		cur.Title = title
		cur.UpdatedAt = m.now()
		return nil
	})
}

// Archive 归档会话（软删除）
func (m *SessionManager) Archive(ctx context.Context, owner ctxutil.Owner, threadID string) error {
	_, err := m.mutateOwned(ctx, owner, threadID, func(cur *assistant.Thread) error {
		cur.Archived = true
		cur.UpdatedAt = m.now()
		return nil
	})
	return err
}

// UpdateDocuments 替换会话关联的文档
func (m *SessionManager) UpdateDocuments(ctx context.Context, owner ctxutil.Owner, threadID string, documentIDs []string) (*assistant.Thread, error) {
	ids := uniqueIDs(documentIDs)
	return m.mutateOwned(ctx, owner, threadID, func(cur *assistant.Thread) error {
		cur.DocumentIDs = ids
		cur.UpdatedAt = m.now()
		return nil
	})
}

// ListActive 按最近消息时间倒序列出未归档会话
func (m *SessionManager) ListActive(ctx context.Context, owner ctxutil.Owner, limit int64) ([]*assistant.Thread, error) {
	if limit <= 0 || limit > m.listLimit {
		limit = m.listLimit
	}
	threads, err := m.repo.ListActive(ctx, owner.UserID, owner.FirmID, limit)
	if err != nil {
		return nil, persistenceError("查询会话列表失败", err)
	}
	if threads == nil {
		threads = []*assistant.Thread{}
	}
	return threads, nil
}

// GetByID 查询会话详情，优先读缓存
func (m *SessionManager) GetByID(ctx context.Context, owner ctxutil.Owner, threadID string) (*assistant.Thread, error) {
	if !id.IsValid(threadID) {
		return nil, ErrInvalidThreadID
	}

	if m.cache != nil {
		if t, err := m.cache.Get(ctx, threadID); err == nil {
			if !t.OwnedBy(owner.UserID, owner.FirmID) || t.Archived {
				return nil, ErrThreadNotFound
			}
			return t, nil
		}
	}

	t, err := m.Resolve(ctx, owner, threadID)
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		if err := m.cache.Set(ctx, t); err != nil {
			log.Warn().Err(err).Str("thread_id", t.ID).Msg("failed to cache thread")
		}
	}
	return t, nil
}

// Discard 删除本轮新建的会话（仅用于持久化失败时回滚）
func (m *SessionManager) Discard(ctx context.Context, threadID string) error {
	m.invalidate(ctx, threadID)
	return m.repo.Delete(ctx, threadID)
}

func (m *SessionManager) mutateOwned(ctx context.Context, owner ctxutil.Owner, threadID string, apply func(*assistant.Thread) error) (*assistant.Thread, error) {
	t, err := m.Resolve(ctx, owner, threadID)
	if err != nil {
		return nil, err
	}
	if err := m.mutate(ctx, t, apply); err != nil {
		return nil, err
	}
	return t, nil
}

// mutate 在 t 的副本上执行 apply 并按版本号写回；冲突时重新读取后重试
// apply 返回 errNoChange 时不写入，t 更新为最新读取的状态。
// 重新读取后会话已归档或不再属于原用户时返回 ErrThreadNotFound。
func (m *SessionManager) mutate(ctx context.Context, t *assistant.Thread, apply func(*assistant.Thread) error) error {
	logger := log.With().Str("thread_id", t.ID).Logger()
	cur := t

	for attempt := 0; ; attempt++ {
		next := cloneThread(cur)
		if err := apply(next); err != nil {
			if errors.Is(err, errNoChange) {
				*t = *cloneThread(cur)
				return nil
			}
			return err
		}

		err := m.repo.Update(ctx, next, cur.Version)
		if err == nil {
			*t = *next
			m.invalidate(ctx, t.ID)
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return persistenceError("更新会话失败", err)
		}
		if attempt >= m.retries {
			logger.Error().Int("attempts", attempt+1).Msg("thread update kept conflicting, giving up")
			return persistenceError("会话并发更新冲突", err)
		}

		logger.Debug().Int("attempt", attempt+1).Int64("version", cur.Version).Msg("thread version conflict, reloading")
		reloaded, err := m.repo.FindByID(ctx, t.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrThreadNotFound
			}
			return persistenceError("查询会话失败", err)
		}
		if reloaded.Archived || !reloaded.OwnedBy(t.UserID, t.FirmID) {
			logger.Info().Msg("thread archived during update")
			return ErrThreadNotFound
		}
		cur = reloaded
	}
}

func (m *SessionManager) invalidate(ctx context.Context, threadID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(ctx, threadID); err != nil {
		log.Warn().Err(err).Str("thread_id", threadID).Msg("failed to invalidate thread cache")
	}
}

// cloneThread 复制会话，切片不与原值共享底层数组
func cloneThread(t *assistant.Thread) *assistant.Thread {
	c := *t
	c.Turns = make([]assistant.Turn, len(t.Turns))
	copy(c.Turns, t.Turns)
	if t.DocumentIDs != nil {
		c.DocumentIDs = append([]string{}, t.DocumentIDs...)
	}
	return &c
}
