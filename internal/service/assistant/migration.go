package assistant

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"counsel/internal/config"
	"counsel/internal/model/assistant"
	"counsel/internal/pkg/ctxutil"
	"counsel/internal/pkg/id"
	"counsel/internal/repository"
	assistantrepo "counsel/internal/repository/assistant"
)

// MigrationReport 一次迁移的统计
type MigrationReport struct {
	Groups    int   `json:"groups"`    // 处理的分组数
	Created   int   `json:"created"`   // 新建的会话
	Updated   int   `json:"updated"`   // 重新计算后有变化的会话
	Unchanged int   `json:"unchanged"` // 无需写入的会话
	Skipped   int   `json:"skipped"`   // 没有分组键的记录
	Rewritten int64 `json:"rewritten"` // 改写了 thread_id 的记录
	Failed    int   `json:"failed"`    // 处理失败的分组
	Deferred  int   `json:"deferred"`  // 有进行中的对话，留待下次处理
	Contended int   `json:"contended"` // 记录已被其他迁移改写，放弃本次新建的会话
	Busy      bool  `json:"busy"`      // 其他进程正在迁移该用户，本次未执行
}

// OwnerLock 跨进程的按用户互斥锁
type OwnerLock interface {
	TryLock(ctx context.Context, owner string) (unlock func(), ok bool, err error)
}

// MigratorOption 迁移器选项
type MigratorOption func(*Migrator)

// WithMigrationCache 迁移写入会话后失效缓存
func WithMigrationCache(cache ThreadCache) MigratorOption {
	return func(m *Migrator) { m.cache = cache }
}

// WithMigrationLock 使用跨进程锁串行化同一用户的迁移
func WithMigrationLock(lock OwnerLock) MigratorOption {
	return func(m *Migrator) { m.lock = lock }
}

// migrationGrace 晚于分组最后一条记录的消息在此时间内视为进行中的对话
const migrationGrace = 2 * time.Minute

// Migrator 从历史交互记录重建会话
// 会话的派生字段是记录的纯函数，重复执行不会产生新的写入；
// 标题、归档状态和关联文档由用户维护，迁移不覆盖。
// 同一用户的迁移在进程内合并为一次执行，配置了 OwnerLock 时跨进程互斥；
// 不同用户之间互不影响。
type Migrator struct {
	threads assistantrepo.ThreadRepository
	records assistantrepo.InteractionRepository
	cache   ThreadCache
	lock    OwnerLock
	policy  assistant.ThreadPolicy
	retries int
	group   singleflight.Group
	now     func() time.Time
}

// NewMigrator 创建迁移器
func NewMigrator(threads assistantrepo.ThreadRepository, records assistantrepo.InteractionRepository, cfg config.AssistantConfig, opts ...MigratorOption) *Migrator {
	cfg = cfg.WithDefaults()
	m := &Migrator{
		threads: threads,
		records: records,
		policy: assistant.ThreadPolicy{
			MaxTurns:      cfg.MaxTurns,
			TitleLength:   cfg.TitleLength,
			PreviewLength: cfg.PreviewLength,
		},
		retries: cfg.AppendRetries,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run 为指定用户执行迁移
func (m *Migrator) Run(ctx context.Context, owner ctxutil.Owner) (*MigrationReport, error) {
	if !owner.Valid() {
		return nil, ErrUnauthenticated
	}
	key := owner.FirmID + "/" + owner.UserID
	v, err, shared := m.group.Do(key, func() (interface{}, error) {
		return m.runLocked(ctx, owner, key)
	})
	if shared {
		log.Debug().Str("user_id", owner.UserID).Msg("joined in-flight migration")
	}
	report, _ := v.(*MigrationReport)
	return report, err
}

// runLocked 持有跨进程锁时执行迁移；锁被占用时返回 Busy
func (m *Migrator) runLocked(ctx context.Context, owner ctxutil.Owner, key string) (*MigrationReport, error) {
	if m.lock == nil {
		return m.run(ctx, owner)
	}
	unlock, ok, err := m.lock.TryLock(ctx, key)
	if err != nil {
		return nil, persistenceError("获取迁移锁失败", err)
	}
	if !ok {
		log.Debug().Str("user_id", owner.UserID).Msg("migration running elsewhere, skipped")
		return &MigrationReport{Busy: true}, nil
	}
	defer unlock()
	return m.run(ctx, owner)
}

func (m *Migrator) run(ctx context.Context, owner ctxutil.Owner) (*MigrationReport, error) {
	logger := log.With().Str("user_id", owner.UserID).Str("firm_id", owner.FirmID).Logger()
	report := &MigrationReport{}

	ids, err := m.threads.ListIDs(ctx, owner.UserID, owner.FirmID)
	if err != nil {
		return nil, persistenceError("查询会话失败", err)
	}
	known := make(map[string]bool, len(ids))
	for _, tid := range ids {
		known[tid] = true
	}

	records, err := m.records.ListByOwner(ctx, owner.UserID, owner.FirmID)
	if err != nil {
		return nil, persistenceError("查询交互记录失败", err)
	}

	var keys []string
	groups := make(map[string][]*assistant.Interaction)
	for _, r := range records {
		if r.ThreadID == "" {
			report.Skipped++
			continue
		}
		if _, ok := groups[r.ThreadID]; !ok {
			keys = append(keys, r.ThreadID)
		}
		groups[r.ThreadID] = append(groups[r.ThreadID], r)
	}

	var errs []error
	for _, key := range keys {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})
		report.Groups++

		var err error
		switch {
		case !id.IsValid(key):
			err = m.adoptLegacyGroup(ctx, owner, key, group, report)
		case known[key]:
			err = m.refreshThread(ctx, key, group, report)
		default:
			err = m.createThread(ctx, owner, key, group)
			switch {
			case err == nil:
				known[key] = true
				report.Created++
			case errors.Is(err, repository.ErrDuplicate):
				// 其他迁移或对话刚刚创建了该会话
				known[key] = true
				err = m.refreshThread(ctx, key, group, report)
			}
		}
		if err != nil {
			report.Failed++
			errs = append(errs, err)
			logger.Warn().Err(err).Str("group", key).Int("records", len(group)).Msg("failed to migrate group")
		}
	}

	logger.Info().
		Int("groups", report.Groups).
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("deferred", report.Deferred).
		Int("contended", report.Contended).
		Int64("rewritten", report.Rewritten).
		Int("failed", report.Failed).
		Msg("legacy migration finished")

	if len(errs) > 0 {
		return report, persistenceError("部分会话迁移失败", errors.Join(errs...))
	}
	return report, nil
}

// createThread 用分组键作为会话ID新建会话
func (m *Migrator) createThread(ctx context.Context, owner ctxutil.Owner, threadID string, group []*assistant.Interaction) error {
	t := m.snapshot(owner, threadID, group)
	if err := m.threads.Create(ctx, t); err != nil {
		return err
	}
	m.invalidate(ctx, threadID)
	return nil
}

// adoptLegacyGroup 非ID分组键：新建会话后把组内记录指向新会话
func (m *Migrator) adoptLegacyGroup(ctx context.Context, owner ctxutil.Owner, label string, group []*assistant.Interaction, report *MigrationReport) error {
	t := m.snapshot(owner, id.New(), group)
	if err := m.threads.Create(ctx, t); err != nil {
		return err
	}

	recordIDs := make([]string, len(group))
	for i, r := range group {
		recordIDs[i] = r.ID
	}
	n, err := m.records.ReassignThread(ctx, recordIDs, label, t.ID)
	if err != nil {
		m.discard(ctx, t.ID)
		return err
	}

	switch {
	case n == 0:
		// 记录已被并发的迁移改写，本次新建的会话没有任何记录指向它
		m.discard(ctx, t.ID)
		report.Contended++
		log.Warn().Str("label", label).Msg("legacy group already migrated elsewhere, discarded new thread")
		return nil
	case n < int64(len(group)):
		log.Warn().Str("label", label).Str("thread_id", t.ID).Int64("records", n).Int("expected", len(group)).Msg("legacy group partially migrated elsewhere")
		if err := m.refreshFromStore(ctx, owner, t.ID, report); err != nil {
			return err
		}
	}

	report.Created++
	report.Rewritten += n
	log.Info().Str("label", label).Str("thread_id", t.ID).Int64("records", n).Msg("legacy group moved to new thread")
	return nil
}

// refreshFromStore 按当前指向该会话的记录重新计算派生字段
func (m *Migrator) refreshFromStore(ctx context.Context, owner ctxutil.Owner, threadID string, report *MigrationReport) error {
	records, err := m.records.ListByOwner(ctx, owner.UserID, owner.FirmID)
	if err != nil {
		return err
	}
	var group []*assistant.Interaction
	for _, r := range records {
		if r.ThreadID == threadID {
			group = append(group, r)
		}
	}
	if len(group) == 0 {
		return nil
	}
	sort.SliceStable(group, func(i, j int) bool {
		return group[i].CreatedAt.Before(group[j].CreatedAt)
	})
	return m.refreshThread(ctx, threadID, group, report)
}

func (m *Migrator) discard(ctx context.Context, threadID string) {
	if err := m.threads.Delete(context.WithoutCancel(ctx), threadID); err != nil {
		log.Error().Err(err).Str("thread_id", threadID).Msg("failed to roll back migrated thread")
	}
	m.invalidate(ctx, threadID)
}

func (m *Migrator) invalidate(ctx context.Context, threadID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(context.WithoutCancel(ctx), threadID); err != nil {
		log.Warn().Err(err).Str("thread_id", threadID).Msg("failed to invalidate thread cache")
	}
}

// refreshThread 重新计算已有会话的派生字段，没有变化时不写入
// 会话中有本次读取之后才完成的对话时不覆盖，留待下次迁移
func (m *Migrator) refreshThread(ctx context.Context, threadID string, group []*assistant.Interaction, report *MigrationReport) error {
	want := buildProjection(group, m.policy)

	for attempt := 0; ; attempt++ {
		cur, err := m.threads.FindByID(ctx, threadID)
		if err != nil {
			return err
		}
		if sameProjection(cur.Projection(), want) {
			report.Unchanged++
			return nil
		}
		if m.hasInFlightTurns(cur, group) {
			report.Deferred++
			log.Debug().Str("thread_id", threadID).Msg("thread has newer turns than the records read, deferred")
			return nil
		}

		expected := cur.Version
		cur.ReplaceProjection(want, m.policy)
		err = m.threads.Update(ctx, cur, expected)
		if err == nil {
			m.invalidate(ctx, threadID)
			report.Updated++
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) || attempt >= m.retries {
			return err
		}
	}
}

// hasInFlightTurns 窗口中是否有分组之外、不早于分组最后一条记录、且仍在宽限期内的消息
func (m *Migrator) hasInFlightTurns(cur *assistant.Thread, group []*assistant.Interaction) bool {
	known := make(map[string]bool, len(group))
	for _, r := range group {
		known[r.ID] = true
	}
	last := group[len(group)-1].CreatedAt
	now := m.now()
	for _, turn := range cur.Turns {
		if turn.InteractionID == "" || known[turn.InteractionID] {
			continue
		}
		if !turn.Timestamp.Before(last) && now.Sub(turn.Timestamp) < migrationGrace {
			return true
		}
	}
	return false
}

// snapshot 由一组记录生成完整会话
func (m *Migrator) snapshot(owner ctxutil.Owner, threadID string, group []*assistant.Interaction) *assistant.Thread {
	first := group[0]
	t := assistant.NewThread(threadID, owner.FirmID, owner.UserID, first.Kind, first.Prompt, m.policy, first.CreatedAt)

	var docs []string
	for _, r := range group {
		docs = append(docs, r.Context.DocumentIDs...)
	}
	t.DocumentIDs = uniqueIDs(docs)

	t.ReplaceProjection(buildProjection(group, m.policy), m.policy)
	return t
}

// buildProjection 按时间顺序把记录展开为消息窗口和摘要字段
// 组内记录必须已按创建时间升序排列
func buildProjection(group []*assistant.Interaction, policy assistant.ThreadPolicy) assistant.Projection {
	first, last := group[0], group[len(group)-1]

	turns := make([]assistant.Turn, 0, 2*len(group))
	model := ""
	for _, r := range group {
		turns = append(turns, assistant.Turn{Role: assistant.RoleUser, Content: r.Prompt, InteractionID: r.ID, Timestamp: r.CreatedAt})
		if r.Response.IsEmpty() {
			continue
		}
		resp := r.Response
		turns = append(turns, assistant.Turn{Role: assistant.RoleAssistant, Content: resp.Content, Response: &resp, InteractionID: r.ID, Timestamp: r.CreatedAt})
		if resp.Model != "" {
			model = resp.Model
		}
	}

	lastAt := last.CreatedAt
	return assistant.Projection{
		Kind:                first.Kind,
		Model:               model,
		CaseID:              first.CaseID,
		Turns:               assistant.TrimTurns(turns, policy.MaxTurns),
		TurnCount:           len(group),
		LastMessageAt:       &lastAt,
		LastPrompt:          last.Prompt,
		LastResponsePreview: assistant.Preview(last.Response.Content, policy.PreviewLength),
		UpdatedAt:           lastAt,
	}
}

// sameProjection 比较派生字段（不含 UpdatedAt）
func sameProjection(a, b assistant.Projection) bool {
	if a.Kind != b.Kind || a.Model != b.Model || a.CaseID != b.CaseID ||
		a.TurnCount != b.TurnCount || a.LastPrompt != b.LastPrompt ||
		a.LastResponsePreview != b.LastResponsePreview ||
		!sameTime(a.LastMessageAt, b.LastMessageAt) ||
		len(a.Turns) != len(b.Turns) {
		return false
	}
	for i := range a.Turns {
		if !sameTurn(a.Turns[i], b.Turns[i]) {
			return false
		}
	}
	return true
}

func sameTurn(a, b assistant.Turn) bool {
	if a.Role != b.Role || a.Content != b.Content || a.InteractionID != b.InteractionID || !a.Timestamp.Equal(b.Timestamp) {
		return false
	}
	if (a.Response == nil) != (b.Response == nil) {
		return false
	}
	if a.Response == nil {
		return true
	}
	ra, rb := a.Response, b.Response
	return ra.Content == rb.Content && ra.Model == rb.Model &&
		ra.EstimatedTokens == rb.EstimatedTokens && ra.LatencyMs == rb.LatencyMs &&
		len(ra.Citations) == len(rb.Citations)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
