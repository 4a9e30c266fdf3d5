package assistant

import (
	"context"
	"sort"
	"sync"
	"time"

	"counsel/internal/ai"
	"counsel/internal/model/assistant"
	"counsel/internal/model/auth"
	"counsel/internal/model/document"
	"counsel/internal/repository"
	assistantrepo "counsel/internal/repository/assistant"
)

// memThreadRepo 内存版会话仓库，Update 按版本号比较交换
type memThreadRepo struct {
	mu      sync.RWMutex
	threads map[string]*assistant.Thread
	writes  int
}

func newMemThreadRepo() *memThreadRepo {
	return &memThreadRepo{threads: make(map[string]*assistant.Thread)}
}

func (r *memThreadRepo) Create(ctx context.Context, t *assistant.Thread) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.threads[t.ID]; ok {
		return repository.ErrDuplicate
	}
	r.threads[t.ID] = cloneThread(t)
	r.writes++
	return nil
}

func (r *memThreadRepo) FindByID(ctx context.Context, id string) (*assistant.Thread, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.threads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneThread(t), nil
}

func (r *memThreadRepo) ListActive(ctx context.Context, userID, firmID string, limit int64) ([]*assistant.Thread, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*assistant.Thread
	for _, t := range r.threads {
		if t.OwnedBy(userID, firmID) && !t.Archived {
			c := cloneThread(t)
			c.Turns = nil
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lastAt(out[i]).After(lastAt(out[j]))
	})
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func lastAt(t *assistant.Thread) time.Time {
	if t.LastMessageAt == nil {
		return t.CreatedAt
	}
	return *t.LastMessageAt
}

func (r *memThreadRepo) ListIDs(ctx context.Context, userID, firmID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, t := range r.threads {
		if t.OwnedBy(userID, firmID) {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

func (r *memThreadRepo) Update(ctx context.Context, t *assistant.Thread, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.threads[t.ID]
	if !ok || cur.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	next := cloneThread(t)
	next.Version = expectedVersion + 1
	r.threads[t.ID] = next
	t.Version = next.Version
	r.writes++
	return nil
}

func (r *memThreadRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.threads, id)
	return nil
}

func (r *memThreadRepo) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.threads)
}

func (r *memThreadRepo) writeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}

// memInteractionRepo 内存版交互记录仓库
type memInteractionRepo struct {
	mu         sync.RWMutex
	records    map[string]*assistant.Interaction
	failCreate error
}

func newMemInteractionRepo() *memInteractionRepo {
	return &memInteractionRepo{records: make(map[string]*assistant.Interaction)}
}

func (r *memInteractionRepo) Create(ctx context.Context, it *assistant.Interaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return r.failCreate
	}
	c := *it
	r.records[it.ID] = &c
	return nil
}

func (r *memInteractionRepo) FindByID(ctx context.Context, id, userID, firmID string) (*assistant.Interaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.records[id]
	if !ok || it.UserID != userID || it.FirmID != firmID {
		return nil, repository.ErrNotFound
	}
	c := *it
	return &c, nil
}

func (r *memInteractionRepo) ListByOwner(ctx context.Context, userID, firmID string) ([]*assistant.Interaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*assistant.Interaction
	for _, it := range r.records {
		if it.UserID == userID && it.FirmID == firmID {
			c := *it
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memInteractionRepo) List(ctx context.Context, f assistantrepo.InteractionFilter) ([]*assistant.Interaction, int64, error) {
	all, _ := r.ListByOwner(ctx, f.UserID, f.FirmID)
	var matched []*assistant.Interaction
	for i := len(all) - 1; i >= 0; i-- {
		it := all[i]
		if f.Kind != "" && it.Kind != f.Kind {
			continue
		}
		if f.ThreadID != "" && it.ThreadID != f.ThreadID {
			continue
		}
		matched = append(matched, it)
	}
	total := int64(len(matched))
	start := (f.Page - 1) * f.PageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + f.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *memInteractionRepo) UpdateFeedback(ctx context.Context, id, userID, firmID string, fb *assistant.Feedback) error {
	return r.update(id, userID, firmID, func(it *assistant.Interaction) { it.Feedback = fb })
}

func (r *memInteractionRepo) UpdateTemplate(ctx context.Context, id, userID, firmID string, isTemplate bool, name string) error {
	return r.update(id, userID, firmID, func(it *assistant.Interaction) {
		it.IsTemplate = isTemplate
		it.TemplateName = name
	})
}

func (r *memInteractionRepo) update(id, userID, firmID string, fn func(*assistant.Interaction)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.records[id]
	if !ok || it.UserID != userID || it.FirmID != firmID {
		return repository.ErrNotFound
	}
	fn(it)
	return nil
}

func (r *memInteractionRepo) ReassignThread(ctx context.Context, ids []string, from, to string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if it, ok := r.records[id]; ok && it.ThreadID == from {
			it.ThreadID = to
			n++
		}
	}
	return n, nil
}

func (r *memInteractionRepo) Delete(ctx context.Context, id, userID, firmID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.records[id]
	if !ok || it.UserID != userID || it.FirmID != firmID {
		return repository.ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *memInteractionRepo) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *memInteractionRepo) threadRefs() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make(map[string]string, len(r.records))
	for id, it := range r.records {
		refs[id] = it.ThreadID
	}
	return refs
}

// hookedRecords 在写入或读取后执行回调，用于构造并发交错
type hookedRecords struct {
	*memInteractionRepo
	afterCreate func()
	afterList   func()
}

func (r *hookedRecords) Create(ctx context.Context, it *assistant.Interaction) error {
	if err := r.memInteractionRepo.Create(ctx, it); err != nil {
		return err
	}
	if r.afterCreate != nil {
		r.afterCreate()
	}
	return nil
}

func (r *hookedRecords) ListByOwner(ctx context.Context, userID, firmID string) ([]*assistant.Interaction, error) {
	out, err := r.memInteractionRepo.ListByOwner(ctx, userID, firmID)
	if fn := r.afterList; fn != nil {
		r.afterList = nil
		fn()
	}
	return out, err
}

// hookedThreads 在会话写入前后执行回调
type hookedThreads struct {
	*memThreadRepo
	afterCreate  func(t *assistant.Thread)
	beforeUpdate func(t *assistant.Thread)
}

func (r *hookedThreads) Create(ctx context.Context, t *assistant.Thread) error {
	if err := r.memThreadRepo.Create(ctx, t); err != nil {
		return err
	}
	if fn := r.afterCreate; fn != nil {
		r.afterCreate = nil
		fn(t)
	}
	return nil
}

func (r *hookedThreads) Update(ctx context.Context, t *assistant.Thread, expectedVersion int64) error {
	if fn := r.beforeUpdate; fn != nil {
		r.beforeUpdate = nil
		fn(t)
	}
	return r.memThreadRepo.Update(ctx, t, expectedVersion)
}

// memOwnerLock 进程内模拟的跨进程锁
type memOwnerLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemOwnerLock() *memOwnerLock {
	return &memOwnerLock{held: make(map[string]bool)}
}

func (l *memOwnerLock) TryLock(ctx context.Context, owner string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[owner] {
		return nil, false, nil
	}
	l.held[owner] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, owner)
	}, true, nil
}

// memDocumentRepo 内存版文档仓库
type memDocumentRepo struct {
	docs map[string]*document.Document
}

func (r *memDocumentRepo) FindByIDs(ctx context.Context, firmID string, ids []string) ([]*document.Document, error) {
	var out []*document.Document
	for _, id := range ids {
		if d, ok := r.docs[id]; ok && d.FirmID == firmID && d.DeletedAt == nil {
			out = append(out, d)
		}
	}
	return out, nil
}

// memUsageRepo 内存版用量仓库
type memUsageRepo struct {
	mu            sync.Mutex
	usage         map[string]*auth.AIUsage
	failIncrement error
}

func newMemUsageRepo() *memUsageRepo {
	return &memUsageRepo{usage: make(map[string]*auth.AIUsage)}
}

func (r *memUsageRepo) GetUsage(ctx context.Context, userID string) (*auth.AIUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.usage[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *memUsageRepo) IncrementUsage(ctx context.Context, userID, firmID string, nextReset *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failIncrement != nil {
		return r.failIncrement
	}
	u, ok := r.usage[userID]
	if !ok {
		u = &auth.AIUsage{ResetAt: nextReset}
		r.usage[userID] = u
	}
	u.Used++
	return nil
}

func (r *memUsageRepo) ResetUsage(ctx context.Context, userID string, now, nextReset time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.usage[userID]
	if !ok {
		return nil
	}
	if u.ResetAt == nil || !u.ResetAt.After(now) {
		u.Used = 0
		u.ResetAt = &nextReset
	}
	return nil
}

func (r *memUsageRepo) used(userID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.usage[userID]; ok {
		return u.Used
	}
	return 0
}

// scriptedProvider 按模型返回预设回复或错误
type scriptedProvider struct {
	mu      sync.Mutex
	reply   string
	errs    map[string]error
	calls   []string
	prompts []string
}

func (p *scriptedProvider) Generate(ctx context.Context, req *ai.ProviderRequest) (*ai.ProviderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req.Model)
	p.prompts = append(p.prompts, req.Prompt)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := p.errs[req.Model]; ok {
		return nil, err
	}
	reply := p.reply
	if reply == "" {
		reply = "answer from " + req.Model
	}
	return &ai.ProviderResponse{Text: reply}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *scriptedProvider) lastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return ""
	}
	return p.prompts[len(p.prompts)-1]
}
