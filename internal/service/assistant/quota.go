package assistant

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"counsel/internal/config"
	"counsel/internal/model/auth"
	"counsel/internal/pkg/ctxutil"
	"counsel/internal/repository"
	authrepo "counsel/internal/repository/auth"
)

// QuotaGuard 用量配额
// Check 在模型调用前执行；Consume 只在模型调用成功后执行，计数只增不减。
type QuotaGuard struct {
	repo         authrepo.UsageRepository
	defaultLimit int64
	resetPeriod  time.Duration
	now          func() time.Time
}

// NewQuotaGuard 创建配额检查
func NewQuotaGuard(repo authrepo.UsageRepository, cfg config.QuotaConfig) *QuotaGuard {
	return &QuotaGuard{
		repo:         repo,
		defaultLimit: cfg.DefaultLimit,
		resetPeriod:  cfg.ResetPeriod,
		now:          time.Now,
	}
}

// Usage 返回当前用量；到达重置时间时先归零
// 用户未设置上限时使用默认上限，上限<=0 表示不限
func (q *QuotaGuard) Usage(ctx context.Context, owner ctxutil.Owner) (*auth.AIUsage, error) {
	usage, err := q.repo.GetUsage(ctx, owner.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return &auth.AIUsage{Limit: q.defaultLimit}, nil
	}
	if err != nil {
		return nil, persistenceError("读取用量失败", err)
	}

	if q.resetPeriod > 0 {
		now := q.now()
		if usage.ResetAt == nil || !usage.ResetAt.After(now) {
			next := now.Add(q.resetPeriod)
			if err := q.repo.ResetUsage(ctx, owner.UserID, now, next); err != nil {
				return nil, persistenceError("重置用量失败", err)
			}
			log.Debug().Str("user_id", owner.UserID).Time("reset_at", next).Msg("ai usage counter reset")
			usage.Used = 0
			usage.ResetAt = &next
		}
	}

	if usage.Limit <= 0 {
		usage.Limit = q.defaultLimit
	}
	return usage, nil
}

// Check 用量已满时返回 ErrQuotaExceeded
func (q *QuotaGuard) Check(ctx context.Context, owner ctxutil.Owner) error {
	usage, err := q.Usage(ctx, owner)
	if err != nil {
		return err
	}
	if usage.Exceeded() {
		return ErrQuotaExceeded
	}
	return nil
}

// Consume 用量 +1
func (q *QuotaGuard) Consume(ctx context.Context, owner ctxutil.Owner) error {
	var firstReset *time.Time
	if q.resetPeriod > 0 {
		t := q.now().Add(q.resetPeriod)
		firstReset = &t
	}
	if err := q.repo.IncrementUsage(ctx, owner.UserID, owner.FirmID, firstReset); err != nil {
		return persistenceError("更新用量失败", err)
	}
	return nil
}
