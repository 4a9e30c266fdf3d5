package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"counsel/internal/pkg/id"
)

// 迁移锁 key 模式
const (
	MigrationLockKeyPrefix = "lock:migration:"
	MigrationLockTTL       = 2 * time.Minute
)

// MigrationLockKey 生成迁移锁 key
func MigrationLockKey(owner string) string {
	return MigrationLockKeyPrefix + owner
}

// 只删除自己持有的锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryLock 尝试获取带过期时间的互斥锁
// 获取成功时返回释放函数；锁被占用时 ok 为 false
func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error) {
	token := id.New()
	ok, err = c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	unlock = func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, c.client, []string{key}, token).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to release lock")
		}
	}
	return unlock, true, nil
}

// MigrationLock 按用户加锁的迁移互斥，跨进程生效
type MigrationLock struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewMigrationLock 创建迁移锁，ttl<=0 时使用 MigrationLockTTL
func NewMigrationLock(redis *RedisCache, ttl time.Duration) *MigrationLock {
	if ttl <= 0 {
		ttl = MigrationLockTTL
	}
	return &MigrationLock{redis: redis, ttl: ttl}
}

// TryLock 获取指定用户的迁移锁
func (l *MigrationLock) TryLock(ctx context.Context, owner string) (func(), bool, error) {
	return l.redis.TryLock(ctx, MigrationLockKey(owner), l.ttl)
}
