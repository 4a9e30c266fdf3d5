package cache

import (
	"context"
	"time"

	"counsel/internal/model/assistant"
)

// ThreadCache 会话详情缓存
// 只缓存读路径，任何写入后由调用方失效
type ThreadCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewThreadCache 创建会话缓存，ttl<=0 时使用 ThreadCacheTTL
func NewThreadCache(redis *RedisCache, ttl time.Duration) *ThreadCache {
	if ttl <= 0 {
		ttl = ThreadCacheTTL
	}
	return &ThreadCache{redis: redis, ttl: ttl}
}

// Get 读取会话，未命中返回 ErrCacheMiss
func (c *ThreadCache) Get(ctx context.Context, threadID string) (*assistant.Thread, error) {
	var t assistant.Thread
	if err := c.redis.Get(ctx, ThreadCacheKey(threadID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Set 写入会话
func (c *ThreadCache) Set(ctx context.Context, t *assistant.Thread) error {
	return c.redis.Set(ctx, ThreadCacheKey(t.ID), t, c.ttl)
}

// Invalidate 失效会话缓存
func (c *ThreadCache) Invalidate(ctx context.Context, threadID string) error {
	return c.redis.Delete(ctx, ThreadCacheKey(threadID))
}
