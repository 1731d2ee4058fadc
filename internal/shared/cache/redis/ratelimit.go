package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ============================================================================
// 固定窗口限流
// ============================================================================

const rateLimitKeyPrefix = "ratelimit:"

// Allow 对 key 做固定窗口计数
//
// INCR + 首次计数时设置过期，窗口到期后计数自动清零。
// 计数超过 limit 返回 false。
func (s *Store) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := rateLimitKeyPrefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, fmt.Errorf("限流计数失败: %w", err)
	}

	return incr.Val() <= int64(limit), nil
}

// Reset 清除 key 的计数
func (s *Store) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, rateLimitKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("清除限流计数失败: %w", err)
	}
	return nil
}
