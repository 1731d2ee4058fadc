// Package cache 缓存层抽象接口
//
// 提供请求限流所需的计数能力，当前由 Redis 实现。
package cache

import (
	"context"
	"time"
)

// ============================================================================
// 缓存接口定义
// ============================================================================

// RateLimiter 固定窗口限流接口
//
// 登录和找回密码等敏感端点按 key（邮箱或 IP）做窗口计数，
// 超过上限后在窗口内拒绝请求。
type RateLimiter interface {
	// Allow 对 key 计数一次，返回是否放行。
	// limit 为窗口内允许的最大次数，window 为窗口长度。
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Reset 清除 key 的计数（如登录成功后解除限制）。
	Reset(ctx context.Context, key string) error
}

// ============================================================================
// 组合接口
// ============================================================================

// Cache 缓存组合接口
type Cache interface {
	RateLimiter
	Close() error
}
