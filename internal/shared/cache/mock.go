// Package cache 缓存层 mock 实现
package cache

import (
	"context"
	"time"
)

// ============================================================================
// NoOpCache - 空操作的 Cache 实现（用于测试和未配置 Redis 的部署）
// ============================================================================

// NoOpCache 是一个不做任何操作的 Cache 实现，限流始终放行
type NoOpCache struct{}

// NewNoOpCache 创建 NoOpCache 实例
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Close 关闭缓存
func (c *NoOpCache) Close() error {
	return nil
}

// Allow 始终放行
func (c *NoOpCache) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

// Reset 空操作
func (c *NoOpCache) Reset(ctx context.Context, key string) error {
	return nil
}

// 确保 NoOpCache 实现了 Cache 接口
var _ Cache = (*NoOpCache)(nil)
