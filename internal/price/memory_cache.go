package price

import (
	"context"
	"sync"
	"time"
)

type memoryCacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache 是进程内的行情缓存实现。
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
	now     func() time.Time
}

// NewMemoryCache 构建内存缓存。
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryCacheEntry),
		now:     time.Now,
	}
}

var _ Cache = (*MemoryCache)(nil)

// Get 返回缓存值，过期条目当场删除。
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

// Set 写入缓存。
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	copied := make([]byte, len(value))
	copy(copied, value)

	c.mu.Lock()
	c.entries[key] = memoryCacheEntry{value: copied, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}
