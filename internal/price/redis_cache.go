package price

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "Senna-Wallet/internal/errors"
)

// RedisCache 把行情缓存落在 Redis 上，多实例部署时共享命中。
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache 构建 Redis 缓存并探测连通性。
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接 Redis 失败")
	}
	return &RedisCache{client: client, prefix: "senna:price:"}, nil
}

var _ Cache = (*RedisCache)(nil)

// Get 返回缓存值。
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取行情缓存失败")
	}
	return value, true, nil
}

// Set 写入缓存。
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入行情缓存失败")
	}
	return nil
}

// Close 释放 Redis 连接。
func (c *RedisCache) Close() error {
	return c.client.Close()
}
