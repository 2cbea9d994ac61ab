package queue

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper 记录已处理的消息键
type Deduper interface {
	// Claim 首次出现返回 true
	Claim(ctx context.Context, key string) (bool, error)
	// Release 处理失败时释放，便于重试
	Release(ctx context.Context, key string) error
}

const dedupePrefix = "notify:"

// RedisDeduper SETNX + TTL
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	return d.rdb.SetNX(ctx, dedupePrefix+key, time.Now().Unix(), d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.rdb.Del(ctx, dedupePrefix+key).Err()
}

// MemoryDeduper 单进程使用
type MemoryDeduper struct {
	seen sync.Map
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	_, loaded := d.seen.LoadOrStore(key, struct{}{})
	return !loaded, nil
}

func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.seen.Delete(key)
	return nil
}
