package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dyntables/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisListCache shares the list cache between several server processes.
// Redis failures degrade to cache misses.
type RedisListCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.SugaredLogger
}

// NewRedisListCache connects to addr and verifies the connection.
func NewRedisListCache(ctx context.Context, addr, password string, db int, ttl time.Duration, log *zap.SugaredLogger) (*RedisListCache, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &RedisListCache{rdb: rdb, ttl: ttl, log: log}, nil
}

func (r *RedisListCache) Get(ctx context.Context, key string) ([]domain.LogicalDatabase, bool) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.log.Warnf("list cache: get %s: %v", key, err)
		return nil, false
	}
	var dbs []domain.LogicalDatabase
	if err := json.Unmarshal(b, &dbs); err != nil {
		r.log.Warnf("list cache: decode %s: %v", key, err)
		return nil, false
	}
	return dbs, true
}

func (r *RedisListCache) Set(ctx context.Context, key string, dbs []domain.LogicalDatabase) {
	b, err := json.Marshal(dbs)
	if err != nil {
		r.log.Warnf("list cache: encode %s: %v", key, err)
		return
	}
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		r.log.Warnf("list cache: set %s: %v", key, err)
	}
}

func (r *RedisListCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		r.log.Warnf("list cache: invalidate %v: %v", keys, err)
	}
}

func (r *RedisListCache) Close() error {
	return r.rdb.Close()
}
