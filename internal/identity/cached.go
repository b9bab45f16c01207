package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drewstaylor/fomo/internal/cache"
	"github.com/drewstaylor/fomo/internal/game"
)

// NameCache stores resolved names per registry and address.
type NameCache interface {
	Get(ctx context.Context, registry, address string) ([]string, bool, error)
	Set(ctx context.Context, registry, address string, names []string, ttl time.Duration) error
}

// CachedResolver remembers addresses that own a name. Empty results are
// never cached so a freshly registered name takes effect immediately.
type CachedResolver struct {
	next   game.NameResolver
	cache  NameCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedResolver(next game.NameResolver, c NameCache, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{next: next, cache: c, ttl: ttl, logger: logger}
}

func (r *CachedResolver) Names(ctx context.Context, registry, address string) ([]string, error) {
	names, ok, err := r.cache.Get(ctx, registry, address)
	if err != nil {
		r.logger.Warn("identity cache read", "address", address, "err", err)
	} else if ok {
		return names, nil
	}

	names, err = r.next.Names(ctx, registry, address)
	if err != nil {
		return nil, err
	}
	if len(names) > 0 && r.ttl > 0 {
		if err := r.cache.Set(ctx, registry, address, names, r.ttl); err != nil {
			r.logger.Warn("identity cache write", "address", address, "err", err)
		}
	}
	return names, nil
}

// RedisNameCache is the Redis-backed NameCache.
type RedisNameCache struct {
	rdb *redis.Client
}

func NewRedisNameCache(rdb *redis.Client) *RedisNameCache {
	return &RedisNameCache{rdb: rdb}
}

func (c *RedisNameCache) Get(ctx context.Context, registry, address string) ([]string, bool, error) {
	raw, err := c.rdb.Get(ctx, fmt.Sprintf(cache.KeyIdentityNames, registry, address)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, false, err
	}
	return names, true, nil
}

func (c *RedisNameCache) Set(ctx context.Context, registry, address string, names []string, ttl time.Duration) error {
	raw, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(cache.KeyIdentityNames, registry, address), raw, ttl).Err()
}
