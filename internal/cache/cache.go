package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drewstaylor/fomo/internal/game"
)

func NewRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

const (
	KeyGameState     = "game:state"
	KeyIdentityNames = "identity:%s:%s"
	KeyWinnings      = "leaderboard:winnings:%s"
	KeyRoundPools    = "leaderboard:rounds:%s"
)

// StateCache holds the last committed game record for cheap reads. The
// database stays authoritative; a miss falls back to it.
type StateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStateCache(rdb *redis.Client, ttl time.Duration) *StateCache {
	return &StateCache{rdb: rdb, ttl: ttl}
}

func (c *StateCache) Get(ctx context.Context) (*game.State, bool, error) {
	raw, err := c.rdb.Get(ctx, KeyGameState).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	st := &game.State{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, false, err
	}
	return st, true, nil
}

func (c *StateCache) Set(ctx context.Context, st *game.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, KeyGameState, raw, c.ttl).Err()
}
