package leaderboard

import (
	"context"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"

	"github.com/drewstaylor/fomo/internal/cache"
)

// Entry scores are float64 for ranking only; the ledger keeps exact amounts.
type Entry struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
	Rank   int64   `json:"rank"`
}

type Service struct {
	rdb *redis.Client
}

func NewService(rdb *redis.Client) *Service {
	return &Service{rdb: rdb}
}

// RecordWin adds a claimed prize to the winner's all-time total.
func (s *Service) RecordWin(ctx context.Context, denom, address string, prize *uint256.Int) error {
	key := fmt.Sprintf(cache.KeyWinnings, denom)
	return s.rdb.ZIncrBy(ctx, key, score(prize), address).Err()
}

// RecordRound stores the pool a round closed with, keyed by round number.
func (s *Service) RecordRound(ctx context.Context, denom string, round uint64, pool *uint256.Int) error {
	key := fmt.Sprintf(cache.KeyRoundPools, denom)
	return s.rdb.ZAdd(ctx, key, redis.Z{
		Score:  score(pool),
		Member: strconv.FormatUint(round, 10),
	}).Err()
}

// TopWinners returns the top N addresses by total winnings.
func (s *Service) TopWinners(ctx context.Context, denom string, count int64) ([]Entry, error) {
	return s.topFromSortedSet(ctx, fmt.Sprintf(cache.KeyWinnings, denom), count)
}

// TopRounds returns the N largest pools ever claimed. Members are round
// numbers.
func (s *Service) TopRounds(ctx context.Context, denom string, count int64) ([]Entry, error) {
	return s.topFromSortedSet(ctx, fmt.Sprintf(cache.KeyRoundPools, denom), count)
}

// WinnerRank returns nil for addresses that never won.
func (s *Service) WinnerRank(ctx context.Context, denom, address string) (*Entry, error) {
	key := fmt.Sprintf(cache.KeyWinnings, denom)

	rank, err := s.rdb.ZRevRank(ctx, key, address).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sc, err := s.rdb.ZScore(ctx, key, address).Result()
	if err != nil {
		return nil, err
	}

	return &Entry{Member: address, Score: sc, Rank: rank + 1}, nil
}

func (s *Service) topFromSortedSet(ctx context.Context, key string, count int64) ([]Entry, error) {
	results, err := s.rdb.ZRevRangeWithScores(ctx, key, 0, count-1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(results))
	for i, z := range results {
		member, _ := z.Member.(string)
		entries = append(entries, Entry{
			Member: member,
			Score:  z.Score,
			Rank:   int64(i + 1),
		})
	}
	return entries, nil
}

func score(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	return v.Float64()
}
