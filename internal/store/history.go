package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drewstaylor/fomo/internal/game"
)

// Winner is one claimed round.
type Winner struct {
	Round     uint64    `json:"round"`
	Address   string    `json:"address"`
	Prize     game.Coin `json:"prize"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// Unlock is one round restarted because its winner never claimed.
type Unlock struct {
	Round      uint64    `json:"round"`
	Caller     string    `json:"caller"`
	Carried    game.Coin `json:"carried"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

type HistoryStore struct {
	db *pgxpool.Pool
}

func NewHistoryStore(db *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) Winners(ctx context.Context, limit int) ([]Winner, error) {
	rows, err := s.db.Query(ctx, `
		SELECT round, address, denom, amount::text, claimed_at
		FROM winners ORDER BY round DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Winner{}
	for rows.Next() {
		var (
			w     Winner
			raw   string
			round int64
		)
		if err := rows.Scan(&round, &w.Address, &w.Prize.Denom, &raw, &w.ClaimedAt); err != nil {
			return nil, err
		}
		if w.Prize.Amount, err = parseAmount(raw); err != nil {
			return nil, err
		}
		w.Round = uint64(round)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *HistoryStore) Unlocks(ctx context.Context, limit int) ([]Unlock, error) {
	rows, err := s.db.Query(ctx, `
		SELECT round, caller, denom, carried::text, unlocked_at
		FROM unlocks ORDER BY round DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Unlock{}
	for rows.Next() {
		var (
			u     Unlock
			raw   string
			round int64
		)
		if err := rows.Scan(&round, &u.Caller, &u.Carried.Denom, &raw, &u.UnlockedAt); err != nil {
			return nil, err
		}
		if u.Carried.Amount, err = parseAmount(raw); err != nil {
			return nil, err
		}
		u.Round = uint64(round)
		out = append(out, u)
	}
	return out, rows.Err()
}
