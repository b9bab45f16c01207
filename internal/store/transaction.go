package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drewstaylor/fomo/internal/game"
)

type TxType string

const (
	TxDeposit    TxType = "deposit"
	TxSeed       TxType = "seed"
	TxClaimFund  TxType = "claim_fund"
	TxUnlockFund TxType = "unlock_fund"
	TxAttached   TxType = "attached"
	TxPayout     TxType = "payout"
	TxCarryOver  TxType = "carry_over"
	TxSettle     TxType = "settle"
	TxMint       TxType = "mint"
)

// fundsType names the journal row for coins attached to action.
func fundsType(action string) TxType {
	switch action {
	case game.ActionInstantiate:
		return TxSeed
	case game.ActionDeposit:
		return TxDeposit
	case game.ActionClaim:
		return TxClaimFund
	case game.ActionUnlockStale:
		return TxUnlockFund
	default:
		return TxAttached
	}
}

type Transaction struct {
	ID         int64      `json:"id"`
	Address    string     `json:"address"`
	Type       TxType     `json:"type"`
	Amount     game.Coin  `json:"amount"`
	Round      uint64     `json:"round"`
	TransferID *uuid.UUID `json:"transfer_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type entry struct {
	Address    string
	Type       TxType
	Coin       game.Coin
	Round      uint64
	TransferID *uuid.UUID
}

func record(ctx context.Context, q querier, e entry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO transactions (address, type, denom, amount, round, transfer_id)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
	`, e.Address, e.Type, e.Coin.Denom, dec(e.Coin.Amount), int64(e.Round), e.TransferID)
	return err
}

type TransactionStore struct {
	db *pgxpool.Pool
}

func NewTransactionStore(db *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{db: db}
}

// History returns the most recent journal entries for address.
func (s *TransactionStore) History(ctx context.Context, address string, limit int) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, address, type, denom, amount::text, round, transfer_id, created_at
		FROM transactions WHERE address = $1
		ORDER BY created_at DESC, id DESC LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		var (
			t     Transaction
			raw   string
			round int64
		)
		if err := rows.Scan(&t.ID, &t.Address, &t.Type, &t.Amount.Denom, &raw, &round, &t.TransferID, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.Amount.Amount, err = parseAmount(raw); err != nil {
			return nil, err
		}
		t.Round = uint64(round)
		out = append(out, t)
	}
	return out, rows.Err()
}
