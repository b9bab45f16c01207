package store

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drewstaylor/fomo/internal/game"
)

type AccountStore struct {
	db *pgxpool.Pool
}

func NewAccountStore(db *pgxpool.Pool) *AccountStore {
	return &AccountStore{db: db}
}

// Balance returns zero for unknown accounts.
func (s *AccountStore) Balance(ctx context.Context, address, denom string) (*uint256.Int, error) {
	return balance(ctx, s.db, address, denom)
}

// Balances lists every denomination held by address.
func (s *AccountStore) Balances(ctx context.Context, address string) ([]game.Coin, error) {
	rows, err := s.db.Query(ctx, `
		SELECT denom, balance::text FROM accounts
		WHERE address = $1 ORDER BY denom
	`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []game.Coin{}
	for rows.Next() {
		var denom, raw string
		if err := rows.Scan(&denom, &raw); err != nil {
			return nil, err
		}
		amount, err := parseAmount(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, game.Coin{Denom: denom, Amount: amount})
	}
	return out, rows.Err()
}

// Mint credits an account out of thin air. Development faucet only.
func (s *AccountStore) Mint(ctx context.Context, address string, coin game.Coin) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := credit(ctx, tx, address, coin); err != nil {
		return err
	}
	if err := record(ctx, tx, entry{Address: address, Type: TxMint, Coin: coin}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func balance(ctx context.Context, q querier, address, denom string) (*uint256.Int, error) {
	var raw string
	err := q.QueryRow(ctx, `
		SELECT balance::text FROM accounts WHERE address = $1 AND denom = $2
	`, address, denom).Scan(&raw)
	if err == pgx.ErrNoRows {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseAmount(raw)
}

func credit(ctx context.Context, q querier, address string, coin game.Coin) error {
	if coin.IsZero() {
		return nil
	}
	_, err := q.Exec(ctx, `
		INSERT INTO accounts (address, denom, balance) VALUES ($1, $2, $3::numeric)
		ON CONFLICT (address, denom) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance
	`, address, coin.Denom, coin.Amount.Dec())
	return err
}

func debit(ctx context.Context, q querier, address string, coin game.Coin) error {
	if coin.IsZero() {
		return nil
	}
	tag, err := q.Exec(ctx, `
		UPDATE accounts SET balance = balance - $3::numeric
		WHERE address = $1 AND denom = $2 AND balance >= $3::numeric
	`, address, coin.Denom, coin.Amount.Dec())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}
