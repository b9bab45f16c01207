package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drewstaylor/fomo/internal/game"
)

func enqueue(ctx context.Context, q querier, tr game.Transfer, round uint64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO transfers (id, recipient, denom, amount, round) VALUES ($1, $2, $3, $4::numeric, $5)
	`, tr.ID, tr.To, tr.Amount.Denom, dec(tr.Amount.Amount), int64(round))
	return err
}

// TransferStore is the outbox of transfer instructions that left custody
// but have not been credited to their recipient yet.
type TransferStore struct {
	db *pgxpool.Pool
}

func NewTransferStore(db *pgxpool.Pool) *TransferStore {
	return &TransferStore{db: db}
}

// Pending returns unsettled transfers, oldest first.
func (s *TransferStore) Pending(ctx context.Context, limit int) ([]game.Transfer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, recipient, denom, amount::text FROM transfers
		WHERE settled_at IS NULL ORDER BY created_at LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Transfer
	for rows.Next() {
		var (
			tr  game.Transfer
			raw string
		)
		if err := rows.Scan(&tr.ID, &tr.To, &tr.Amount.Denom, &raw); err != nil {
			return nil, err
		}
		if tr.Amount.Amount, err = parseAmount(raw); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Settle credits the recipient of a queued transfer. It reports false when
// the transfer was already settled, so repeated calls are harmless.
func (s *TransferStore) Settle(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var (
		tr    game.Transfer
		raw   string
		round int64
	)
	err = tx.QueryRow(ctx, `
		UPDATE transfers SET settled_at = now()
		WHERE id = $1 AND settled_at IS NULL
		RETURNING id, recipient, denom, amount::text, round
	`, id).Scan(&tr.ID, &tr.To, &tr.Amount.Denom, &raw, &round)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark settled: %w", err)
	}
	if tr.Amount.Amount, err = parseAmount(raw); err != nil {
		return false, err
	}

	if err := credit(ctx, tx, tr.To, tr.Amount); err != nil {
		return false, fmt.Errorf("credit %s: %w", tr.To, err)
	}
	if err := record(ctx, tx, entry{Address: tr.To, Type: TxSettle, Coin: tr.Amount, Round: uint64(round), TransferID: &tr.ID}); err != nil {
		return false, fmt.Errorf("journal: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
