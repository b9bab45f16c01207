package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drewstaylor/fomo/internal/game"
)

const (
	keyState        = "state"
	keyRegistry     = "archid"
	keyContractInfo = "contract_info"
)

// GameStore persists the game record, its secondary records and the custody
// ledger movements of each operation. Custody only ever holds denom.
type GameStore struct {
	db      *pgxpool.Pool
	custody string
	denom   string
}

func NewGameStore(db *pgxpool.Pool, custody, denom string) *GameStore {
	return &GameStore{db: db, custody: custody, denom: denom}
}

func (s *GameStore) Load(ctx context.Context) (*game.State, error) {
	st := &game.State{}
	found, err := getJSON(ctx, s.db, keyState, st)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, game.ErrNotInstantiated
	}
	return st, nil
}

func (s *GameStore) Registry(ctx context.Context) (string, error) {
	var registry string
	if _, err := getJSON(ctx, s.db, keyRegistry, &registry); err != nil {
		return "", err
	}
	return registry, nil
}

func (s *GameStore) ContractInfo(ctx context.Context) (game.ContractInfo, error) {
	var info game.ContractInfo
	_, err := getJSON(ctx, s.db, keyContractInfo, &info)
	return info, err
}

func (s *GameStore) Balance(ctx context.Context, address, denom string) (*uint256.Int, error) {
	return balance(ctx, s.db, address, denom)
}

// move shifts coin between two ledger addresses. An empty To means the
// coin leaves through the transfer outbox.
type move struct {
	From string
	To   string
	Coin game.Coin
}

// ledgerPlan is every balance movement and journal row of one commit, in
// the order they are applied.
type ledgerPlan struct {
	moves   []move
	outbox  []game.Transfer
	journal []entry
}

// planCommit works out the ledger side of c. Attached coins in any other
// denomination are not taken from the sender, so custody never holds funds
// it cannot pay out.
func planCommit(c *game.Commit, custody, denom string) ledgerPlan {
	var p ledgerPlan
	for _, coin := range c.Funds {
		if coin.IsZero() || coin.Denom != denom {
			continue
		}
		p.moves = append(p.moves, move{From: c.Sender, To: custody, Coin: coin})
		p.journal = append(p.journal, entry{Address: c.Sender, Type: fundsType(c.Action), Coin: coin, Round: c.Round})
	}
	for _, tr := range c.Transfers {
		id := tr.ID
		p.moves = append(p.moves, move{From: custody, Coin: tr.Amount})
		p.outbox = append(p.outbox, tr)
		p.journal = append(p.journal, entry{Address: tr.To, Type: TxPayout, Coin: tr.Amount, Round: c.Round, TransferID: &id})
	}
	return p
}

// Commit writes one operation in a single transaction: attached funds move
// from the sender into custody, transfers leave custody for the outbox,
// history and journal rows are appended and the records are saved.
func (s *GameStore) Commit(ctx context.Context, c *game.Commit) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	plan := planCommit(c, s.custody, s.denom)
	for _, m := range plan.moves {
		if err := debit(ctx, tx, m.From, m.Coin); err != nil {
			return fmt.Errorf("debit %s: %w", m.From, err)
		}
		if m.To == "" {
			continue
		}
		if err := credit(ctx, tx, m.To, m.Coin); err != nil {
			return fmt.Errorf("credit %s: %w", m.To, err)
		}
	}
	for _, tr := range plan.outbox {
		if err := enqueue(ctx, tx, tr, c.Round); err != nil {
			return fmt.Errorf("enqueue transfer: %w", err)
		}
	}
	for _, e := range plan.journal {
		if err := record(ctx, tx, e); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}

	switch c.Action {
	case game.ActionClaim:
		if len(c.Transfers) > 0 {
			tr := c.Transfers[0]
			if _, err := tx.Exec(ctx, `
				INSERT INTO winners (round, address, denom, amount) VALUES ($1, $2, $3, $4::numeric)
			`, int64(c.Round), tr.To, tr.Amount.Denom, dec(tr.Amount.Amount)); err != nil {
				return fmt.Errorf("insert winner: %w", err)
			}
		}
	case game.ActionUnlockStale:
		amount, err := balance(ctx, tx, s.custody, s.denom)
		if err != nil {
			return fmt.Errorf("query custody: %w", err)
		}
		carried := game.Coin{Denom: s.denom, Amount: amount}
		if _, err := tx.Exec(ctx, `
			INSERT INTO unlocks (round, caller, denom, carried) VALUES ($1, $2, $3, $4::numeric)
		`, int64(c.Round), c.Sender, carried.Denom, dec(carried.Amount)); err != nil {
			return fmt.Errorf("insert unlock: %w", err)
		}
		if err := record(ctx, tx, entry{Address: s.custody, Type: TxCarryOver, Coin: carried, Round: c.Round}); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}

	if err := putJSON(ctx, tx, keyState, c.State); err != nil {
		return err
	}
	if c.Registry != nil {
		if err := putJSON(ctx, tx, keyRegistry, *c.Registry); err != nil {
			return err
		}
	}
	if c.Info != nil {
		if err := putJSON(ctx, tx, keyContractInfo, c.Info); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func getJSON(ctx context.Context, q querier, key string, v any) (bool, error) {
	var raw []byte
	err := q.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&raw)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func putJSON(ctx context.Context, q querier, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, raw)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
