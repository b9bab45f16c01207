package ledger

import (
	"context"
	"fmt"

	"github.com/drewstaylor/fomo/internal/game"
	"github.com/drewstaylor/fomo/internal/store"
)

// Accounts is the balance side of the ledger.
type Accounts interface {
	Balances(ctx context.Context, address string) ([]game.Coin, error)
	Mint(ctx context.Context, address string, coin game.Coin) error
}

// Journal is the append-only movement log.
type Journal interface {
	History(ctx context.Context, address string, limit int) ([]store.Transaction, error)
}

// Account is the public view of one address.
type Account struct {
	Address  string              `json:"address"`
	Balances []game.Coin         `json:"balances"`
	History  []store.Transaction `json:"history"`
}

// Bank answers balance queries and runs the opt-in test faucet.
type Bank struct {
	accounts Accounts
	journal  Journal
	denom    string
	custody  string
	faucet   bool
}

func NewBank(accounts Accounts, journal Journal, denom, custody string, faucet bool) *Bank {
	return &Bank{accounts: accounts, journal: journal, denom: denom, custody: custody, faucet: faucet}
}

func (b *Bank) Account(ctx context.Context, address string, historyLimit int) (*Account, error) {
	balances, err := b.accounts.Balances(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}
	history, err := b.journal.History(ctx, address, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return &Account{Address: address, Balances: balances, History: history}, nil
}

// Mint credits address in the game denomination when the faucet is
// enabled. Custody can only be funded by accepted deposits, so it is never
// a mint target.
func (b *Bank) Mint(ctx context.Context, address string, amount game.Coin) error {
	if !b.faucet {
		return game.ErrUnauthorized
	}
	if address == b.custody {
		return game.ErrUnauthorized
	}
	if address == "" || amount.IsZero() {
		return game.ErrInvalidInput
	}
	if amount.Denom == "" {
		amount.Denom = b.denom
	}
	if amount.Denom != b.denom {
		return game.ErrInvalidInput
	}
	return b.accounts.Mint(ctx, address, amount)
}
