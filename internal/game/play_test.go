package game

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

const denom = "aarch"

// helper: the scenario game (expiration=120, min_deposit=1, extensions=30,
// reset_length=604800) instantiated at t=0
func newScenario(t *testing.T) *State {
	t.Helper()
	st, _, err := Instantiate(Call{Sender: "owner", Now: 0}, InstantiateParams{
		Expiration:  120,
		MinDeposit:  uint256.NewInt(1),
		Extensions:  30,
		Stale:       600,
		ResetLength: 604800,
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return st
}

func pay(amount uint64) []Coin {
	return []Coin{NewCoin(denom, amount)}
}

func deposit(st *State, who string, now uint64) error {
	_, err := st.Deposit(context.Background(), Call{Sender: who, Funds: pay(1), Now: now}, denom, nil)
	return err
}

type gateFunc func(ctx context.Context, address string) error

func (f gateFunc) Check(ctx context.Context, address string) error { return f(ctx, address) }

// ---------------------------------------------------------------------------
// Instantiate
// ---------------------------------------------------------------------------

func TestInstantiate(t *testing.T) {
	st, resp, err := Instantiate(Call{Sender: "owner", Now: 1000}, InstantiateParams{
		Expiration:  120,
		Extensions:  30,
		ResetLength: 600,
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if st.Expiration != 1120 {
		t.Fatalf("expiration should count from creation, got %d", st.Expiration)
	}
	if st.Round != 1 || st.LastDepositor != "owner" || st.LastDeposit != 1000 || st.IsPaused() {
		t.Fatalf("unexpected initial state: %+v", st)
	}
	if st.MinDeposit == nil || !st.MinDeposit.IsZero() {
		t.Fatalf("missing min deposit should default to zero")
	}
	if owner, _ := resp.Attr("owner"); owner != "owner" {
		t.Fatalf("owner attribute = %q", owner)
	}
}

func TestInstantiateRequiresSender(t *testing.T) {
	if _, _, err := Instantiate(Call{}, InstantiateParams{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Deposit
// ---------------------------------------------------------------------------

func TestDepositExtendsExpiration(t *testing.T) {
	st := newScenario(t)
	if err := deposit(st, "alice", 0); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if st.Expiration != 150 {
		t.Fatalf("expected expiration 150, got %d", st.Expiration)
	}
	if st.LastDepositor != "alice" || st.LastDeposit != 0 {
		t.Fatalf("depositor not recorded: %+v", st)
	}
}

func TestTwoDepositsExtendTwice(t *testing.T) {
	st := newScenario(t)
	before := st.Expiration
	if err := deposit(st, "alice", 10); err != nil {
		t.Fatal(err)
	}
	if err := deposit(st, "bob", 11); err != nil {
		t.Fatal(err)
	}
	if st.Expiration != before+2*st.Extensions {
		t.Fatalf("expected %d, got %d", before+2*st.Extensions, st.Expiration)
	}
	if st.LastDepositor != "bob" {
		t.Fatalf("bob should be eligible, got %q", st.LastDepositor)
	}
}

func TestDepositBoundary(t *testing.T) {
	st := newScenario(t)
	if err := deposit(st, "alice", st.Expiration-1); err != nil {
		t.Fatalf("deposit one second before expiration should pass: %v", err)
	}

	st = newScenario(t)
	if err := deposit(st, "alice", st.Expiration); !errors.Is(err, ErrGameOver) {
		t.Fatalf("deposit at expiration should fail with ErrGameOver, got %v", err)
	}
}

func TestDepositInsufficientFunds(t *testing.T) {
	st, _, _ := Instantiate(Call{Sender: "owner"}, InstantiateParams{
		Expiration: 100, MinDeposit: uint256.NewInt(1000), Extensions: 10,
	})
	cases := []struct {
		name  string
		funds []Coin
	}{
		{"nothing", nil},
		{"short", pay(999)},
		{"wrong denom", []Coin{NewCoin("uatom", 5000)}},
		{"split across coins", []Coin{NewCoin(denom, 500), NewCoin(denom, 500)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := *st
			_, err := st.Deposit(context.Background(), Call{Sender: "alice", Funds: tc.funds, Now: 1}, denom, nil)
			var ife *InsufficientFundsError
			if !errors.As(err, &ife) {
				t.Fatalf("expected InsufficientFundsError, got %v", err)
			}
			if !errors.Is(err, ErrInsufficientFunds) {
				t.Fatal("InsufficientFundsError should unwrap to ErrInsufficientFunds")
			}
			if ife.Required.Denom != denom || ife.Required.Amount.Uint64() != 1000 {
				t.Fatalf("required = %s", ife.Required)
			}
			if st.Expiration != before.Expiration || st.LastDepositor != before.LastDepositor {
				t.Fatal("rejected deposit mutated state")
			}
		})
	}

	if _, err := st.Deposit(context.Background(), Call{Sender: "alice", Funds: pay(1000), Now: 1}, denom, nil); err != nil {
		t.Fatalf("exact minimum should pass: %v", err)
	}
}

func TestDepositIdentityGate(t *testing.T) {
	st := newScenario(t)
	deny := gateFunc(func(ctx context.Context, address string) error { return ErrIdentityRequired })
	allow := gateFunc(func(ctx context.Context, address string) error { return nil })

	_, err := st.Deposit(context.Background(), Call{Sender: "alice", Funds: pay(1), Now: 1}, denom, deny)
	if !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
	if st.LastDepositor != "owner" {
		t.Fatal("gated deposit mutated state")
	}
	if _, err := st.Deposit(context.Background(), Call{Sender: "alice", Funds: pay(1), Now: 1}, denom, allow); err != nil {
		t.Fatalf("allowed deposit: %v", err)
	}
}

func TestDepositCheckOrder(t *testing.T) {
	// Paused beats everything, game over beats identity, identity beats funds.
	calls := 0
	deny := gateFunc(func(ctx context.Context, address string) error { calls++; return ErrIdentityRequired })

	st := newScenario(t)
	st.Pause(Call{Sender: "owner", Now: 500})
	if _, err := st.Deposit(context.Background(), Call{Sender: "a", Now: 500}, denom, deny); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}

	st = newScenario(t)
	if _, err := st.Deposit(context.Background(), Call{Sender: "a", Now: 500}, denom, deny); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
	if calls != 0 {
		t.Fatal("identity should not be checked for a paused or ended round")
	}
	if _, err := st.Deposit(context.Background(), Call{Sender: "a", Now: 1}, denom, deny); !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired before funds check, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Claim
// ---------------------------------------------------------------------------

func TestClaimScenario(t *testing.T) {
	st := newScenario(t)
	if err := deposit(st, "alice", 0); err != nil {
		t.Fatal(err)
	}

	if _, err := st.Claim(Call{Sender: "alice", Now: 100}, NewCoin(denom, 1)); !errors.Is(err, ErrNotYetOver) {
		t.Fatalf("claim during active round should fail with ErrNotYetOver, got %v", err)
	}

	resp, err := st.Claim(Call{Sender: "alice", Now: 200}, NewCoin(denom, 1))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(resp.Transfers) != 1 {
		t.Fatalf("expected exactly one transfer, got %d", len(resp.Transfers))
	}
	tr := resp.Transfers[0]
	if tr.To != "alice" || tr.Amount.Denom != denom || tr.Amount.Amount.Uint64() != 1 {
		t.Fatalf("unexpected transfer %+v", tr)
	}
	if st.Expiration != 200+604800 {
		t.Fatalf("expected reset expiration %d, got %d", 200+604800, st.Expiration)
	}
	if st.Round != 2 || st.LastDeposit != 200 || st.LastDepositor != "alice" {
		t.Fatalf("round not reset: %+v", st)
	}
	if won, _ := resp.Attr("round"); won != "1" {
		t.Fatalf("won round attribute = %q", won)
	}
}

func TestClaimByNonDepositor(t *testing.T) {
	st := newScenario(t)
	deposit(st, "alice", 0)
	if _, err := st.Claim(Call{Sender: "mallory", Now: 1000}, NewCoin(denom, 1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if st.Round != 1 {
		t.Fatal("rejected claim mutated state")
	}
}

func TestClaimWhenStaleStillAllowed(t *testing.T) {
	st := newScenario(t)
	deposit(st, "alice", 0)
	now := st.Expiration + st.Stale + 10
	if _, err := st.Claim(Call{Sender: "alice", Now: now}, NewCoin(denom, 1)); err != nil {
		t.Fatalf("winner should still claim a stale round: %v", err)
	}
}

// ---------------------------------------------------------------------------
// UnlockStale
// ---------------------------------------------------------------------------

func TestUnlockStaleBoundary(t *testing.T) {
	st := newScenario(t)
	deposit(st, "alice", 0)
	staleAt := st.Expiration + st.Stale

	if _, err := st.UnlockStale(Call{Sender: "anyone", Now: st.Expiration - 1}); !errors.Is(err, ErrNotYetOver) {
		t.Fatalf("expected ErrNotYetOver, got %v", err)
	}
	if _, err := st.UnlockStale(Call{Sender: "anyone", Now: staleAt - 1}); !errors.Is(err, ErrNotStale) {
		t.Fatalf("expected ErrNotStale, got %v", err)
	}
	resp, err := st.UnlockStale(Call{Sender: "anyone", Now: staleAt})
	if err != nil {
		t.Fatalf("unlock at stale boundary: %v", err)
	}
	if len(resp.Transfers) != 0 {
		t.Fatal("unlock must not transfer funds")
	}
	if st.Round != 2 || st.LastDepositor != "anyone" || st.Expiration != staleAt+st.ResetLength {
		t.Fatalf("round not reset: %+v", st)
	}
}

func TestZeroStaleUnlocksAtExpiration(t *testing.T) {
	st, _, _ := Instantiate(Call{Sender: "owner"}, InstantiateParams{Expiration: 50, ResetLength: 50})
	if _, err := st.UnlockStale(Call{Sender: "x", Now: 50}); err != nil {
		t.Fatalf("stale=0 should unlock at expiration: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Pause / Unpause
// ---------------------------------------------------------------------------

func TestPauseShiftsExpiration(t *testing.T) {
	st := newScenario(t)
	deposit(st, "alice", 0)
	before := st.Expiration

	if _, err := st.Pause(Call{Sender: "owner", Now: 100}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if st.Phase(100) != PhasePaused {
		t.Fatalf("phase = %s", st.Phase(100))
	}

	for _, now := range []uint64{100, 140, 1000} {
		if err := deposit(st, "bob", now); !errors.Is(err, ErrPaused) {
			t.Fatalf("deposit at %d: expected ErrPaused, got %v", now, err)
		}
		if _, err := st.Claim(Call{Sender: "alice", Now: now}, NewCoin(denom, 1)); !errors.Is(err, ErrPaused) {
			t.Fatalf("claim at %d: expected ErrPaused, got %v", now, err)
		}
		if _, err := st.UnlockStale(Call{Sender: "x", Now: now}); !errors.Is(err, ErrPaused) {
			t.Fatalf("unlock at %d: expected ErrPaused, got %v", now, err)
		}
	}

	resp, err := st.Unpause(Call{Sender: "owner", Now: 1100})
	if err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if st.Expiration != before+1000 {
		t.Fatalf("expected expiration %d, got %d", before+1000, st.Expiration)
	}
	if st.IsPaused() {
		t.Fatal("still paused")
	}
	if v, _ := resp.Attr("time_paused"); v != "1000" {
		t.Fatalf("time_paused = %q", v)
	}
	// The 50 seconds that were left before pausing are still left.
	if err := deposit(st, "bob", 1149); err != nil {
		t.Fatalf("deposit after unpause: %v", err)
	}
}

func TestPauseErrors(t *testing.T) {
	st := newScenario(t)
	if _, err := st.Pause(Call{Sender: "alice", Now: 1}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner pause: %v", err)
	}
	if _, err := st.Unpause(Call{Sender: "owner", Now: 1}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unpause while active: %v", err)
	}
	st.Pause(Call{Sender: "owner", Now: 1})
	if _, err := st.Pause(Call{Sender: "owner", Now: 2}); !errors.Is(err, ErrPaused) {
		t.Fatalf("double pause: %v", err)
	}
	if _, err := st.Unpause(Call{Sender: "alice", Now: 2}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner unpause: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Configure
// ---------------------------------------------------------------------------

func TestConfigureEmptyPatch(t *testing.T) {
	st := newScenario(t)
	if _, err := st.Configure(Call{Sender: "owner"}, ConfigurePatch{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestConfigureOnlyMinDeposit(t *testing.T) {
	st := newScenario(t)
	before := st.Clone()
	if _, err := st.Configure(Call{Sender: "owner"}, ConfigurePatch{MinDeposit: uint256.NewInt(42)}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if st.MinDeposit.Uint64() != 42 {
		t.Fatalf("min deposit = %s", st.MinDeposit.Dec())
	}
	st.MinDeposit = before.MinDeposit
	if *st != *before {
		t.Fatalf("other fields changed: %+v vs %+v", st, before)
	}
}

func TestConfigureOwnerOnly(t *testing.T) {
	st := newScenario(t)
	newOwner := "carol"
	if _, err := st.Configure(Call{Sender: "alice"}, ConfigurePatch{Owner: &newOwner}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := st.Configure(Call{Sender: "owner"}, ConfigurePatch{Owner: &newOwner}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Pause(Call{Sender: "owner", Now: 1}); !errors.Is(err, ErrUnauthorized) {
		t.Fatal("old owner should lose admin rights")
	}
	if _, err := st.Pause(Call{Sender: "carol", Now: 1}); err != nil {
		t.Fatalf("new owner pause: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Migrate
// ---------------------------------------------------------------------------

func TestMigrate(t *testing.T) {
	info := ContractInfo{Contract: ContractName, Version: "0.3.0"}
	st := newScenario(t)

	if _, _, err := Migrate(st, Call{Sender: "owner"}, info, "0.4.0"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("migrate while live: %v", err)
	}
	st.Pause(Call{Sender: "owner", Now: 10})

	cases := []struct {
		name    string
		info    ContractInfo
		target  string
		wantErr error
	}{
		{"older", info, "0.2.9", ErrInvalidInput},
		{"same", info, "0.3.0", ErrInvalidInput},
		{"garbage", info, "next", ErrInvalidInput},
		{"other contract", ContractInfo{Contract: "crates.io:other", Version: "0.1.0"}, "0.4.0", ErrInvalidInput},
		{"newer", info, "0.4.0", nil},
		{"prefixed", info, "v1.0.0", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _, err := Migrate(st, Call{Sender: "owner"}, tc.info, tc.target)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if err == nil && got.Version == tc.info.Version {
				t.Fatal("version not re-stamped")
			}
		})
	}

	if _, _, err := Migrate(st, Call{Sender: "alice"}, info, "0.4.0"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner migrate: %v", err)
	}
}

func TestPhase(t *testing.T) {
	st := newScenario(t) // expiration 120, stale 600
	cases := map[uint64]Phase{0: PhaseActive, 119: PhaseActive, 120: PhaseEnded, 719: PhaseEnded, 720: PhaseStale}
	for now, want := range cases {
		if got := st.Phase(now); got != want {
			t.Fatalf("phase(%d) = %s, want %s", now, got, want)
		}
	}
}
