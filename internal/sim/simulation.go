package sim

import (
	"context"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/drewstaylor/fomo/internal/game"
)

// Config fully describes a deterministic multi-round simulation. Schedules
// map a second to the addresses acting at that second.
type Config struct {
	Owner  string
	Denom  string
	Params game.InstantiateParams
	// Seed funds attached at instantiation.
	Seed uint64

	Deposits map[uint64][]string
	Claims   map[uint64][]string
	Unlocks  map[uint64][]string
	// Pauses maps a second to true (pause) or false (unpause), issued by Owner.
	Pauses map[uint64]bool

	Duration   uint64 // last simulated second; 0 defaults to 86400
	SilentMode bool   // skip event recording for Monte Carlo perf
}

type Event struct {
	Time   uint64
	Type   string // "deposit", "claim", "unlock_stale", "pause", "unpause", "rejected"
	Actor  string
	Detail string
}

type Result struct {
	Events     []Event
	Final      *game.State
	Pool       *uint256.Int
	Deposited  map[string]*uint256.Int
	Payouts    map[string]*uint256.Int
	Deposits   int
	Claims     int
	Unlocks    int
	Rejected   int
	Violations []string
}

// Winners returns addresses that received a payout, sorted.
func (r *Result) Winners() []string {
	out := make([]string, 0, len(r.Payouts))
	for addr := range r.Payouts {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Run drives the pure state machine second by second. No goroutines, no
// wall clock; the custody balance is tracked in memory.
//
// Processing order per second:
//  1. Owner pause/unpause
//  2. Deposits (each pays exactly the minimum)
//  3. Claims
//  4. Stale unlocks
func Run(cfg Config) Result {
	duration := cfg.Duration
	if duration == 0 {
		duration = 86400
	}

	res := Result{
		Pool:      uint256.NewInt(cfg.Seed),
		Deposited: make(map[string]*uint256.Int),
		Payouts:   make(map[string]*uint256.Int),
	}
	seeded := uint256.NewInt(cfg.Seed)

	st, _, err := game.Instantiate(game.Call{
		Sender: cfg.Owner,
		Funds:  []game.Coin{{Denom: cfg.Denom, Amount: uint256.NewInt(cfg.Seed)}},
	}, cfg.Params)
	if err != nil {
		res.Violations = append(res.Violations, fmt.Sprintf("instantiate: %v", err))
		return res
	}

	ctx := context.Background()
	record := func(now uint64, typ, actor, detail string) {
		if !cfg.SilentMode {
			res.Events = append(res.Events, Event{Time: now, Type: typ, Actor: actor, Detail: detail})
		}
	}
	reject := func(now uint64, actor string, err error) {
		res.Rejected++
		record(now, "rejected", actor, err.Error())
	}
	violate := func(now uint64, format string, args ...any) {
		res.Violations = append(res.Violations, fmt.Sprintf("t=%d: ", now)+fmt.Sprintf(format, args...))
	}

	for now := uint64(0); now <= duration; now++ {
		// 1. Pause / unpause
		if pause, ok := cfg.Pauses[now]; ok {
			call := game.Call{Sender: cfg.Owner, Now: now}
			before := st.Expiration
			pausedAt := st.Paused
			var err error
			if pause {
				_, err = st.Pause(call)
			} else {
				_, err = st.Unpause(call)
			}
			switch {
			case err != nil:
				reject(now, cfg.Owner, err)
			case pause:
				record(now, "pause", cfg.Owner, "")
			default:
				if st.Expiration != before+(now-*pausedAt) {
					violate(now, "unpause shifted expiration %d -> %d", before, st.Expiration)
				}
				record(now, "unpause", cfg.Owner, fmt.Sprintf("expiration=%d", st.Expiration))
			}
		}

		// 2. Deposits
		for _, who := range cfg.Deposits[now] {
			before := st.Expiration
			payment := game.Coin{Denom: cfg.Denom, Amount: st.MinDeposit.Clone()}
			_, err := st.Deposit(ctx, game.Call{Sender: who, Funds: []game.Coin{payment}, Now: now}, cfg.Denom, nil)
			if err != nil {
				reject(now, who, err)
				continue
			}
			res.Deposits++
			res.Pool.Add(res.Pool, payment.Amount)
			addTo(res.Deposited, who, payment.Amount)
			if st.Expiration != before+st.Extensions {
				violate(now, "deposit moved expiration %d -> %d", before, st.Expiration)
			}
			if st.LastDepositor != who {
				violate(now, "last depositor %q, want %q", st.LastDepositor, who)
			}
			record(now, "deposit", who, fmt.Sprintf("expiration=%d", st.Expiration))
		}

		// 3. Claims
		for _, who := range cfg.Claims[now] {
			round := st.Round
			resp, err := st.Claim(game.Call{Sender: who, Now: now}, game.Coin{Denom: cfg.Denom, Amount: res.Pool.Clone()})
			if err != nil {
				reject(now, who, err)
				continue
			}
			res.Claims++
			if len(resp.Transfers) != 1 {
				violate(now, "claim emitted %d transfers", len(resp.Transfers))
			}
			for _, tr := range resp.Transfers {
				res.Pool.Sub(res.Pool, tr.Amount.Amount)
				addTo(res.Payouts, tr.To, tr.Amount.Amount)
			}
			if !res.Pool.IsZero() {
				violate(now, "pool not empty after claim: %s", res.Pool.Dec())
			}
			if st.Round != round+1 {
				violate(now, "claim moved round %d -> %d", round, st.Round)
			}
			record(now, "claim", who, fmt.Sprintf("round=%d", round))
		}

		// 4. Stale unlocks
		for _, who := range cfg.Unlocks[now] {
			round := st.Round
			pool := res.Pool.Clone()
			if _, err := st.UnlockStale(game.Call{Sender: who, Now: now}); err != nil {
				reject(now, who, err)
				continue
			}
			res.Unlocks++
			if !res.Pool.Eq(pool) {
				violate(now, "unlock moved pool")
			}
			if st.Round != round+1 {
				violate(now, "unlock moved round %d -> %d", round, st.Round)
			}
			if st.LastDepositor != who {
				violate(now, "unlock left depositor %q, want %q", st.LastDepositor, who)
			}
			record(now, "unlock_stale", who, fmt.Sprintf("round=%d", round))
		}
	}

	// Conservation: seed + deposits == pool + payouts
	in := seeded.Clone()
	for _, v := range res.Deposited {
		in.Add(in, v)
	}
	out := res.Pool.Clone()
	for _, v := range res.Payouts {
		out.Add(out, v)
	}
	if !in.Eq(out) {
		violate(duration, "funds not conserved: in=%s out=%s", in.Dec(), out.Dec())
	}

	res.Final = st
	return res
}

func addTo(m map[string]*uint256.Int, who string, amount *uint256.Int) {
	v, ok := m[who]
	if !ok {
		v = new(uint256.Int)
		m[who] = v
	}
	v.Add(v, amount)
}
