package game

import (
	"context"
	"strconv"

	"github.com/holiman/uint256"
)

const (
	ActionInstantiate = "instantiate"
	ActionDeposit     = "execute_deposit"
	ActionClaim       = "execute_claim"
	ActionUnlockStale = "execute_unlock_stale"
	ActionPause       = "execute_pause"
	ActionUnpause     = "execute_unpause"
	ActionConfigure   = "execute_configure"
	ActionMigrate     = "migrate"
)

// Call carries the invocation context supplied by the host: who is calling,
// what payment is attached and the current time in seconds.
type Call struct {
	Sender string
	Funds  []Coin
	Now    uint64
}

// IdentityGate rejects depositors that do not own a registered name.
type IdentityGate interface {
	Check(ctx context.Context, address string) error
}

// InstantiateParams configures a new game. Expiration is the length of the
// first round, counted from instantiation.
type InstantiateParams struct {
	Registry    *string      `json:"archid_registry,omitempty"`
	Expiration  uint64       `json:"expiration"`
	MinDeposit  *uint256.Int `json:"min_deposit"`
	Extensions  uint64       `json:"extensions"`
	Stale       uint64       `json:"stale"`
	ResetLength uint64       `json:"reset_length"`
}

// Instantiate creates the initial record for round 1.
func Instantiate(call Call, p InstantiateParams) (*State, *Response, error) {
	if call.Sender == "" {
		return nil, nil, ErrUnauthorized
	}
	minDeposit := p.MinDeposit
	if minDeposit == nil {
		minDeposit = new(uint256.Int)
	}
	s := &State{
		Owner:         call.Sender,
		Expiration:    call.Now + p.Expiration,
		MinDeposit:    minDeposit.Clone(),
		LastDeposit:   call.Now,
		LastDepositor: call.Sender,
		Extensions:    p.Extensions,
		Stale:         p.Stale,
		ResetLength:   p.ResetLength,
		Round:         1,
	}
	resp := newResponse(ActionInstantiate).
		add("owner", call.Sender).
		add("expiration", strconv.FormatUint(s.Expiration, 10))
	return s, resp, nil
}

// Deposit accepts a qualifying payment and extends the round.
func (s *State) Deposit(ctx context.Context, call Call, denom string, gate IdentityGate) (*Response, error) {
	if s.IsPaused() {
		return nil, ErrPaused
	}
	if s.IsExpired(call.Now) {
		return nil, ErrGameOver
	}
	if gate != nil {
		if err := gate.Check(ctx, call.Sender); err != nil {
			return nil, err
		}
	}
	if err := checkPayment(call.Funds, Coin{Denom: denom, Amount: s.MinDeposit}); err != nil {
		return nil, err
	}

	s.Expiration += s.Extensions
	s.LastDeposit = call.Now
	s.LastDepositor = call.Sender

	return newResponse(ActionDeposit).
		add("round", strconv.FormatUint(s.Round, 10)).
		add("depositor", call.Sender).
		add("expiration", strconv.FormatUint(s.Expiration, 10)), nil
}

// Claim pays the whole pool to the last depositor and starts a new round.
func (s *State) Claim(call Call, pool Coin) (*Response, error) {
	if s.IsPaused() {
		return nil, ErrPaused
	}
	if !s.IsExpired(call.Now) {
		return nil, ErrNotYetOver
	}
	if call.Sender != s.LastDepositor {
		return nil, ErrUnauthorized
	}

	won := s.Round
	s.reset(call.Now, call.Sender)

	resp := newResponse(ActionClaim).
		add("winner", call.Sender).
		add("round", strconv.FormatUint(won, 10)).
		add("prize", pool.String())
	resp.Transfers = []Transfer{NewTransfer(call.Sender, pool)}
	return resp, nil
}

// UnlockStale restarts a round whose winner never claimed. The pool carries
// over untouched and the caller receives nothing.
func (s *State) UnlockStale(call Call) (*Response, error) {
	if s.IsPaused() {
		return nil, ErrPaused
	}
	if !s.IsExpired(call.Now) {
		return nil, ErrNotYetOver
	}
	if !s.IsStale(call.Now) {
		return nil, ErrNotStale
	}

	skipped := s.Round
	s.reset(call.Now, call.Sender)

	return newResponse(ActionUnlockStale).
		add("round", strconv.FormatUint(skipped, 10)).
		add("unlocked_by", call.Sender), nil
}
