package game

import "github.com/holiman/uint256"

// Phase is the derived state of a round relative to a caller-observed time.
type Phase int

const (
	PhaseActive Phase = iota
	PhaseEnded
	PhaseStale
	PhasePaused
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	case PhaseStale:
		return "stale"
	case PhasePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// State is the single mutable game record. Timestamps and durations are in
// seconds.
type State struct {
	Owner         string       `json:"owner"`
	Expiration    uint64       `json:"expiration"`
	MinDeposit    *uint256.Int `json:"min_deposit"`
	LastDeposit   uint64       `json:"last_deposit"`
	LastDepositor string       `json:"last_depositor"`
	Extensions    uint64       `json:"extensions"`
	Stale         uint64       `json:"stale"`
	ResetLength   uint64       `json:"reset_length"`
	Round         uint64       `json:"round"`
	Paused        *uint64      `json:"paused,omitempty"`
}

// Clone returns a deep copy so a failed operation can be discarded.
func (s *State) Clone() *State {
	c := *s
	if s.MinDeposit != nil {
		c.MinDeposit = s.MinDeposit.Clone()
	}
	if s.Paused != nil {
		p := *s.Paused
		c.Paused = &p
	}
	return &c
}

func (s *State) IsExpired(now uint64) bool {
	return now >= s.Expiration
}

func (s *State) IsStale(now uint64) bool {
	return now >= s.Expiration+s.Stale
}

func (s *State) IsPaused() bool {
	return s.Paused != nil
}

// Phase evaluates the round lazily; time alone never mutates state.
func (s *State) Phase(now uint64) Phase {
	switch {
	case s.IsPaused():
		return PhasePaused
	case !s.IsExpired(now):
		return PhaseActive
	case !s.IsStale(now):
		return PhaseEnded
	default:
		return PhaseStale
	}
}

// reset starts the next round with caller as the placeholder depositor.
func (s *State) reset(now uint64, caller string) {
	s.Expiration = now + s.ResetLength
	s.LastDeposit = now
	s.LastDepositor = caller
	s.Round++
	s.Paused = nil
}
