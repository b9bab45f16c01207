package game

import (
	"strconv"

	"github.com/holiman/uint256"
)

// ConfigurePatch overwrites only the fields that are present.
type ConfigurePatch struct {
	Owner       *string      `json:"owner,omitempty"`
	Registry    *string      `json:"archid_registry,omitempty"`
	Expiration  *uint64      `json:"expiration,omitempty"`
	MinDeposit  *uint256.Int `json:"min_deposit,omitempty"`
	Extensions  *uint64      `json:"extensions,omitempty"`
	Stale       *uint64      `json:"stale,omitempty"`
	ResetLength *uint64      `json:"reset_length,omitempty"`
}

func (p ConfigurePatch) IsEmpty() bool {
	return p.Owner == nil &&
		p.Registry == nil &&
		p.Expiration == nil &&
		p.MinDeposit == nil &&
		p.Extensions == nil &&
		p.Stale == nil &&
		p.ResetLength == nil
}

// Pause freezes the round for an upgrade. Owner only.
func (s *State) Pause(call Call) (*Response, error) {
	if s.IsPaused() {
		return nil, ErrPaused
	}
	if call.Sender != s.Owner {
		return nil, ErrUnauthorized
	}
	pausedAt := call.Now
	s.Paused = &pausedAt
	return newResponse(ActionPause).
		add("paused_at", strconv.FormatUint(pausedAt, 10)), nil
}

// Unpause resumes play and shifts the deadline forward by the time spent
// paused. Owner only.
func (s *State) Unpause(call Call) (*Response, error) {
	if !s.IsPaused() {
		return nil, ErrInvalidInput
	}
	if call.Sender != s.Owner {
		return nil, ErrUnauthorized
	}
	var pausedFor uint64
	if call.Now > *s.Paused {
		pausedFor = call.Now - *s.Paused
	}
	s.Expiration += pausedFor
	s.Paused = nil
	return newResponse(ActionUnpause).
		add("unpaused_at", strconv.FormatUint(call.Now, 10)).
		add("time_paused", strconv.FormatUint(pausedFor, 10)).
		add("expiration", strconv.FormatUint(s.Expiration, 10)), nil
}

// Configure applies an owner patch. The registry field is not part of State;
// the engine persists it separately.
func (s *State) Configure(call Call, patch ConfigurePatch) (*Response, error) {
	if call.Sender != s.Owner {
		return nil, ErrUnauthorized
	}
	if patch.IsEmpty() {
		return nil, ErrInvalidInput
	}

	resp := newResponse(ActionConfigure)
	if patch.Owner != nil {
		s.Owner = *patch.Owner
		resp.add("owner", s.Owner)
	}
	if patch.Expiration != nil {
		s.Expiration = *patch.Expiration
		resp.add("expiration", strconv.FormatUint(s.Expiration, 10))
	}
	if patch.MinDeposit != nil {
		s.MinDeposit = patch.MinDeposit.Clone()
		resp.add("min_deposit", s.MinDeposit.Dec())
	}
	if patch.Extensions != nil {
		s.Extensions = *patch.Extensions
		resp.add("extensions", strconv.FormatUint(s.Extensions, 10))
	}
	if patch.Stale != nil {
		s.Stale = *patch.Stale
		resp.add("stale", strconv.FormatUint(s.Stale, 10))
	}
	if patch.ResetLength != nil {
		s.ResetLength = *patch.ResetLength
		resp.add("reset_length", strconv.FormatUint(s.ResetLength, 10))
	}
	if patch.Registry != nil {
		resp.add("archid_registry", *patch.Registry)
	}
	return resp, nil
}
