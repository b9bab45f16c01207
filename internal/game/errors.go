package game

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrGameOver            = errors.New("game over: gameplay resumes when the winner claims or the round becomes stale")
	ErrNotYetOver          = errors.New("game is not over yet")
	ErrNotStale            = errors.New("game must be stale")
	ErrPaused              = errors.New("game is paused")
	ErrIdentityRequired    = errors.New("depositor must own a registered name")
	ErrNotInstantiated     = errors.New("game not instantiated")
	ErrAlreadyInstantiated = errors.New("game already instantiated")
)

// InsufficientFundsError reports the payment a deposit required.
type InsufficientFundsError struct {
	Required Coin
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: %s required", e.Required)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// Kind names the error class for API responses.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrGameOver):
		return "game_over"
	case errors.Is(err, ErrNotYetOver):
		return "not_yet_over"
	case errors.Is(err, ErrNotStale):
		return "not_stale"
	case errors.Is(err, ErrPaused):
		return "paused"
	case errors.Is(err, ErrIdentityRequired):
		return "identity_required"
	case errors.Is(err, ErrNotInstantiated):
		return "not_instantiated"
	case errors.Is(err, ErrAlreadyInstantiated):
		return "already_instantiated"
	default:
		return "internal"
	}
}
