package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrStaleTransition = errors.New("stale status transition")
	ErrInvalidTask     = errors.New("invalid task")
	ErrInvalidAmount   = errors.New("invalid amount")
)

// InsufficientFundsError is returned by a deduct that would overdraw an account.
type InsufficientFundsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %d, available %d", e.Required, e.Available)
}

// IsInsufficientFunds reports whether err wraps an InsufficientFundsError.
func IsInsufficientFunds(err error) bool {
	var target *InsufficientFundsError
	return errors.As(err, &target)
}
