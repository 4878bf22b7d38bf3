// Package domain provides defenitions of all entities.
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound indicates that the account is not found.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidName indicates that the account name is blank.
	ErrInvalidName = errors.New("invalid account name")
	// ErrNegativeBalance indicates an attempt to create an account with a negative balance.
	ErrNegativeBalance = errors.New("negative balance")
)

// Account holds the balance of a student or a bank account.
//
// Version is incremented by every committed balance mutation and is used by
// stores to reject writes based on a stale copy.
type Account struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
}

// CanCover reports whether the balance is enough to withdraw amount.
func (a Account) CanCover(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}
