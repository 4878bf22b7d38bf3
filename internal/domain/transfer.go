package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount indicates invalid amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientBalance indicates that the account does not have sufficient balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrBalanceLimit indicates that the resulting balance does not fit the store.
	ErrBalanceLimit = errors.New("balance exceeds the limit")
	// ErrSameAccount indicates a transfer from an account to itself.
	ErrSameAccount = errors.New("transfer to the same account")
	// ErrContention indicates that concurrent writers prevented the operation
	// from completing. The caller may retry the whole operation.
	ErrContention = errors.New("account is busy, try again")
	// ErrConflict is returned by stores when the saved version does not match the stored one.
	ErrConflict = errors.New("version conflict")
	// ErrLockTimeout is returned by stores when an account lock could not be acquired in time.
	ErrLockTimeout = errors.New("lock wait timeout")
	// ErrPersistence indicates a failure of the backing store.
	ErrPersistence = errors.New("persistence failure")
)

// TransferResult is the result of the transfer transaction.
type TransferResult struct {
	FromAccount Account         `json:"from_account"`
	ToAccount   Account         `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
}
