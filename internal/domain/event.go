package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names the ledger operation that produced an Event.
type EventType string

// Supported event types.
const (
	EventPay      EventType = "pay"
	EventRefund   EventType = "refund"
	EventTransfer EventType = "transfer"
)

// Event describes a committed balance change of a single account.
//
// Amount is signed: negative when money left the account.
type Event struct {
	ID             uuid.UUID       `json:"id"`
	Type           EventType       `json:"type"`
	AccountID      int64           `json:"account_id"`
	CounterpartyID int64           `json:"counterparty_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Balance        decimal.Decimal `json:"balance"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
}
