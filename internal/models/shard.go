package models

import (
	"time"
)

// Shard transaction kinds. Positive amounts are credits, negative are debits.
const (
	ShardKindPurchase          = "PURCHASE"
	ShardKindUsage             = "USAGE"
	ShardKindInitialAllocation = "INITIAL_ALLOCATION"
)

// ShardTransaction is one immutable entry in a user's shard ledger.
// The running sum of a user's amounts always equals users.shard_balance.
type ShardTransaction struct {
	ID          int64     `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Amount      int64     `json:"amount" db:"amount"` // signed: credit > 0, debit < 0
	Kind        string    `json:"kind" db:"kind"`     // PURCHASE, USAGE or INITIAL_ALLOCATION
	Description string    `json:"description" db:"description"`
	ExternalRef *string   `json:"external_ref,omitempty" db:"external_ref"` // settlement idempotency key
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
