// Package wallet adapts the external money ledger the engine credits and disburses through.
package wallet

import (
	"context"

	"github.com/shopspring/decimal"
)

// Ledger moves money on behalf of the engine. Both calls must be idempotent per refID:
// repeating a call with a refID that already succeeded is a no-op success.
//
// Failures are models.Error values of kind InsufficientFunds or ProviderUnavailable.
// The engine never retries them.
type Ledger interface {
	// Credit adds amount to a group pool account.
	Credit(ctx context.Context, account string, amount decimal.Decimal, refID string) error
	// Disburse pays amount out to a user account.
	Disburse(ctx context.Context, account string, amount decimal.Decimal, refID string) error
}

// Operation names a ledger call.
type Operation string

const (
	OpCredit   Operation = "credit"
	OpDisburse Operation = "disburse"
)
