package wallet

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mmynk/susu/internal/models"
)

// Entry is one applied ledger movement.
type Entry struct {
	Op      Operation
	Account string
	Amount  decimal.Decimal
	RefID   string
}

// Sandbox is an in-memory Ledger for development and tests.
// Disbursements draw on a float that starts unlimited unless SetFloat is called.
type Sandbox struct {
	mu       sync.Mutex
	entries  []Entry
	seen     map[string]bool
	balances map[string]decimal.Decimal
	float    *decimal.Decimal
	failWith models.ErrorKind
}

var _ Ledger = (*Sandbox)(nil)

// NewSandbox creates an empty sandbox ledger.
func NewSandbox() *Sandbox {
	return &Sandbox{
		seen:     make(map[string]bool),
		balances: make(map[string]decimal.Decimal),
	}
}

// SetFloat caps the total the sandbox may disburse.
func (s *Sandbox) SetFloat(amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.float = &amount
}

// FailNext makes every subsequent call fail with kind until cleared with "".
func (s *Sandbox) FailNext(kind models.ErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = kind
}

// Credit adds amount to account. A repeated refID is a no-op.
func (s *Sandbox) Credit(_ context.Context, account string, amount decimal.Decimal, refID string) error {
	return s.apply(OpCredit, account, amount, refID)
}

// Disburse pays amount out to account. A set float must cover it; a repeated refID is a no-op.
func (s *Sandbox) Disburse(_ context.Context, account string, amount decimal.Decimal, refID string) error {
	return s.apply(OpDisburse, account, amount, refID)
}

func (s *Sandbox) apply(op Operation, account string, amount decimal.Decimal, refID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != "" {
		return models.Errorf(s.failWith, "wallet %s failed for %s", op, refID)
	}
	if s.seen[refID] {
		return nil
	}
	if op == OpDisburse && s.float != nil {
		if s.float.LessThan(amount) {
			return models.Errorf(models.KindInsufficientFunds, "insufficient funds to disburse %s", amount.StringFixed(2))
		}
		rest := s.float.Sub(amount)
		s.float = &rest
	}

	s.seen[refID] = true
	s.entries = append(s.entries, Entry{Op: op, Account: account, Amount: amount, RefID: refID})
	if op == OpCredit {
		s.balances[account] = s.balances[account].Add(amount)
	} else {
		s.balances[account] = s.balances[account].Sub(amount)
	}
	return nil
}

// Entries returns a copy of every applied movement in order.
func (s *Sandbox) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Balance returns the net movement on an account. Credits are positive; disbursements
// are negative.
func (s *Sandbox) Balance(account string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[account]
}
