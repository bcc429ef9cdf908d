package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContributionStatus is the state of a single contribution obligation.
//
// Only pending, paid, late and waived are ever stored. Overdue is derived at read time
// from the due date and the clock.
type ContributionStatus string

const (
	ContributionPending ContributionStatus = "pending"
	ContributionPaid    ContributionStatus = "paid"
	ContributionLate    ContributionStatus = "late"
	ContributionOverdue ContributionStatus = "overdue"
	ContributionWaived  ContributionStatus = "waived"
)

// Settled reports whether the obligation needs no further payment.
func (s ContributionStatus) Settled() bool {
	return s == ContributionPaid || s == ContributionLate || s == ContributionWaived
}

// ContributionSchedule is one membership's obligation for one cycle.
type ContributionSchedule struct {
	ID           string
	MembershipID string
	GroupID      string
	UserID       string

	// Cycle is the zero-based cycle index this obligation belongs to.
	Cycle int

	DueDate           time.Time
	Amount            decimal.Decimal
	Status            ContributionStatus
	GracePeriodEndsAt time.Time

	// LateFee is the fee charged when the obligation was settled after its grace period.
	LateFee decimal.Decimal

	// PaidAmount is set only when Status is paid or late.
	PaidAmount    *decimal.Decimal
	PaidAt        *time.Time
	PaymentMethod string

	GraceReminderSentAt *time.Time
	CreatedAt           time.Time
}

// PayoutStatus is the state of a payout queue entry.
type PayoutStatus string

const (
	PayoutScheduled       PayoutStatus = "scheduled"
	PayoutPendingApproval PayoutStatus = "pending_approval"
	PayoutApproved        PayoutStatus = "approved"
	PayoutPaid            PayoutStatus = "paid"
	PayoutSkipped         PayoutStatus = "skipped"
)

// Open reports whether the payout is still in flight.
func (s PayoutStatus) Open() bool {
	return s == PayoutScheduled || s == PayoutPendingApproval || s == PayoutApproved
}

// PayoutSchedule marks one membership's turn in the payout queue.
type PayoutSchedule struct {
	ID           string
	MembershipID string
	GroupID      string
	UserID       string
	Amount       decimal.Decimal
	Status       PayoutStatus

	// Turn is the zero-based turn index this payout was scheduled in.
	Turn int

	// ScheduledFor is when the payout becomes due for admin approval.
	ScheduledFor time.Time

	ApprovedBy string
	ApprovedAt *time.Time
	PaidAt     *time.Time
	SkippedAt  *time.Time
	SkipReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditEntry records one successful state transition.
type AuditEntry struct {
	ID         string
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Details    map[string]string
	CreatedAt  time.Time
}
