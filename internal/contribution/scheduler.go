// Package contribution generates per-cycle obligations and classifies their lateness.
//
// Lateness is never stored. Overdue, grace and fee are derived from the due date, the
// grace boundary and the caller's "now" every time an obligation is read, so two reads a
// second apart can disagree when a grace boundary is crossed between them. This avoids
// background jobs that must keep a stored flag in sync with the clock.
package contribution

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/susu/internal/clock"
	"github.com/mmynk/susu/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Scheduler holds the lateness policy for obligations.
type Scheduler struct {
	cal        *clock.Calendar
	lateFeePct decimal.Decimal
}

// NewScheduler creates a scheduler. lateFeePct is a percentage of the obligation amount
// (10 means 10%).
func NewScheduler(cal *clock.Calendar, lateFeePct decimal.Decimal) *Scheduler {
	return &Scheduler{cal: cal, lateFeePct: lateFeePct}
}

// Calendar returns the calendar used for due dates and grace boundaries.
func (s *Scheduler) Calendar() *clock.Calendar { return s.cal }

// Assessment is the read-time classification of one obligation.
type Assessment struct {
	// Status is the stored status for settled obligations, otherwise pending or overdue.
	Status models.ContributionStatus

	// InGrace is true while an overdue obligation is still inside its grace period.
	InGrace bool

	Fee   decimal.Decimal
	Total decimal.Decimal
}

// Outstanding reports whether the obligation still needs a payment.
func (a Assessment) Outstanding() bool {
	return !a.Status.Settled()
}

// Generate creates one pending obligation per active membership for the cycle starting at
// due. Memberships listed in existing (by membership ID) already have an obligation for
// this cycle and are skipped, so calling Generate twice for a cycle is harmless.
func (s *Scheduler) Generate(g *models.Group, memberships []*models.Membership, cycle int, due time.Time, existing map[string]bool, now time.Time) []*models.ContributionSchedule {
	var out []*models.ContributionSchedule
	for _, m := range memberships {
		if m.Status != models.MembershipActive || existing[m.ID] {
			continue
		}
		out = append(out, &models.ContributionSchedule{
			ID:                uuid.New().String(),
			MembershipID:      m.ID,
			GroupID:           g.ID,
			UserID:            m.UserID,
			Cycle:             cycle,
			DueDate:           due,
			Amount:            g.DailyAmount,
			Status:            models.ContributionPending,
			GracePeriodEndsAt: s.cal.GraceEnd(due),
			LateFee:           decimal.Zero,
			CreatedAt:         now,
		})
	}
	return out
}

// Fee returns the late fee for an amount.
func (s *Scheduler) Fee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.lateFeePct).Div(hundred).Round(2)
}

// Assess classifies an obligation against now.
func (s *Scheduler) Assess(cs *models.ContributionSchedule, now time.Time) Assessment {
	if cs.Status.Settled() {
		return Assessment{Status: cs.Status, Fee: cs.LateFee, Total: cs.Amount.Add(cs.LateFee)}
	}

	a := Assessment{Status: models.ContributionPending, Fee: decimal.Zero}
	if now.After(cs.DueDate) {
		a.Status = models.ContributionOverdue
		if now.Before(cs.GracePeriodEndsAt) {
			a.InGrace = true
		} else {
			a.Fee = s.Fee(cs.Amount)
		}
	}
	a.Total = cs.Amount.Add(a.Fee)
	return a
}

// ApplyPayment records a payment against an obligation. The amount must cover the total
// due at payment time. Paying after the grace period stores the obligation as late along
// with the fee that was charged.
func (s *Scheduler) ApplyPayment(cs *models.ContributionSchedule, amountPaid decimal.Decimal, method string, now time.Time) error {
	switch cs.Status {
	case models.ContributionPaid, models.ContributionLate:
		return models.Errorf(models.KindInvalidTransition, "This contribution has already been paid.")
	case models.ContributionWaived:
		return models.Errorf(models.KindInvalidTransition, "This contribution was waived and needs no payment.")
	}
	if !amountPaid.IsPositive() {
		return models.Errorf(models.KindValidation, "Payment amount must be greater than zero.")
	}

	a := s.Assess(cs, now)
	if amountPaid.LessThan(a.Total) {
		if a.Fee.IsPositive() {
			return models.Errorf(models.KindAmountMismatch,
				"Amount %s is less than the %s due (including a late fee of %s).",
				amountPaid.StringFixed(2), a.Total.StringFixed(2), a.Fee.StringFixed(2))
		}
		return models.Errorf(models.KindAmountMismatch,
			"Amount %s is less than the %s due.", amountPaid.StringFixed(2), a.Total.StringFixed(2))
	}

	cs.Status = models.ContributionPaid
	if a.Status == models.ContributionOverdue && !a.InGrace {
		cs.Status = models.ContributionLate
	}
	cs.LateFee = a.Fee
	paid := amountPaid
	cs.PaidAmount = &paid
	paidAt := now
	cs.PaidAt = &paidAt
	cs.PaymentMethod = method
	return nil
}

// Waive releases an unsettled obligation without payment.
func (s *Scheduler) Waive(cs *models.ContributionSchedule) error {
	if cs.Status.Settled() {
		return models.Errorf(models.KindInvalidTransition,
			"This contribution is already %s and cannot be waived.", cs.Status)
	}
	cs.Status = models.ContributionWaived
	cs.LateFee = decimal.Zero
	return nil
}

// GraceExpiring reports whether an unpaid obligation's grace period ends within lead of now
// and no reminder has been sent yet.
func (s *Scheduler) GraceExpiring(cs *models.ContributionSchedule, now time.Time, lead time.Duration) bool {
	if cs.Status.Settled() || cs.GraceReminderSentAt != nil {
		return false
	}
	a := s.Assess(cs, now)
	return a.InGrace && !cs.GracePeriodEndsAt.After(now.Add(lead))
}
