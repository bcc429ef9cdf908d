// Package payout decides whose turn it is and moves payout schedules through
// scheduled → pending_approval → approved → paid, or to skipped.
package payout

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/susu/internal/clock"
	"github.com/mmynk/susu/internal/ledger"
	"github.com/mmynk/susu/internal/models"
)

// SkipPolicy decides when a skipped membership may be scheduled again.
type SkipPolicy string

const (
	// SkipRetryNextCycle keeps a skipped membership at the head of the queue but refuses
	// to reschedule it until the next contribution cycle opens.
	SkipRetryNextCycle SkipPolicy = "retry_next_cycle"
	// SkipRetrySameCycle allows rescheduling the skipped membership immediately.
	SkipRetrySameCycle SkipPolicy = "retry_same_cycle"
)

// ParseSkipPolicy validates a policy name. Empty means the default.
func ParseSkipPolicy(s string) (SkipPolicy, error) {
	switch SkipPolicy(s) {
	case "":
		return SkipRetryNextCycle, nil
	case SkipRetryNextCycle, SkipRetrySameCycle:
		return SkipPolicy(s), nil
	}
	return "", fmt.Errorf("unknown skip policy %q", s)
}

// Queue applies payout rules for one skip policy.
type Queue struct {
	cal  *clock.Calendar
	skip SkipPolicy
}

// NewQueue creates a payout queue.
func NewQueue(cal *clock.Calendar, skip SkipPolicy) *Queue {
	return &Queue{cal: cal, skip: skip}
}

// SkipPolicy returns the configured skip policy.
func (q *Queue) SkipPolicy() SkipPolicy { return q.skip }

// CurrentTurn returns the non-terminal membership with the lowest turn position that has
// not been paid yet, or nil when everyone has been paid.
func CurrentTurn(memberships []*models.Membership, payouts []*models.PayoutSchedule) *models.Membership {
	paid := make(map[string]bool)
	for _, p := range payouts {
		if p.Status == models.PayoutPaid {
			paid[p.MembershipID] = true
		}
	}
	for _, m := range ledger.NonTerminal(memberships) {
		if !m.HasReceivedPayout && !paid[m.ID] {
			return m
		}
	}
	return nil
}

// OpenFor returns the membership's in-flight payout, if any.
func OpenFor(membershipID string, payouts []*models.PayoutSchedule) *models.PayoutSchedule {
	for _, p := range payouts {
		if p.MembershipID == membershipID && p.Status.Open() {
			return p
		}
	}
	return nil
}

func lastSkipped(membershipID string, payouts []*models.PayoutSchedule) *models.PayoutSchedule {
	var last *models.PayoutSchedule
	for _, p := range payouts {
		if p.MembershipID != membershipID || p.Status != models.PayoutSkipped || p.SkippedAt == nil {
			continue
		}
		if last == nil || p.SkippedAt.After(*last.SkippedAt) {
			last = p
		}
	}
	return last
}

// ScheduledFor returns the start of the last cycle of the group's current turn, or now
// if that has already passed.
func (q *Queue) ScheduledFor(g *models.Group, now time.Time) time.Time {
	if g.CurrentCycleStartedAt == nil || g.DaysPerTurn <= 0 {
		return now
	}
	turnEnd := (g.CurrentTurn()+1)*g.DaysPerTurn - 1
	at := q.cal.AddCycles(*g.CurrentCycleStartedAt, turnEnd-g.CurrentCycle)
	if at.Before(now) {
		return now
	}
	return at
}

// Schedule creates a scheduled payout for the member whose turn it is.
func (q *Queue) Schedule(g *models.Group, memberships []*models.Membership, payouts []*models.PayoutSchedule, now time.Time) (*models.PayoutSchedule, error) {
	if g.Status != models.GroupActive {
		return nil, models.Errorf(models.KindInvalidTransition,
			"Payouts can only be scheduled while the group is active (it is %s).", g.Status)
	}

	cur := CurrentTurn(memberships, payouts)
	if cur == nil {
		return nil, models.Errorf(models.KindNoEligibleMember, "Every member of this group has already been paid.")
	}
	if open := OpenFor(cur.ID, payouts); open != nil {
		return nil, models.Errorf(models.KindDuplicatePayout,
			"Member at position %d already has a %s payout.", cur.TurnPosition, open.Status)
	}
	if q.skip == SkipRetryNextCycle && g.CurrentCycleStartedAt != nil {
		if s := lastSkipped(cur.ID, payouts); s != nil && !s.SkippedAt.Before(*g.CurrentCycleStartedAt) {
			return nil, models.Errorf(models.KindNoEligibleMember,
				"The payout for position %d was skipped this cycle and will be retried next cycle.", cur.TurnPosition)
		}
	}

	return &models.PayoutSchedule{
		ID:           uuid.New().String(),
		MembershipID: cur.ID,
		GroupID:      g.ID,
		UserID:       cur.UserID,
		Amount:       g.PayoutAmount,
		Status:       models.PayoutScheduled,
		Turn:         g.CurrentTurn(),
		ScheduledFor: q.ScheduledFor(g, now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Promote moves a scheduled payout to pending_approval once it falls due.
func Promote(p *models.PayoutSchedule, now time.Time) bool {
	if p.Status != models.PayoutScheduled || p.ScheduledFor.After(now) {
		return false
	}
	p.Status = models.PayoutPendingApproval
	p.UpdatedAt = now
	return true
}

// Approve records admin approval. Scheduled payouts may be approved early.
func Approve(p *models.PayoutSchedule, approverID string, now time.Time) error {
	if p.Status != models.PayoutScheduled && p.Status != models.PayoutPendingApproval {
		return models.Errorf(models.KindInvalidTransition,
			"Only scheduled or pending payouts can be approved (this one is %s).", p.Status)
	}
	p.Status = models.PayoutApproved
	p.ApprovedBy = approverID
	p.ApprovedAt = &now
	p.UpdatedAt = now
	return nil
}

// Settle marks an approved payout paid. The disbursement must already have succeeded.
func Settle(p *models.PayoutSchedule, now time.Time) error {
	if p.Status != models.PayoutApproved {
		return models.Errorf(models.KindInvalidTransition,
			"Only approved payouts can be settled (this one is %s).", p.Status)
	}
	p.Status = models.PayoutPaid
	p.PaidAt = &now
	p.UpdatedAt = now
	return nil
}

// Skip closes an in-flight payout without paying. The membership keeps its position.
func Skip(p *models.PayoutSchedule, reason string, now time.Time) error {
	if !p.Status.Open() {
		return models.Errorf(models.KindInvalidTransition,
			"Only in-flight payouts can be skipped (this one is %s).", p.Status)
	}
	p.Status = models.PayoutSkipped
	p.SkipReason = reason
	p.SkippedAt = &now
	p.UpdatedAt = now
	return nil
}

// AllPaid reports whether every non-terminal membership has received its payout.
func AllPaid(memberships []*models.Membership) bool {
	active := ledger.NonTerminal(memberships)
	if len(active) == 0 {
		return false
	}
	for _, m := range active {
		if !m.HasReceivedPayout {
			return false
		}
	}
	return true
}
