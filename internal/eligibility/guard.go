// Package eligibility evaluates whether a membership or group transition is legal.
//
// Every predicate is total and side-effect free. An expected "no" is a Decision with
// Allowed=false and a reason kind; only malformed input (nil rows, rows from another
// group, unknown targets) yields an error.
package eligibility

import (
	"github.com/mmynk/susu/internal/lifecycle"
	"github.com/mmynk/susu/internal/models"
)

// Decision is the outcome of a guard predicate.
type Decision struct {
	Allowed bool
	Reason  models.ErrorKind
	Message string
}

// Allow is the positive decision.
var Allow = Decision{Allowed: true}

func deny(kind models.ErrorKind, format string, args ...any) Decision {
	e := models.Errorf(kind, format, args...)
	return Decision{Reason: e.Kind, Message: e.Message}
}

// Err converts a denial into a typed error, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &models.Error{Kind: d.Reason, Message: d.Message}
}

func checkOwnership(g *models.Group, m *models.Membership) error {
	if g == nil || g.ID == "" {
		return models.Errorf(models.KindValidation, "group is required")
	}
	if m == nil || m.ID == "" {
		return models.Errorf(models.KindValidation, "membership is required")
	}
	if m.GroupID != g.ID {
		return models.Errorf(models.KindValidation, "membership %s does not belong to group %s", m.ID, g.ID)
	}
	return nil
}

// CanLeave decides whether a member may leave the group voluntarily.
func CanLeave(g *models.Group, m *models.Membership, schedules []*models.ContributionSchedule, payouts []*models.PayoutSchedule) (Decision, error) {
	if err := checkOwnership(g, m); err != nil {
		return Decision{}, err
	}
	if m.Status.Terminal() {
		return deny(models.KindInvalidTransition, "This membership has already ended (%s).", m.Status), nil
	}

	if lifecycle.RotationLocked(g.Status) && !g.CanExitAfterStart && !m.HasReceivedPayout {
		return deny(models.KindPayoutPending,
			"This group has started and you have not received your payout yet. You can leave after your turn."), nil
	}

	unsettled := 0
	for _, cs := range schedules {
		if cs.MembershipID == m.ID && !cs.Status.Settled() {
			unsettled++
		}
	}
	if unsettled > 0 {
		return deny(models.KindArrearsOutstanding,
			"You have %d pending contribution(s). Please settle all dues before leaving.", unsettled), nil
	}

	for _, p := range payouts {
		if p.MembershipID == m.ID && p.Status.Open() {
			return deny(models.KindUpcomingPayoutScheduled,
				"You have a %s payout. It must be settled or skipped before you leave.", p.Status), nil
		}
	}
	return Allow, nil
}

// CanRemove decides whether an admin may remove or ban a member. Arrears do not block
// removal; the obligations stay on record. An in-flight payout does.
func CanRemove(g *models.Group, m *models.Membership, payouts []*models.PayoutSchedule) (Decision, error) {
	if err := checkOwnership(g, m); err != nil {
		return Decision{}, err
	}
	if m.Status.Terminal() {
		return deny(models.KindInvalidTransition, "This membership has already ended (%s).", m.Status), nil
	}
	for _, p := range payouts {
		if p.MembershipID == m.ID && p.Status.Open() {
			return deny(models.KindUpcomingPayoutScheduled,
				"This member has a %s payout. Settle or skip it first.", p.Status), nil
		}
	}
	return Allow, nil
}

// CanReorder decides whether the payout queue may be reordered. A live queue is frozen.
func CanReorder(g *models.Group) (Decision, error) {
	if g == nil || g.ID == "" {
		return Decision{}, models.Errorf(models.KindValidation, "group is required")
	}
	switch g.Status {
	case models.GroupDraft, models.GroupOpen, models.GroupPaused:
		return Allow, nil
	case models.GroupActive:
		return deny(models.KindInvalidTransition, "The queue cannot be reordered while the group is active. Pause it first."), nil
	}
	return deny(models.KindInvalidTransition, "The queue of a %s group cannot be reordered.", g.Status), nil
}

// CanPauseResume enforces the lifecycle table for pause (target paused) and resume
// (target active).
func CanPauseResume(g *models.Group, target models.GroupStatus) (Decision, error) {
	if g == nil || g.ID == "" {
		return Decision{}, models.Errorf(models.KindValidation, "group is required")
	}
	switch target {
	case models.GroupPaused:
		if g.Status != models.GroupActive {
			return deny(models.KindInvalidTransition, "Only an active group can be paused (this one is %s).", g.Status), nil
		}
	case models.GroupActive:
		if g.Status != models.GroupPaused {
			return deny(models.KindInvalidTransition, "Only a paused group can be resumed (this one is %s).", g.Status), nil
		}
	default:
		return Decision{}, models.Errorf(models.KindValidation, "target must be paused or active, got %q", target)
	}
	if err := lifecycle.Check(g.Status, target); err != nil {
		return Decision{Reason: models.KindOf(err), Message: err.Error()}, nil
	}
	return Allow, nil
}
