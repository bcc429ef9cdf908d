package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/susu/internal/contribution"
	"github.com/mmynk/susu/internal/models"
	"github.com/mmynk/susu/internal/notify"
	"github.com/mmynk/susu/internal/storage"
)

// openCycle opens the cycle containing now if it is not open yet. It advances at most
// one cycle per call and does nothing unless the group is active. Days on which no cycle
// was opened (paused, or the job did not run) are not back-filled.
func (e *Engine) openCycle(ctx context.Context, repo storage.Repository, fx *effects, g *models.Group, ms []*models.Membership) (bool, error) {
	if g.Status != models.GroupActive {
		return false, nil
	}
	start := e.scheduler.Calendar().CycleStart(fx.now)
	if g.CurrentCycleStartedAt != nil && !start.After(*g.CurrentCycleStartedAt) {
		return false, nil
	}

	g.CurrentCycle++
	g.CurrentCycleStartedAt = &start
	g.UpdatedAt = fx.now
	fx.cycles++
	fx.audit("group.cycle_open", "group", g.ID, map[string]string{
		"cycle":    fmt.Sprint(g.CurrentCycle),
		"due_date": start.Format("2006-01-02"),
	})
	return true, e.generateFor(ctx, repo, fx, g, ms)
}

// generateFor creates the current cycle's obligations for the given memberships,
// skipping any that already have one.
func (e *Engine) generateFor(ctx context.Context, repo storage.Repository, fx *effects, g *models.Group, ms []*models.Membership) error {
	due := *g.CurrentCycleStartedAt
	next := e.scheduler.Calendar().NextCycleStart(due)
	existing, err := repo.ListContributions(ctx, storage.ContributionFilter{GroupID: g.ID, DueFrom: &due, DueTo: &next})
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, cs := range existing {
		have[cs.MembershipID] = true
	}

	created := e.scheduler.Generate(g, ms, g.CurrentCycle, due, have, fx.now)
	if len(created) == 0 {
		return nil
	}
	if err := repo.CreateContributions(ctx, created); err != nil {
		return err
	}
	for _, cs := range created {
		fx.notify(notify.ContributionDue, g.ID, cs.MembershipID, cs.UserID, cs.ID)
	}
	return nil
}

// OpenCycle opens today's cycle for one group. It reports false when the cycle was
// already open.
func (e *Engine) OpenCycle(ctx context.Context, actor models.Actor, groupID string) (bool, error) {
	if err := requireAdmin(actor); err != nil {
		return false, err
	}
	var opened bool
	err := e.run(ctx, "open_cycle", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		g, ms, err := loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if g.Status != models.GroupActive {
			return models.Errorf(models.KindInvalidTransition, "Cycles only open for active groups (this one is %s).", g.Status)
		}
		opened, err = e.openCycle(ctx, repo, fx, g, ms)
		if err != nil || !opened {
			return err
		}
		return repo.UpdateGroup(ctx, g)
	})
	return opened, err
}

// OpenDueCycles opens today's cycle in every active group. Each group is handled in its
// own transaction; a failing group is logged and the rest continue.
func (e *Engine) OpenDueCycles(ctx context.Context) (int, error) {
	groups, err := e.store.ListGroups(ctx, models.GroupActive)
	if err != nil {
		return 0, fmt.Errorf("failed to list active groups: %w", err)
	}
	opened := 0
	for _, g := range groups {
		ok, err := e.OpenCycle(ctx, models.SystemActor, g.ID)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to open cycle", "group_id", g.ID, "error", err)
			continue
		}
		if ok {
			opened++
		}
	}
	return opened, nil
}

// MarkContributionPaid records a payment for one obligation and credits the group pool.
// The member may pay their own obligation; admins may record any payment. Paying twice
// fails with InvalidTransition and never credits twice.
func (e *Engine) MarkContributionPaid(ctx context.Context, actor models.Actor, scheduleID string, amount decimal.Decimal, method string) (*models.ContributionSchedule, error) {
	if scheduleID == "" {
		return nil, models.Errorf(models.KindValidation, "schedule_id is required")
	}
	var cs *models.ContributionSchedule
	err := e.run(ctx, "mark_contribution_paid", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		var err error
		cs, err = repo.GetContribution(ctx, scheduleID)
		if err != nil {
			return err
		}
		if actor.UserID != cs.UserID {
			if err := requireAdmin(actor); err != nil {
				return err
			}
		}
		g, err := repo.GetGroup(ctx, cs.GroupID)
		if err != nil {
			return err
		}
		if g.Status == models.GroupCancelled {
			return models.Errorf(models.KindInvalidTransition, "This group was cancelled.")
		}

		if err := e.scheduler.ApplyPayment(cs, amount, strings.TrimSpace(method), fx.now); err != nil {
			return err
		}
		if err := repo.UpdateContribution(ctx, cs); err != nil {
			return err
		}
		if err := e.wallet.Credit(ctx, g.PoolAccount(), amount, "contribution:"+cs.ID); err != nil {
			return err
		}
		fx.credited = append(fx.credited, amount.InexactFloat64())
		fx.audit("contribution.paid", "contribution", cs.ID, map[string]string{
			"group_id":      cs.GroupID,
			"membership_id": cs.MembershipID,
			"status":        string(cs.Status),
			"amount":        amount.StringFixed(2),
			"late_fee":      cs.LateFee.StringFixed(2),
			"method":        cs.PaymentMethod,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "Contribution paid", "schedule_id", cs.ID, "status", cs.Status)
	return cs, nil
}

// WaiveContribution releases an unsettled obligation without payment.
func (e *Engine) WaiveContribution(ctx context.Context, actor models.Actor, scheduleID, reason string) (*models.ContributionSchedule, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var cs *models.ContributionSchedule
	err := e.run(ctx, "waive_contribution", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		var err error
		cs, err = repo.GetContribution(ctx, scheduleID)
		if err != nil {
			return err
		}
		if err := e.scheduler.Waive(cs); err != nil {
			return err
		}
		if err := repo.UpdateContribution(ctx, cs); err != nil {
			return err
		}
		fx.audit("contribution.waive", "contribution", cs.ID, map[string]string{
			"group_id": cs.GroupID,
			"reason":   reason,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// DueQuery selects obligations by user or by group. Exactly one must be set.
type DueQuery struct {
	UserID  string
	GroupID string
}

// DueToday lists the unsettled obligations due on the current calendar day.
func (e *Engine) DueToday(ctx context.Context, actor models.Actor, q DueQuery) (contribution.Summary, error) {
	now := e.clock.Now()
	var sum contribution.Summary
	err := e.view(ctx, func(ctx context.Context, repo storage.Repository) error {
		filter, err := e.dueFilter(ctx, repo, actor, q)
		if err != nil {
			return err
		}
		from, to := e.scheduler.Calendar().DayBounds(now)
		filter.DueFrom, filter.DueTo = &from, &to
		schedules, err := repo.ListContributions(ctx, filter)
		if err != nil {
			return err
		}
		sum = e.scheduler.DueToday(schedules, now)
		return nil
	})
	return sum, err
}

func (e *Engine) dueFilter(ctx context.Context, repo storage.Repository, actor models.Actor, q DueQuery) (storage.ContributionFilter, error) {
	switch {
	case q.UserID != "" && q.GroupID != "":
		return storage.ContributionFilter{}, models.Errorf(models.KindValidation, "Query by user_id or group_id, not both.")
	case q.UserID != "":
		if err := requireSelfOrStaff(actor, q.UserID); err != nil {
			return storage.ContributionFilter{}, err
		}
		return storage.ContributionFilter{UserID: q.UserID, Unsettled: true}, nil
	case q.GroupID != "":
		_, ms, err := loadGroup(ctx, repo, q.GroupID)
		if err != nil {
			return storage.ContributionFilter{}, err
		}
		if err := requireGroupAccess(actor, ms); err != nil {
			return storage.ContributionFilter{}, err
		}
		return storage.ContributionFilter{GroupID: q.GroupID, Unsettled: true}, nil
	}
	return storage.ContributionFilter{}, models.Errorf(models.KindValidation, "user_id or group_id is required")
}

// ArrearsQuery selects obligations by group or by membership. Exactly one must be set.
type ArrearsQuery struct {
	GroupID      string
	MembershipID string
}

// Arrears lists overdue obligations with their accrued late fees, evaluated now.
func (e *Engine) Arrears(ctx context.Context, actor models.Actor, q ArrearsQuery) (contribution.Summary, error) {
	now := e.clock.Now()
	var sum contribution.Summary
	err := e.view(ctx, func(ctx context.Context, repo storage.Repository) error {
		filter := storage.ContributionFilter{Unsettled: true}
		switch {
		case q.GroupID != "" && q.MembershipID != "":
			return models.Errorf(models.KindValidation, "Query by group_id or membership_id, not both.")
		case q.MembershipID != "":
			m, _, _, err := loadMembership(ctx, repo, q.MembershipID)
			if err != nil {
				return err
			}
			if err := requireSelfOrStaff(actor, m.UserID); err != nil {
				return err
			}
			filter.MembershipID = m.ID
		case q.GroupID != "":
			_, ms, err := loadGroup(ctx, repo, q.GroupID)
			if err != nil {
				return err
			}
			if err := requireGroupAccess(actor, ms); err != nil {
				return err
			}
			filter.GroupID = q.GroupID
		default:
			return models.Errorf(models.KindValidation, "group_id or membership_id is required")
		}
		schedules, err := repo.ListContributions(ctx, filter)
		if err != nil {
			return err
		}
		sum = e.scheduler.Arrears(schedules, now)
		return nil
	})
	return sum, err
}

// Streak counts a membership's consecutive on-time payments, newest first.
func (e *Engine) Streak(ctx context.Context, actor models.Actor, membershipID string) (int, error) {
	now := e.clock.Now()
	var streak int
	err := e.view(ctx, func(ctx context.Context, repo storage.Repository) error {
		m, _, _, err := loadMembership(ctx, repo, membershipID)
		if err != nil {
			return err
		}
		if err := requireSelfOrStaff(actor, m.UserID); err != nil {
			return err
		}
		schedules, err := repo.ListContributions(ctx, storage.ContributionFilter{MembershipID: m.ID})
		if err != nil {
			return err
		}
		streak = e.scheduler.Streak(schedules, now)
		return nil
	})
	return streak, err
}

// Outstanding lists every obligation of a membership that still needs a payment, due
// or not, as seen now.
func (e *Engine) Outstanding(ctx context.Context, actor models.Actor, membershipID string) (contribution.Summary, error) {
	now := e.clock.Now()
	var sum contribution.Summary
	err := e.view(ctx, func(ctx context.Context, repo storage.Repository) error {
		m, _, _, err := loadMembership(ctx, repo, membershipID)
		if err != nil {
			return err
		}
		if err := requireSelfOrStaff(actor, m.UserID); err != nil {
			return err
		}
		schedules, err := repo.ListContributions(ctx, storage.ContributionFilter{MembershipID: m.ID})
		if err != nil {
			return err
		}
		sum = e.scheduler.Unsettled(schedules, now)
		return nil
	})
	return sum, err
}

// SweepGraceExpiring emits one grace_expiring reminder for every unpaid obligation
// whose grace period ends within the configured lead time.
func (e *Engine) SweepGraceExpiring(ctx context.Context) (int, error) {
	sent := 0
	err := e.run(ctx, "sweep_grace_expiring", models.SystemActor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		schedules, err := repo.ListContributions(ctx, storage.ContributionFilter{Unsettled: true})
		if err != nil {
			return err
		}
		for _, cs := range schedules {
			if !e.scheduler.GraceExpiring(cs, fx.now, e.lead) {
				continue
			}
			at := fx.now
			cs.GraceReminderSentAt = &at
			if err := repo.UpdateContribution(ctx, cs); err != nil {
				return err
			}
			fx.notify(notify.GraceExpiring, cs.GroupID, cs.MembershipID, cs.UserID, cs.ID)
			sent++
		}
		return nil
	})
	return sent, err
}
