package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/susu/internal/eligibility"
	"github.com/mmynk/susu/internal/ledger"
	"github.com/mmynk/susu/internal/lifecycle"
	"github.com/mmynk/susu/internal/models"
	"github.com/mmynk/susu/internal/payout"
	"github.com/mmynk/susu/internal/storage"
)

// CreateGroupInput carries the policy of a new group.
type CreateGroupInput struct {
	Name              string
	Description       string
	DailyAmount       decimal.Decimal
	GroupSize         int
	DaysPerTurn       int
	PayoutAmount      decimal.Decimal
	Type              models.GroupType
	CanExitAfterStart bool
}

// CreateGroup creates a draft group.
func (e *Engine) CreateGroup(ctx context.Context, actor models.Actor, in CreateGroupInput) (*models.Group, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var g *models.Group
	err := e.run(ctx, "create_group", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		g = &models.Group{
			ID:                uuid.New().String(),
			Name:              strings.TrimSpace(in.Name),
			Description:       in.Description,
			DailyAmount:       in.DailyAmount,
			GroupSize:         in.GroupSize,
			DaysPerTurn:       in.DaysPerTurn,
			PayoutAmount:      in.PayoutAmount,
			Type:              in.Type,
			Status:            models.GroupDraft,
			CanExitAfterStart: in.CanExitAfterStart,
			CurrentCycle:      -1,
			CreatedBy:         actor.UserID,
			CreatedAt:         fx.now,
			UpdatedAt:         fx.now,
		}
		if err := lifecycle.Validate(g); err != nil {
			return err
		}
		if err := repo.CreateGroup(ctx, g); err != nil {
			return err
		}
		fx.audit("group.create", "group", g.ID, map[string]string{
			"name":          g.Name,
			"group_size":    fmt.Sprint(g.GroupSize),
			"daily_amount":  g.DailyAmount.String(),
			"payout_amount": g.PayoutAmount.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "Group created", "group_id", g.ID, "name", g.Name)
	return g, nil
}

// GetGroup returns a group and its memberships. Any signed-in user may look a group up
// so they can decide to join it.
func (e *Engine) GetGroup(ctx context.Context, actor models.Actor, groupID string) (*models.Group, []*models.Membership, error) {
	if actor.UserID == "" {
		return nil, nil, models.Errorf(models.KindForbidden, "Authentication is required.")
	}
	var (
		g  *models.Group
		ms []*models.Membership
	)
	err := e.view(ctx, func(ctx context.Context, repo storage.Repository) error {
		var err error
		g, ms, err = loadGroup(ctx, repo, groupID)
		return err
	})
	return g, ms, err
}

// ListGroups returns groups in the given statuses, or all groups.
func (e *Engine) ListGroups(ctx context.Context, actor models.Actor, statuses ...models.GroupStatus) ([]*models.Group, error) {
	if actor.UserID == "" {
		return nil, models.Errorf(models.KindForbidden, "Authentication is required.")
	}
	var groups []*models.Group
	err := e.view(ctx, func(ctx context.Context, repo storage.Repository) error {
		var err error
		groups, err = repo.ListGroups(ctx, statuses...)
		return err
	})
	return groups, err
}

// PublishGroup opens a draft group for joining.
func (e *Engine) PublishGroup(ctx context.Context, actor models.Actor, groupID string) (*models.Group, error) {
	return e.transitionGroup(ctx, "publish_group", actor, groupID, models.GroupOpen, "")
}

// StartGroup force-starts an open group before it is full.
func (e *Engine) StartGroup(ctx context.Context, actor models.Actor, groupID string) (*models.Group, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var g *models.Group
	err := e.run(ctx, "start_group", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		var (
			ms  []*models.Membership
			err error
		)
		g, ms, err = loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if err := lifecycle.Check(g.Status, models.GroupActive); err != nil {
			return err
		}
		if g.Status != models.GroupOpen {
			return models.Errorf(models.KindInvalidTransition, "Only an open group can be started (this one is %s).", g.Status)
		}
		seats := ledger.NonTerminal(ms)
		if len(seats) < 2 {
			return models.Errorf(models.KindInvalidTransition, "A group needs at least 2 members to start, it has %d.", len(seats))
		}
		for _, m := range seats {
			if m.Status == models.MembershipPending {
				return models.Errorf(models.KindInvalidTransition, "Approve or reject every pending join request before starting.")
			}
		}
		return e.activate(ctx, repo, fx, g, ms)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// maybeActivate starts an open group once every seat is taken and nobody is waiting
// for approval.
func (e *Engine) maybeActivate(ctx context.Context, repo storage.Repository, fx *effects, g *models.Group, ms []*models.Membership) error {
	if g.Status != models.GroupOpen {
		return nil
	}
	seats := ledger.NonTerminal(ms)
	if len(seats) < g.GroupSize {
		return nil
	}
	for _, m := range seats {
		if m.Status == models.MembershipPending {
			return nil
		}
	}
	return e.activate(ctx, repo, fx, g, ms)
}

// activate moves an open group to active, activates its approved members and opens the
// first cycle.
func (e *Engine) activate(ctx context.Context, repo storage.Repository, fx *effects, g *models.Group, ms []*models.Membership) error {
	if err := lifecycle.Transition(g, models.GroupActive); err != nil {
		return err
	}
	for _, m := range ledger.NonTerminal(ms) {
		if m.Status != models.MembershipApproved {
			continue
		}
		if err := ledger.Transition(m, models.MembershipActive); err != nil {
			return err
		}
		m.UpdatedAt = fx.now
		if err := repo.UpdateMembership(ctx, m); err != nil {
			return err
		}
	}
	started := fx.now
	g.StartedAt = &started
	g.UpdatedAt = fx.now
	fx.audit("group.start", "group", g.ID, transitionDetails(string(models.GroupOpen), string(models.GroupActive), ""))
	if _, err := e.openCycle(ctx, repo, fx, g, ms); err != nil {
		return err
	}
	return repo.UpdateGroup(ctx, g)
}

// PauseGroup suspends an active group. No cycles open and no payouts are scheduled
// while paused.
func (e *Engine) PauseGroup(ctx context.Context, actor models.Actor, groupID, reason string) (*models.Group, error) {
	return e.transitionGroup(ctx, "pause_group", actor, groupID, models.GroupPaused, reason)
}

// ResumeGroup reactivates a paused group. If every member was paid while paused the
// group completes instead of waiting for another settlement.
func (e *Engine) ResumeGroup(ctx context.Context, actor models.Actor, groupID string) (*models.Group, error) {
	return e.transitionGroup(ctx, "resume_group", actor, groupID, models.GroupActive, "")
}

func (e *Engine) transitionGroup(ctx context.Context, op string, actor models.Actor, groupID string, to models.GroupStatus, reason string) (*models.Group, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var g *models.Group
	err := e.run(ctx, op, actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		var (
			ms  []*models.Membership
			err error
		)
		g, ms, err = loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		from := g.Status

		if to == models.GroupPaused || to == models.GroupActive {
			d, err := eligibility.CanPauseResume(g, to)
			if err != nil {
				return err
			}
			if err := d.Err(); err != nil {
				return err
			}
			g.PauseReason = ""
			if to == models.GroupPaused {
				g.PauseReason = reason
			}
		}

		if err := lifecycle.Transition(g, to); err != nil {
			return err
		}
		g.UpdatedAt = fx.now
		fx.audit("group."+strings.TrimSuffix(op, "_group"), "group", g.ID, transitionDetails(string(from), string(to), reason))

		// A draft that was filled before publishing starts as soon as it opens.
		if to == models.GroupOpen {
			if err := repo.UpdateGroup(ctx, g); err != nil {
				return err
			}
			return e.maybeActivate(ctx, repo, fx, g, ms)
		}

		if to == models.GroupActive && payout.AllPaid(ms) {
			if err := e.complete(ctx, repo, fx, g, ms); err != nil {
				return err
			}
		}
		return repo.UpdateGroup(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "Group transitioned", "group_id", g.ID, "status", g.Status)
	return g, nil
}

// complete closes the rotation once every seat has been paid.
func (e *Engine) complete(ctx context.Context, repo storage.Repository, fx *effects, g *models.Group, ms []*models.Membership) error {
	if err := lifecycle.Transition(g, models.GroupCompleted); err != nil {
		return err
	}
	for _, m := range ledger.NonTerminal(ms) {
		if err := ledger.Transition(m, models.MembershipCompleted); err != nil {
			return err
		}
		m.UpdatedAt = fx.now
		if err := repo.UpdateMembership(ctx, m); err != nil {
			return err
		}
	}
	ended := fx.now
	g.EndedAt = &ended
	g.UpdatedAt = fx.now
	fx.audit("group.complete", "group", g.ID, transitionDetails(string(models.GroupActive), string(models.GroupCompleted), ""))
	return nil
}

// CancelGroup ends a group early. Every member's net contribution is refunded, open
// payouts are skipped and unsettled obligations are waived. A refund failure aborts the
// whole cancellation; retrying is safe because refund refs are idempotent.
func (e *Engine) CancelGroup(ctx context.Context, actor models.Actor, groupID, reason string) (*models.Group, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var g *models.Group
	err := e.run(ctx, "cancel_group", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		var (
			ms  []*models.Membership
			err error
		)
		g, ms, err = loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		from := g.Status
		if err := lifecycle.Transition(g, models.GroupCancelled); err != nil {
			return err
		}

		schedules, err := repo.ListContributions(ctx, storage.ContributionFilter{GroupID: g.ID})
		if err != nil {
			return err
		}
		payouts, err := repo.ListPayouts(ctx, storage.PayoutFilter{GroupID: g.ID})
		if err != nil {
			return err
		}

		for _, cs := range schedules {
			if cs.Status.Settled() {
				continue
			}
			if err := e.scheduler.Waive(cs); err != nil {
				return err
			}
			if err := repo.UpdateContribution(ctx, cs); err != nil {
				return err
			}
		}
		for _, p := range payouts {
			if !p.Status.Open() {
				continue
			}
			if err := payout.Skip(p, "group cancelled", fx.now); err != nil {
				return err
			}
			if err := repo.UpdatePayout(ctx, p); err != nil {
				return err
			}
		}

		for _, m := range ms {
			refund := netContribution(m.ID, schedules, payouts)
			if refund.IsPositive() {
				ref := fmt.Sprintf("refund:%s:%s", g.ID, m.ID)
				if err := e.wallet.Disburse(ctx, m.PayoutAccount(), refund, ref); err != nil {
					return err
				}
				fx.disbursed = append(fx.disbursed, refund.InexactFloat64())
				fx.audit("membership.refund", "membership", m.ID, map[string]string{
					"group_id": g.ID, "amount": refund.StringFixed(2), "ref_id": ref,
				})
			}
			if m.Status.Terminal() {
				continue
			}
			prev := m.Status
			if err := ledger.Transition(m, models.MembershipRemoved); err != nil {
				return err
			}
			left := fx.now
			m.LeftAt = &left
			m.StatusReason = "group cancelled"
			m.UpdatedAt = fx.now
			if err := repo.UpdateMembership(ctx, m); err != nil {
				return err
			}
			fx.audit("membership.remove", "membership", m.ID, transitionDetails(string(prev), string(m.Status), "group cancelled"))
		}

		ended := fx.now
		g.EndedAt = &ended
		g.UpdatedAt = fx.now
		fx.audit("group.cancel", "group", g.ID, transitionDetails(string(from), string(models.GroupCancelled), reason))
		return repo.UpdateGroup(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "Group cancelled", "group_id", g.ID, "reason", reason)
	return g, nil
}

// netContribution is what a membership paid in minus what it was paid out.
func netContribution(membershipID string, schedules []*models.ContributionSchedule, payouts []*models.PayoutSchedule) decimal.Decimal {
	net := decimal.Zero
	for _, cs := range schedules {
		if cs.MembershipID == membershipID && cs.PaidAmount != nil {
			net = net.Add(*cs.PaidAmount)
		}
	}
	for _, p := range payouts {
		if p.MembershipID == membershipID && p.Status == models.PayoutPaid {
			net = net.Sub(p.Amount)
		}
	}
	return net
}

// UpdateGroup applies an admin patch. Rotation parameters are frozen once the group
// has started.
func (e *Engine) UpdateGroup(ctx context.Context, actor models.Actor, groupID string, patch models.GroupPatch) (*models.Group, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var g *models.Group
	err := e.run(ctx, "update_group", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		var (
			ms  []*models.Membership
			err error
		)
		g, ms, err = loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if err := lifecycle.CheckPatch(g, patch, len(ledger.NonTerminal(ms))); err != nil {
			return err
		}
		patch.Apply(g)
		g.Name = strings.TrimSpace(g.Name)
		g.UpdatedAt = fx.now
		if err := repo.UpdateGroup(ctx, g); err != nil {
			return err
		}
		fx.audit("group.update", "group", g.ID, patchDetails(patch))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func patchDetails(p models.GroupPatch) map[string]string {
	d := map[string]string{}
	if p.Name != nil {
		d["name"] = *p.Name
	}
	if p.Description != nil {
		d["description"] = *p.Description
	}
	if p.GroupSize != nil {
		d["group_size"] = fmt.Sprint(*p.GroupSize)
	}
	if p.DailyAmount != nil {
		d["daily_amount"] = p.DailyAmount.String()
	}
	if p.DaysPerTurn != nil {
		d["days_per_turn"] = fmt.Sprint(*p.DaysPerTurn)
	}
	if p.PayoutAmount != nil {
		d["payout_amount"] = p.PayoutAmount.String()
	}
	if p.Type != nil {
		d["type"] = string(*p.Type)
	}
	if p.CanExitAfterStart != nil {
		d["can_exit_after_start"] = fmt.Sprint(*p.CanExitAfterStart)
	}
	return d
}
