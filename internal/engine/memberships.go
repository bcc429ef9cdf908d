package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mmynk/susu/internal/eligibility"
	"github.com/mmynk/susu/internal/ledger"
	"github.com/mmynk/susu/internal/models"
	"github.com/mmynk/susu/internal/storage"
)

// JoinGroup takes a seat in an open group for the calling user. Request groups admit the
// seat as pending; other groups approve it at once. Filling the last seat with nobody
// pending starts the group.
func (e *Engine) JoinGroup(ctx context.Context, actor models.Actor, groupID string) (*models.Membership, error) {
	if err := requireRole(actor, models.RoleMember, models.RoleAdmin, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	var m *models.Membership
	err := e.run(ctx, "join_group", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		g, ms, err := loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if err := ledger.CheckJoin(g, ms, actor.UserID); err != nil {
			return err
		}
		m = &models.Membership{
			ID:           uuid.New().String(),
			GroupID:      g.ID,
			UserID:       actor.UserID,
			Status:       ledger.InitialStatus(g),
			TurnPosition: ledger.NextPosition(ms),
			JoinedAt:     fx.now,
			UpdatedAt:    fx.now,
		}
		if err := repo.CreateMembership(ctx, m); err != nil {
			return err
		}
		fx.audit("membership.join", "membership", m.ID, map[string]string{
			"group_id":      g.ID,
			"status":        string(m.Status),
			"turn_position": fmt.Sprint(m.TurnPosition),
		})
		return e.maybeActivate(ctx, repo, fx, g, append(ms, m))
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "Member joined", "group_id", groupID, "membership_id", m.ID, "status", m.Status)
	return m, nil
}

// ApproveMember admits a pending join request.
func (e *Engine) ApproveMember(ctx context.Context, actor models.Actor, membershipID string) (*models.Membership, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var m *models.Membership
	err := e.run(ctx, "approve_member", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		var (
			g   *models.Group
			ms  []*models.Membership
			err error
		)
		m, g, ms, err = loadMembership(ctx, repo, membershipID)
		if err != nil {
			return err
		}
		if !ledger.AcceptsMembers(g.Status) {
			return models.Errorf(models.KindInvalidTransition, "Join requests can only be approved before the group starts.")
		}
		if m.Status != models.MembershipPending {
			return models.Errorf(models.KindInvalidTransition, "Only pending memberships can be approved (this one is %s).", m.Status)
		}
		if err := ledger.Transition(m, models.MembershipApproved); err != nil {
			return err
		}
		m.UpdatedAt = fx.now
		if err := repo.UpdateMembership(ctx, m); err != nil {
			return err
		}
		fx.audit("membership.approve", "membership", m.ID,
			transitionDetails(string(models.MembershipPending), string(models.MembershipApproved), ""))
		return e.maybeActivate(ctx, repo, fx, g, ms)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// LeaveGroup ends the caller's membership voluntarily when the eligibility guard allows
// it, then closes the gap in the queue.
func (e *Engine) LeaveGroup(ctx context.Context, actor models.Actor, groupID string) (*models.Membership, error) {
	if actor.UserID == "" {
		return nil, models.Errorf(models.KindForbidden, "Authentication is required.")
	}
	var m *models.Membership
	err := e.run(ctx, "leave_group", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		g, ms, err := loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if g.Status.Terminal() {
			return models.Errorf(models.KindInvalidTransition, "This group is %s.", g.Status)
		}
		m = ledger.FindForUser(ms, actor.UserID)
		if m == nil {
			return models.Errorf(models.KindNotAMember, "You are not a member of this group.")
		}

		d, err := e.leaveDecision(ctx, repo, g, m)
		if err != nil {
			return err
		}
		if err := d.Err(); err != nil {
			return err
		}
		return e.exit(ctx, repo, fx, g, ms, m, models.MembershipRemoved, "left", "membership.leave")
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "Member left", "group_id", groupID, "membership_id", m.ID)
	return m, nil
}

func (e *Engine) leaveDecision(ctx context.Context, repo storage.Repository, g *models.Group, m *models.Membership) (eligibility.Decision, error) {
	schedules, err := repo.ListContributions(ctx, storage.ContributionFilter{MembershipID: m.ID})
	if err != nil {
		return eligibility.Decision{}, err
	}
	payouts, err := repo.ListPayouts(ctx, storage.PayoutFilter{MembershipID: m.ID})
	if err != nil {
		return eligibility.Decision{}, err
	}
	return eligibility.CanLeave(g, m, schedules, payouts)
}

// CheckLeave reports whether a membership could leave right now without changing anything.
func (e *Engine) CheckLeave(ctx context.Context, actor models.Actor, membershipID string) (eligibility.Decision, error) {
	var d eligibility.Decision
	err := e.view(ctx, func(ctx context.Context, repo storage.Repository) error {
		m, g, _, err := loadMembership(ctx, repo, membershipID)
		if err != nil {
			return err
		}
		if err := requireSelfOrStaff(actor, m.UserID); err != nil {
			return err
		}
		d, err = e.leaveDecision(ctx, repo, g, m)
		return err
	})
	return d, err
}

// RemoveMember ends a membership by admin decision. Arrears stay on record; an in-flight
// payout blocks removal until it is settled or skipped.
func (e *Engine) RemoveMember(ctx context.Context, actor models.Actor, membershipID, reason string) (*models.Membership, error) {
	return e.expel(ctx, "remove_member", actor, membershipID, models.MembershipRemoved, reason)
}

// BanMember expels a member from one group permanently.
func (e *Engine) BanMember(ctx context.Context, actor models.Actor, membershipID, reason string) (*models.Membership, error) {
	return e.expel(ctx, "ban_member", actor, membershipID, models.MembershipBanned, reason)
}

func (e *Engine) expel(ctx context.Context, op string, actor models.Actor, membershipID string, to models.MembershipStatus, reason string) (*models.Membership, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var m *models.Membership
	err := e.run(ctx, op, actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		var (
			g   *models.Group
			ms  []*models.Membership
			err error
		)
		m, g, ms, err = loadMembership(ctx, repo, membershipID)
		if err != nil {
			return err
		}
		payouts, err := repo.ListPayouts(ctx, storage.PayoutFilter{MembershipID: m.ID})
		if err != nil {
			return err
		}
		d, err := eligibility.CanRemove(g, m, payouts)
		if err != nil {
			return err
		}
		if err := d.Err(); err != nil {
			return err
		}
		action := "membership.remove"
		if to == models.MembershipBanned {
			action = "membership.ban"
		}
		return e.exit(ctx, repo, fx, g, ms, m, to, reason, action)
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "Member expelled", "membership_id", m.ID, "status", m.Status, "reason", reason)
	return m, nil
}

// exit moves m to a terminal status and compacts the remaining positions.
func (e *Engine) exit(ctx context.Context, repo storage.Repository, fx *effects, g *models.Group, ms []*models.Membership, m *models.Membership, to models.MembershipStatus, reason, action string) error {
	prev := m.Status
	if err := ledger.Transition(m, to); err != nil {
		return err
	}
	left := fx.now
	m.LeftAt = &left
	m.StatusReason = reason
	m.UpdatedAt = fx.now
	if err := repo.UpdateMembership(ctx, m); err != nil {
		return err
	}
	if err := compact(ctx, repo, g.ID, ms); err != nil {
		return err
	}
	details := transitionDetails(string(prev), string(to), reason)
	details["group_id"] = g.ID
	fx.audit(action, "membership", m.ID, details)
	return nil
}

// BanUser suspends every active membership the user holds, across all groups, in one
// transaction. Schedule history is kept and seats keep their positions.
func (e *Engine) BanUser(ctx context.Context, actor models.Actor, userID, reason string) ([]*models.Membership, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, models.Errorf(models.KindValidation, "user_id is required")
	}
	var suspended []*models.Membership
	err := e.run(ctx, "ban_user", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		ms, err := repo.ListMembershipsByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, m := range ms {
			if m.Status != models.MembershipActive {
				continue
			}
			if err := ledger.Transition(m, models.MembershipSuspended); err != nil {
				return err
			}
			m.StatusReason = reason
			m.UpdatedAt = fx.now
			if err := repo.UpdateMembership(ctx, m); err != nil {
				return err
			}
			details := transitionDetails(string(models.MembershipActive), string(models.MembershipSuspended), reason)
			details["group_id"] = m.GroupID
			fx.audit("membership.suspend", "membership", m.ID, details)
			suspended = append(suspended, m)
		}
		fx.audit("user.ban", "user", userID, map[string]string{
			"reason":      reason,
			"memberships": fmt.Sprint(len(suspended)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "User banned", "user_id", userID, "suspended", len(suspended))
	return suspended, nil
}

// ReinstateMember lifts a suspension. If the current cycle is already open the member
// receives its obligation for it.
func (e *Engine) ReinstateMember(ctx context.Context, actor models.Actor, membershipID string) (*models.Membership, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var m *models.Membership
	err := e.run(ctx, "reinstate_member", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		var (
			g   *models.Group
			err error
		)
		m, g, _, err = loadMembership(ctx, repo, membershipID)
		if err != nil {
			return err
		}
		if g.Status.Terminal() {
			return models.Errorf(models.KindInvalidTransition, "This group is %s.", g.Status)
		}
		if m.Status != models.MembershipSuspended {
			return models.Errorf(models.KindInvalidTransition, "Only suspended memberships can be reinstated (this one is %s).", m.Status)
		}
		if err := ledger.Transition(m, models.MembershipActive); err != nil {
			return err
		}
		m.StatusReason = ""
		m.UpdatedAt = fx.now
		if err := repo.UpdateMembership(ctx, m); err != nil {
			return err
		}
		details := transitionDetails(string(models.MembershipSuspended), string(models.MembershipActive), "")
		details["group_id"] = g.ID
		fx.audit("membership.reinstate", "membership", m.ID, details)

		if g.CurrentCycleStartedAt == nil {
			return nil
		}
		return e.generateFor(ctx, repo, fx, g, []*models.Membership{m})
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ReorderQueue rewrites the payout order. The list must name every seat exactly once;
// nothing changes if any id is rejected.
func (e *Engine) ReorderQueue(ctx context.Context, actor models.Actor, groupID string, orderedIDs []string) ([]*models.Membership, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var seats []*models.Membership
	err := e.run(ctx, "reorder_queue", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		g, ms, err := loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		d, err := eligibility.CanReorder(g)
		if err != nil {
			return err
		}
		if err := d.Err(); err != nil {
			return err
		}
		plan, err := ledger.PlanReorder(ms, orderedIDs)
		if err != nil {
			return err
		}
		if err := repo.ReassignPositions(ctx, g.ID, plan); err != nil {
			return err
		}
		for _, m := range ms {
			if pos, ok := plan[m.ID]; ok {
				m.TurnPosition = pos
			}
		}
		seats = ledger.NonTerminal(ms)
		fx.audit("group.reorder", "group", g.ID, map[string]string{"order": strings.Join(orderedIDs, ",")})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seats, nil
}
