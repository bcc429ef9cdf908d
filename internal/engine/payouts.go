package engine

import (
	"context"
	"fmt"

	"github.com/mmynk/susu/internal/ledger"
	"github.com/mmynk/susu/internal/models"
	"github.com/mmynk/susu/internal/notify"
	"github.com/mmynk/susu/internal/payout"
	"github.com/mmynk/susu/internal/storage"
)

// CurrentTurn returns the membership whose turn it is, or nil once everyone was paid.
func (e *Engine) CurrentTurn(ctx context.Context, actor models.Actor, groupID string) (*models.Membership, error) {
	var cur *models.Membership
	err := e.view(ctx, func(ctx context.Context, repo storage.Repository) error {
		_, ms, err := loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if err := requireGroupAccess(actor, ms); err != nil {
			return err
		}
		payouts, err := repo.ListPayouts(ctx, storage.PayoutFilter{GroupID: groupID})
		if err != nil {
			return err
		}
		cur = payout.CurrentTurn(ms, payouts)
		return nil
	})
	return cur, err
}

// ListPayouts returns a group's payout history in turn order.
func (e *Engine) ListPayouts(ctx context.Context, actor models.Actor, groupID string) ([]*models.PayoutSchedule, error) {
	var payouts []*models.PayoutSchedule
	err := e.view(ctx, func(ctx context.Context, repo storage.Repository) error {
		_, ms, err := loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if err := requireGroupAccess(actor, ms); err != nil {
			return err
		}
		payouts, err = repo.ListPayouts(ctx, storage.PayoutFilter{GroupID: groupID})
		return err
	})
	return payouts, err
}

// SchedulePayout queues the payout for the member whose turn it is.
func (e *Engine) SchedulePayout(ctx context.Context, actor models.Actor, groupID string) (*models.PayoutSchedule, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var p *models.PayoutSchedule
	err := e.run(ctx, "schedule_payout", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		g, ms, err := loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		payouts, err := repo.ListPayouts(ctx, storage.PayoutFilter{GroupID: g.ID})
		if err != nil {
			return err
		}
		p, err = e.queue.Schedule(g, ms, payouts, fx.now)
		if err != nil {
			return err
		}
		if err := repo.CreatePayout(ctx, p); err != nil {
			return err
		}
		fx.audit("payout.schedule", "payout", p.ID, map[string]string{
			"group_id":      g.ID,
			"membership_id": p.MembershipID,
			"turn":          fmt.Sprint(p.Turn),
			"scheduled_for": p.ScheduledFor.Format("2006-01-02T15:04:05Z07:00"),
		})
		fx.notify(notify.PayoutScheduled, g.ID, p.MembershipID, p.UserID, p.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "Payout scheduled", "group_id", groupID, "payout_id", p.ID, "membership_id", p.MembershipID)
	return p, nil
}

// loadPayout reads a payout and its group and refuses groups that are not running.
func loadPayout(ctx context.Context, repo storage.Repository, payoutID string) (*models.PayoutSchedule, *models.Group, []*models.Membership, error) {
	if payoutID == "" {
		return nil, nil, nil, models.Errorf(models.KindValidation, "payout_id is required")
	}
	p, err := repo.GetPayout(ctx, payoutID)
	if err != nil {
		return nil, nil, nil, err
	}
	g, ms, err := loadGroup(ctx, repo, p.GroupID)
	if err != nil {
		return nil, nil, nil, err
	}
	if g.Status != models.GroupActive && g.Status != models.GroupPaused {
		return nil, nil, nil, models.Errorf(models.KindInvalidTransition, "This group is %s.", g.Status)
	}
	return p, g, ms, nil
}

// ApprovePayout records admin approval of a scheduled or pending payout.
func (e *Engine) ApprovePayout(ctx context.Context, actor models.Actor, payoutID string) (*models.PayoutSchedule, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var p *models.PayoutSchedule
	err := e.run(ctx, "approve_payout", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		var err error
		p, _, _, err = loadPayout(ctx, repo, payoutID)
		if err != nil {
			return err
		}
		from := p.Status
		if err := payout.Approve(p, actor.UserID, fx.now); err != nil {
			return err
		}
		if err := repo.UpdatePayout(ctx, p); err != nil {
			return err
		}
		details := transitionDetails(string(from), string(p.Status), "")
		details["group_id"] = p.GroupID
		fx.audit("payout.approve", "payout", p.ID, details)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SettlePayout disburses an approved payout. If the wallet call fails nothing changes
// and the payout stays approved, so the operator can retry. Settling the last unpaid
// seat completes the group.
func (e *Engine) SettlePayout(ctx context.Context, actor models.Actor, payoutID string) (*models.PayoutSchedule, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var p *models.PayoutSchedule
	err := e.run(ctx, "settle_payout", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		var (
			g   *models.Group
			ms  []*models.Membership
			err error
		)
		p, g, ms, err = loadPayout(ctx, repo, payoutID)
		if err != nil {
			return err
		}
		m := findMembership(ms, p.MembershipID)
		if m == nil {
			return models.Errorf(models.KindNotFound, "membership not found: %s", p.MembershipID)
		}
		if err := payout.Settle(p, fx.now); err != nil {
			return err
		}
		if err := repo.UpdatePayout(ctx, p); err != nil {
			return err
		}
		m.HasReceivedPayout = true
		m.UpdatedAt = fx.now
		if err := repo.UpdateMembership(ctx, m); err != nil {
			return err
		}

		if err := e.wallet.Disburse(ctx, m.PayoutAccount(), p.Amount, "payout:"+p.ID); err != nil {
			return err
		}
		fx.disbursed = append(fx.disbursed, p.Amount.InexactFloat64())
		details := transitionDetails(string(models.PayoutApproved), string(models.PayoutPaid), "")
		details["group_id"] = g.ID
		details["amount"] = p.Amount.StringFixed(2)
		fx.audit("payout.settle", "payout", p.ID, details)

		if g.Status == models.GroupActive && payout.AllPaid(ms) {
			if err := e.complete(ctx, repo, fx, g, ms); err != nil {
				return err
			}
			return repo.UpdateGroup(ctx, g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "Payout settled", "payout_id", p.ID, "amount", p.Amount.StringFixed(2))
	return p, nil
}

// SkipPayout closes an in-flight payout without paying. The member keeps its position
// and is retried according to the skip policy.
func (e *Engine) SkipPayout(ctx context.Context, actor models.Actor, payoutID, reason string) (*models.PayoutSchedule, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var p *models.PayoutSchedule
	err := e.run(ctx, "skip_payout", actor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		var err error
		p, _, _, err = loadPayout(ctx, repo, payoutID)
		if err != nil {
			return err
		}
		from := p.Status
		if err := payout.Skip(p, reason, fx.now); err != nil {
			return err
		}
		if err := repo.UpdatePayout(ctx, p); err != nil {
			return err
		}
		details := transitionDetails(string(from), string(p.Status), reason)
		details["group_id"] = p.GroupID
		details["skip_policy"] = string(e.queue.SkipPolicy())
		fx.audit("payout.skip", "payout", p.ID, details)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PromoteDuePayouts moves scheduled payouts of active groups whose time has come to
// pending_approval.
func (e *Engine) PromoteDuePayouts(ctx context.Context) (int, error) {
	promoted := 0
	err := e.run(ctx, "promote_payouts", models.SystemActor, func(ctx context.Context, repo storage.Repository, fx *effects) error {
		now := fx.now
		due, err := repo.ListPayouts(ctx, storage.PayoutFilter{
			Statuses: []models.PayoutStatus{models.PayoutScheduled},
			DueBy:    &now,
		})
		if err != nil {
			return err
		}
		active := map[string]bool{}
		for _, p := range due {
			ok, seen := active[p.GroupID]
			if !seen {
				g, err := repo.GetGroup(ctx, p.GroupID)
				if err != nil {
					return err
				}
				ok = g.Status == models.GroupActive
				active[p.GroupID] = ok
			}
			if !ok || !payout.Promote(p, now) {
				continue
			}
			if err := repo.UpdatePayout(ctx, p); err != nil {
				return err
			}
			details := transitionDetails(string(models.PayoutScheduled), string(models.PayoutPendingApproval), "")
			details["group_id"] = p.GroupID
			fx.audit("payout.promote", "payout", p.ID, details)
			promoted++
		}
		return nil
	})
	return promoted, err
}

// AuditTrail returns the audit entries recorded against one entity. Staff only.
func (e *Engine) AuditTrail(ctx context.Context, actor models.Actor, entityType, entityID string) ([]*models.AuditEntry, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleSuperAdmin, models.RoleSupport); err != nil {
		return nil, err
	}
	if entityType == "" || entityID == "" {
		return nil, models.Errorf(models.KindValidation, "entity_type and entity_id are required")
	}
	return e.store.ListAudit(ctx, entityType, entityID)
}

// Members returns the group's seats in queue order.
func (e *Engine) Members(ctx context.Context, actor models.Actor, groupID string) ([]*models.Membership, error) {
	var seats []*models.Membership
	err := e.view(ctx, func(ctx context.Context, repo storage.Repository) error {
		_, ms, err := loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if err := requireGroupAccess(actor, ms); err != nil {
			return err
		}
		seats = ledger.NonTerminal(ms)
		return nil
	})
	return seats, err
}
