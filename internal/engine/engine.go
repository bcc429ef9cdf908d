// Package engine is the single entry point that mutates group state.
//
// Every operation re-reads the rows it needs, consults the pure rule packages
// (ledger, contribution, payout, eligibility, lifecycle) and writes the result inside one
// store transaction. Wallet calls happen inside that transaction so a failed credit or
// disbursement leaves nothing half-applied. Audit entries and notifications are emitted
// only after commit; their failures are logged and never fail the operation.
package engine

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/mmynk/susu/internal/clock"
	"github.com/mmynk/susu/internal/contribution"
	"github.com/mmynk/susu/internal/ledger"
	"github.com/mmynk/susu/internal/metrics"
	"github.com/mmynk/susu/internal/models"
	"github.com/mmynk/susu/internal/notify"
	"github.com/mmynk/susu/internal/payout"
	"github.com/mmynk/susu/internal/storage"
	"github.com/mmynk/susu/internal/wallet"
)

var adminRoles = []models.Role{models.RoleAdmin, models.RoleSuperAdmin}

// Options wires an Engine. Store, Scheduler, Queue and Wallet are required.
type Options struct {
	Store     storage.Store
	Scheduler *contribution.Scheduler
	Queue     *payout.Queue
	Wallet    wallet.Ledger
	Notifier  notify.Notifier
	Clock     clock.Clock
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// GraceReminderLead is how long before a grace period ends the reminder is sent.
	GraceReminderLead time.Duration
}

// Engine runs the rotating group operations.
type Engine struct {
	store     storage.Store
	scheduler *contribution.Scheduler
	queue     *payout.Queue
	wallet    wallet.Ledger
	notifier  notify.Notifier
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger
	lead      time.Duration
}

// New creates an Engine.
func New(opts Options) *Engine {
	e := &Engine{
		store:     opts.Store,
		scheduler: opts.Scheduler,
		queue:     opts.Queue,
		wallet:    opts.Wallet,
		notifier:  opts.Notifier,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		lead:      opts.GraceReminderLead,
	}
	if e.notifier == nil {
		e.notifier = notify.Discard{}
	}
	if e.clock == nil {
		e.clock = clock.System{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// effects collects what an operation must emit once its transaction commits.
type effects struct {
	now    time.Time
	actor  models.Actor
	audits []*models.AuditEntry
	events []notify.Event

	credited  []float64
	disbursed []float64
	cycles    int
}

func (fx *effects) audit(action, entityType, entityID string, details map[string]string) {
	fx.audits = append(fx.audits, &models.AuditEntry{
		ActorID:    fx.actor.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		CreatedAt:  fx.now,
	})
}

func (fx *effects) notify(kind notify.Kind, groupID, membershipID, userID, refID string) {
	fx.events = append(fx.events, notify.Event{
		Kind:         kind,
		GroupID:      groupID,
		MembershipID: membershipID,
		UserID:       userID,
		ReferenceID:  refID,
		At:           fx.now,
	})
}

// run executes fn in one transaction and emits its side effects after commit.
func (e *Engine) run(ctx context.Context, op string, actor models.Actor, fn func(ctx context.Context, repo storage.Repository, fx *effects) error) error {
	fx := &effects{now: e.clock.Now(), actor: actor}
	err := e.store.InTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		return fn(ctx, repo, fx)
	})

	outcome := "ok"
	if err != nil {
		outcome = "internal"
		if kind := models.KindOf(err); kind != "" {
			outcome = string(kind)
		}
	}
	e.metrics.Operation(op, outcome)
	if err != nil {
		if outcome == "internal" {
			e.logger.ErrorContext(ctx, "Operation failed", "operation", op, "actor", actor.UserID, "error", err)
		} else {
			e.logger.InfoContext(ctx, "Operation rejected", "operation", op, "actor", actor.UserID, "kind", outcome)
		}
		return err
	}

	for _, a := range fx.credited {
		e.metrics.Credited(a)
	}
	for _, a := range fx.disbursed {
		e.metrics.Disbursed(a)
	}
	for i := 0; i < fx.cycles; i++ {
		e.metrics.CycleOpened()
	}

	for _, entry := range fx.audits {
		if err := e.store.InsertAudit(ctx, entry); err != nil {
			e.metrics.AuditFailed()
			e.logger.WarnContext(ctx, "Failed to record audit entry",
				"action", entry.Action, "entity_id", entry.EntityID, "error", err)
		}
	}
	if len(fx.events) > 0 {
		if err := e.notifier.Notify(ctx, fx.events...); err != nil {
			e.metrics.NotifyFailed()
			e.logger.WarnContext(ctx, "Failed to emit notifications", "count", len(fx.events), "error", err)
		}
	}
	return nil
}

// view runs a read-only function in a transaction so it sees one consistent snapshot.
func (e *Engine) view(ctx context.Context, fn func(ctx context.Context, repo storage.Repository) error) error {
	return e.store.InTx(ctx, fn)
}

// requireRole fails with Forbidden unless the actor holds one of roles.
func requireRole(actor models.Actor, roles ...models.Role) error {
	if actor.UserID == "" {
		return models.Errorf(models.KindForbidden, "Authentication is required.")
	}
	if slices.Contains(roles, actor.Role) {
		return nil
	}
	return models.Errorf(models.KindForbidden, "This action requires one of the roles %v.", roles)
}

// requireAdmin is requireRole for the operations reserved to administrators.
func requireAdmin(actor models.Actor) error {
	return requireRole(actor, adminRoles...)
}

// requireGroupAccess lets staff read any group and members read their own.
func requireGroupAccess(actor models.Actor, memberships []*models.Membership) error {
	if actor.UserID == "" {
		return models.Errorf(models.KindForbidden, "Authentication is required.")
	}
	if actor.Role.IsStaff() {
		return nil
	}
	for _, m := range memberships {
		if m.UserID == actor.UserID {
			return nil
		}
	}
	return models.Errorf(models.KindForbidden, "Only members of this group can see this.")
}

// requireSelfOrStaff lets a user act on their own rows and staff act on anyone's.
func requireSelfOrStaff(actor models.Actor, userID string) error {
	if actor.UserID == "" {
		return models.Errorf(models.KindForbidden, "Authentication is required.")
	}
	if actor.UserID == userID || actor.Role.IsStaff() {
		return nil
	}
	return models.Errorf(models.KindForbidden, "You can only act on your own membership.")
}

// loadGroup reads a group together with all of its memberships.
func loadGroup(ctx context.Context, repo storage.Repository, groupID string) (*models.Group, []*models.Membership, error) {
	if groupID == "" {
		return nil, nil, models.Errorf(models.KindValidation, "group_id is required")
	}
	g, err := repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	ms, err := repo.ListMemberships(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	return g, ms, nil
}

// loadMembership reads a membership and its group.
func loadMembership(ctx context.Context, repo storage.Repository, membershipID string) (*models.Membership, *models.Group, []*models.Membership, error) {
	if membershipID == "" {
		return nil, nil, nil, models.Errorf(models.KindValidation, "membership_id is required")
	}
	m, err := repo.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, nil, nil, err
	}
	g, ms, err := loadGroup(ctx, repo, m.GroupID)
	if err != nil {
		return nil, nil, nil, err
	}
	// Return the instance from the group listing so edits are visible to rule checks.
	for _, other := range ms {
		if other.ID == m.ID {
			m = other
		}
	}
	return m, g, ms, nil
}

func findMembership(ms []*models.Membership, id string) *models.Membership {
	for _, m := range ms {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// compact closes turn-position gaps after a membership left the rotation.
func compact(ctx context.Context, repo storage.Repository, groupID string, ms []*models.Membership) error {
	changed := ledger.Compact(ms)
	if len(changed) == 0 {
		return nil
	}
	plan := make(map[string]int, len(changed))
	for _, m := range changed {
		plan[m.ID] = m.TurnPosition
	}
	return repo.ReassignPositions(ctx, groupID, plan)
}

func transitionDetails(from, to, reason string) map[string]string {
	d := map[string]string{"from": from, "to": to}
	if reason != "" {
		d["reason"] = reason
	}
	return d
}
