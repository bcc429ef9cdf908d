// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"time"

	"github.com/mmynk/susu/internal/models"
)

// ContributionFilter narrows ListContributions. Zero fields do not filter.
type ContributionFilter struct {
	GroupID      string
	MembershipID string
	UserID       string

	// Unsettled keeps only obligations whose stored status is pending.
	Unsettled bool

	// DueFrom and DueTo bound the due date as [DueFrom, DueTo).
	DueFrom *time.Time
	DueTo   *time.Time
}

// PayoutFilter narrows ListPayouts. Zero fields do not filter.
type PayoutFilter struct {
	GroupID      string
	MembershipID string
	Statuses     []models.PayoutStatus

	// DueBy keeps payouts scheduled for at or before this instant.
	DueBy *time.Time
}

// Repository defines the row-level operations the engine needs.
// Lookups of missing rows return a models.Error of kind NotFound.
type Repository interface {
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	UpdateGroup(ctx context.Context, group *models.Group) error
	ListGroups(ctx context.Context, statuses ...models.GroupStatus) ([]*models.Group, error)

	CreateMembership(ctx context.Context, m *models.Membership) error
	GetMembership(ctx context.Context, membershipID string) (*models.Membership, error)
	UpdateMembership(ctx context.Context, m *models.Membership) error
	// ListMemberships returns every membership of a group, terminal ones included,
	// ordered by turn position.
	ListMemberships(ctx context.Context, groupID string) ([]*models.Membership, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]*models.Membership, error)
	// ReassignPositions sets the turn positions of a group's memberships in one step so
	// a permutation never trips the uniqueness constraint halfway through.
	ReassignPositions(ctx context.Context, groupID string, positions map[string]int) error

	CreateContributions(ctx context.Context, schedules []*models.ContributionSchedule) error
	GetContribution(ctx context.Context, scheduleID string) (*models.ContributionSchedule, error)
	UpdateContribution(ctx context.Context, cs *models.ContributionSchedule) error
	ListContributions(ctx context.Context, filter ContributionFilter) ([]*models.ContributionSchedule, error)

	CreatePayout(ctx context.Context, p *models.PayoutSchedule) error
	GetPayout(ctx context.Context, payoutID string) (*models.PayoutSchedule, error)
	UpdatePayout(ctx context.Context, p *models.PayoutSchedule) error
	ListPayouts(ctx context.Context, filter PayoutFilter) ([]*models.PayoutSchedule, error)
}

// AuditLog persists audit entries outside the primary transaction.
type AuditLog interface {
	InsertAudit(ctx context.Context, entry *models.AuditEntry) error
	ListAudit(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error)
}

// Store defines the interface for engine storage.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the engine.
type Store interface {
	Repository
	AuditLog

	// InTx runs fn inside one serializable transaction. If fn returns an error the
	// transaction is rolled back and nothing fn wrote is visible.
	InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	// Close releases any resources held by the store.
	Close() error
}
