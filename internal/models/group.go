package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GroupType controls how join requests are admitted.
type GroupType string

const (
	GroupTypePublic  GroupType = "public"
	GroupTypeRequest GroupType = "request"
	GroupTypePaid    GroupType = "paid"
)

// Valid reports whether t is a known group type.
func (t GroupType) Valid() bool {
	return t == GroupTypePublic || t == GroupTypeRequest || t == GroupTypePaid
}

// GroupStatus is the lifecycle state of a group.
type GroupStatus string

const (
	GroupDraft     GroupStatus = "draft"
	GroupOpen      GroupStatus = "open"
	GroupActive    GroupStatus = "active"
	GroupPaused    GroupStatus = "paused"
	GroupCompleted GroupStatus = "completed"
	GroupCancelled GroupStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s GroupStatus) Terminal() bool {
	return s == GroupCompleted || s == GroupCancelled
}

// Group represents a rotating savings circle.
// Groups are never deleted; cancellation and completion are statuses.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	Name        string
	Description string

	// DailyAmount is what each active member owes per cycle.
	DailyAmount decimal.Decimal

	// GroupSize is the fixed seat capacity of the rotation.
	GroupSize int

	// DaysPerTurn is how many cycles a single member's turn spans.
	DaysPerTurn int

	// PayoutAmount is disbursed to the member whose turn it is.
	PayoutAmount decimal.Decimal

	Type   GroupType
	Status GroupStatus

	// CanExitAfterStart allows members who have not been paid to leave an active group.
	CanExitAfterStart bool

	// CurrentCycle is the zero-based index of the most recently opened cycle.
	// It is -1 until the group is activated.
	CurrentCycle int

	// CurrentCycleStartedAt is the due date of the most recently opened cycle.
	CurrentCycleStartedAt *time.Time

	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
	PauseReason string
}

// PoolAccount is the wallet account that receives contributions for this group.
func (g *Group) PoolAccount() string {
	return "group:" + g.ID
}

// CurrentTurn returns the zero-based turn index of the current cycle.
func (g *Group) CurrentTurn() int {
	if g.CurrentCycle < 0 || g.DaysPerTurn <= 0 {
		return 0
	}
	return g.CurrentCycle / g.DaysPerTurn
}

// GroupPatch lists the fields an admin may change on an existing group.
// Nil fields are left untouched.
type GroupPatch struct {
	Name              *string
	Description       *string
	GroupSize         *int
	DailyAmount       *decimal.Decimal
	DaysPerTurn       *int
	PayoutAmount      *decimal.Decimal
	Type              *GroupType
	CanExitAfterStart *bool
}

// ImmutableFields returns the names of rotation parameters touched by the patch.
func (p GroupPatch) ImmutableFields() []string {
	var fields []string
	if p.GroupSize != nil {
		fields = append(fields, "group_size")
	}
	if p.DailyAmount != nil {
		fields = append(fields, "daily_amount")
	}
	if p.DaysPerTurn != nil {
		fields = append(fields, "days_per_turn")
	}
	if p.PayoutAmount != nil {
		fields = append(fields, "payout_amount")
	}
	return fields
}

// Apply copies the non-nil patch fields onto g.
func (p GroupPatch) Apply(g *Group) {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.Description != nil {
		g.Description = *p.Description
	}
	if p.GroupSize != nil {
		g.GroupSize = *p.GroupSize
	}
	if p.DailyAmount != nil {
		g.DailyAmount = *p.DailyAmount
	}
	if p.DaysPerTurn != nil {
		g.DaysPerTurn = *p.DaysPerTurn
	}
	if p.PayoutAmount != nil {
		g.PayoutAmount = *p.PayoutAmount
	}
	if p.Type != nil {
		g.Type = *p.Type
	}
	if p.CanExitAfterStart != nil {
		g.CanExitAfterStart = *p.CanExitAfterStart
	}
}
