// Package ledger owns turn positions and membership status transitions.
//
// Every function here is pure: it takes the current rows for one group and returns the
// rows that must change. Persisting them atomically is the caller's job.
package ledger

import (
	"sort"

	"github.com/mmynk/susu/internal/models"
)

var transitions = map[models.MembershipStatus][]models.MembershipStatus{
	models.MembershipPending:   {models.MembershipApproved, models.MembershipRemoved, models.MembershipBanned},
	models.MembershipApproved:  {models.MembershipActive, models.MembershipRemoved, models.MembershipBanned},
	models.MembershipActive:    {models.MembershipSuspended, models.MembershipRemoved, models.MembershipBanned, models.MembershipCompleted},
	models.MembershipSuspended: {models.MembershipActive, models.MembershipRemoved, models.MembershipBanned, models.MembershipCompleted},
}

// CanTransition reports whether a membership may move from one status to another.
func CanTransition(from, to models.MembershipStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a status change to m.
func Transition(m *models.Membership, to models.MembershipStatus) error {
	if !CanTransition(m.Status, to) {
		return models.Errorf(models.KindInvalidTransition,
			"Membership cannot move from %s to %s.", m.Status, to)
	}
	m.Status = to
	return nil
}

// NonTerminal returns the memberships still in the rotation, ordered by turn position.
func NonTerminal(memberships []*models.Membership) []*models.Membership {
	out := make([]*models.Membership, 0, len(memberships))
	for _, m := range memberships {
		if !m.Status.Terminal() {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TurnPosition < out[j].TurnPosition
	})
	return out
}

// FindForUser returns the user's non-terminal membership in the set, if any.
func FindForUser(memberships []*models.Membership, userID string) *models.Membership {
	for _, m := range memberships {
		if m.UserID == userID && !m.Status.Terminal() {
			return m
		}
	}
	return nil
}

// InitialStatus is the status a new join request starts in. Only request groups need
// an admin to approve the seat.
func InitialStatus(g *models.Group) models.MembershipStatus {
	if g.Type == models.GroupTypeRequest {
		return models.MembershipPending
	}
	return models.MembershipApproved
}

// CheckJoin decides whether userID may take a seat in g. Seats can be taken while the
// group is being drafted or is open; capacity is checked first so a group that filled up
// and started reports GroupFull.
func CheckJoin(g *models.Group, memberships []*models.Membership, userID string) error {
	if FindForUser(memberships, userID) != nil {
		return models.Errorf(models.KindAlreadyMember, "You are already a member of this group.")
	}
	if taken := len(NonTerminal(memberships)); taken >= g.GroupSize {
		return models.Errorf(models.KindGroupFull,
			"This group is full (%d of %d seats taken).", taken, g.GroupSize)
	}
	if !AcceptsMembers(g.Status) {
		return models.Errorf(models.KindInvalidTransition,
			"This group is %s and is not accepting members.", g.Status)
	}
	return nil
}

// AcceptsMembers reports whether seats may be taken or approved in a group with status s.
func AcceptsMembers(s models.GroupStatus) bool {
	return s == models.GroupDraft || s == models.GroupOpen
}

// NextPosition returns the turn position for the next joiner: FIFO by join order.
func NextPosition(memberships []*models.Membership) int {
	highest := 0
	for _, m := range NonTerminal(memberships) {
		if m.TurnPosition > highest {
			highest = m.TurnPosition
		}
	}
	return highest + 1
}

// Compact closes gaps left by memberships that became terminal, preserving order.
// It returns only the memberships whose position changed.
func Compact(memberships []*models.Membership) []*models.Membership {
	var changed []*models.Membership
	for i, m := range NonTerminal(memberships) {
		if m.TurnPosition != i+1 {
			m.TurnPosition = i + 1
			changed = append(changed, m)
		}
	}
	return changed
}

// PlanReorder maps each membership ID to its new 1-based position.
// The ID list must be exactly the group's non-terminal memberships: no partial
// reorders, no duplicates, no foreign IDs. Nothing is mutated.
func PlanReorder(memberships []*models.Membership, orderedIDs []string) (map[string]int, error) {
	current := NonTerminal(memberships)
	if len(orderedIDs) != len(current) {
		return nil, models.Errorf(models.KindValidation,
			"Reorder must list all %d members exactly once, got %d.", len(current), len(orderedIDs))
	}

	known := make(map[string]bool, len(current))
	for _, m := range current {
		known[m.ID] = true
	}

	plan := make(map[string]int, len(orderedIDs))
	for i, id := range orderedIDs {
		if id == "" {
			return nil, models.Errorf(models.KindValidation, "Reorder contains an empty membership id.")
		}
		if !known[id] {
			return nil, models.Errorf(models.KindValidation, "Membership %s is not part of this group's queue.", id)
		}
		if _, dup := plan[id]; dup {
			return nil, models.Errorf(models.KindValidation, "Membership %s appears more than once.", id)
		}
		plan[id] = i + 1
	}
	return plan, nil
}

// CheckPositions verifies the non-terminal positions are exactly {1..N}.
func CheckPositions(memberships []*models.Membership) error {
	for i, m := range NonTerminal(memberships) {
		if m.TurnPosition != i+1 {
			return models.Errorf(models.KindValidation,
				"Turn positions are not contiguous: membership %s has %d, expected %d.",
				m.ID, m.TurnPosition, i+1)
		}
	}
	return nil
}
