// Package lifecycle holds the group state machine:
//
//	draft → open → active ⇄ paused
//	active → completed
//	any non-terminal → cancelled
package lifecycle

import (
	"strings"

	"github.com/mmynk/susu/internal/models"
)

var transitions = map[models.GroupStatus][]models.GroupStatus{
	models.GroupDraft:  {models.GroupOpen, models.GroupCancelled},
	models.GroupOpen:   {models.GroupActive, models.GroupCancelled},
	models.GroupActive: {models.GroupPaused, models.GroupCompleted, models.GroupCancelled},
	models.GroupPaused: {models.GroupActive, models.GroupCancelled},
}

// Allowed reports whether a group may move from one status to another.
func Allowed(from, to models.GroupStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Check returns InvalidTransition unless from → to is in the table.
func Check(from, to models.GroupStatus) error {
	if Allowed(from, to) {
		return nil
	}
	return models.Errorf(models.KindInvalidTransition, "A %s group cannot be moved to %s.", from, to)
}

// Transition validates and applies a status change.
func Transition(g *models.Group, to models.GroupStatus) error {
	if err := Check(g.Status, to); err != nil {
		return err
	}
	g.Status = to
	return nil
}

// RotationLocked reports whether the rotation parameters are frozen. They freeze at
// activation and stay frozen while paused so a pause cannot be used to rewrite the deal.
func RotationLocked(s models.GroupStatus) bool {
	return s == models.GroupActive || s == models.GroupPaused
}

// CheckPatch decides whether patch may be applied to g given its status and members.
func CheckPatch(g *models.Group, patch models.GroupPatch, nonTerminalMembers int) error {
	if g.Status.Terminal() {
		return models.Errorf(models.KindInvalidTransition, "A %s group can no longer be edited.", g.Status)
	}
	if fields := patch.ImmutableFields(); len(fields) > 0 && RotationLocked(g.Status) {
		return models.Errorf(models.KindImmutableFieldViolation,
			"%s cannot change once the group has started.", strings.Join(fields, ", "))
	}
	next := *g
	patch.Apply(&next)
	if err := Validate(&next); err != nil {
		return err
	}
	if next.GroupSize < nonTerminalMembers {
		return models.Errorf(models.KindValidation,
			"group_size %d is smaller than the %d members already in the group.", next.GroupSize, nonTerminalMembers)
	}
	return nil
}

// Validate checks a group's policy parameters.
func Validate(g *models.Group) error {
	switch {
	case strings.TrimSpace(g.Name) == "":
		return models.Errorf(models.KindValidation, "Group name is required.")
	case !g.DailyAmount.IsPositive():
		return models.Errorf(models.KindValidation, "daily_amount must be greater than zero.")
	case !g.PayoutAmount.IsPositive():
		return models.Errorf(models.KindValidation, "payout_amount must be greater than zero.")
	case g.GroupSize < 2:
		return models.Errorf(models.KindValidation, "group_size must be at least 2.")
	case g.DaysPerTurn < 1:
		return models.Errorf(models.KindValidation, "days_per_turn must be at least 1.")
	case !g.Type.Valid():
		return models.Errorf(models.KindValidation, "Unknown group type %q.", g.Type)
	}
	return nil
}
