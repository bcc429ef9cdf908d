// Package notify emits declarative trigger events for the external notification service.
// Delivery, templating and opt-out handling happen elsewhere.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Kind names a trigger point.
type Kind string

const (
	ContributionDue Kind = "contribution_due"
	GraceExpiring   Kind = "grace_expiring"
	PayoutScheduled Kind = "payout_scheduled"
)

// Event is one trigger fact.
type Event struct {
	Kind         Kind      `json:"kind"`
	GroupID      string    `json:"group_id"`
	MembershipID string    `json:"membership_id"`
	UserID       string    `json:"user_id"`
	ReferenceID  string    `json:"reference_id"`
	At           time.Time `json:"at"`
}

// Notifier receives trigger events. Implementations must not block for long; the engine
// calls Notify after its transaction commits and only logs failures.
type Notifier interface {
	Notify(ctx context.Context, events ...Event) error
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier backed by logger, or slog.Default when nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, events ...Event) error {
	for _, e := range events {
		n.logger.InfoContext(ctx, "Notification triggered",
			"kind", e.Kind,
			"group_id", e.GroupID,
			"membership_id", e.MembershipID,
			"user_id", e.UserID,
			"reference_id", e.ReferenceID,
		)
	}
	return nil
}

// Multi fans events out to several notifiers. Every notifier is called even when an
// earlier one fails.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, events ...Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(context.Context, ...Event) error { return nil }
