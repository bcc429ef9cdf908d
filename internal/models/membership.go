package models

import "time"

// MembershipStatus is the state of a user's seat in a group.
type MembershipStatus string

const (
	MembershipPending   MembershipStatus = "pending"
	MembershipApproved  MembershipStatus = "approved"
	MembershipActive    MembershipStatus = "active"
	MembershipSuspended MembershipStatus = "suspended"
	MembershipRemoved   MembershipStatus = "removed"
	MembershipBanned    MembershipStatus = "banned"
	MembershipCompleted MembershipStatus = "completed"
)

// Terminal reports whether the membership has left the rotation for good.
func (s MembershipStatus) Terminal() bool {
	return s == MembershipRemoved || s == MembershipBanned || s == MembershipCompleted
}

// Membership is one user's seat in one group.
type Membership struct {
	ID      string
	GroupID string
	UserID  string
	Status  MembershipStatus

	// TurnPosition is the 1-based payout order. Among non-terminal memberships of a
	// group the positions are exactly 1..N.
	TurnPosition int

	HasReceivedPayout bool

	// StatusReason records why the last admin transition happened (removal, ban, suspension).
	StatusReason string

	JoinedAt  time.Time
	UpdatedAt time.Time
	LeftAt    *time.Time
}

// PayoutAccount is the wallet account that receives this member's payout.
func (m *Membership) PayoutAccount() string {
	return "user:" + m.UserID
}
