package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/susu/internal/contribution"
	"github.com/mmynk/susu/internal/eligibility"
	"github.com/mmynk/susu/internal/models"
)

// Group is the wire form of a group.
type Group struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Description           string          `json:"description,omitempty"`
	DailyAmount           decimal.Decimal `json:"daily_amount"`
	GroupSize             int             `json:"group_size"`
	DaysPerTurn           int             `json:"days_per_turn"`
	PayoutAmount          decimal.Decimal `json:"payout_amount"`
	Type                  string          `json:"type"`
	Status                string          `json:"status"`
	CanExitAfterStart     bool            `json:"can_exit_after_start"`
	CurrentCycle          int             `json:"current_cycle"`
	CurrentCycleStartedAt *time.Time      `json:"current_cycle_started_at,omitempty"`
	PauseReason           string          `json:"pause_reason,omitempty"`
	CreatedBy             string          `json:"created_by"`
	CreatedAt             time.Time       `json:"created_at"`
	StartedAt             *time.Time      `json:"started_at,omitempty"`
	EndedAt               *time.Time      `json:"ended_at,omitempty"`
}

func toGroup(g *models.Group) *Group {
	return &Group{
		ID:                    g.ID,
		Name:                  g.Name,
		Description:           g.Description,
		DailyAmount:           g.DailyAmount,
		GroupSize:             g.GroupSize,
		DaysPerTurn:           g.DaysPerTurn,
		PayoutAmount:          g.PayoutAmount,
		Type:                  string(g.Type),
		Status:                string(g.Status),
		CanExitAfterStart:     g.CanExitAfterStart,
		CurrentCycle:          g.CurrentCycle,
		CurrentCycleStartedAt: g.CurrentCycleStartedAt,
		PauseReason:           g.PauseReason,
		CreatedBy:             g.CreatedBy,
		CreatedAt:             g.CreatedAt,
		StartedAt:             g.StartedAt,
		EndedAt:               g.EndedAt,
	}
}

// Membership is the wire form of a seat.
type Membership struct {
	ID                string     `json:"id"`
	GroupID           string     `json:"group_id"`
	UserID            string     `json:"user_id"`
	Status            string     `json:"status"`
	TurnPosition      int        `json:"turn_position"`
	HasReceivedPayout bool       `json:"has_received_payout"`
	StatusReason      string     `json:"status_reason,omitempty"`
	JoinedAt          time.Time  `json:"joined_at"`
	LeftAt            *time.Time `json:"left_at,omitempty"`
}

func toMembership(m *models.Membership) *Membership {
	if m == nil {
		return nil
	}
	return &Membership{
		ID:                m.ID,
		GroupID:           m.GroupID,
		UserID:            m.UserID,
		Status:            string(m.Status),
		TurnPosition:      m.TurnPosition,
		HasReceivedPayout: m.HasReceivedPayout,
		StatusReason:      m.StatusReason,
		JoinedAt:          m.JoinedAt,
		LeftAt:            m.LeftAt,
	}
}

func toMemberships(ms []*models.Membership) []*Membership {
	out := make([]*Membership, len(ms))
	for i, m := range ms {
		out[i] = toMembership(m)
	}
	return out
}

// Contribution is the wire form of a stored obligation.
type Contribution struct {
	ID                string           `json:"id"`
	MembershipID      string           `json:"membership_id"`
	GroupID           string           `json:"group_id"`
	UserID            string           `json:"user_id"`
	Cycle             int              `json:"cycle"`
	DueDate           time.Time        `json:"due_date"`
	Amount            decimal.Decimal  `json:"amount"`
	Status            string           `json:"status"`
	GracePeriodEndsAt time.Time        `json:"grace_period_ends_at"`
	LateFee           decimal.Decimal  `json:"late_fee"`
	PaidAmount        *decimal.Decimal `json:"paid_amount,omitempty"`
	PaidAt            *time.Time       `json:"paid_at,omitempty"`
	PaymentMethod     string           `json:"payment_method,omitempty"`
}

func toContribution(cs *models.ContributionSchedule) *Contribution {
	return &Contribution{
		ID:                cs.ID,
		MembershipID:      cs.MembershipID,
		GroupID:           cs.GroupID,
		UserID:            cs.UserID,
		Cycle:             cs.Cycle,
		DueDate:           cs.DueDate,
		Amount:            cs.Amount,
		Status:            string(cs.Status),
		GracePeriodEndsAt: cs.GracePeriodEndsAt,
		LateFee:           cs.LateFee,
		PaidAmount:        cs.PaidAmount,
		PaidAt:            cs.PaidAt,
		PaymentMethod:     cs.PaymentMethod,
	}
}

// Obligation is one outstanding contribution as assessed at query time.
type Obligation struct {
	ScheduleID        string          `json:"schedule_id"`
	MembershipID      string          `json:"membership_id"`
	GroupID           string          `json:"group_id"`
	UserID            string          `json:"user_id"`
	Cycle             int             `json:"cycle"`
	DueDate           time.Time       `json:"due_date"`
	GracePeriodEndsAt time.Time       `json:"grace_period_ends_at"`
	Amount            decimal.Decimal `json:"amount"`
	LateFee           decimal.Decimal `json:"late_fee"`
	TotalDue          decimal.Decimal `json:"total_due"`
	Status            string          `json:"status"`
	InGrace           bool            `json:"in_grace"`
}

// Summary is a list of obligations with totals.
type Summary struct {
	Obligations []*Obligation   `json:"obligations"`
	Count       int             `json:"count"`
	Amount      decimal.Decimal `json:"amount"`
	LateFees    decimal.Decimal `json:"late_fees"`
	TotalDue    decimal.Decimal `json:"total_due"`
}

func toSummary(sum contribution.Summary) *Summary {
	out := &Summary{
		Obligations: make([]*Obligation, len(sum.Lines)),
		Count:       sum.Count(),
		Amount:      sum.Amount,
		LateFees:    sum.Fees,
		TotalDue:    sum.Total,
	}
	for i, l := range sum.Lines {
		out.Obligations[i] = &Obligation{
			ScheduleID:        l.ScheduleID,
			MembershipID:      l.MembershipID,
			GroupID:           l.GroupID,
			UserID:            l.UserID,
			Cycle:             l.Cycle,
			DueDate:           l.DueDate,
			GracePeriodEndsAt: l.GracePeriodEndsAt,
			Amount:            l.Amount,
			LateFee:           l.Fee,
			TotalDue:          l.Total,
			Status:            string(l.Status),
			InGrace:           l.InGrace,
		}
	}
	return out
}

// Payout is the wire form of a payout queue entry.
type Payout struct {
	ID           string          `json:"id"`
	MembershipID string          `json:"membership_id"`
	GroupID      string          `json:"group_id"`
	UserID       string          `json:"user_id"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	Turn         int             `json:"turn"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	ApprovedBy   string          `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	SkippedAt    *time.Time      `json:"skipped_at,omitempty"`
	SkipReason   string          `json:"skip_reason,omitempty"`
}

func toPayout(p *models.PayoutSchedule) *Payout {
	return &Payout{
		ID:           p.ID,
		MembershipID: p.MembershipID,
		GroupID:      p.GroupID,
		UserID:       p.UserID,
		Amount:       p.Amount,
		Status:       string(p.Status),
		Turn:         p.Turn,
		ScheduledFor: p.ScheduledFor,
		ApprovedBy:   p.ApprovedBy,
		ApprovedAt:   p.ApprovedAt,
		PaidAt:       p.PaidAt,
		SkippedAt:    p.SkippedAt,
		SkipReason:   p.SkipReason,
	}
}

// AuditEntry is the wire form of an audit record.
type AuditEntry struct {
	ID         string            `json:"id"`
	ActorID    string            `json:"actor_id"`
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Details    map[string]string `json:"details,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Decision is the outcome of an eligibility check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func toDecision(d eligibility.Decision) *Decision {
	return &Decision{Allowed: d.Allowed, Reason: string(d.Reason), Message: d.Message}
}

// Requests and responses.

type CreateGroupRequest struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	DailyAmount       decimal.Decimal `json:"daily_amount"`
	GroupSize         int             `json:"group_size"`
	DaysPerTurn       int             `json:"days_per_turn"`
	PayoutAmount      decimal.Decimal `json:"payout_amount"`
	Type              string          `json:"type"`
	CanExitAfterStart bool            `json:"can_exit_after_start"`
}

type GroupRequest struct {
	GroupID string `json:"group_id"`
}

type GroupTransitionRequest struct {
	GroupID string `json:"group_id"`
	Reason  string `json:"reason,omitempty"`
}

type GroupResponse struct {
	Group *Group `json:"group"`
}

type GetGroupResponse struct {
	Group   *Group        `json:"group"`
	Members []*Membership `json:"members"`
}

type ListGroupsRequest struct {
	Statuses []string `json:"statuses,omitempty"`
}

type ListGroupsResponse struct {
	Groups []*Group `json:"groups"`
}

type UpdateGroupRequest struct {
	GroupID           string           `json:"group_id"`
	Name              *string          `json:"name,omitempty"`
	Description       *string          `json:"description,omitempty"`
	GroupSize         *int             `json:"group_size,omitempty"`
	DailyAmount       *decimal.Decimal `json:"daily_amount,omitempty"`
	DaysPerTurn       *int             `json:"days_per_turn,omitempty"`
	PayoutAmount      *decimal.Decimal `json:"payout_amount,omitempty"`
	Type              *string          `json:"type,omitempty"`
	CanExitAfterStart *bool            `json:"can_exit_after_start,omitempty"`
}

type MembershipRequest struct {
	MembershipID string `json:"membership_id"`
	Reason       string `json:"reason,omitempty"`
}

type MembershipResponse struct {
	Membership *Membership `json:"membership"`
}

type MembersResponse struct {
	Members []*Membership `json:"members"`
}

type BanUserRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

type ReorderQueueRequest struct {
	GroupID       string   `json:"group_id"`
	MembershipIDs []string `json:"membership_ids"`
}

type CheckLeaveResponse struct {
	Decision *Decision `json:"decision"`
}

type OpenCycleResponse struct {
	Opened bool `json:"opened"`
}

type MarkContributionPaidRequest struct {
	ScheduleID string          `json:"schedule_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
}

type WaiveContributionRequest struct {
	ScheduleID string `json:"schedule_id"`
	Reason     string `json:"reason"`
}

type ContributionResponse struct {
	Contribution *Contribution `json:"contribution"`
}

type DueTodayRequest struct {
	UserID  string `json:"user_id,omitempty"`
	GroupID string `json:"group_id,omitempty"`
}

type ArrearsRequest struct {
	GroupID      string `json:"group_id,omitempty"`
	MembershipID string `json:"membership_id,omitempty"`
}

type SummaryResponse struct {
	Summary *Summary `json:"summary"`
}

type StreakResponse struct {
	MembershipID string `json:"membership_id"`
	Streak       int    `json:"streak"`
}

type CurrentTurnResponse struct {
	// Membership is absent once every member has been paid.
	Membership *Membership `json:"membership,omitempty"`
}

type PayoutRequest struct {
	PayoutID string `json:"payout_id"`
	Reason   string `json:"reason,omitempty"`
}

type PayoutResponse struct {
	Payout *Payout `json:"payout"`
}

type ListPayoutsResponse struct {
	Payouts []*Payout `json:"payouts"`
}

type AuditTrailRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

type AuditTrailResponse struct {
	Entries []*AuditEntry `json:"entries"`
}
