package payout

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/susu/internal/clock"
	"github.com/mmynk/susu/internal/models"
)

var cycleStart = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

func activeGroup() *models.Group {
	started := cycleStart
	return &models.Group{
		ID:                    "g1",
		Status:                models.GroupActive,
		DaysPerTurn:           5,
		PayoutAmount:          decimal.NewFromInt(300),
		CurrentCycle:          1,
		CurrentCycleStartedAt: &started,
	}
}

func members() []*models.Membership {
	return []*models.Membership{
		{ID: "m1", UserID: "u1", Status: models.MembershipActive, TurnPosition: 1},
		{ID: "m2", UserID: "u2", Status: models.MembershipActive, TurnPosition: 2},
		{ID: "m3", UserID: "u3", Status: models.MembershipActive, TurnPosition: 3},
	}
}

func newQueue(policy SkipPolicy) *Queue {
	return NewQueue(clock.MustCalendar("UTC", 24*time.Hour), policy)
}

func TestCurrentTurn(t *testing.T) {
	ms := members()
	assert.Equal(t, "m1", CurrentTurn(ms, nil).ID)

	ms[0].HasReceivedPayout = true
	assert.Equal(t, "m2", CurrentTurn(ms, nil).ID)

	paid := []*models.PayoutSchedule{{MembershipID: "m2", Status: models.PayoutPaid}}
	assert.Equal(t, "m3", CurrentTurn(ms, paid).ID)

	ms[2].Status = models.MembershipBanned
	assert.Nil(t, CurrentTurn(ms, paid))
}

func TestSchedule(t *testing.T) {
	q := newQueue(SkipRetryNextCycle)
	now := cycleStart.Add(2 * time.Hour)

	p, err := q.Schedule(activeGroup(), members(), nil, now)
	require.NoError(t, err)
	assert.Equal(t, "m1", p.MembershipID)
	assert.Equal(t, models.PayoutScheduled, p.Status)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, 0, p.Turn)
	// Turn 0 spans cycles 0-4; cycle 1 started at cycleStart so cycle 4 starts three days later.
	assert.Equal(t, cycleStart.AddDate(0, 0, 3), p.ScheduledFor)
}

func TestSchedule_ScenarioE_Duplicate(t *testing.T) {
	q := newQueue(SkipRetryNextCycle)
	existing := []*models.PayoutSchedule{{ID: "p1", MembershipID: "m1", Status: models.PayoutScheduled}}

	_, err := q.Schedule(activeGroup(), members(), existing, cycleStart)
	require.Error(t, err)
	assert.Equal(t, models.KindDuplicatePayout, models.KindOf(err))
}

func TestSchedule_NoEligibleMember(t *testing.T) {
	q := newQueue(SkipRetryNextCycle)
	ms := members()
	for _, m := range ms {
		m.HasReceivedPayout = true
	}
	_, err := q.Schedule(activeGroup(), ms, nil, cycleStart)
	assert.Equal(t, models.KindNoEligibleMember, models.KindOf(err))
}

func TestSchedule_RequiresActiveGroup(t *testing.T) {
	q := newQueue(SkipRetryNextCycle)
	g := activeGroup()
	g.Status = models.GroupPaused
	_, err := q.Schedule(g, members(), nil, cycleStart)
	assert.Equal(t, models.KindInvalidTransition, models.KindOf(err))
}

func TestSchedule_SkipPolicies(t *testing.T) {
	skippedAt := cycleStart.Add(time.Hour)
	skipped := []*models.PayoutSchedule{{ID: "p1", MembershipID: "m1", Status: models.PayoutSkipped, SkippedAt: &skippedAt}}
	now := cycleStart.Add(2 * time.Hour)

	_, err := newQueue(SkipRetryNextCycle).Schedule(activeGroup(), members(), skipped, now)
	assert.Equal(t, models.KindNoEligibleMember, models.KindOf(err))

	p, err := newQueue(SkipRetrySameCycle).Schedule(activeGroup(), members(), skipped, now)
	require.NoError(t, err)
	assert.Equal(t, "m1", p.MembershipID, "a skip never advances the queue")

	// Once the next cycle opens the skipped member is retried under the default policy.
	g := activeGroup()
	next := cycleStart.AddDate(0, 0, 1)
	g.CurrentCycle, g.CurrentCycleStartedAt = 2, &next
	p, err = newQueue(SkipRetryNextCycle).Schedule(g, members(), skipped, next.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "m1", p.MembershipID)
}

func TestPayoutTransitions(t *testing.T) {
	now := cycleStart
	p := &models.PayoutSchedule{Status: models.PayoutScheduled, ScheduledFor: now.Add(time.Hour)}

	err := Settle(p, now)
	assert.Equal(t, models.KindInvalidTransition, models.KindOf(err), "settle requires approval first")

	assert.False(t, Promote(p, now))
	assert.True(t, Promote(p, now.Add(time.Hour)))
	assert.Equal(t, models.PayoutPendingApproval, p.Status)

	require.NoError(t, Approve(p, "admin1", now))
	assert.Equal(t, "admin1", p.ApprovedBy)
	assert.Equal(t, models.KindInvalidTransition, models.KindOf(Approve(p, "admin1", now)))

	require.NoError(t, Settle(p, now))
	assert.Equal(t, models.PayoutPaid, p.Status)
	assert.Equal(t, models.KindInvalidTransition, models.KindOf(Skip(p, "late", now)))
}

func TestSkip(t *testing.T) {
	p := &models.PayoutSchedule{Status: models.PayoutApproved}
	require.NoError(t, Skip(p, "member in arrears", cycleStart))
	assert.Equal(t, models.PayoutSkipped, p.Status)
	assert.Equal(t, "member in arrears", p.SkipReason)
	require.NotNil(t, p.SkippedAt)
}

func TestAllPaid(t *testing.T) {
	ms := members()
	assert.False(t, AllPaid(ms))
	for _, m := range ms {
		m.HasReceivedPayout = true
	}
	assert.True(t, AllPaid(ms))
	assert.False(t, AllPaid(nil))
}

func TestParseSkipPolicy(t *testing.T) {
	p, err := ParseSkipPolicy("")
	require.NoError(t, err)
	assert.Equal(t, SkipRetryNextCycle, p)

	_, err = ParseSkipPolicy("never")
	require.Error(t, err)
}
