package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/susu/internal/models"
	"github.com/mmynk/susu/internal/payout"
)

func TestReorderQueue_JoinOrderThenReorder(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	g, err := h.eng.CreateGroup(h.ctx, admin, groupInput(3))
	require.NoError(t, err)

	ms := h.join(g.ID, "u1", "u2", "u3")
	require.Equal(t, models.GroupDraft, h.group(g.ID).Status)
	for i, m := range ms {
		assert.Equal(t, i+1, m.TurnPosition)
	}

	seats, err := h.eng.ReorderQueue(h.ctx, admin, g.ID, []string{ms[2].ID, ms[0].ID, ms[1].ID})
	require.NoError(t, err)
	require.Len(t, seats, 3)
	assert.Equal(t, ms[2].ID, seats[0].ID)

	assert.Equal(t, 1, h.membership(ms[2].ID).TurnPosition)
	assert.Equal(t, 2, h.membership(ms[0].ID).TurnPosition)
	assert.Equal(t, 3, h.membership(ms[1].ID).TurnPosition)
	h.assertPositions(g.ID)
}

func TestReorderQueue_AllOrNothing(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	g := h.openGroup(groupInput(4))
	ms := h.join(g.ID, "u1", "u2", "u3")

	tests := []struct {
		name string
		ids  []string
	}{
		{"partial", []string{ms[1].ID, ms[0].ID}},
		{"duplicate", []string{ms[0].ID, ms[0].ID, ms[1].ID}},
		{"foreign", []string{ms[0].ID, ms[1].ID, "someone-else"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.eng.ReorderQueue(h.ctx, admin, g.ID, tt.ids)
			requireKind(t, err, models.KindValidation)
			for i, m := range ms {
				assert.Equal(t, i+1, h.membership(m.ID).TurnPosition)
			}
		})
	}
}

func TestReorderQueue_RejectedWhileActive(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	g, ms := h.activeGroup(groupInput(2))

	_, err := h.eng.ReorderQueue(h.ctx, admin, g.ID, []string{ms[1].ID, ms[0].ID})
	requireKind(t, err, models.KindInvalidTransition)

	_, err = h.eng.PauseGroup(h.ctx, admin, g.ID, "reshuffle")
	require.NoError(t, err)
	_, err = h.eng.ReorderQueue(h.ctx, admin, g.ID, []string{ms[1].ID, ms[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 1, h.membership(ms[1].ID).TurnPosition)
}

func TestTurnPositionsStayContiguous(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	g := h.openGroup(groupInput(5))

	ms := h.join(g.ID, "u1", "u2", "u3", "u4")
	h.assertPositions(g.ID)

	_, err := h.eng.LeaveGroup(h.ctx, member("u2"), g.ID)
	require.NoError(t, err)
	h.assertPositions(g.ID)
	assert.Equal(t, 2, h.membership(ms[2].ID).TurnPosition)

	_, err = h.eng.RemoveMember(h.ctx, admin, ms[0].ID, "duplicate account")
	require.NoError(t, err)
	h.assertPositions(g.ID)

	joined := h.join(g.ID, "u5")
	assert.Equal(t, 3, joined[0].TurnPosition)
	h.assertPositions(g.ID)

	// The user who left may come back and takes the next free seat.
	again := h.join(g.ID, "u2")
	assert.Equal(t, 4, again[0].TurnPosition)
	h.assertPositions(g.ID)
}

func TestJoinGroup_AlreadyMemberAndFull(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	in := groupInput(2)
	in.Type = models.GroupTypeRequest
	g := h.openGroup(in)

	h.join(g.ID, "u1")
	_, err := h.eng.JoinGroup(h.ctx, member("u1"), g.ID)
	requireKind(t, err, models.KindAlreadyMember)

	h.join(g.ID, "u2")
	_, err = h.eng.JoinGroup(h.ctx, member("u3"), g.ID)
	requireKind(t, err, models.KindGroupFull)
}

func TestJoinGroup_FullAfterStart(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	g, _ := h.activeGroup(groupInput(3))

	_, err := h.eng.JoinGroup(h.ctx, member("u9"), g.ID)
	requireKind(t, err, models.KindGroupFull)
	_, err = h.eng.JoinGroup(h.ctx, member("u2"), g.ID)
	requireKind(t, err, models.KindAlreadyMember)
}

func TestLeaveGroup_PausedGroupStillRequiresPayout(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	g, ms := h.activeGroup(groupInput(2))
	for i, m := range ms {
		cs := h.contributions(m.ID)[0]
		_, err := h.eng.MarkContributionPaid(h.ctx, member(m.UserID), cs.ID, decimal.NewFromInt(20), "momo")
		require.NoError(t, err, "seat %d", i+1)
	}
	_, err := h.eng.PauseGroup(h.ctx, admin, g.ID, "audit")
	require.NoError(t, err)

	_, err = h.eng.LeaveGroup(h.ctx, member("u2"), g.ID)
	requireKind(t, err, models.KindPayoutPending)
	got := h.membership(ms[1].ID)
	assert.Equal(t, models.MembershipActive, got.Status)
	assert.False(t, got.HasReceivedPayout)
}

func TestLeaveGroup_ArrearsThenPaid(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	in := groupInput(3)
	in.CanExitAfterStart = true
	g, ms := h.activeGroup(in)

	_, err := h.eng.LeaveGroup(h.ctx, member("u1"), g.ID)
	requireKind(t, err, models.KindArrearsOutstanding)
	assert.EqualError(t, err, "You have 1 pending contribution(s). Please settle all dues before leaving.")

	d, err := h.eng.CheckLeave(h.ctx, member("u1"), ms[0].ID)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, models.KindArrearsOutstanding, d.Reason)

	cs := h.contributions(ms[0].ID)[0]
	_, err = h.eng.MarkContributionPaid(h.ctx, member("u1"), cs.ID, decimal.NewFromInt(20), "momo")
	require.NoError(t, err)

	d, err = h.eng.CheckLeave(h.ctx, member("u1"), ms[0].ID)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	left, err := h.eng.LeaveGroup(h.ctx, member("u1"), g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipRemoved, left.Status)
	assert.Equal(t, "left", left.StatusReason)
	h.assertPositions(g.ID)
	assert.Equal(t, 1, h.membership(ms[1].ID).TurnPosition)

	_, err = h.eng.LeaveGroup(h.ctx, member("u1"), g.ID)
	requireKind(t, err, models.KindNotAMember)
}

func TestLeaveGroup_UnpaidMemberCannotExitStartedGroup(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	g, ms := h.activeGroup(groupInput(2))

	for _, m := range ms {
		cs := h.contributions(m.ID)[0]
		_, err := h.eng.MarkContributionPaid(h.ctx, admin, cs.ID, decimal.NewFromInt(20), "cash")
		require.NoError(t, err)
	}

	_, err := h.eng.LeaveGroup(h.ctx, member("u2"), g.ID)
	requireKind(t, err, models.KindPayoutPending)
	assert.Equal(t, models.MembershipActive, h.membership(ms[1].ID).Status)
}

func TestLeaveGroup_BlockedByOpenPayout(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	in := groupInput(2)
	in.CanExitAfterStart = true
	g, ms := h.activeGroup(in)

	cs := h.contributions(ms[0].ID)[0]
	_, err := h.eng.MarkContributionPaid(h.ctx, member("u1"), cs.ID, decimal.NewFromInt(20), "momo")
	require.NoError(t, err)
	_, err = h.eng.SchedulePayout(h.ctx, admin, g.ID)
	require.NoError(t, err)

	_, err = h.eng.LeaveGroup(h.ctx, member("u1"), g.ID)
	requireKind(t, err, models.KindUpcomingPayoutScheduled)

	_, err = h.eng.RemoveMember(h.ctx, admin, ms[0].ID, "")
	requireKind(t, err, models.KindUpcomingPayoutScheduled)
}

func TestBanMember(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	g := h.openGroup(groupInput(4))
	ms := h.join(g.ID, "u1", "u2", "u3")

	banned, err := h.eng.BanMember(h.ctx, admin, ms[0].ID, "fraud")
	require.NoError(t, err)
	assert.Equal(t, models.MembershipBanned, banned.Status)
	h.assertPositions(g.ID)

	_, err = h.eng.BanMember(h.ctx, admin, ms[0].ID, "fraud")
	requireKind(t, err, models.KindInvalidTransition)
}

func TestBanUserSuspendsAcrossGroups(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	a := h.openGroup(groupInput(2))
	b := h.openGroup(groupInput(2))
	inA := h.join(a.ID, "u1", "u2")
	inB := h.join(b.ID, "u1", "u3")

	suspended, err := h.eng.BanUser(h.ctx, admin, "u1", "chargeback")
	require.NoError(t, err)
	assert.Len(t, suspended, 2)
	assert.Equal(t, models.MembershipSuspended, h.membership(inA[0].ID).Status)
	assert.Equal(t, models.MembershipSuspended, h.membership(inB[0].ID).Status)
	assert.Equal(t, models.MembershipActive, h.membership(inA[1].ID).Status)
	assert.Len(t, h.contributions(inA[0].ID), 1, "history is kept")

	// Suspended seats get no new obligations.
	h.clock.Advance(24 * time.Hour)
	opened, err := h.eng.OpenDueCycles(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, opened)
	assert.Len(t, h.contributions(inA[0].ID), 1)
	assert.Len(t, h.contributions(inA[1].ID), 2)

	reinstated, err := h.eng.ReinstateMember(h.ctx, admin, inA[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipActive, reinstated.Status)
	assert.Len(t, h.contributions(inA[0].ID), 2, "reinstated seat owes the current cycle")

	_, err = h.eng.ReinstateMember(h.ctx, admin, inA[0].ID)
	requireKind(t, err, models.KindInvalidTransition)
}
