package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/susu/internal/models"
	"github.com/mmynk/susu/internal/notify"
	"github.com/mmynk/susu/internal/payout"
	"github.com/mmynk/susu/internal/wallet"
)

func TestSchedulePayout_Duplicate(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	g, ms := h.activeGroup(groupInput(3))

	p, err := h.eng.SchedulePayout(h.ctx, admin, g.ID)
	require.NoError(t, err)
	assert.Equal(t, ms[0].ID, p.MembershipID)
	assert.Equal(t, models.PayoutScheduled, p.Status)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, 0, p.Turn)
	assert.Equal(t, day0, p.ScheduledFor.UTC())
	assert.Equal(t, 1, h.events.count(notify.PayoutScheduled))

	_, err = h.eng.SchedulePayout(h.ctx, admin, g.ID)
	requireKind(t, err, models.KindDuplicatePayout)

	payouts, err := h.eng.ListPayouts(h.ctx, member("u2"), g.ID)
	require.NoError(t, err)
	assert.Len(t, payouts, 1)
}

func TestSettlePayout_RetriesAfterWalletFailure(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	g, ms := h.activeGroup(groupInput(2))

	p, err := h.eng.SchedulePayout(h.ctx, admin, g.ID)
	require.NoError(t, err)
	_, err = h.eng.SettlePayout(h.ctx, admin, p.ID)
	requireKind(t, err, models.KindInvalidTransition)

	p, err = h.eng.ApprovePayout(h.ctx, admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutApproved, p.Status)
	assert.Equal(t, admin.UserID, p.ApprovedBy)

	h.wallet.FailNext(models.KindProviderUnavailable)
	_, err = h.eng.SettlePayout(h.ctx, admin, p.ID)
	requireKind(t, err, models.KindProviderUnavailable)

	stored, err := h.store.GetPayout(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutApproved, stored.Status, "a failed disbursement leaves the payout approved")
	assert.False(t, h.membership(ms[0].ID).HasReceivedPayout)

	h.wallet.FailNext("")
	p, err = h.eng.SettlePayout(h.ctx, admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, p.Status)
	require.NotNil(t, p.PaidAt)
	assert.True(t, h.membership(ms[0].ID).HasReceivedPayout)

	entries := h.wallet.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, wallet.OpDisburse, entries[0].Op)
	assert.Equal(t, "user:u1", entries[0].Account)
	assert.Equal(t, "payout:"+p.ID, entries[0].RefID)

	_, err = h.eng.SettlePayout(h.ctx, admin, p.ID)
	requireKind(t, err, models.KindInvalidTransition)
}

func TestSettlePayout_InsufficientFunds(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	g, _ := h.activeGroup(groupInput(2))
	h.wallet.SetFloat(decimal.NewFromInt(10))

	p, err := h.eng.SchedulePayout(h.ctx, admin, g.ID)
	require.NoError(t, err)
	_, err = h.eng.ApprovePayout(h.ctx, admin, p.ID)
	require.NoError(t, err)
	_, err = h.eng.SettlePayout(h.ctx, admin, p.ID)
	requireKind(t, err, models.KindInsufficientFunds)

	stored, err := h.store.GetPayout(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutApproved, stored.Status)
}

func TestLastSettlementCompletesGroup(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	g, ms := h.activeGroup(groupInput(2))

	for i, m := range ms {
		cur, err := h.eng.CurrentTurn(h.ctx, admin, g.ID)
		require.NoError(t, err)
		require.NotNil(t, cur)
		assert.Equal(t, m.ID, cur.ID)

		p, err := h.eng.SchedulePayout(h.ctx, admin, g.ID)
		require.NoError(t, err)
		_, err = h.eng.ApprovePayout(h.ctx, admin, p.ID)
		require.NoError(t, err)
		_, err = h.eng.SettlePayout(h.ctx, admin, p.ID)
		require.NoError(t, err)

		if i < len(ms)-1 {
			assert.Equal(t, models.GroupActive, h.group(g.ID).Status)
		}
	}

	done := h.group(g.ID)
	assert.Equal(t, models.GroupCompleted, done.Status)
	assert.NotNil(t, done.EndedAt)
	for _, m := range ms {
		assert.Equal(t, models.MembershipCompleted, h.membership(m.ID).Status)
	}

	cur, err := h.eng.CurrentTurn(h.ctx, admin, g.ID)
	require.NoError(t, err)
	assert.Nil(t, cur)
	_, err = h.eng.SchedulePayout(h.ctx, admin, g.ID)
	requireKind(t, err, models.KindInvalidTransition)

	trail, err := h.eng.AuditTrail(h.ctx, admin, "group", g.ID)
	require.NoError(t, err)
	assert.Equal(t, "group.complete", trail[len(trail)-1].Action)
}

func TestPromoteDuePayouts(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	in := groupInput(2)
	in.DaysPerTurn = 2
	in.PayoutAmount = decimal.NewFromInt(80)
	g, _ := h.activeGroup(in)

	p, err := h.eng.SchedulePayout(h.ctx, admin, g.ID)
	require.NoError(t, err)
	assert.Equal(t, day0.AddDate(0, 0, 1), p.ScheduledFor.UTC(), "the last cycle of turn 0")

	n, err := h.eng.PromoteDuePayouts(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(24 * time.Hour)
	_, err = h.eng.PauseGroup(h.ctx, admin, g.ID, "")
	require.NoError(t, err)
	n, err = h.eng.PromoteDuePayouts(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "paused groups are left alone")

	_, err = h.eng.ResumeGroup(h.ctx, admin, g.ID)
	require.NoError(t, err)
	n, err = h.eng.PromoteDuePayouts(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := h.store.GetPayout(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPendingApproval, stored.Status)

	_, err = h.eng.ApprovePayout(h.ctx, admin, p.ID)
	require.NoError(t, err)
}

func TestSkipPayout_RetryNextCycle(t *testing.T) {
	h := newHarness(t, payout.SkipRetryNextCycle)
	g, ms := h.activeGroup(groupInput(2))

	p, err := h.eng.SchedulePayout(h.ctx, admin, g.ID)
	require.NoError(t, err)
	p, err = h.eng.SkipPayout(h.ctx, admin, p.ID, "member in arrears")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSkipped, p.Status)

	_, err = h.eng.SchedulePayout(h.ctx, admin, g.ID)
	requireKind(t, err, models.KindNoEligibleMember)

	h.clock.Advance(24 * time.Hour)
	_, err = h.eng.OpenDueCycles(h.ctx)
	require.NoError(t, err)
	retry, err := h.eng.SchedulePayout(h.ctx, admin, g.ID)
	require.NoError(t, err)
	assert.Equal(t, ms[0].ID, retry.MembershipID, "a skip keeps the member's place")
	assert.Equal(t, 1, h.membership(ms[0].ID).TurnPosition)

	trail, err := h.eng.AuditTrail(h.ctx, admin, "payout", p.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "payout.skip", trail[1].Action)
	assert.Equal(t, string(payout.SkipRetryNextCycle), trail[1].Details["skip_policy"])
}

func TestSkipPayout_RetrySameCycle(t *testing.T) {
	h := newHarness(t, payout.SkipRetrySameCycle)
	g, ms := h.activeGroup(groupInput(2))

	p, err := h.eng.SchedulePayout(h.ctx, admin, g.ID)
	require.NoError(t, err)
	_, err = h.eng.SkipPayout(h.ctx, admin, p.ID, "member unreachable")
	require.NoError(t, err)

	retry, err := h.eng.SchedulePayout(h.ctx, admin, g.ID)
	require.NoError(t, err)
	assert.Equal(t, ms[0].ID, retry.MembershipID)
	assert.NotEqual(t, p.ID, retry.ID)

	_, err = h.eng.SkipPayout(h.ctx, admin, p.ID, "again")
	requireKind(t, err, models.KindInvalidTransition)
}
