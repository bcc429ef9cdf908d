package contribution

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/susu/internal/clock"
	"github.com/mmynk/susu/internal/models"
)

var due = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

func newScheduler() *Scheduler {
	return NewScheduler(clock.MustCalendar("UTC", 24*time.Hour), decimal.NewFromInt(10))
}

func obligation(amount int64) *models.ContributionSchedule {
	return &models.ContributionSchedule{
		ID:                "c1",
		MembershipID:      "m1",
		DueDate:           due,
		Amount:            decimal.NewFromInt(amount),
		Status:            models.ContributionPending,
		GracePeriodEndsAt: due.Add(24 * time.Hour),
		LateFee:           decimal.Zero,
	}
}

func TestAssess_ScenarioB(t *testing.T) {
	s := newScheduler()
	cs := obligation(20)

	tests := []struct {
		name    string
		at      time.Time
		status  models.ContributionStatus
		inGrace bool
		fee     string
		total   string
	}{
		{"before due", due.Add(-time.Hour), models.ContributionPending, false, "0", "20"},
		{"at due", due, models.ContributionPending, false, "0", "20"},
		{"one hour late", due.Add(time.Hour), models.ContributionOverdue, true, "0", "20"},
		{"grace boundary", due.Add(24 * time.Hour), models.ContributionOverdue, false, "2", "22"},
		{"past grace", due.Add(25 * time.Hour), models.ContributionOverdue, false, "2", "22"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := s.Assess(cs, tt.at)
			assert.Equal(t, tt.status, a.Status)
			assert.Equal(t, tt.inGrace, a.InGrace)
			assert.True(t, a.Fee.Equal(decimal.RequireFromString(tt.fee)), "fee = %s", a.Fee)
			assert.True(t, a.Total.Equal(decimal.RequireFromString(tt.total)), "total = %s", a.Total)
		})
	}
}

func TestAssess_MonotonicLateness(t *testing.T) {
	s := newScheduler()
	cs := obligation(20)

	rank := map[models.ContributionStatus]int{
		models.ContributionPending: 0,
		models.ContributionOverdue: 1,
	}
	prev, prevFee := 0, decimal.Zero
	for at := due.Add(-2 * time.Hour); at.Before(due.Add(48 * time.Hour)); at = at.Add(30 * time.Minute) {
		a := s.Assess(cs, at)
		require.GreaterOrEqual(t, rank[a.Status], prev, "status moved backward at %s", at)
		require.True(t, a.Fee.GreaterThanOrEqual(prevFee), "fee shrank at %s", at)
		prev, prevFee = rank[a.Status], a.Fee
	}

	require.NoError(t, s.ApplyPayment(cs, decimal.NewFromInt(22), "momo", due.Add(30*time.Hour)))
	assert.Equal(t, models.ContributionLate, cs.Status)
	assert.Equal(t, models.ContributionLate, s.Assess(cs, due.Add(100*time.Hour)).Status)
}

func TestApplyPayment(t *testing.T) {
	s := newScheduler()

	t.Run("within grace is paid without fee", func(t *testing.T) {
		cs := obligation(20)
		require.NoError(t, s.ApplyPayment(cs, decimal.NewFromInt(20), "momo", due.Add(3*time.Hour)))
		assert.Equal(t, models.ContributionPaid, cs.Status)
		assert.True(t, cs.LateFee.IsZero())
		require.NotNil(t, cs.PaidAmount)
		assert.True(t, cs.PaidAmount.Equal(decimal.NewFromInt(20)))
		assert.Equal(t, "momo", cs.PaymentMethod)
	})

	t.Run("after grace requires fee", func(t *testing.T) {
		cs := obligation(20)
		err := s.ApplyPayment(cs, decimal.NewFromInt(20), "momo", due.Add(25*time.Hour))
		require.Error(t, err)
		assert.Equal(t, models.KindAmountMismatch, models.KindOf(err))
		assert.Contains(t, err.Error(), "late fee of 2.00")
		assert.Nil(t, cs.PaidAmount)

		require.NoError(t, s.ApplyPayment(cs, decimal.NewFromInt(22), "momo", due.Add(25*time.Hour)))
		assert.Equal(t, models.ContributionLate, cs.Status)
		assert.True(t, cs.LateFee.Equal(decimal.NewFromInt(2)))
	})

	t.Run("second payment is an invalid transition", func(t *testing.T) {
		cs := obligation(20)
		require.NoError(t, s.ApplyPayment(cs, decimal.NewFromInt(20), "cash", due))
		err := s.ApplyPayment(cs, decimal.NewFromInt(20), "cash", due)
		require.Error(t, err)
		assert.Equal(t, models.KindInvalidTransition, models.KindOf(err))
	})

	t.Run("non-positive amount", func(t *testing.T) {
		cs := obligation(20)
		err := s.ApplyPayment(cs, decimal.Zero, "cash", due)
		assert.Equal(t, models.KindValidation, models.KindOf(err))
	})

	t.Run("waived cannot be paid", func(t *testing.T) {
		cs := obligation(20)
		require.NoError(t, s.Waive(cs))
		err := s.ApplyPayment(cs, decimal.NewFromInt(20), "cash", due)
		assert.Equal(t, models.KindInvalidTransition, models.KindOf(err))
		assert.Equal(t, models.KindInvalidTransition, models.KindOf(s.Waive(cs)))
	})
}

func TestGenerate(t *testing.T) {
	s := newScheduler()
	g := &models.Group{ID: "g1", DailyAmount: decimal.NewFromInt(20)}
	members := []*models.Membership{
		{ID: "m1", UserID: "u1", Status: models.MembershipActive},
		{ID: "m2", UserID: "u2", Status: models.MembershipSuspended},
		{ID: "m3", UserID: "u3", Status: models.MembershipActive},
	}

	got := s.Generate(g, members, 4, due, map[string]bool{"m3": true}, due)

	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].MembershipID)
	assert.Equal(t, 4, got[0].Cycle)
	assert.Equal(t, due, got[0].DueDate)
	assert.Equal(t, due.Add(24*time.Hour), got[0].GracePeriodEndsAt)
	assert.Equal(t, models.ContributionPending, got[0].Status)
	assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(20)))
}

func TestGraceExpiring(t *testing.T) {
	s := newScheduler()
	cs := obligation(20)

	assert.False(t, s.GraceExpiring(cs, due.Add(time.Hour), 2*time.Hour))
	assert.True(t, s.GraceExpiring(cs, due.Add(22*time.Hour+30*time.Minute), 2*time.Hour))
	assert.False(t, s.GraceExpiring(cs, due.Add(25*time.Hour), 2*time.Hour), "grace already over")

	sent := due
	cs.GraceReminderSentAt = &sent
	assert.False(t, s.GraceExpiring(cs, due.Add(23*time.Hour), 2*time.Hour))
}
