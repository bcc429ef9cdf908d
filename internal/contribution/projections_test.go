package contribution

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/susu/internal/models"
)

func history(statuses ...models.ContributionStatus) []*models.ContributionSchedule {
	out := make([]*models.ContributionSchedule, len(statuses))
	for i, st := range statuses {
		d := due.AddDate(0, 0, i)
		out[i] = &models.ContributionSchedule{
			ID:                fmt.Sprintf("c%d", i),
			MembershipID:      "m1",
			Cycle:             i,
			DueDate:           d,
			GracePeriodEndsAt: d.Add(24 * time.Hour),
			Amount:            decimal.NewFromInt(20),
			LateFee:           decimal.Zero,
			Status:            st,
		}
	}
	return out
}

func TestArrears(t *testing.T) {
	s := newScheduler()
	rows := history(models.ContributionPending, models.ContributionPaid, models.ContributionPending, models.ContributionPending)
	now := due.AddDate(0, 0, 2).Add(time.Hour) // cycle 0 past grace, cycle 2 in grace, cycle 3 not due

	sum := s.Arrears(rows, now)

	require.Equal(t, 2, sum.Count())
	assert.Equal(t, "c0", sum.Lines[0].ScheduleID)
	assert.False(t, sum.Lines[0].InGrace)
	assert.True(t, sum.Lines[1].InGrace)
	assert.True(t, sum.Fees.Equal(decimal.NewFromInt(2)))
	assert.True(t, sum.Total.Equal(decimal.NewFromInt(42)))

	assert.Equal(t, 3, s.Unsettled(rows, now).Count())
}

func TestArrears_EvaluatedAtQueryTime(t *testing.T) {
	s := newScheduler()
	rows := history(models.ContributionPending)

	before := s.Arrears(rows, due.Add(24*time.Hour-time.Second))
	after := s.Arrears(rows, due.Add(24*time.Hour))

	assert.True(t, before.Fees.IsZero())
	assert.True(t, after.Fees.Equal(decimal.NewFromInt(2)))
}

func TestDueToday(t *testing.T) {
	s := newScheduler()
	rows := history(models.ContributionPending, models.ContributionPending, models.ContributionPaid)

	sum := s.DueToday(rows, due.AddDate(0, 0, 1).Add(9*time.Hour))
	require.Equal(t, 1, sum.Count())
	assert.Equal(t, "c1", sum.Lines[0].ScheduleID)

	assert.Equal(t, 0, s.DueToday(rows, due.AddDate(0, 0, 2).Add(time.Hour)).Count(), "paid rows are not due")
}

func TestStreak(t *testing.T) {
	s := newScheduler()
	now := due.AddDate(0, 0, 10)

	tests := []struct {
		name string
		rows []*models.ContributionSchedule
		want int
	}{
		{"empty", nil, 0},
		{"all on time", history(models.ContributionPaid, models.ContributionPaid, models.ContributionPaid), 3},
		{"late breaks", history(models.ContributionPaid, models.ContributionLate, models.ContributionPaid, models.ContributionPaid), 2},
		{"overdue breaks", history(models.ContributionPaid, models.ContributionPending), 0},
		{"waived is neutral", history(models.ContributionPaid, models.ContributionWaived, models.ContributionPaid), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Streak(tt.rows, now))
		})
	}
}
