package contribution

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/susu/internal/models"
)

// Line is one obligation as seen at query time.
type Line struct {
	ScheduleID        string
	MembershipID      string
	GroupID           string
	UserID            string
	Cycle             int
	DueDate           time.Time
	GracePeriodEndsAt time.Time
	Amount            decimal.Decimal
	Fee               decimal.Decimal
	Total             decimal.Decimal
	Status            models.ContributionStatus
	InGrace           bool
}

// Summary aggregates a set of outstanding lines.
type Summary struct {
	Lines  []Line
	Amount decimal.Decimal
	Fees   decimal.Decimal
	Total  decimal.Decimal
}

// Count returns the number of lines in the summary.
func (s Summary) Count() int { return len(s.Lines) }

func (s *Scheduler) line(cs *models.ContributionSchedule, now time.Time) Line {
	a := s.Assess(cs, now)
	return Line{
		ScheduleID:        cs.ID,
		MembershipID:      cs.MembershipID,
		GroupID:           cs.GroupID,
		UserID:            cs.UserID,
		Cycle:             cs.Cycle,
		DueDate:           cs.DueDate,
		GracePeriodEndsAt: cs.GracePeriodEndsAt,
		Amount:            cs.Amount,
		Fee:               a.Fee,
		Total:             a.Total,
		Status:            a.Status,
		InGrace:           a.InGrace,
	}
}

func summarize(lines []Line) Summary {
	sum := Summary{Lines: lines, Amount: decimal.Zero, Fees: decimal.Zero, Total: decimal.Zero}
	for _, l := range lines {
		sum.Amount = sum.Amount.Add(l.Amount)
		sum.Fees = sum.Fees.Add(l.Fee)
		sum.Total = sum.Total.Add(l.Total)
	}
	return sum
}

func sortByDue(lines []Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].DueDate.Equal(lines[j].DueDate) {
			return lines[i].ScheduleID < lines[j].ScheduleID
		}
		return lines[i].DueDate.Before(lines[j].DueDate)
	})
}

// DueToday returns the unsettled obligations whose due date falls on now's calendar day.
func (s *Scheduler) DueToday(schedules []*models.ContributionSchedule, now time.Time) Summary {
	start, end := s.cal.DayBounds(now)
	var lines []Line
	for _, cs := range schedules {
		if cs.Status.Settled() || cs.DueDate.Before(start) || !cs.DueDate.Before(end) {
			continue
		}
		lines = append(lines, s.line(cs, now))
	}
	sortByDue(lines)
	return summarize(lines)
}

// Arrears returns the obligations that are overdue at now, with any accrued late fee.
func (s *Scheduler) Arrears(schedules []*models.ContributionSchedule, now time.Time) Summary {
	var lines []Line
	for _, cs := range schedules {
		l := s.line(cs, now)
		if l.Status != models.ContributionOverdue {
			continue
		}
		lines = append(lines, l)
	}
	sortByDue(lines)
	return summarize(lines)
}

// Unsettled returns every obligation that still needs a payment, due or not.
func (s *Scheduler) Unsettled(schedules []*models.ContributionSchedule, now time.Time) Summary {
	var lines []Line
	for _, cs := range schedules {
		if cs.Status.Settled() {
			continue
		}
		lines = append(lines, s.line(cs, now))
	}
	sortByDue(lines)
	return summarize(lines)
}

// Streak counts consecutive on-time payments, newest first. Obligations not yet due and
// waived obligations are neutral; anything paid late or still overdue ends the streak.
func (s *Scheduler) Streak(schedules []*models.ContributionSchedule, now time.Time) int {
	lines := make([]Line, 0, len(schedules))
	for _, cs := range schedules {
		lines = append(lines, s.line(cs, now))
	}
	sortByDue(lines)

	streak := 0
	for i := len(lines) - 1; i >= 0; i-- {
		switch lines[i].Status {
		case models.ContributionPending, models.ContributionWaived:
			continue
		case models.ContributionPaid:
			streak++
		default:
			return streak
		}
	}
	return streak
}
