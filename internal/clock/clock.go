// Package clock supplies "now" and the calendar arithmetic for cycles, due dates
// and grace periods in a single fixed time zone.
package clock

import (
	"fmt"
	"time"
	_ "time/tzdata" // zone database for minimal containers
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

// Now returns the current time.
func (System) Now() time.Time { return time.Now() }

// Fixed is a Clock pinned to a settable instant. Used by tests and replays.
type Fixed struct {
	T time.Time
}

// Now returns the pinned time.
func (f *Fixed) Now() time.Time { return f.T }

// Advance moves the pinned time forward by d.
func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }

// Calendar computes cycle boundaries in one location. A cycle is one calendar day.
type Calendar struct {
	loc   *time.Location
	grace time.Duration
}

// NewCalendar creates a calendar for the named IANA zone with the given grace period.
func NewCalendar(zone string, grace time.Duration) (*Calendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", zone, err)
	}
	if grace < 0 {
		return nil, fmt.Errorf("grace period must not be negative, got %s", grace)
	}
	return &Calendar{loc: loc, grace: grace}, nil
}

// MustCalendar is NewCalendar that panics on error. For tests and constants.
func MustCalendar(zone string, grace time.Duration) *Calendar {
	c, err := NewCalendar(zone, grace)
	if err != nil {
		panic(err)
	}
	return c
}

// Location returns the calendar's time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// GracePeriod returns the configured grace period.
func (c *Calendar) GracePeriod() time.Duration { return c.grace }

// CycleStart returns local midnight of the day containing t.
func (c *Calendar) CycleStart(t time.Time) time.Time {
	lt := t.In(c.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.loc)
}

// NextCycleStart returns local midnight of the day after start.
// AddDate keeps DST transitions on calendar days.
func (c *Calendar) NextCycleStart(start time.Time) time.Time {
	return c.CycleStart(start).AddDate(0, 0, 1)
}

// AddCycles returns the start of the cycle n days after start.
func (c *Calendar) AddCycles(start time.Time, n int) time.Time {
	return c.CycleStart(start).AddDate(0, 0, n)
}

// DayBounds returns [start, end) of the calendar day containing t.
func (c *Calendar) DayBounds(t time.Time) (time.Time, time.Time) {
	start := c.CycleStart(t)
	return start, start.AddDate(0, 0, 1)
}

// GraceEnd returns the instant the grace period after due ends.
func (c *Calendar) GraceEnd(due time.Time) time.Time {
	return due.Add(c.grace)
}
