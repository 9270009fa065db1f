/*
calendar.go - Calendar Resolver

PURPOSE:
  Converts a period's month identifier into concrete deadline instants and
  fund-range membership. This is the leaf component: the state machine and
  the eligibility guard both build on it.

DEADLINES:
  Q1 due by day 3, end of day; Q2 due by day 18, end of day, in the
  supplied location. A track is late only when the evaluation instant is
  strictly AFTER the deadline: 03T23:59:59 is on time, 04T00:00:00 is late.

FUND RANGE:
  A month is within range when its start falls between the fund's start
  month and end month, both rounded to month boundaries. No lateness is
  ever reported for a month outside the fund range.
*/
package engine

import "time"

const (
	q1DeadlineDay = 3
	q2DeadlineDay = 18
)

// MonthCalendar is the resolved calendar view of one period month.
type MonthCalendar struct {
	Month           MonthID
	MonthStart      time.Time
	Q1Deadline      time.Time
	Q2Deadline      time.Time
	WithinFundRange bool
}

// Deadline returns the due deadline for the given track.
func (c MonthCalendar) Deadline(t Track) time.Time {
	if t == TrackQ1 {
		return c.Q1Deadline
	}
	return c.Q2Deadline
}

// ResolveMonth resolves a month identifier against the fund settings.
// Deadlines are constructed in loc, which should be the location the fund
// operates in (callers typically pass the evaluation instant's location).
func ResolveMonth(m MonthID, settings FundSettings, loc *time.Location) MonthCalendar {
	start := m.Start(loc)

	fundStart := MonthIDOf(settings.StartDate)
	fundEnd := MonthIDOf(settings.EndDate)
	within := !m.Before(fundStart) && !m.After(fundEnd)

	return MonthCalendar{
		Month:           m,
		MonthStart:      start,
		Q1Deadline:      endOfDay(m.Year, m.Month, q1DeadlineDay, loc),
		Q2Deadline:      endOfDay(m.Year, m.Month, q2DeadlineDay, loc),
		WithinFundRange: within,
	}
}

func endOfDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, 23, 59, 59, 0, loc)
}

// StartOfCurrentMonth truncates the evaluation instant to the start of its
// calendar month. FUTURE/OPEN/LATE evaluation compares month starts, never
// exact days, so a period is never late before its own month has begun.
func StartOfCurrentMonth(at time.Time) time.Time {
	return time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, at.Location())
}
