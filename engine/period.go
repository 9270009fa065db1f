/*
period.go - Period State Machine

PURPOSE:
  Derives paid/late/locked status for a period. Each period carries two
  independent tracks (Q1, Q2) that move through
  future -> open -> late -> paid, plus an overall lock.

THE LOCK CHAIN:
  A period is locked when its persisted lock flag is set OR its
  chronological predecessor is not yet fully settled. The UI greys locked
  periods out, but that is advisory only: mutation attempts on a locked
  period are rejected here with LockedPeriodError, never silently ignored.

EVALUATION:
  FUTURE is decided by comparing the period's month start against the
  start of the evaluation instant's calendar month, not the exact day.
  LATE additionally requires the instant to be strictly after the track's
  deadline. Months outside the fund range never report lateness.
*/
package engine

import "time"

// TrackState is the lifecycle state of one quincena track.
type TrackState string

const (
	TrackFuture TrackState = "future" // month has not started yet
	TrackOpen   TrackState = "open"   // unpaid, deadline not passed
	TrackLate   TrackState = "late"   // unpaid, deadline passed
	TrackPaid   TrackState = "paid"   // terminal
)

// PeriodStatus is the full derived view of a period at one instant.
type PeriodStatus struct {
	Month  MonthID
	Q1     TrackState
	Q2     TrackState
	Locked bool

	// OutsideFundRange mirrors the calendar resolver: such periods are
	// display-only and never late.
	OutsideFundRange bool
}

// Late reports whether either track is late.
func (s PeriodStatus) Late() bool { return s.Q1 == TrackLate || s.Q2 == TrackLate }

// TrackStateAt evaluates one track of a period at the given instant.
func TrackStateAt(p Period, track Track, cal MonthCalendar, at time.Time) TrackState {
	if p.Paid(track) {
		return TrackPaid
	}
	if cal.MonthStart.After(StartOfCurrentMonth(at)) {
		return TrackFuture
	}
	if cal.WithinFundRange && at.After(cal.Deadline(track)) {
		return TrackLate
	}
	return TrackOpen
}

// StatusAt derives the full status of the period at index i within the
// saver's chronological period sequence.
func StatusAt(periods []Period, i int, settings FundSettings, at time.Time) PeriodStatus {
	p := periods[i]
	cal := ResolveMonth(p.Month, settings, at.Location())
	return PeriodStatus{
		Month:            p.Month,
		Q1:               TrackStateAt(p, TrackQ1, cal, at),
		Q2:               TrackStateAt(p, TrackQ2, cal, at),
		Locked:           LockedAt(periods, i),
		OutsideFundRange: !cal.WithinFundRange,
	}
}

// LockedAt reports whether the period at index i is locked: either its
// persisted flag is set, or its predecessor is not fully settled.
func LockedAt(periods []Period, i int) bool {
	if periods[i].Locked {
		return true
	}
	return i > 0 && !periods[i-1].Settled()
}

// indexOf locates a period by ID within a saver's sequence, -1 if absent.
func indexOf(periods []Period, id PeriodID) int {
	for i := range periods {
		if periods[i].ID == id {
			return i
		}
	}
	return -1
}

// ToggleDue flips the due-paid flag for one track of the identified period
// and returns the updated period. The toggle is rejected on a locked
// period. Toggling on then off restores the exact prior state.
func ToggleDue(periods []Period, id PeriodID, track Track) (Period, error) {
	return togglePeriod(periods, id, track, func(p *Period, t Track) {
		if t == TrackQ1 {
			p.Q1Paid = !p.Q1Paid
		} else {
			p.Q2Paid = !p.Q2Paid
		}
	})
}

// TogglePenaltyPaid flips the penalty-paid flag for one track. Independent
// of the due flag: both must be true for the period to be free of
// outstanding issues. Rejected on a locked period.
func TogglePenaltyPaid(periods []Period, id PeriodID, track Track) (Period, error) {
	return togglePeriod(periods, id, track, func(p *Period, t Track) {
		if t == TrackQ1 {
			p.Q1PenaltyPaid = !p.Q1PenaltyPaid
		} else {
			p.Q2PenaltyPaid = !p.Q2PenaltyPaid
		}
	})
}

func togglePeriod(periods []Period, id PeriodID, track Track, apply func(*Period, Track)) (Period, error) {
	if !track.Valid() {
		return Period{}, &ValidationError{Field: "track", Message: "track must be q1 or q2"}
	}
	i := indexOf(periods, id)
	if i < 0 {
		return Period{}, &NotFoundError{Kind: "period", ID: string(id)}
	}
	if LockedAt(periods, i) {
		return Period{}, &LockedPeriodError{PeriodID: id, Month: periods[i].Month}
	}
	updated := periods[i]
	apply(&updated, track)
	return updated, nil
}
