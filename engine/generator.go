/*
generator.go - Period Generator

PURPOSE:
  Appends the next period once the prior one is fully settled, bounded by
  the fund's closure date.

DRIFT AVOIDANCE:
  The next month is computed as saver start month + count of existing
  periods, never by incrementing the last period's date. Incrementing
  accumulates drift if any period was ever created off-cycle.
*/
package engine

import "github.com/google/uuid"

// NextMonthFor returns the month the saver's next period would occupy.
func NextMonthFor(s *Saver) MonthID {
	return MonthIDOf(s.StartDate).AddMonths(len(s.Periods))
}

// GenerateNextPeriod builds the saver's next period. Preconditions:
//   - the chronologically last period (if any) is fully settled
//   - the next month starts on or before the fund's end month
//
// The new period has both tracks unpaid, zero penalties, and no lock.
func GenerateNextPeriod(s *Saver, settings FundSettings) (Period, error) {
	if last := s.LastPeriod(); last != nil && !last.Settled() {
		return Period{}, ErrPriorPeriodUnsettled
	}

	next := NextMonthFor(s)
	if next.After(MonthIDOf(settings.EndDate)) {
		return Period{}, ErrFundClosed
	}

	return Period{
		ID:      PeriodID(uuid.NewString()),
		SaverID: s.ID,
		Month:   next,
	}, nil
}

// InitialPeriod builds the saver's first period at their start month.
// Used at saver creation so a new member always has an open period.
func InitialPeriod(s *Saver) Period {
	return Period{
		ID:      PeriodID(uuid.NewString()),
		SaverID: s.ID,
		Month:   MonthIDOf(s.StartDate),
	}
}
