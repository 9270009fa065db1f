/*
eligibility.go - Loan Eligibility Guard

PURPOSE:
  Scans a saver's full period history to approve or deny a new loan
  request. A single unresolved infraction anywhere in history blocks new
  loans until resolved; the scan never stops at the most recent period.

BLOCKING CONDITIONS, checked per period in chronological order:
  1. Nonzero unpaid penalty on Q1, then Q2. Penalties block regardless of
     calendar date (and regardless of fund range): they are externally
     assessed ground truth.
  2. Unpaid due whose deadline has passed, Q1 then Q2. Due lateness is
     never reported for months outside the fund range.

EVALUATION INSTANT:
  The instant is fixed once per call so the two deadline checks inside the
  same scan cannot disagree about "now".
*/
package engine

import "time"

// Eligibility is the verdict of an eligibility scan, as a plain immutable
// value for presentation collaborators.
type Eligibility struct {
	Eligible bool
	Reason   string // empty when eligible

	// Set when Eligible is false.
	Month MonthID
	Track Track
	Cause IneligibleCause
}

// CheckEligibility scans the saver's periods at the given instant.
// Returns a verdict value; use CheckEligibilityErr when an error form is
// needed for a loan-creation flow.
func CheckEligibility(periods []Period, settings FundSettings, at time.Time) Eligibility {
	if err := scanEligibility(periods, settings, at); err != nil {
		return Eligibility{
			Eligible: false,
			Reason:   err.Reason(),
			Month:    err.Month,
			Track:    err.Track,
			Cause:    err.Cause,
		}
	}
	return Eligibility{Eligible: true}
}

// CheckEligibilityErr returns nil when eligible, or an *IneligibleError
// naming the first blocking period and track.
func CheckEligibilityErr(periods []Period, settings FundSettings, at time.Time) error {
	if err := scanEligibility(periods, settings, at); err != nil {
		return err
	}
	return nil
}

func scanEligibility(periods []Period, settings FundSettings, at time.Time) *IneligibleError {
	currentMonthStart := StartOfCurrentMonth(at)

	for _, p := range periods {
		cal := ResolveMonth(p.Month, settings, at.Location())

		// A month that has not started yet cannot block.
		if cal.MonthStart.After(currentMonthStart) {
			continue
		}

		for _, track := range []Track{TrackQ1, TrackQ2} {
			if p.HasUnpaidPenalty(track) {
				return &IneligibleError{
					SaverID: p.SaverID,
					Month:   p.Month,
					Track:   track,
					Cause:   CauseUnpaidPenalty,
				}
			}
		}

		if !cal.WithinFundRange {
			continue
		}

		for _, track := range []Track{TrackQ1, TrackQ2} {
			if !p.Paid(track) && at.After(cal.Deadline(track)) {
				return &IneligibleError{
					SaverID: p.SaverID,
					Month:   p.Month,
					Track:   track,
					Cause:   CauseOverdueDue,
				}
			}
		}
	}
	return nil
}
