/*
errors.go - Centralized error kinds for the fund engine

PURPOSE:
  All failure kinds in one place. Every failure is returned as an explicit,
  reason-bearing error; nothing is silently clamped or coerced. No function
  in this package mutates shared state, so every failure is local to a
  single call and safely retryable after correcting the input.

ERROR CATEGORIES:
  1. Validation errors  - malformed amounts, durations, date ranges
  2. Eligibility errors - outstanding penalty or overdue due blocks a loan
  3. Fund errors        - insufficient cash, horizon exceeded, fund closed
  4. Period errors      - mutation attempted on a locked period
  5. Lookup errors      - unknown saver/loan/period references

USAGE:
  Callers classify with errors.Is against the sentinels:

    if errors.Is(err, engine.ErrIneligible) { ... }

  and extract detail with errors.As against the structured types.
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for non-positive amounts or durations and
	// malformed date ranges.
	ErrValidation = errors.New("validation failed")

	// ErrIneligible is returned when a saver's period history blocks a new
	// loan (outstanding penalty or overdue due).
	ErrIneligible = errors.New("saver is not eligible for a loan")

	// ErrInsufficientFunds is returned when a requested principal exceeds
	// the fund's currently available cash.
	ErrInsufficientFunds = errors.New("insufficient available funds")

	// ErrExceedsFundHorizon is returned when a loan duration runs past the
	// fund's end date.
	ErrExceedsFundHorizon = errors.New("loan duration exceeds fund horizon")

	// ErrLockedPeriod is returned when a mutation is attempted on a locked
	// period. Locking is advisory at the UI boundary; the engine still
	// rejects the mutation rather than silently ignoring it.
	ErrLockedPeriod = errors.New("period is locked")

	// ErrNotFound is returned for unknown saver/loan/period references.
	ErrNotFound = errors.New("not found")

	// ErrFundClosed is returned by the period generator when the next month
	// would start after the fund's end date.
	ErrFundClosed = errors.New("fund closed: no further periods")

	// ErrPriorPeriodUnsettled is returned by the period generator when the
	// last period still has an unpaid track.
	ErrPriorPeriodUnsettled = errors.New("prior period is not fully settled")

	// ErrLoanAlreadyPaid is returned when recording a payment on a loan
	// whose status is already paid.
	ErrLoanAlreadyPaid = errors.New("loan is already paid")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IneligibleCause names which condition blocked the loan.
type IneligibleCause string

const (
	CauseUnpaidPenalty IneligibleCause = "unpaid_penalty"
	CauseOverdueDue    IneligibleCause = "overdue_due"
)

// IneligibleError names the period and track that blocked a loan request.
type IneligibleError struct {
	SaverID SaverID
	Month   MonthID
	Track   Track
	Cause   IneligibleCause
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("ineligible: %s on %s track %s", e.Cause, e.Month, e.Track)
}

func (e *IneligibleError) Unwrap() error { return ErrIneligible }

// Reason returns a human-readable explanation for presentation collaborators.
func (e *IneligibleError) Reason() string {
	track := "first half-month (Q1)"
	if e.Track == TrackQ2 {
		track = "second half-month (Q2)"
	}
	switch e.Cause {
	case CauseUnpaidPenalty:
		return fmt.Sprintf("outstanding penalty on the %s of %s", track, e.Month)
	default:
		return fmt.Sprintf("overdue due on the %s of %s", track, e.Month)
	}
}

// InsufficientFundsError details a cash shortage at loan creation.
type InsufficientFundsError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: requested %s, available %s",
		e.Requested, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// ExceedsFundHorizonError details a duration that outlives the fund.
type ExceedsFundHorizonError struct {
	RequestedMonths int
	MaxMonths       int
}

func (e *ExceedsFundHorizonError) Error() string {
	return fmt.Sprintf("duration %d months exceeds fund horizon of %d months",
		e.RequestedMonths, e.MaxMonths)
}

func (e *ExceedsFundHorizonError) Unwrap() error { return ErrExceedsFundHorizon }

// LockedPeriodError identifies the period whose mutation was rejected.
type LockedPeriodError struct {
	PeriodID PeriodID
	Month    MonthID
}

func (e *LockedPeriodError) Error() string {
	return fmt.Sprintf("period %s (%s) is locked", e.PeriodID, e.Month)
}

func (e *LockedPeriodError) Unwrap() error { return ErrLockedPeriod }

// NotFoundError identifies an unknown reference.
type NotFoundError struct {
	Kind string // "saver", "loan", "period", "settings", "user"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// or a business rule rejection (HTTP 4xx territory).
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrIneligible) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrExceedsFundHorizon) ||
		errors.Is(err, ErrLockedPeriod) ||
		errors.Is(err, ErrFundClosed) ||
		errors.Is(err, ErrPriorPeriodUnsettled) ||
		errors.Is(err, ErrLoanAlreadyPaid)
}

// IsNotFound returns true if the error indicates a missing reference.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
