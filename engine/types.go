/*
Package engine provides the ledger and rules core for a rotating
community savings-and-lending fund.

PURPOSE:
  Members ("savers") pay a fixed bi-weekly due into a shared pool; the pool
  lends money back to members under interest and repayment rules; late dues
  carry penalties assessed elsewhere. This package encodes the rules that
  move real money: the period state machine, the loan eligibility guard,
  the amortization calculator, and the fund-wide cash aggregator.

KEY CONCEPTS IN THIS FILE (types.go):
  - MonthID: A calendar month identifier ("2025-03"), the period key
  - Period: One month's two half-month ("quincena") dues for one saver
  - Loan: Principal lent to a saver with a snapshotted rate
  - FundSettings: Per-account fund configuration (rate, date range)

DESIGN PRINCIPLES:
  1. Purity: Every function takes an explicit evaluation instant; nothing
     reads the wall clock, so tests can simulate arbitrary dates.
  2. Precision: Uses decimal.Decimal to avoid floating-point money errors.
  3. Consumed ground truth: Penalty amounts and lock flags come from the
     persistence collaborator; this package never derives them.

SEE ALSO:
  - calendar.go: Month deadlines and fund-range membership
  - period.go: Track state machine and lock chain
  - eligibility.go: Loan eligibility scan
  - amortization.go: Loan math and payment progress
  - ledger.go: Fund-wide cash aggregation
  - generator.go: Appending the next period
*/
package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SaverID string
type PeriodID string
type LoanID string

// =============================================================================
// MONTH ID - Calendar month key for a period
// =============================================================================

// MonthID identifies the calendar month a period belongs to.
// Within a saver, month IDs are strictly increasing and contiguous.
type MonthID struct {
	Year  int
	Month time.Month
}

func NewMonthID(year int, month time.Month) MonthID {
	return MonthID{Year: year, Month: month}
}

// MonthIDOf returns the month containing t.
func MonthIDOf(t time.Time) MonthID {
	return MonthID{Year: t.Year(), Month: t.Month()}
}

// ParseMonthID parses the wire form "2006-01".
func ParseMonthID(s string) (MonthID, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthID{}, fmt.Errorf("invalid month id %q: %w", s, err)
	}
	return MonthID{Year: t.Year(), Month: t.Month()}, nil
}

func (m MonthID) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Start returns the first instant of the month in the given location.
func (m MonthID) Start(loc *time.Location) time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, loc)
}

// Next returns the following calendar month.
func (m MonthID) Next() MonthID {
	t := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return MonthID{Year: t.Year(), Month: t.Month()}
}

// AddMonths returns the month n calendar months later.
func (m MonthID) AddMonths(n int) MonthID {
	t := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return MonthID{Year: t.Year(), Month: t.Month()}
}

func (m MonthID) Before(other MonthID) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

func (m MonthID) After(other MonthID) bool { return other.Before(m) }

func (m MonthID) Equal(other MonthID) bool {
	return m.Year == other.Year && m.Month == other.Month
}

// MonthsBetween returns the number of whole calendar months from a to b,
// counted on month boundaries. Negative when b precedes a.
func MonthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// =============================================================================
// TRACKS - The two half-month dues inside a period
// =============================================================================

// Track selects one of the two quincena dues of a period.
type Track string

const (
	TrackQ1 Track = "q1" // due by day 3, end of day
	TrackQ2 Track = "q2" // due by day 18, end of day
)

func (t Track) Valid() bool { return t == TrackQ1 || t == TrackQ2 }

// =============================================================================
// PERIOD - One calendar month's pair of quincena dues for one saver
// =============================================================================

// Period holds one month of dues for a saver. The due flags and the
// penalty-paid flags are the only mutable fields; penalty amounts and the
// lock flag are supplied by the persistence collaborator and treated as
// ground truth here.
type Period struct {
	ID      PeriodID
	SaverID SaverID
	Month   MonthID

	Q1Paid bool
	Q2Paid bool

	Q1Penalty     decimal.Decimal
	Q1PenaltyPaid bool
	Q2Penalty     decimal.Decimal
	Q2PenaltyPaid bool

	// Locked is the persisted lock flag. The effective lock also depends on
	// the predecessor period; see Locked() in period.go.
	Locked bool
}

// Settled reports whether both tracks are paid.
func (p Period) Settled() bool { return p.Q1Paid && p.Q2Paid }

// Paid returns the due flag for the given track.
func (p Period) Paid(t Track) bool {
	if t == TrackQ1 {
		return p.Q1Paid
	}
	return p.Q2Paid
}

// Penalty returns the assessed penalty amount for the given track.
// Zero means "none assessed" and is inert.
func (p Period) Penalty(t Track) decimal.Decimal {
	if t == TrackQ1 {
		return p.Q1Penalty
	}
	return p.Q2Penalty
}

// PenaltyPaid returns the penalty-paid flag for the given track.
func (p Period) PenaltyPaid(t Track) bool {
	if t == TrackQ1 {
		return p.Q1PenaltyPaid
	}
	return p.Q2PenaltyPaid
}

// HasUnpaidPenalty reports whether the track carries a nonzero penalty
// that has not been paid.
func (p Period) HasUnpaidPenalty(t Track) bool {
	return p.Penalty(t).IsPositive() && !p.PenaltyPaid(t)
}

// =============================================================================
// LOAN - Money lent from the pool back to a saver
// =============================================================================

type LoanStatus string

const (
	LoanActive LoanStatus = "active"
	LoanPaid   LoanStatus = "paid"
)

// Loan belongs to exactly one saver. TotalInterest, TotalToPay and
// MonthlyPayment are computed once at creation from the rate snapshot and
// never recomputed from later settings changes.
type Loan struct {
	ID             LoanID
	SaverID        SaverID
	Principal      decimal.Decimal
	DurationMonths int
	InterestRate   decimal.Decimal // percentage, snapshotted at creation
	TotalInterest  decimal.Decimal
	TotalToPay     decimal.Decimal
	MonthlyPayment decimal.Decimal
	StartDate      time.Time
	Status         LoanStatus
	PaymentsMade   int // monotonic, 0..DurationMonths
}

// Remaining returns the unpaid portion of TotalToPay.
func (l Loan) Remaining() decimal.Decimal {
	paid := l.MonthlyPayment.Mul(decimal.NewFromInt(int64(l.PaymentsMade)))
	return l.TotalToPay.Sub(paid)
}

// =============================================================================
// SAVER - A fund member
// =============================================================================

// Saver is a participant whose dues accumulate in the fund and who may
// borrow against it. Periods are ordered chronologically, one per calendar
// month; Loans are unordered.
type Saver struct {
	ID             SaverID
	Name           string
	BiWeeklyAmount decimal.Decimal
	StartDate      time.Time
	Periods        []Period
	Loans          []Loan
}

// LastPeriod returns the chronologically last period, or nil if none exist.
func (s *Saver) LastPeriod() *Period {
	if len(s.Periods) == 0 {
		return nil
	}
	return &s.Periods[len(s.Periods)-1]
}

// TotalSaved sums the dues actually paid across all periods. Penalties are
// not savings and are excluded.
func (s *Saver) TotalSaved() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Periods {
		if p.Q1Paid {
			total = total.Add(s.BiWeeklyAmount)
		}
		if p.Q2Paid {
			total = total.Add(s.BiWeeklyAmount)
		}
	}
	return total
}

// =============================================================================
// FUND SETTINGS - One per account scope
// =============================================================================

// FundSettings configures the fund. Changing it does not retroactively
// alter existing loans or past period penalties.
type FundSettings struct {
	InterestRate    decimal.Decimal // percentage, e.g. 2 means 2% per month
	StartDate       time.Time
	EndDate         time.Time
	EnableReminders bool
}

// DefaultFundSettings returns the settings a fresh account starts with:
// 5% monthly interest, a fund year spanning at's calendar year, reminders on.
func DefaultFundSettings(at time.Time) FundSettings {
	return FundSettings{
		InterestRate:    decimal.NewFromInt(5),
		StartDate:       time.Date(at.Year(), time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(at.Year(), time.December, 31, 0, 0, 0, 0, time.UTC),
		EnableReminders: true,
	}
}

// Validate checks the date range.
func (fs FundSettings) Validate() error {
	if fs.EndDate.Before(fs.StartDate) {
		return &ValidationError{Field: "end_date", Message: "fund end date precedes start date"}
	}
	if fs.InterestRate.IsNegative() {
		return &ValidationError{Field: "interest_rate", Message: "interest rate must not be negative"}
	}
	return nil
}
