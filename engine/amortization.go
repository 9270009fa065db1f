/*
amortization.go - Amortization Calculator and loan state machine

PURPOSE:
  Computes interest, total payable, and installment for a proposed loan,
  and tracks payment progress against the schedule.

FORMULAS (simple, non-compounding):
  total_interest  = principal * (rate/100) * duration_months
  total_to_pay    = principal + total_interest
  monthly_payment = total_to_pay / duration_months   (rounded to 2 decimals)

  The rate is snapshotted at creation; later settings changes never
  recompute an existing loan.

LOAN STATE MACHINE:
  active(payments_made=0) -> active(payments_made<duration) -> paid
  The transition is forward-only via RecordPayment; nothing ever
  decrements payments_made and paid is terminal.
*/
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// LoanQuote is an amortization preview: a plain immutable value with no
// hidden state, safe to hand to presentation collaborators.
type LoanQuote struct {
	Principal      decimal.Decimal
	DurationMonths int
	InterestRate   decimal.Decimal // percentage
	TotalInterest  decimal.Decimal
	TotalToPay     decimal.Decimal
	MonthlyPayment decimal.Decimal
}

// Amortize computes the quote for a proposed loan.
// Fails with a ValidationError for non-positive principal or duration.
func Amortize(principal decimal.Decimal, ratePercent decimal.Decimal, durationMonths int) (LoanQuote, error) {
	if !principal.IsPositive() {
		return LoanQuote{}, &ValidationError{Field: "principal", Message: "principal must be positive"}
	}
	if durationMonths <= 0 {
		return LoanQuote{}, &ValidationError{Field: "duration_months", Message: "duration must be positive"}
	}
	if ratePercent.IsNegative() {
		return LoanQuote{}, &ValidationError{Field: "interest_rate", Message: "interest rate must not be negative"}
	}

	months := decimal.NewFromInt(int64(durationMonths))
	totalInterest := principal.Mul(ratePercent.Div(oneHundred)).Mul(months)
	totalToPay := principal.Add(totalInterest)
	monthly := totalToPay.Div(months).Round(2)

	return LoanQuote{
		Principal:      principal,
		DurationMonths: durationMonths,
		InterestRate:   ratePercent,
		TotalInterest:  totalInterest,
		TotalToPay:     totalToPay,
		MonthlyPayment: monthly,
	}, nil
}

// MaxLoanMonths returns how many whole months remain from the evaluation
// instant to the fund's end date, floored at zero. A loan duration must
// not exceed this.
//
// Note: the horizon is measured against the evaluation instant, not the
// loan's eventual persisted creation time. A quote issued just before a
// month boundary can therefore allow one more month than a confirmation
// issued just after it.
func MaxLoanMonths(at time.Time, settings FundSettings) int {
	months := MonthsBetween(at, settings.EndDate)
	if months < 0 {
		return 0
	}
	return months
}

// NewLoan validates a loan request against the fund horizon and available
// cash, then builds the loan with amounts fixed at creation.
//
// Eligibility is the caller's concern (CheckEligibilityErr) because it
// needs the saver's period history; availableFunds must be recomputed by
// the caller inside its exclusive section, never taken from a cached
// client value.
func NewLoan(saverID SaverID, principal decimal.Decimal, durationMonths int, settings FundSettings, availableFunds decimal.Decimal, at time.Time) (Loan, error) {
	quote, err := Amortize(principal, settings.InterestRate, durationMonths)
	if err != nil {
		return Loan{}, err
	}

	if max := MaxLoanMonths(at, settings); durationMonths > max {
		return Loan{}, &ExceedsFundHorizonError{RequestedMonths: durationMonths, MaxMonths: max}
	}

	if principal.GreaterThan(availableFunds) {
		return Loan{}, &InsufficientFundsError{Requested: principal, Available: availableFunds}
	}

	return Loan{
		ID:             LoanID(uuid.NewString()),
		SaverID:        saverID,
		Principal:      quote.Principal,
		DurationMonths: quote.DurationMonths,
		InterestRate:   quote.InterestRate,
		TotalInterest:  quote.TotalInterest,
		TotalToPay:     quote.TotalToPay,
		MonthlyPayment: quote.MonthlyPayment,
		StartDate:      at,
		Status:         LoanActive,
		PaymentsMade:   0,
	}, nil
}

// RecordPayment advances the loan by one installment and returns the
// updated loan. The status flips to paid exactly when payments_made
// reaches the duration; further payments are rejected.
func RecordPayment(l Loan) (Loan, error) {
	if l.Status == LoanPaid {
		return Loan{}, ErrLoanAlreadyPaid
	}
	l.PaymentsMade++
	if l.PaymentsMade >= l.DurationMonths {
		l.PaymentsMade = l.DurationMonths
		l.Status = LoanPaid
	}
	return l, nil
}
