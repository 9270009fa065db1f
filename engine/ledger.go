/*
ledger.go - Fund Ledger Aggregator

PURPOSE:
  Nets all cash movement across all savers to produce the fund's current
  disposable cash, plus the aggregate report figures.

PURITY:
  Every call recomputes from the entire saver/loan collection; no
  incremental running balance is trusted. The result is therefore always
  consistent with persisted state, at O(total periods + loans) per call,
  which is fine for bounded fund horizons.

CASH MODEL:
  inflow  = paid dues + paid penalties + recorded loan installments
  outflow = disbursed loan principal (removed at creation, independent of
            repayment progress)
  available_funds = inflow - outflow
*/
package engine

import "github.com/shopspring/decimal"

// Report is the fund-wide aggregate view for presentation collaborators.
type Report struct {
	AvailableFunds            decimal.Decimal
	TotalSavings              decimal.Decimal
	ExpectedMonthlyCollection decimal.Decimal
	TotalInterestEarned       decimal.Decimal
	TotalPenaltiesCollected   decimal.Decimal
	ActiveLoansCapital        decimal.Decimal
	TotalLoansGiven           decimal.Decimal
	TotalLoanPaymentsReceived decimal.Decimal
	SaversCount               int
	ActiveLoansCount          int
}

// AvailableFunds nets all settled inflows against disbursed principal.
func AvailableFunds(savers []Saver) decimal.Decimal {
	inflow := decimal.Zero
	outflow := decimal.Zero

	for i := range savers {
		s := &savers[i]
		for _, p := range s.Periods {
			if p.Q1Paid {
				inflow = inflow.Add(s.BiWeeklyAmount)
			}
			if p.Q1PenaltyPaid {
				inflow = inflow.Add(p.Q1Penalty)
			}
			if p.Q2Paid {
				inflow = inflow.Add(s.BiWeeklyAmount)
			}
			if p.Q2PenaltyPaid {
				inflow = inflow.Add(p.Q2Penalty)
			}
		}
		for _, l := range s.Loans {
			outflow = outflow.Add(l.Principal)
			if l.PaymentsMade > 0 {
				inflow = inflow.Add(l.MonthlyPayment.Mul(decimal.NewFromInt(int64(l.PaymentsMade))))
			}
		}
	}

	return inflow.Sub(outflow)
}

// BuildReport aggregates the full report in a single pass. Every figure
// derives from the saver collection alone; fund settings only influence
// loans at creation time, through the rate snapshot.
func BuildReport(savers []Saver) Report {
	r := Report{
		AvailableFunds:            decimal.Zero,
		TotalSavings:              decimal.Zero,
		ExpectedMonthlyCollection: decimal.Zero,
		TotalInterestEarned:       decimal.Zero,
		TotalPenaltiesCollected:   decimal.Zero,
		ActiveLoansCapital:        decimal.Zero,
		TotalLoansGiven:           decimal.Zero,
		TotalLoanPaymentsReceived: decimal.Zero,
		SaversCount:               len(savers),
	}

	two := decimal.NewFromInt(2)

	for i := range savers {
		s := &savers[i]
		r.TotalSavings = r.TotalSavings.Add(s.TotalSaved())
		r.ExpectedMonthlyCollection = r.ExpectedMonthlyCollection.Add(s.BiWeeklyAmount.Mul(two))

		for _, p := range s.Periods {
			if p.Q1PenaltyPaid {
				r.TotalPenaltiesCollected = r.TotalPenaltiesCollected.Add(p.Q1Penalty)
			}
			if p.Q2PenaltyPaid {
				r.TotalPenaltiesCollected = r.TotalPenaltiesCollected.Add(p.Q2Penalty)
			}
		}

		for _, l := range s.Loans {
			r.TotalLoansGiven = r.TotalLoansGiven.Add(l.Principal)
			r.TotalInterestEarned = r.TotalInterestEarned.Add(l.TotalInterest)
			paid := l.MonthlyPayment.Mul(decimal.NewFromInt(int64(l.PaymentsMade)))
			r.TotalLoanPaymentsReceived = r.TotalLoanPaymentsReceived.Add(paid)
			if l.Status == LoanActive {
				r.ActiveLoansCount++
				r.ActiveLoansCapital = r.ActiveLoansCapital.Add(l.Principal)
			}
		}
	}

	r.AvailableFunds = AvailableFunds(savers)
	return r
}
