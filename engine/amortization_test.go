package engine_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahorra/fund-engine/engine"
)

func TestAmortize_ReferenceNumbers(t *testing.T) {
	// principal 1,000,000 at 2% over 3 months
	quote, err := engine.Amortize(decimal.NewFromInt(1_000_000), decimal.NewFromInt(2), 3)
	require.NoError(t, err)

	assert.True(t, quote.TotalInterest.Equal(decimal.NewFromInt(60_000)),
		"total_interest = %s", quote.TotalInterest)
	assert.True(t, quote.TotalToPay.Equal(decimal.NewFromInt(1_060_000)),
		"total_to_pay = %s", quote.TotalToPay)
	assert.True(t, quote.MonthlyPayment.Equal(decimal.NewFromFloat(353333.33)),
		"monthly_payment = %s", quote.MonthlyPayment)
}

func TestAmortize_InvalidInputs(t *testing.T) {
	tests := []struct {
		name      string
		principal decimal.Decimal
		rate      decimal.Decimal
		months    int
	}{
		{"zero principal", decimal.Zero, decimal.NewFromInt(2), 3},
		{"negative principal", decimal.NewFromInt(-100), decimal.NewFromInt(2), 3},
		{"zero duration", decimal.NewFromInt(1000), decimal.NewFromInt(2), 0},
		{"negative duration", decimal.NewFromInt(1000), decimal.NewFromInt(2), -1},
		{"negative rate", decimal.NewFromInt(1000), decimal.NewFromInt(-2), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Amortize(tt.principal, tt.rate, tt.months)
			assert.ErrorIs(t, err, engine.ErrValidation)
		})
	}
}

func TestMaxLoanMonths(t *testing.T) {
	settings := testSettings() // ends 2025-12-31

	at := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 9, engine.MaxLoanMonths(at, settings))

	past := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, engine.MaxLoanMonths(past, settings), "never negative")
}

func TestNewLoan_Success(t *testing.T) {
	settings := testSettings()
	at := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	loan, err := engine.NewLoan("saver-1", decimal.NewFromInt(1_000_000), 3,
		settings, decimal.NewFromInt(2_000_000), at)
	require.NoError(t, err)

	assert.Equal(t, engine.LoanActive, loan.Status)
	assert.Equal(t, 0, loan.PaymentsMade)
	assert.True(t, loan.InterestRate.Equal(settings.InterestRate), "rate snapshotted")
	assert.True(t, loan.TotalToPay.Equal(decimal.NewFromInt(1_060_000)))
	assert.NotEmpty(t, loan.ID)
}

func TestNewLoan_InsufficientFundsByOneUnit(t *testing.T) {
	// Requested principal exceeding available funds by a single unit is
	// rejected.
	settings := testSettings()
	at := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	available := decimal.NewFromInt(999_999)

	_, err := engine.NewLoan("saver-1", decimal.NewFromInt(1_000_000), 3, settings, available, at)
	require.Error(t, err)

	var insuff *engine.InsufficientFundsError
	require.ErrorAs(t, err, &insuff)
	assert.True(t, insuff.Available.Equal(available))
	assert.True(t, engine.IsClientError(err))
}

func TestNewLoan_ExactAvailableFundsAllowed(t *testing.T) {
	settings := testSettings()
	at := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	_, err := engine.NewLoan("saver-1", decimal.NewFromInt(1_000_000), 3,
		settings, decimal.NewFromInt(1_000_000), at)
	assert.NoError(t, err)
}

func TestNewLoan_ExceedsFundHorizon(t *testing.T) {
	settings := testSettings() // ends 2025-12-31
	at := time.Date(2025, time.October, 10, 0, 0, 0, 0, time.UTC)

	_, err := engine.NewLoan("saver-1", decimal.NewFromInt(100_000), 6,
		settings, decimal.NewFromInt(1_000_000), at)
	require.Error(t, err)

	var horizon *engine.ExceedsFundHorizonError
	require.ErrorAs(t, err, &horizon)
	assert.Equal(t, 6, horizon.RequestedMonths)
	assert.Equal(t, 2, horizon.MaxMonths)
}

func TestNewLoan_RateChangeDoesNotAffectExistingLoan(t *testing.T) {
	settings := testSettings()
	at := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	loan, err := engine.NewLoan("saver-1", decimal.NewFromInt(1_000_000), 3,
		settings, decimal.NewFromInt(2_000_000), at)
	require.NoError(t, err)

	settings.InterestRate = decimal.NewFromInt(10)
	assert.True(t, loan.InterestRate.Equal(decimal.NewFromInt(2)))
	assert.True(t, loan.TotalToPay.Equal(decimal.NewFromInt(1_060_000)))
}

// =============================================================================
// LOAN STATE MACHINE
// =============================================================================

func TestRecordPayment_TransitionsExactlyAtDuration(t *testing.T) {
	loan := engine.Loan{
		ID:             "loan-1",
		DurationMonths: 3,
		MonthlyPayment: decimal.NewFromInt(353_333),
		TotalToPay:     decimal.NewFromInt(1_060_000),
		Status:         engine.LoanActive,
	}

	var err error
	loan, err = engine.RecordPayment(loan)
	require.NoError(t, err)
	assert.Equal(t, engine.LoanActive, loan.Status, "1 of 3")

	loan, err = engine.RecordPayment(loan)
	require.NoError(t, err)
	assert.Equal(t, engine.LoanActive, loan.Status, "2 of 3")

	loan, err = engine.RecordPayment(loan)
	require.NoError(t, err)
	assert.Equal(t, engine.LoanPaid, loan.Status, "3 of 3 flips to paid")
	assert.Equal(t, 3, loan.PaymentsMade)
}

func TestRecordPayment_PaidLoanRejectsFurtherPayments(t *testing.T) {
	loan := engine.Loan{DurationMonths: 1, Status: engine.LoanActive}

	loan, err := engine.RecordPayment(loan)
	require.NoError(t, err)
	require.Equal(t, engine.LoanPaid, loan.Status)

	_, err = engine.RecordPayment(loan)
	assert.ErrorIs(t, err, engine.ErrLoanAlreadyPaid)
	assert.Equal(t, 1, loan.PaymentsMade, "counter never moves again")
}

func TestLoan_Remaining(t *testing.T) {
	loan := engine.Loan{
		DurationMonths: 4,
		MonthlyPayment: decimal.NewFromInt(250),
		TotalToPay:     decimal.NewFromInt(1000),
		PaymentsMade:   3,
	}
	assert.True(t, loan.Remaining().Equal(decimal.NewFromInt(250)))
}
