package fund_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahorra/fund-engine/engine"
	"github.com/ahorra/fund-engine/fund"
	"github.com/ahorra/fund-engine/store/memory"
)

// =============================================================================
// FIXTURES
// =============================================================================

const testUser = "user-1"

func newTestService(t *testing.T, at time.Time) (*fund.Service, fund.Session) {
	t.Helper()

	store := memory.New()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	svc := fund.NewService(store, log)
	svc.Now = func() time.Time { return at }

	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, fund.User{
		ID:        testUser,
		Name:      "Admin",
		Email:     "admin@example.com",
		CreatedAt: at,
	}))

	sess := fund.Session{UserID: testUser}
	_, err := svc.UpdateSettings(ctx, sess, engine.FundSettings{
		InterestRate:    decimal.NewFromInt(2),
		StartDate:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		EnableReminders: true,
	})
	require.NoError(t, err)

	return svc, sess
}

func createSaver(t *testing.T, svc *fund.Service, sess fund.Session, name string) *engine.Saver {
	t.Helper()
	saver, err := svc.CreateSaver(context.Background(), sess, name,
		decimal.NewFromInt(5000), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return saver
}

// settle marks both dues of the given period paid and returns the final
// toggle result.
func settle(t *testing.T, svc *fund.Service, sess fund.Session, periodID engine.PeriodID) *fund.ToggleResult {
	t.Helper()
	ctx := context.Background()
	_, err := svc.ToggleDue(ctx, sess, periodID, engine.TrackQ1)
	require.NoError(t, err)
	result, err := svc.ToggleDue(ctx, sess, periodID, engine.TrackQ2)
	require.NoError(t, err)
	return result
}

// =============================================================================
// SAVER LIFECYCLE
// =============================================================================

func TestCreateSaverOpensFirstPeriod(t *testing.T) {
	svc, sess := newTestService(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))

	saver := createSaver(t, svc, sess, "Maria")

	require.Len(t, saver.Periods, 1)
	assert.Equal(t, "2025-01", saver.Periods[0].Month.String())
	assert.False(t, saver.Periods[0].Q1Paid)
	assert.False(t, saver.Periods[0].Q2Paid)
}

func TestCreateSaverRejectsBlankName(t *testing.T) {
	svc, sess := newTestService(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))

	_, err := svc.CreateSaver(context.Background(), sess, "   ",
		decimal.NewFromInt(5000), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestDeleteSaverRemovesEverything(t *testing.T) {
	svc, sess := newTestService(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	saver := createSaver(t, svc, sess, "Maria")

	require.NoError(t, svc.DeleteSaver(ctx, sess, saver.ID))

	_, err := svc.GetSaver(ctx, sess, saver.ID)
	assert.True(t, engine.IsNotFound(err))
}

// =============================================================================
// TOGGLES AND AUTO-GENERATION
// =============================================================================

func TestToggleDueRoundTrip(t *testing.T) {
	// GIVEN a fresh saver
	svc, sess := newTestService(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	saver := createSaver(t, svc, sess, "Maria")
	periodID := saver.Periods[0].ID
	ctx := context.Background()

	// WHEN toggling Q1 on and off again
	result, err := svc.ToggleDue(ctx, sess, periodID, engine.TrackQ1)
	require.NoError(t, err)
	assert.True(t, result.Period.Q1Paid)

	result, err = svc.ToggleDue(ctx, sess, periodID, engine.TrackQ1)
	require.NoError(t, err)

	// THEN the period is back in its prior state
	assert.False(t, result.Period.Q1Paid)
	assert.Nil(t, result.Generated)
}

func TestSettlingLastPeriodGeneratesNextMonth(t *testing.T) {
	svc, sess := newTestService(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC))
	saver := createSaver(t, svc, sess, "Maria")

	result := settle(t, svc, sess, saver.Periods[0].ID)

	require.NotNil(t, result.Generated)
	assert.Equal(t, "2025-02", result.Generated.Month.String())

	reloaded, err := svc.GetSaver(context.Background(), sess, saver.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Periods, 2)
}

func TestSettlingLastPeriodAtFundEndStopsGenerating(t *testing.T) {
	// GIVEN a fund ending in December and a saver settled up to December
	svc, sess := newTestService(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC))
	saver := createSaver(t, svc, sess, "Maria")

	var last *fund.ToggleResult
	current := saver.Periods[0].ID
	for i := 0; i < 12; i++ {
		last = settle(t, svc, sess, current)
		if last.Generated == nil {
			break
		}
		current = last.Generated.ID
	}

	// THEN December settles without a successor
	assert.Equal(t, "2025-12", last.Period.Month.String())
	assert.Nil(t, last.Generated)
}

func TestToggleDueWithoutSettingsLeavesPeriodUntouched(t *testing.T) {
	// GIVEN an account whose settings row is missing
	store := memory.New()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	svc := fund.NewService(store, log)
	svc.Now = func() time.Time { return time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, fund.User{ID: testUser, Name: "Admin", Email: "admin@example.com"}))
	sess := fund.Session{UserID: testUser}

	saver := createSaver(t, svc, sess, "Maria")
	periodID := saver.Periods[0].ID

	_, err := svc.ToggleDue(ctx, sess, periodID, engine.TrackQ1)
	require.NoError(t, err)

	// WHEN the Q2 toggle would settle the last period and need the settings
	_, err = svc.ToggleDue(ctx, sess, periodID, engine.TrackQ2)

	// THEN the operation fails as a whole: Q2 stays unpaid in the store
	require.Error(t, err)
	assert.True(t, engine.IsNotFound(err))

	reloaded, err := svc.GetSaver(ctx, sess, saver.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Periods, 1)
	assert.False(t, reloaded.Periods[0].Q2Paid)
}

func TestToggleLockedPeriodRejected(t *testing.T) {
	// GIVEN a saver with an unsettled January and a February period
	svc, sess := newTestService(t, time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC))
	saver := createSaver(t, svc, sess, "Maria")
	settle(t, svc, sess, saver.Periods[0].ID)

	reloaded, err := svc.GetSaver(context.Background(), sess, saver.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Periods, 2)
	febID := reloaded.Periods[1].ID

	// Reopen January so February becomes locked
	_, err = svc.ToggleDue(context.Background(), sess, reloaded.Periods[0].ID, engine.TrackQ1)
	require.NoError(t, err)

	// WHEN toggling February
	_, err = svc.ToggleDue(context.Background(), sess, febID, engine.TrackQ1)

	// THEN the mutation is rejected with the locked-period error
	var lockedErr *engine.LockedPeriodError
	require.ErrorAs(t, err, &lockedErr)
	assert.Equal(t, febID, lockedErr.PeriodID)
}

func TestApplyPenaltyOverwritesAndClearsPaidFlag(t *testing.T) {
	svc, sess := newTestService(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC))
	saver := createSaver(t, svc, sess, "Maria")
	periodID := saver.Periods[0].ID
	ctx := context.Background()

	period, err := svc.ApplyPenalty(ctx, sess, periodID, engine.TrackQ1, decimal.NewFromInt(5000))
	require.NoError(t, err)
	assert.True(t, period.Q1Penalty.Equal(decimal.NewFromInt(5000)))

	// Pay it, then re-assess with a different amount
	period, err = svc.TogglePenaltyPaid(ctx, sess, periodID, engine.TrackQ1)
	require.NoError(t, err)
	assert.True(t, period.Q1PenaltyPaid)

	period, err = svc.ApplyPenalty(ctx, sess, periodID, engine.TrackQ1, decimal.NewFromInt(8000))
	require.NoError(t, err)
	assert.True(t, period.Q1Penalty.Equal(decimal.NewFromInt(8000)))
	assert.False(t, period.Q1PenaltyPaid)
}

func TestApplyPenaltyRejectsNegativeAmount(t *testing.T) {
	svc, sess := newTestService(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC))
	saver := createSaver(t, svc, sess, "Maria")

	_, err := svc.ApplyPenalty(context.Background(), sess, saver.Periods[0].ID,
		engine.TrackQ1, decimal.NewFromInt(-1))

	assert.ErrorIs(t, err, engine.ErrValidation)
}

// =============================================================================
// LOANS
// =============================================================================

// fundSavers seeds enough settled savers that the pool can cover a loan.
func fundSavers(t *testing.T, svc *fund.Service, sess fund.Session, n int) []*engine.Saver {
	t.Helper()
	savers := make([]*engine.Saver, n)
	for i := 0; i < n; i++ {
		s := createSaver(t, svc, sess, "Saver "+string(rune('A'+i)))
		settle(t, svc, sess, s.Periods[0].ID)
		savers[i] = s
	}
	return savers
}

func TestCreateLoanHappyPath(t *testing.T) {
	// GIVEN three settled savers (3 x 10,000 in the pool)
	svc, sess := newTestService(t, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC))
	savers := fundSavers(t, svc, sess, 3)
	ctx := context.Background()

	// WHEN one borrows 20,000 for 3 months at 2%
	loan, err := svc.CreateLoan(ctx, sess, savers[0].ID, decimal.NewFromInt(20000), 3)

	// THEN the amortization snapshot matches amount * rate/100 * months
	require.NoError(t, err)
	assert.True(t, loan.TotalInterest.Equal(decimal.NewFromInt(1200)), loan.TotalInterest.String())
	assert.True(t, loan.TotalToPay.Equal(decimal.NewFromInt(21200)))
	assert.Equal(t, engine.LoanActive, loan.Status)
}

func TestCreateLoanInsufficientFundsByOneUnit(t *testing.T) {
	svc, sess := newTestService(t, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC))
	savers := fundSavers(t, svc, sess, 3) // pool = 30,000
	ctx := context.Background()

	_, err := svc.CreateLoan(ctx, sess, savers[0].ID, decimal.NewFromInt(30001), 3)

	var insufficientErr *engine.InsufficientFundsError
	require.ErrorAs(t, err, &insufficientErr)
	assert.True(t, insufficientErr.Available.Equal(decimal.NewFromInt(30000)))

	// Exactly the pool is allowed
	_, err = svc.CreateLoan(ctx, sess, savers[0].ID, decimal.NewFromInt(30000), 3)
	assert.NoError(t, err)
}

func TestCreateLoanPrincipalReducesPool(t *testing.T) {
	svc, sess := newTestService(t, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC))
	savers := fundSavers(t, svc, sess, 3)
	ctx := context.Background()

	_, err := svc.CreateLoan(ctx, sess, savers[0].ID, decimal.NewFromInt(25000), 3)
	require.NoError(t, err)

	report, err := svc.Report(ctx, sess)
	require.NoError(t, err)
	assert.True(t, report.AvailableFunds.Equal(decimal.NewFromInt(5000)),
		report.AvailableFunds.String())
}

func TestCreateLoanIneligibleOverdueDue(t *testing.T) {
	// GIVEN a saver past the Q1 deadline with the due unpaid
	svc, sess := newTestService(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))
	saver := createSaver(t, svc, sess, "Maria")

	_, err := svc.CreateLoan(context.Background(), sess, saver.ID, decimal.NewFromInt(100), 2)

	var ineligibleErr *engine.IneligibleError
	require.ErrorAs(t, err, &ineligibleErr)
	assert.Equal(t, engine.TrackQ1, ineligibleErr.Track)
}

func TestCreateLoanExceedsFundHorizon(t *testing.T) {
	// GIVEN the fund ends 2025-12 and it is February
	svc, sess := newTestService(t, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC))
	savers := fundSavers(t, svc, sess, 2)

	// WHEN asking for 24 months with only 10 left before the fund ends
	_, err := svc.CreateLoan(context.Background(), sess, savers[0].ID, decimal.NewFromInt(1000), 24)

	var horizonErr *engine.ExceedsFundHorizonError
	require.ErrorAs(t, err, &horizonErr)
	assert.Equal(t, 24, horizonErr.RequestedMonths)
	assert.Equal(t, 10, horizonErr.MaxMonths)
}

func TestQuoteLoanUsesCurrentRate(t *testing.T) {
	svc, sess := newTestService(t, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC))

	quote, err := svc.QuoteLoan(context.Background(), sess, decimal.NewFromInt(1000), 3)

	require.NoError(t, err)
	assert.True(t, quote.TotalInterest.Equal(decimal.NewFromInt(60)))
	assert.True(t, quote.TotalToPay.Equal(decimal.NewFromInt(1060)))
}

func TestLoanPaymentLifecycle(t *testing.T) {
	svc, sess := newTestService(t, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC))
	savers := fundSavers(t, svc, sess, 3)
	ctx := context.Background()

	loan, err := svc.CreateLoan(ctx, sess, savers[0].ID, decimal.NewFromInt(9000), 3)
	require.NoError(t, err)

	// Two payments keep it active
	for i := 0; i < 2; i++ {
		updated, err := svc.RecordLoanPayment(ctx, sess, loan.ID)
		require.NoError(t, err)
		assert.Equal(t, engine.LoanActive, updated.Status)
	}

	// Third payment completes it
	updated, err := svc.RecordLoanPayment(ctx, sess, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.LoanPaid, updated.Status)

	// A fourth is rejected
	_, err = svc.RecordLoanPayment(ctx, sess, loan.ID)
	assert.ErrorIs(t, err, engine.ErrLoanAlreadyPaid)
}

func TestConcurrentLoanCreationNeverOverdraws(t *testing.T) {
	// GIVEN a pool of 30,000 and two loans of 20,000 racing
	svc, sess := newTestService(t, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC))
	savers := fundSavers(t, svc, sess, 3)
	ctx := context.Background()

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.CreateLoan(ctx, sess, savers[0].ID, decimal.NewFromInt(20000), 3)
			results <- err
		}()
	}

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			assert.ErrorIs(t, err, engine.ErrInsufficientFunds)
			failures++
		}
	}

	// Exactly one must fail; both succeeding would overdraw the pool.
	assert.Equal(t, 1, failures)

	report, err := svc.Report(ctx, sess)
	require.NoError(t, err)
	assert.False(t, report.AvailableFunds.IsNegative())
}

// =============================================================================
// SETTINGS AND REPORT
// =============================================================================

func TestUpdateSettingsValidation(t *testing.T) {
	svc, sess := newTestService(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))

	_, err := svc.UpdateSettings(context.Background(), sess, engine.FundSettings{
		InterestRate: decimal.NewFromInt(-1),
		StartDate:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, engine.ErrValidation)

	_, err = svc.UpdateSettings(context.Background(), sess, engine.FundSettings{
		InterestRate: decimal.NewFromInt(2),
		StartDate:    time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestReportFigures(t *testing.T) {
	svc, sess := newTestService(t, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC))
	savers := fundSavers(t, svc, sess, 2) // 2 settled savers, 10,000 each
	ctx := context.Background()

	loan, err := svc.CreateLoan(ctx, sess, savers[0].ID, decimal.NewFromInt(6000), 2)
	require.NoError(t, err)
	_, err = svc.RecordLoanPayment(ctx, sess, loan.ID)
	require.NoError(t, err)

	report, err := svc.Report(ctx, sess)
	require.NoError(t, err)

	assert.Equal(t, 2, report.SaversCount)
	assert.Equal(t, 1, report.ActiveLoansCount)
	assert.True(t, report.TotalSavings.Equal(decimal.NewFromInt(20000)))
	// 20,000 saved - 6,000 principal + 1 monthly payment of 3,120
	assert.True(t, report.AvailableFunds.Equal(decimal.NewFromInt(17120)),
		report.AvailableFunds.String())
	assert.True(t, report.ActiveLoansCapital.Equal(decimal.NewFromInt(6000)))
}

// =============================================================================
// REMINDERS
// =============================================================================

func TestReminderDue(t *testing.T) {
	svc, sess := newTestService(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	due, _, err := svc.ReminderDue(ctx, sess, time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, due)

	due, track, err := svc.ReminderDue(ctx, sess, time.Date(2025, 1, 3, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, due)
	assert.Equal(t, engine.TrackQ1, track)

	due, track, err = svc.ReminderDue(ctx, sess, time.Date(2025, 1, 18, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, due)
	assert.Equal(t, engine.TrackQ2, track)
}

func TestReminderDisabledBySettings(t *testing.T) {
	svc, sess := newTestService(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := svc.UpdateSettings(ctx, sess, engine.FundSettings{
		InterestRate:    decimal.NewFromInt(2),
		StartDate:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		EnableReminders: false,
	})
	require.NoError(t, err)

	due, _, err := svc.ReminderDue(ctx, sess, time.Date(2025, 1, 3, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, due)
}
