/*
service.go - Fund operations

PURPOSE:
  The operations the HTTP layer calls: saver management, due/penalty
  toggles, loan creation and repayment, period generation, settings, and
  the aggregate report.

CONCURRENCY:
  The engine reads full saver history for eligibility and available-funds
  checks, so concurrent loan creation against the same saver is serialized
  with one mutex per saver. The available-funds figure is recomputed from
  the store inside that exclusive section; a client-cached value is never
  trusted for the final approval decision.

TIME:
  Every deadline-sensitive call takes its evaluation instant from the Now
  hook, fixed once per operation. Tests override Now to simulate dates.
*/
package fund

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ahorra/fund-engine/engine"
)

// Service exposes the fund operations over a Store.
type Service struct {
	store Store
	log   *logrus.Logger

	// Now supplies the evaluation instant; overridable in tests.
	Now func() time.Time

	mu      sync.Mutex
	saverMu map[engine.SaverID]*sync.Mutex
}

func NewService(store Store, log *logrus.Logger) *Service {
	return &Service{
		store:   store,
		log:     log,
		Now:     time.Now,
		saverMu: make(map[engine.SaverID]*sync.Mutex),
	}
}

// lockSaver acquires the per-saver mutex, creating it on first use.
func (s *Service) lockSaver(id engine.SaverID) func() {
	s.mu.Lock()
	m, ok := s.saverMu[id]
	if !ok {
		m = &sync.Mutex{}
		s.saverMu[id] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// =============================================================================
// SAVERS
// =============================================================================

// ListSavers returns the session's savers with periods and loans attached.
func (s *Service) ListSavers(ctx context.Context, sess Session) ([]engine.Saver, error) {
	return s.store.ListSavers(ctx, sess.UserID)
}

func (s *Service) GetSaver(ctx context.Context, sess Session, id engine.SaverID) (*engine.Saver, error) {
	return s.store.GetSaver(ctx, sess.UserID, id)
}

// CreateSaver registers a new member and opens their first period at their
// start month.
func (s *Service) CreateSaver(ctx context.Context, sess Session, name string, biWeekly decimal.Decimal, startDate time.Time) (*engine.Saver, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &engine.ValidationError{Field: "name", Message: "name is required"}
	}
	if !biWeekly.IsPositive() {
		return nil, &engine.ValidationError{Field: "bi_weekly_amount", Message: "bi-weekly amount must be positive"}
	}

	saver := engine.Saver{
		ID:             engine.SaverID(uuid.NewString()),
		Name:           name,
		BiWeeklyAmount: biWeekly,
		StartDate:      startDate,
	}
	saver.Periods = []engine.Period{engine.InitialPeriod(&saver)}

	if err := s.store.CreateSaver(ctx, sess.UserID, saver); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"saver_id": saver.ID,
		"month":    saver.Periods[0].Month.String(),
	}).Info("saver created")
	return &saver, nil
}

// UpdateSaver changes the member's name and/or bi-weekly amount. The new
// amount applies to future settlement valuation only; the ledger always
// values paid dues at the saver's current amount.
func (s *Service) UpdateSaver(ctx context.Context, sess Session, id engine.SaverID, name string, biWeekly decimal.Decimal) (*engine.Saver, error) {
	saver, err := s.store.GetSaver(ctx, sess.UserID, id)
	if err != nil {
		return nil, err
	}

	if name = strings.TrimSpace(name); name != "" {
		saver.Name = name
	}
	if !biWeekly.IsZero() {
		if biWeekly.IsNegative() {
			return nil, &engine.ValidationError{Field: "bi_weekly_amount", Message: "bi-weekly amount must be positive"}
		}
		saver.BiWeeklyAmount = biWeekly
	}

	if err := s.store.UpdateSaver(ctx, sess.UserID, *saver); err != nil {
		return nil, err
	}
	return saver, nil
}

// DeleteSaver removes the member and cascades to periods and loans.
func (s *Service) DeleteSaver(ctx context.Context, sess Session, id engine.SaverID) error {
	if err := s.store.DeleteSaver(ctx, sess.UserID, id); err != nil {
		return err
	}
	s.log.WithField("saver_id", id).Info("saver deleted")
	return nil
}

// =============================================================================
// PERIOD MUTATIONS
// =============================================================================

// ToggleResult reports the outcome of a due toggle: the updated period and
// the freshly generated successor, if the toggle settled the last period.
type ToggleResult struct {
	Period    engine.Period
	Generated *engine.Period
}

// ToggleDue flips the due-paid flag for one track. When the toggle settles
// the chronologically last period, the next period is generated in the
// same operation (unless the fund has closed).
func (s *Service) ToggleDue(ctx context.Context, sess Session, periodID engine.PeriodID, track engine.Track) (*ToggleResult, error) {
	saver, err := s.store.GetSaverByPeriod(ctx, sess.UserID, periodID)
	if err != nil {
		return nil, err
	}

	updated, err := engine.ToggleDue(saver.Periods, periodID, track)
	if err != nil {
		return nil, err
	}

	// Settings are fetched before the period is persisted, so a missing or
	// unreadable settings row rejects the whole toggle instead of leaving
	// the flag flipped with no successor generated.
	last := saver.LastPeriod()
	willGenerate := updated.Settled() && last != nil && last.ID == updated.ID

	var settings engine.FundSettings
	if willGenerate {
		settings, err = s.store.GetSettings(ctx, sess.UserID)
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.SavePeriod(ctx, sess.UserID, updated); err != nil {
		return nil, err
	}

	result := &ToggleResult{Period: updated}

	// Settling the last period opens the next month.
	if willGenerate {
		// Reflect the toggle before generating.
		saver.Periods[len(saver.Periods)-1] = updated

		next, err := engine.GenerateNextPeriod(saver, settings)
		switch {
		case err == nil:
			if err := s.store.AppendPeriod(ctx, sess.UserID, next); err != nil {
				return nil, err
			}
			result.Generated = &next
		case errors.Is(err, engine.ErrFundClosed):
			// Fund horizon reached: the sequence simply ends here.
		default:
			return nil, err
		}
	}

	return result, nil
}

// TogglePenaltyPaid flips the penalty-paid flag for one track.
func (s *Service) TogglePenaltyPaid(ctx context.Context, sess Session, periodID engine.PeriodID, track engine.Track) (*engine.Period, error) {
	saver, err := s.store.GetSaverByPeriod(ctx, sess.UserID, periodID)
	if err != nil {
		return nil, err
	}

	updated, err := engine.TogglePenaltyPaid(saver.Periods, periodID, track)
	if err != nil {
		return nil, err
	}
	if err := s.store.SavePeriod(ctx, sess.UserID, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ApplyPenalty records an externally assessed penalty amount on a track.
// The engine never computes penalty amounts; this is the entry point for
// the collaborator that does. Re-applying overwrites the amount and clears
// the paid flag.
func (s *Service) ApplyPenalty(ctx context.Context, sess Session, periodID engine.PeriodID, track engine.Track, amount decimal.Decimal) (*engine.Period, error) {
	if !track.Valid() {
		return nil, &engine.ValidationError{Field: "track", Message: "track must be q1 or q2"}
	}
	if amount.IsNegative() {
		return nil, &engine.ValidationError{Field: "amount", Message: "penalty amount must not be negative"}
	}

	saver, err := s.store.GetSaverByPeriod(ctx, sess.UserID, periodID)
	if err != nil {
		return nil, err
	}

	var updated engine.Period
	found := false
	for _, p := range saver.Periods {
		if p.ID == periodID {
			updated = p
			found = true
			break
		}
	}
	if !found {
		return nil, &engine.NotFoundError{Kind: "period", ID: string(periodID)}
	}

	if track == engine.TrackQ1 {
		updated.Q1Penalty = amount
		updated.Q1PenaltyPaid = false
	} else {
		updated.Q2Penalty = amount
		updated.Q2PenaltyPaid = false
	}

	if err := s.store.SavePeriod(ctx, sess.UserID, updated); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"period_id": periodID,
		"track":     track,
		"amount":    amount.String(),
	}).Info("penalty applied")
	return &updated, nil
}

// GenerateNextPeriod explicitly appends the saver's next period.
func (s *Service) GenerateNextPeriod(ctx context.Context, sess Session, saverID engine.SaverID) (*engine.Period, error) {
	saver, err := s.store.GetSaver(ctx, sess.UserID, saverID)
	if err != nil {
		return nil, err
	}
	settings, err := s.store.GetSettings(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	next, err := engine.GenerateNextPeriod(saver, settings)
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendPeriod(ctx, sess.UserID, next); err != nil {
		return nil, err
	}
	return &next, nil
}

// =============================================================================
// LOANS
// =============================================================================

// CheckEligibility returns the loan eligibility verdict for a saver.
func (s *Service) CheckEligibility(ctx context.Context, sess Session, saverID engine.SaverID) (engine.Eligibility, error) {
	saver, err := s.store.GetSaver(ctx, sess.UserID, saverID)
	if err != nil {
		return engine.Eligibility{}, err
	}
	settings, err := s.store.GetSettings(ctx, sess.UserID)
	if err != nil {
		return engine.Eligibility{}, err
	}
	return engine.CheckEligibility(saver.Periods, settings, s.Now()), nil
}

// QuoteLoan previews amortization for a proposed loan without creating it.
func (s *Service) QuoteLoan(ctx context.Context, sess Session, principal decimal.Decimal, durationMonths int) (engine.LoanQuote, error) {
	settings, err := s.store.GetSettings(ctx, sess.UserID)
	if err != nil {
		return engine.LoanQuote{}, err
	}
	return engine.Amortize(principal, settings.InterestRate, durationMonths)
}

// CreateLoan runs the full eligibility + amortization flow and persists
// the loan. Serialized per saver; every check reads fresh store state
// inside the exclusive section.
func (s *Service) CreateLoan(ctx context.Context, sess Session, saverID engine.SaverID, principal decimal.Decimal, durationMonths int) (*engine.Loan, error) {
	unlock := s.lockSaver(saverID)
	defer unlock()

	saver, err := s.store.GetSaver(ctx, sess.UserID, saverID)
	if err != nil {
		return nil, err
	}
	settings, err := s.store.GetSettings(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	at := s.Now()
	if err := engine.CheckEligibilityErr(saver.Periods, settings, at); err != nil {
		return nil, err
	}

	savers, err := s.store.ListSavers(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	available := engine.AvailableFunds(savers)

	loan, err := engine.NewLoan(saverID, principal, durationMonths, settings, available, at)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateLoan(ctx, sess.UserID, loan); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"saver_id":  saverID,
		"loan_id":   loan.ID,
		"principal": loan.Principal.String(),
		"months":    loan.DurationMonths,
	}).Info("loan created")
	return &loan, nil
}

// RecordLoanPayment advances the loan by one installment.
func (s *Service) RecordLoanPayment(ctx context.Context, sess Session, loanID engine.LoanID) (*engine.Loan, error) {
	loan, err := s.store.GetLoan(ctx, sess.UserID, loanID)
	if err != nil {
		return nil, err
	}

	updated, err := engine.RecordPayment(*loan)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveLoan(ctx, sess.UserID, updated); err != nil {
		return nil, err
	}

	if updated.Status == engine.LoanPaid {
		s.log.WithField("loan_id", loanID).Info("loan fully repaid")
	}
	return &updated, nil
}

func (s *Service) DeleteLoan(ctx context.Context, sess Session, loanID engine.LoanID) error {
	return s.store.DeleteLoan(ctx, sess.UserID, loanID)
}

// =============================================================================
// SETTINGS AND REPORTING
// =============================================================================

func (s *Service) GetSettings(ctx context.Context, sess Session) (engine.FundSettings, error) {
	return s.store.GetSettings(ctx, sess.UserID)
}

// UpdateSettings replaces the fund settings. Existing loans keep their
// rate snapshots; past penalties are untouched.
func (s *Service) UpdateSettings(ctx context.Context, sess Session, settings engine.FundSettings) (engine.FundSettings, error) {
	if err := settings.Validate(); err != nil {
		return engine.FundSettings{}, err
	}
	if err := s.store.SaveSettings(ctx, sess.UserID, settings); err != nil {
		return engine.FundSettings{}, err
	}
	return settings, nil
}

// Report recomputes the fund-wide aggregate figures from scratch.
func (s *Service) Report(ctx context.Context, sess Session) (engine.Report, error) {
	savers, err := s.store.ListSavers(ctx, sess.UserID)
	if err != nil {
		return engine.Report{}, err
	}
	return engine.BuildReport(savers), nil
}

// ReminderDue reports whether the given instant falls on a due day (3 or
// 18) and reminders are enabled for this user. Advisory only; no ledger
// impact.
func (s *Service) ReminderDue(ctx context.Context, sess Session, at time.Time) (bool, engine.Track, error) {
	settings, err := s.store.GetSettings(ctx, sess.UserID)
	if err != nil {
		return false, "", err
	}
	if !settings.EnableReminders {
		return false, "", nil
	}
	switch at.Day() {
	case 3:
		return true, engine.TrackQ1, nil
	case 18:
		return true, engine.TrackQ2, nil
	}
	return false, "", nil
}
