/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request structs carry go-playground/validator tags; handlers run them
  through the shared validator before touching the service layer.

SEE ALSO:
  - handlers.go: Uses these types
  - auth.go: Auth handlers share the auth request types defined here
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ahorra/fund-engine/engine"
)

// =============================================================================
// AUTH
// =============================================================================

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileRequest struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" validate:"omitempty,min=8"`
}

type AuthResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

type UserDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// =============================================================================
// SETTINGS
// =============================================================================

type SettingsDTO struct {
	InterestRate    string `json:"interest_rate"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	EnableReminders bool   `json:"enable_reminders"`
}

type UpdateSettingsRequest struct {
	InterestRate    string `json:"interest_rate" validate:"required"`
	StartDate       string `json:"start_date" validate:"required"`
	EndDate         string `json:"end_date" validate:"required"`
	EnableReminders bool   `json:"enable_reminders"`
}

// =============================================================================
// SAVERS
// =============================================================================

type CreateSaverRequest struct {
	Name           string `json:"name" validate:"required"`
	BiWeeklyAmount string `json:"bi_weekly_amount" validate:"required"`
	StartDate      string `json:"start_date"`
}

type UpdateSaverRequest struct {
	Name           string `json:"name"`
	BiWeeklyAmount string `json:"bi_weekly_amount"`
}

// SaverDTO carries a saver with the derived period states the UI renders.
type SaverDTO struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	BiWeeklyAmount string      `json:"bi_weekly_amount"`
	StartDate      string      `json:"start_date"`
	TotalSaved     string      `json:"total_saved"`
	Periods        []PeriodDTO `json:"periods"`
	Loans          []LoanDTO   `json:"loans"`
}

// =============================================================================
// PERIODS
// =============================================================================

type PeriodDTO struct {
	ID            string `json:"id"`
	Month         string `json:"month"`
	Q1Paid        bool   `json:"q1_paid"`
	Q2Paid        bool   `json:"q2_paid"`
	Q1Penalty     string `json:"q1_penalty"`
	Q1PenaltyPaid bool   `json:"q1_penalty_paid"`
	Q2Penalty     string `json:"q2_penalty"`
	Q2PenaltyPaid bool   `json:"q2_penalty_paid"`
	Q1State       string `json:"q1_state"`
	Q2State       string `json:"q2_state"`
	Locked        bool   `json:"locked"`
}

type TrackRequest struct {
	Track string `json:"track" validate:"required,oneof=q1 q2"`
}

type ApplyPenaltyRequest struct {
	Track  string `json:"track" validate:"required,oneof=q1 q2"`
	Amount string `json:"amount" validate:"required"`
}

// ToggleDueResponse reports the toggled period and, when settling the last
// period opened a new month, the generated successor.
type ToggleDueResponse struct {
	Period    PeriodDTO  `json:"period"`
	Generated *PeriodDTO `json:"generated,omitempty"`
}

// =============================================================================
// LOANS
// =============================================================================

type CreateLoanRequest struct {
	Amount         string `json:"amount" validate:"required"`
	DurationMonths int    `json:"duration_months" validate:"required,min=1"`
}

type LoanDTO struct {
	ID             string `json:"id"`
	SaverID        string `json:"saver_id"`
	Principal      string `json:"principal"`
	DurationMonths int    `json:"duration_months"`
	InterestRate   string `json:"interest_rate"`
	TotalInterest  string `json:"total_interest"`
	TotalToPay     string `json:"total_to_pay"`
	MonthlyPayment string `json:"monthly_payment"`
	StartDate      string `json:"start_date"`
	Status         string `json:"status"`
	PaymentsMade   int    `json:"payments_made"`
	Remaining      string `json:"remaining"`
}

type EligibilityDTO struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
	Month    string `json:"month,omitempty"`
	Track    string `json:"track,omitempty"`
}

// =============================================================================
// REPORTS
// =============================================================================

type ReportDTO struct {
	AvailableFunds            string `json:"available_funds"`
	TotalSavings              string `json:"total_savings"`
	ExpectedMonthlyCollection string `json:"expected_monthly_collection"`
	TotalInterestEarned       string `json:"total_interest_earned"`
	TotalPenaltiesCollected   string `json:"total_penalties_collected"`
	ActiveLoansCapital        string `json:"active_loans_capital"`
	TotalLoansGiven           string `json:"total_loans_given"`
	TotalLoanPaymentsReceived string `json:"total_loan_payments_received"`
	SaversCount               int    `json:"savers_count"`
	ActiveLoansCount          int    `json:"active_loans_count"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

const dateFormat = "2006-01-02"

func toSettingsDTO(s engine.FundSettings) SettingsDTO {
	return SettingsDTO{
		InterestRate:    s.InterestRate.String(),
		StartDate:       s.StartDate.Format(dateFormat),
		EndDate:         s.EndDate.Format(dateFormat),
		EnableReminders: s.EnableReminders,
	}
}

func toPeriodDTO(p engine.Period, status engine.PeriodStatus) PeriodDTO {
	return PeriodDTO{
		ID:            string(p.ID),
		Month:         p.Month.String(),
		Q1Paid:        p.Q1Paid,
		Q2Paid:        p.Q2Paid,
		Q1Penalty:     p.Q1Penalty.String(),
		Q1PenaltyPaid: p.Q1PenaltyPaid,
		Q2Penalty:     p.Q2Penalty.String(),
		Q2PenaltyPaid: p.Q2PenaltyPaid,
		Q1State:       string(status.Q1),
		Q2State:       string(status.Q2),
		Locked:        status.Locked,
	}
}

func toLoanDTO(l engine.Loan) LoanDTO {
	return LoanDTO{
		ID:             string(l.ID),
		SaverID:        string(l.SaverID),
		Principal:      l.Principal.String(),
		DurationMonths: l.DurationMonths,
		InterestRate:   l.InterestRate.String(),
		TotalInterest:  l.TotalInterest.String(),
		TotalToPay:     l.TotalToPay.String(),
		MonthlyPayment: l.MonthlyPayment.String(),
		StartDate:      l.StartDate.Format(dateFormat),
		Status:         string(l.Status),
		PaymentsMade:   l.PaymentsMade,
		Remaining:      l.Remaining().String(),
	}
}

func toSaverDTO(s engine.Saver, settings engine.FundSettings, at time.Time) SaverDTO {
	dto := SaverDTO{
		ID:             string(s.ID),
		Name:           s.Name,
		BiWeeklyAmount: s.BiWeeklyAmount.String(),
		StartDate:      s.StartDate.Format(dateFormat),
		TotalSaved:     s.TotalSaved().String(),
		Periods:        make([]PeriodDTO, len(s.Periods)),
		Loans:          make([]LoanDTO, len(s.Loans)),
	}
	for i, p := range s.Periods {
		status := engine.StatusAt(s.Periods, i, settings, at)
		dto.Periods[i] = toPeriodDTO(p, status)
	}
	for i, l := range s.Loans {
		dto.Loans[i] = toLoanDTO(l)
	}
	return dto
}

func toReportDTO(r engine.Report) ReportDTO {
	return ReportDTO{
		AvailableFunds:            r.AvailableFunds.String(),
		TotalSavings:              r.TotalSavings.String(),
		ExpectedMonthlyCollection: r.ExpectedMonthlyCollection.String(),
		TotalInterestEarned:       r.TotalInterestEarned.String(),
		TotalPenaltiesCollected:   r.TotalPenaltiesCollected.String(),
		ActiveLoansCapital:        r.ActiveLoansCapital.String(),
		TotalLoansGiven:           r.TotalLoansGiven.String(),
		TotalLoanPaymentsReceived: r.TotalLoanPaymentsReceived.String(),
		SaversCount:               r.SaversCount,
		ActiveLoansCount:          r.ActiveLoansCount,
	}
}

func toEligibilityDTO(e engine.Eligibility) EligibilityDTO {
	dto := EligibilityDTO{Eligible: e.Eligible, Reason: e.Reason}
	if !e.Eligible {
		dto.Month = e.Month.String()
		dto.Track = string(e.Track)
	}
	return dto
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, &engine.ValidationError{Field: field, Message: "must be a decimal number"}
	}
	return d, nil
}
