/*
handlers.go - HTTP API handlers for the savings fund

PURPOSE:
  Exposes the fund service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Savers:
    GET    /api/savers                       List savers with periods and loans
    POST   /api/savers                       Register a saver
    GET    /api/savers/{id}                  Get one saver
    PUT    /api/savers/{id}                  Update name / bi-weekly amount
    DELETE /api/savers/{id}                  Remove saver (cascades)
    POST   /api/savers/{id}/generate-month   Append the next period
    GET    /api/savers/{id}/loans            List the saver's loans
    POST   /api/savers/{id}/loans            Create a loan
    GET    /api/savers/{id}/loan-eligibility Eligibility verdict

  Periods:
    POST   /api/periods/{id}/toggle-quincena Toggle a due-paid flag
    POST   /api/periods/{id}/toggle-penalty  Toggle a penalty-paid flag
    POST   /api/periods/{id}/apply-penalty   Record an assessed penalty

  Loans:
    POST   /api/loans/{id}/payment           Record one installment
    DELETE /api/loans/{id}                   Remove a loan

  Settings / reports:
    GET PUT /api/settings
    GET     /api/reports

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing or bad credentials
  - 404: Resource not found
  - 409: Business rejection (ineligible, insufficient funds, horizon,
         locked period, unsettled predecessor, already-paid loan)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Account handlers and the session middleware
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ahorra/fund-engine/engine"
	"github.com/ahorra/fund-engine/fund"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *fund.Service
	Store    fund.Store
	Tokens   *TokenManager
	Validate *validator.Validate
	Log      *logrus.Logger
}

// NewHandler creates a handler around the fund service. The store is
// needed directly only for account records, which the service does not
// manage.
func NewHandler(svc *fund.Service, store fund.Store, tokens *TokenManager, log *logrus.Logger) *Handler {
	return &Handler{
		Service:  svc,
		Store:    store,
		Tokens:   tokens,
		Validate: validator.New(),
		Log:      log,
	}
}

// =============================================================================
// SAVER HANDLERS
// =============================================================================

// ListSavers returns all savers with periods and loans.
func (h *Handler) ListSavers(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	savers, err := h.Service.ListSavers(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	settings, err := h.Service.GetSettings(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	at := h.Service.Now()
	dtos := make([]SaverDTO, len(savers))
	for i, s := range savers {
		dtos[i] = toSaverDTO(s, settings, at)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSaver returns a single saver.
func (h *Handler) GetSaver(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id := engine.SaverID(chi.URLParam(r, "id"))

	saver, err := h.Service.GetSaver(r.Context(), sess, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	settings, err := h.Service.GetSettings(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaverDTO(*saver, settings, h.Service.Now()))
}

// CreateSaver registers a new member.
func (h *Handler) CreateSaver(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	var req CreateSaverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	amount, err := parseAmount("bi_weekly_amount", req.BiWeeklyAmount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	startDate := h.Service.Now()
	if req.StartDate != "" {
		if startDate, err = time.Parse(dateFormat, req.StartDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
			return
		}
	}

	saver, err := h.Service.CreateSaver(r.Context(), sess, req.Name, amount, startDate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	settings, err := h.Service.GetSettings(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSaverDTO(*saver, settings, h.Service.Now()))
}

// UpdateSaver changes a member's name and/or bi-weekly amount.
func (h *Handler) UpdateSaver(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id := engine.SaverID(chi.URLParam(r, "id"))

	var req UpdateSaverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var amount decimal.Decimal
	if req.BiWeeklyAmount != "" {
		var err error
		if amount, err = parseAmount("bi_weekly_amount", req.BiWeeklyAmount); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	saver, err := h.Service.UpdateSaver(r.Context(), sess, id, req.Name, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	settings, err := h.Service.GetSettings(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaverDTO(*saver, settings, h.Service.Now()))
}

// DeleteSaver removes a member and all their periods and loans.
func (h *Handler) DeleteSaver(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id := engine.SaverID(chi.URLParam(r, "id"))

	if err := h.Service.DeleteSaver(r.Context(), sess, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GenerateMonth explicitly appends the saver's next period.
func (h *Handler) GenerateMonth(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id := engine.SaverID(chi.URLParam(r, "id"))

	period, err := h.Service.GenerateNextPeriod(r.Context(), sess, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.periodWithStatus(r, sess, *period))
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// ToggleQuincena flips a due-paid flag. Settling the last period
// auto-generates the next month.
func (h *Handler) ToggleQuincena(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	periodID := engine.PeriodID(chi.URLParam(r, "id"))

	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	result, err := h.Service.ToggleDue(r.Context(), sess, periodID, engine.Track(req.Track))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := ToggleDueResponse{Period: h.periodWithStatus(r, sess, result.Period)}
	if result.Generated != nil {
		generated := h.periodWithStatus(r, sess, *result.Generated)
		resp.Generated = &generated
	}
	writeJSON(w, http.StatusOK, resp)
}

// TogglePenalty flips a penalty-paid flag.
func (h *Handler) TogglePenalty(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	periodID := engine.PeriodID(chi.URLParam(r, "id"))

	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	period, err := h.Service.TogglePenaltyPaid(r.Context(), sess, periodID, engine.Track(req.Track))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.periodWithStatus(r, sess, *period))
}

// ApplyPenalty records an externally assessed penalty amount.
func (h *Handler) ApplyPenalty(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	periodID := engine.PeriodID(chi.URLParam(r, "id"))

	var req ApplyPenaltyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	period, err := h.Service.ApplyPenalty(r.Context(), sess, periodID, engine.Track(req.Track), amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.periodWithStatus(r, sess, *period))
}

// periodWithStatus re-derives the period's track states for the response.
// Status needs the saver's full history and the fund settings.
func (h *Handler) periodWithStatus(r *http.Request, sess fund.Session, p engine.Period) PeriodDTO {
	settings, err := h.Service.GetSettings(r.Context(), sess)
	if err != nil {
		return toPeriodDTO(p, engine.PeriodStatus{Month: p.Month})
	}
	saver, err := h.Store.GetSaverByPeriod(r.Context(), sess.UserID, p.ID)
	if err != nil {
		return toPeriodDTO(p, engine.PeriodStatus{Month: p.Month})
	}
	for i := range saver.Periods {
		if saver.Periods[i].ID == p.ID {
			return toPeriodDTO(p, engine.StatusAt(saver.Periods, i, settings, h.Service.Now()))
		}
	}
	return toPeriodDTO(p, engine.PeriodStatus{Month: p.Month})
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// ListLoans returns the saver's loans.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id := engine.SaverID(chi.URLParam(r, "id"))

	saver, err := h.Service.GetSaver(r.Context(), sess, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	dtos := make([]LoanDTO, len(saver.Loans))
	for i, l := range saver.Loans {
		dtos[i] = toLoanDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLoan runs the full eligibility and funds check, then disburses.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id := engine.SaverID(chi.URLParam(r, "id"))

	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	loan, err := h.Service.CreateLoan(r.Context(), sess, id, amount, req.DurationMonths)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(*loan))
}

// LoanEligibility returns the eligibility verdict without creating a loan.
func (h *Handler) LoanEligibility(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id := engine.SaverID(chi.URLParam(r, "id"))

	verdict, err := h.Service.CheckEligibility(r.Context(), sess, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEligibilityDTO(verdict))
}

// RecordLoanPayment advances the loan by one installment.
func (h *Handler) RecordLoanPayment(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id := engine.LoanID(chi.URLParam(r, "id"))

	loan, err := h.Service.RecordLoanPayment(r.Context(), sess, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(*loan))
}

// DeleteLoan removes a loan record.
func (h *Handler) DeleteLoan(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	id := engine.LoanID(chi.URLParam(r, "id"))

	if err := h.Service.DeleteLoan(r.Context(), sess, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SETTINGS AND REPORT HANDLERS
// =============================================================================

// GetSettings returns the fund configuration.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	settings, err := h.Service.GetSettings(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings))
}

// UpdateSettings replaces the fund configuration.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	rate, err := parseAmount("interest_rate", req.InterestRate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	start, err := time.Parse(dateFormat, req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := time.Parse(dateFormat, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	settings, err := h.Service.UpdateSettings(r.Context(), sess, engine.FundSettings{
		InterestRate:    rate,
		StartDate:       start,
		EndDate:         end,
		EnableReminders: req.EnableReminders,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings))
}

// GetReport returns the fund-wide aggregate figures.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	report, err := h.Service.Report(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case engine.IsClientError(err):
		// Business rejection: well-formed request the rules refuse.
		writeError(w, http.StatusConflict, "Operation rejected", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
