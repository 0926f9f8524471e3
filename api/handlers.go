/*
handlers.go - HTTP API handlers for the budget ledger engine

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the allocation, ledger, and report
  services. No business rule lives here.

ENDPOINTS:
  Funds:
    GET    /api/funds                   List (optional ?fiscalYear, ?category)
    POST   /api/funds                   Create fund
    GET    /api/funds/summary           Fiscal-year summary
    GET    /api/funds/by-category       Per-category summary
    GET    /api/funds/low-balance       Funds below remaining threshold
    GET    /api/funds/compliance        Mandated-allocation check
    GET    /api/funds/{id}              Get fund
    PUT    /api/funds/{id}              Update fund
    DELETE /api/funds/{id}              Retire fund
    GET    /api/funds/{id}/particulars  List particulars
    GET    /api/funds/{id}/monthly      Monthly committed expenditure

  Particulars:
    POST   /api/particulars             Create particular
    GET    /api/particulars/{id}        Get particular
    PUT    /api/particulars/{id}        Update particular
    DELETE /api/particulars/{id}        Retire particular

  Budgets:
    GET    /api/budgets                 List fiscal year budgets
    POST   /api/budgets                 Create budget
    GET    /api/budgets/{id}            Get budget
    PUT    /api/budgets/{id}            Update budget

  Transactions, reports: see transactions.go, reports.go.

ERROR HANDLING:
  The error taxonomy maps onto HTTP status:
  - 400: validation errors, insufficient balance
  - 404: unknown id
  - 409: invalid state, conflicts
  - 500: everything else

IDENTITY:
  No authentication. The X-User-ID header names the acting user for
  createdBy/approvedBy stamping; it is trusted as given.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warp/budget-engine/allocation"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/ledger"
	"github.com/warp/budget-engine/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Alloc   *allocation.Service
	Ledger  *ledger.Ledger
	Reports *report.Aggregator
}

// NewHandler creates a new handler over the three services.
func NewHandler(alloc *allocation.Service, led *ledger.Ledger, reports *report.Aggregator) *Handler {
	return &Handler{Alloc: alloc, Ledger: led, Reports: reports}
}

// userID names the acting user from the X-User-ID header, defaulting to
// "system" so audit fields are never blank.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "system"
}

// queryInt parses an integer query parameter, 0 when absent.
func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

// =============================================================================
// FUND HANDLERS
// =============================================================================

// ListFunds returns active funds, optionally filtered by fiscal year
// and category.
func (h *Handler) ListFunds(w http.ResponseWriter, r *http.Request) {
	fiscalYear := queryInt(r, "fiscalYear")

	var (
		funds []budget.Fund
		err   error
	)
	if categoryParam := r.URL.Query().Get("category"); categoryParam != "" {
		category, perr := budget.ParseCategory(categoryParam)
		if perr != nil {
			writeDomainError(w, perr)
			return
		}
		funds, err = h.Alloc.ListFundsByCategory(r.Context(), category, fiscalYear)
	} else {
		funds, err = h.Alloc.ListFunds(r.Context(), fiscalYear)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFundDTOs(funds))
}

// CreateFund creates a new fund, generating the fund code when the
// request leaves it empty.
func (h *Handler) CreateFund(w http.ResponseWriter, r *http.Request) {
	var req FundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseAmount("allocatedAmount", req.AllocatedAmount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	fund, err := h.Alloc.CreateFund(r.Context(), budget.Fund{
		FundCode:        req.FundCode,
		FundName:        req.FundName,
		Description:     req.Description,
		Category:        budget.Category(req.Category),
		AllocatedAmount: amount,
		FiscalYear:      req.FiscalYear,
		BudgetID:        req.BudgetID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFundDTO(*fund))
}

// GetFund returns a single fund, by id or by fund code when
// ?byCode=true.
func (h *Handler) GetFund(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "id")

	var fund *budget.Fund
	var err error
	if r.URL.Query().Get("byCode") == "true" {
		fund, err = h.Alloc.GetFundByCode(r.Context(), key)
	} else {
		fund, err = h.Alloc.GetFund(r.Context(), key)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFundDTO(*fund))
}

// UpdateFund rewrites the fund's mutable fields.
func (h *Handler) UpdateFund(w http.ResponseWriter, r *http.Request) {
	var req FundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseAmount("allocatedAmount", req.AllocatedAmount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	fund, err := h.Alloc.UpdateFund(r.Context(), budget.Fund{
		ID:              chi.URLParam(r, "id"),
		FundName:        req.FundName,
		Description:     req.Description,
		Category:        budget.Category(req.Category),
		AllocatedAmount: amount,
		FiscalYear:      req.FiscalYear,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFundDTO(*fund))
}

// DeleteFund retires the fund: soft delete when referenced, hard delete
// otherwise.
func (h *Handler) DeleteFund(w http.ResponseWriter, r *http.Request) {
	if err := h.Alloc.DeleteFund(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FundSummary returns the fiscal-year rollup.
func (h *Handler) FundSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Alloc.FiscalYearSummary(r.Context(), queryInt(r, "fiscalYear"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(*summary))
}

// FundSummaryByCategory returns per-category rollups.
func (h *Handler) FundSummaryByCategory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Alloc.SummaryByCategory(r.Context(), queryInt(r, "fiscalYear"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]CategorySummaryDTO, len(rows))
	for i, row := range rows {
		dtos[i] = CategorySummaryDTO{
			Category:              string(row.Category),
			FundCount:             row.FundCount,
			TotalAllocated:        row.TotalAllocated.StringFixed(2),
			TotalUtilized:         row.TotalUtilized.StringFixed(2),
			TotalRemaining:        row.TotalRemaining.StringFixed(2),
			UtilizationPercentage: row.UtilizationPercentage,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LowBalanceFunds returns funds whose remaining balance fell below the
// threshold percentage (?threshold, default 20), most critical first.
func (h *Handler) LowBalanceFunds(w http.ResponseWriter, r *http.Request) {
	threshold, _ := strconv.ParseFloat(r.URL.Query().Get("threshold"), 64)

	funds, err := h.Alloc.LowBalanceFunds(r.Context(), queryInt(r, "fiscalYear"), threshold)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFundDTOs(funds))
}

// MandatedCompliance checks the year's allocations against the mandated
// IRA percentages and returns one row per shortfall.
func (h *Handler) MandatedCompliance(w http.ResponseWriter, r *http.Request) {
	violations, err := h.Alloc.ValidateMandatedAllocations(r.Context(), queryInt(r, "fiscalYear"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ViolationDTO, len(violations))
	for i, v := range violations {
		dtos[i] = ViolationDTO{
			Category:  string(v.Category),
			Required:  v.Required.StringFixed(2),
			Allocated: v.Allocated.StringFixed(2),
			Shortfall: v.Required.Sub(v.Allocated).StringFixed(2),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// FundMonthlySummary returns the fund's committed expenditure per month
// of the year, for chart consumption.
func (h *Handler) FundMonthlySummary(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Ledger.MonthlySummary(r.Context(), chi.URLParam(r, "id"), queryInt(r, "year"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthlyTotalDTOs(totals))
}

// =============================================================================
// PARTICULAR HANDLERS
// =============================================================================

// ListParticulars returns the fund's active particulars in sort order.
func (h *Handler) ListParticulars(w http.ResponseWriter, r *http.Request) {
	particulars, err := h.Alloc.ListParticulars(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ParticularDTO, len(particulars))
	for i, p := range particulars {
		dtos[i] = toParticularDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateParticular creates a line item under a fund.
func (h *Handler) CreateParticular(w http.ResponseWriter, r *http.Request) {
	req, p, err := decodeParticular(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	p.FundID = req.FundID
	p.ParticularCode = req.ParticularCode

	created, err := h.Alloc.CreateParticular(r.Context(), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toParticularDTO(*created))
}

// GetParticular returns a single particular.
func (h *Handler) GetParticular(w http.ResponseWriter, r *http.Request) {
	p, err := h.Alloc.GetParticular(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticularDTO(*p))
}

// UpdateParticular rewrites the particular's mutable fields.
func (h *Handler) UpdateParticular(w http.ResponseWriter, r *http.Request) {
	_, p, err := decodeParticular(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	p.ID = chi.URLParam(r, "id")

	updated, err := h.Alloc.UpdateParticular(r.Context(), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticularDTO(*updated))
}

// DeleteParticular retires the particular.
func (h *Handler) DeleteParticular(w http.ResponseWriter, r *http.Request) {
	if err := h.Alloc.DeleteParticular(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeParticular(r *http.Request) (ParticularRequest, budget.Particular, error) {
	var req ParticularRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, budget.Particular{}, &budget.ValidationError{Field: "body", Reason: "invalid JSON"}
	}

	amount, err := parseAmount("allocatedAmount", req.AllocatedAmount)
	if err != nil {
		return req, budget.Particular{}, err
	}
	unitCost, err := parseAmount("unitCost", req.UnitCost)
	if err != nil {
		return req, budget.Particular{}, err
	}

	return req, budget.Particular{
		ParticularName:  req.ParticularName,
		Description:     req.Description,
		AllocatedAmount: amount,
		UnitOfMeasure:   req.UnitOfMeasure,
		Quantity:        req.Quantity,
		UnitCost:        unitCost,
		SortOrder:       req.SortOrder,
	}, nil
}

// =============================================================================
// BUDGET HANDLERS
// =============================================================================

// ListBudgets returns every fiscal year budget, newest first.
func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := h.Alloc.ListBudgets(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]BudgetDTO, len(budgets))
	for i, b := range budgets {
		dtos[i] = toBudgetDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateBudget sets up a fiscal year budget.
func (h *Handler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	b, err := decodeBudget(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	created, err := h.Alloc.CreateBudget(r.Context(), b)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetDTO(*created))
}

// GetBudget returns one budget by id.
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	b, err := h.Alloc.GetBudget(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(*b))
}

// UpdateBudget revises the budget's income figures and status.
func (h *Handler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	b, err := decodeBudget(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	b.ID = chi.URLParam(r, "id")

	updated, err := h.Alloc.UpdateBudget(r.Context(), b)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(*updated))
}

func decodeBudget(r *http.Request) (budget.FiscalYearBudget, error) {
	var req BudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return budget.FiscalYearBudget{}, &budget.ValidationError{Field: "body", Reason: "invalid JSON"}
	}

	totalIRA, err := parseAmount("totalIRA", req.TotalIRA)
	if err != nil {
		return budget.FiscalYearBudget{}, err
	}
	localIncome, err := parseAmount("estimatedLocalIncome", req.EstimatedLocalIncome)
	if err != nil {
		return budget.FiscalYearBudget{}, err
	}
	otherIncome, err := parseAmount("otherIncome", req.OtherIncome)
	if err != nil {
		return budget.FiscalYearBudget{}, err
	}

	return budget.FiscalYearBudget{
		FiscalYear:           req.FiscalYear,
		TotalIRA:             totalIRA,
		EstimatedLocalIncome: localIncome,
		OtherIncome:          otherIncome,
		Status:               budget.BudgetStatus(req.Status),
	}, nil
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

// writeDomainError maps the engine's error taxonomy onto HTTP status
// codes. Anything unclassified is a 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, budget.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, budget.ErrInsufficientBalance):
		writeError(w, http.StatusBadRequest, "Insufficient balance", err)
	case errors.Is(err, budget.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, budget.ErrInvalidState):
		writeError(w, http.StatusConflict, "Invalid state", err)
	case errors.Is(err, budget.ErrConflict):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
