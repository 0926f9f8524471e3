/*
reports.go - Report endpoints

ENDPOINTS:
  GET    /api/reports                  List headers (?fiscalYear, ?type)
  POST   /api/reports/generate         Generate a snapshot
  GET    /api/reports/utilization      On-demand utilization view
  GET    /api/reports/cash-flow        On-demand cash-flow view
  GET    /api/reports/{id}             Get with detail rows
  POST   /api/reports/{id}/status      Progress the lifecycle
  DELETE /api/reports/{id}             Delete (pre-Submitted only)
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/budget-engine/budget"
)

// ListReports returns report headers, newest first.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.Reports.ListReports(r.Context(),
		queryInt(r, "fiscalYear"), budget.ReportType(r.URL.Query().Get("type")))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ReportDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = toReportDTO(rep)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GenerateReport builds and persists a snapshot for the requested
// period. Each generation gets a fresh report number; existing reports
// are never overwritten.
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req GenerateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var (
		generated *budget.COAReport
		err       error
	)
	switch budget.ReportType(req.ReportType) {
	case budget.ReportMonthly:
		generated, err = h.Reports.GenerateMonthly(r.Context(), req.FiscalYear, req.Month, userID(r))
	case budget.ReportQuarterly:
		generated, err = h.Reports.GenerateQuarterly(r.Context(), req.FiscalYear, req.Quarter, userID(r))
	case budget.ReportAnnual:
		generated, err = h.Reports.GenerateAnnual(r.Context(), req.FiscalYear, userID(r))
	default:
		writeDomainError(w, &budget.ValidationError{Field: "reportType", Value: req.ReportType, Reason: "unknown report type"})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReportDTO(*generated))
}

// GetReport returns the report with its detail rows.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Reports.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(*rep))
}

// UpdateReportStatus moves the report forward through Draft ->
// Generated -> Reviewed -> Submitted -> Archived.
func (h *Handler) UpdateReportStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status, err := budget.ParseReportStatus(req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rep, err := h.Reports.UpdateReportStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(*rep))
}

// DeleteReport removes a report that has not reached Submitted.
func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	if err := h.Reports.DeleteReport(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BudgetUtilization returns the per-fund utilization view computed from
// current ledger state.
func (h *Handler) BudgetUtilization(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Reports.BudgetUtilizationSnapshot(r.Context(), queryInt(r, "fiscalYear"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUtilizationRowDTOs(rows))
}

// CashFlow returns per-month inflow and outflow across the year.
func (h *Handler) CashFlow(w http.ResponseWriter, r *http.Request) {
	months, err := h.Reports.CashFlowSnapshot(r.Context(), queryInt(r, "fiscalYear"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCashFlowDTOs(months))
}
