/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes for the REST API, kept separate from the domain types so
  the wire format can evolve without touching the engine.

CONVENTIONS:
  - All money travels as decimal strings ("1500.00"), never JSON
    numbers, so no precision is lost crossing the wire
  - Dates are "2006-01-02", timestamps RFC3339
  - Optional fields are pointers or omitempty
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/allocation"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/ledger"
	"github.com/warp/budget-engine/report"
)

const (
	dateLayout = "2006-01-02"
)

// =============================================================================
// FUNDS
// =============================================================================

type FundDTO struct {
	ID                    string  `json:"id"`
	FundCode              string  `json:"fundCode"`
	FundName              string  `json:"fundName"`
	Description           string  `json:"description,omitempty"`
	Category              string  `json:"category"`
	AllocatedAmount       string  `json:"allocatedAmount"`
	UtilizedAmount        string  `json:"utilizedAmount"`
	RemainingBalance      string  `json:"remainingBalance"`
	UtilizationPercentage float64 `json:"utilizationPercentage"`
	FiscalYear            int     `json:"fiscalYear"`
	BudgetID              string  `json:"budgetId,omitempty"`
	CreatedAt             string  `json:"createdAt"`
	UpdatedAt             *string `json:"updatedAt,omitempty"`
}

type FundRequest struct {
	FundCode        string `json:"fundCode,omitempty"` // empty = generate
	FundName        string `json:"fundName"`
	Description     string `json:"description,omitempty"`
	Category        string `json:"category"`
	AllocatedAmount string `json:"allocatedAmount"`
	FiscalYear      int    `json:"fiscalYear"`
	BudgetID        string `json:"budgetId,omitempty"`
}

func toFundDTO(f budget.Fund) FundDTO {
	return FundDTO{
		ID:                    f.ID,
		FundCode:              f.FundCode,
		FundName:              f.FundName,
		Description:           f.Description,
		Category:              string(f.Category),
		AllocatedAmount:       f.AllocatedAmount.StringFixed(2),
		UtilizedAmount:        f.UtilizedAmount.StringFixed(2),
		RemainingBalance:      f.RemainingBalance().StringFixed(2),
		UtilizationPercentage: f.UtilizationPercentage(),
		FiscalYear:            f.FiscalYear,
		BudgetID:              f.BudgetID,
		CreatedAt:             f.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             formatTimePtr(f.UpdatedAt),
	}
}

func toFundDTOs(funds []budget.Fund) []FundDTO {
	dtos := make([]FundDTO, len(funds))
	for i, f := range funds {
		dtos[i] = toFundDTO(f)
	}
	return dtos
}

// =============================================================================
// PARTICULARS
// =============================================================================

type ParticularDTO struct {
	ID                    string  `json:"id"`
	FundID                string  `json:"fundId"`
	ParticularCode        string  `json:"particularCode"`
	ParticularName        string  `json:"particularName"`
	Description           string  `json:"description,omitempty"`
	AllocatedAmount       string  `json:"allocatedAmount"`
	UtilizedAmount        string  `json:"utilizedAmount"`
	RemainingBalance      string  `json:"remainingBalance"`
	UtilizationPercentage float64 `json:"utilizationPercentage"`
	UnitOfMeasure         string  `json:"unitOfMeasure,omitempty"`
	Quantity              int     `json:"quantity,omitempty"`
	UnitCost              string  `json:"unitCost,omitempty"`
	SortOrder             int     `json:"sortOrder"`
	CreatedAt             string  `json:"createdAt"`
}

type ParticularRequest struct {
	FundID          string `json:"fundId"`
	ParticularCode  string `json:"particularCode,omitempty"` // empty = generate
	ParticularName  string `json:"particularName"`
	Description     string `json:"description,omitempty"`
	AllocatedAmount string `json:"allocatedAmount"`
	UnitOfMeasure   string `json:"unitOfMeasure,omitempty"`
	Quantity        int    `json:"quantity,omitempty"`
	UnitCost        string `json:"unitCost,omitempty"`
	SortOrder       int    `json:"sortOrder,omitempty"`
}

func toParticularDTO(p budget.Particular) ParticularDTO {
	return ParticularDTO{
		ID:                    p.ID,
		FundID:                p.FundID,
		ParticularCode:        p.ParticularCode,
		ParticularName:        p.ParticularName,
		Description:           p.Description,
		AllocatedAmount:       p.AllocatedAmount.StringFixed(2),
		UtilizedAmount:        p.UtilizedAmount.StringFixed(2),
		RemainingBalance:      p.RemainingBalance().StringFixed(2),
		UtilizationPercentage: p.UtilizationPercentage(),
		UnitOfMeasure:         p.UnitOfMeasure,
		Quantity:              p.Quantity,
		UnitCost:              p.UnitCost.StringFixed(2),
		SortOrder:             p.SortOrder,
		CreatedAt:             p.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionDTO struct {
	ID                string  `json:"id"`
	TransactionNumber string  `json:"transactionNumber"`
	FundID            string  `json:"fundId"`
	ParticularID      string  `json:"particularId,omitempty"`
	TransactionType   string  `json:"transactionType"`
	Description       string  `json:"description"`
	Payee             string  `json:"payee,omitempty"`
	Amount            string  `json:"amount"`
	TransactionDate   string  `json:"transactionDate"`
	Status            string  `json:"status"`
	PRNumber          string  `json:"prNumber,omitempty"`
	PONumber          string  `json:"poNumber,omitempty"`
	DVNumber          string  `json:"dvNumber,omitempty"`
	CheckNumber       string  `json:"checkNumber,omitempty"`
	CheckDate         *string `json:"checkDate,omitempty"`
	Remarks           string  `json:"remarks,omitempty"`
	CreatedBy         string  `json:"createdBy,omitempty"`
	ApprovedBy        string  `json:"approvedBy,omitempty"`
	CreatedAt         string  `json:"createdAt"`
	ApprovedAt        *string `json:"approvedAt,omitempty"`
}

type TransactionRequest struct {
	TransactionNumber string `json:"transactionNumber,omitempty"` // empty = generate
	FundID            string `json:"fundId"`
	ParticularID      string `json:"particularId,omitempty"`
	TransactionType   string `json:"transactionType"`
	Description       string `json:"description"`
	Payee             string `json:"payee,omitempty"`
	Amount            string `json:"amount"`
	TransactionDate   string `json:"transactionDate,omitempty"` // "2006-01-02"
	PRNumber          string `json:"prNumber,omitempty"`
	PONumber          string `json:"poNumber,omitempty"`
	DVNumber          string `json:"dvNumber,omitempty"`
	CheckNumber       string `json:"checkNumber,omitempty"`
	CheckDate         string `json:"checkDate,omitempty"`
	Remarks           string `json:"remarks,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

func toTransactionDTO(t budget.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:                t.ID,
		TransactionNumber: t.TransactionNumber,
		FundID:            t.FundID,
		ParticularID:      t.ParticularID,
		TransactionType:   string(t.TransactionType),
		Description:       t.Description,
		Payee:             t.Payee,
		Amount:            t.Amount.StringFixed(2),
		TransactionDate:   t.TransactionDate.Format(dateLayout),
		Status:            string(t.Status),
		PRNumber:          t.PRNumber,
		PONumber:          t.PONumber,
		DVNumber:          t.DVNumber,
		CheckNumber:       t.CheckNumber,
		CheckDate:         formatDatePtr(t.CheckDate),
		Remarks:           t.Remarks,
		CreatedBy:         t.CreatedBy,
		ApprovedBy:        t.ApprovedBy,
		CreatedAt:         t.CreatedAt.Format(time.RFC3339),
		ApprovedAt:        formatTimePtr(t.ApprovedAt),
	}
}

func toTransactionDTOs(txs []budget.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTransactionDTO(t)
	}
	return dtos
}

// =============================================================================
// REPORTS
// =============================================================================

type ReportDTO struct {
	ID                 string            `json:"id"`
	ReportNumber       string            `json:"reportNumber"`
	ReportTitle        string            `json:"reportTitle"`
	ReportType         string            `json:"reportType"`
	FiscalYear         int               `json:"fiscalYear"`
	Month              int               `json:"month,omitempty"`
	Quarter            int               `json:"quarter,omitempty"`
	PeriodStart        string            `json:"periodStart"`
	PeriodEnd          string            `json:"periodEnd"`
	TotalAppropriation string            `json:"totalAppropriation"`
	TotalObligations   string            `json:"totalObligations"`
	TotalDisbursements string            `json:"totalDisbursements"`
	UnobligatedBalance string            `json:"unobligatedBalance"`
	Status             string            `json:"status"`
	GeneratedBy        string            `json:"generatedBy,omitempty"`
	GeneratedAt        string            `json:"generatedAt"`
	SubmittedAt        *string           `json:"submittedAt,omitempty"`
	Details            []ReportDetailDTO `json:"details,omitempty"`
}

type ReportDetailDTO struct {
	FundID          string  `json:"fundId"`
	FundCode        string  `json:"fundCode"`
	FundName        string  `json:"fundName"`
	Appropriation   string  `json:"appropriation"`
	Obligations     string  `json:"obligations"`
	Disbursements   string  `json:"disbursements"`
	Balance         string  `json:"balance"`
	UtilizationRate float64 `json:"utilizationRate"`
}

type GenerateReportRequest struct {
	ReportType string `json:"reportType"` // Monthly | Quarterly | Annual
	FiscalYear int    `json:"fiscalYear"`
	Month      int    `json:"month,omitempty"`
	Quarter    int    `json:"quarter,omitempty"`
}

func toReportDTO(r budget.COAReport) ReportDTO {
	dto := ReportDTO{
		ID:                 r.ID,
		ReportNumber:       r.ReportNumber,
		ReportTitle:        r.ReportTitle,
		ReportType:         string(r.ReportType),
		FiscalYear:         r.FiscalYear,
		Month:              r.Month,
		Quarter:            r.Quarter,
		PeriodStart:        r.PeriodStart.Format(dateLayout),
		PeriodEnd:          r.PeriodEnd.Format(dateLayout),
		TotalAppropriation: r.TotalAppropriation.StringFixed(2),
		TotalObligations:   r.TotalObligations.StringFixed(2),
		TotalDisbursements: r.TotalDisbursements.StringFixed(2),
		UnobligatedBalance: r.UnobligatedBalance.StringFixed(2),
		Status:             string(r.Status),
		GeneratedBy:        r.GeneratedBy,
		GeneratedAt:        r.GeneratedAt.Format(time.RFC3339),
		SubmittedAt:        formatTimePtr(r.SubmittedAt),
	}
	for _, d := range r.Details {
		dto.Details = append(dto.Details, ReportDetailDTO{
			FundID:          d.FundID,
			FundCode:        d.FundCode,
			FundName:        d.FundName,
			Appropriation:   d.Appropriation.StringFixed(2),
			Obligations:     d.Obligations.StringFixed(2),
			Disbursements:   d.Disbursements.StringFixed(2),
			Balance:         d.Balance.StringFixed(2),
			UtilizationRate: d.UtilizationRate(),
		})
	}
	return dto
}

// =============================================================================
// BUDGETS AND SUMMARIES
// =============================================================================

type BudgetDTO struct {
	ID                   string  `json:"id"`
	FiscalYear           int     `json:"fiscalYear"`
	TotalIRA             string  `json:"totalIRA"`
	EstimatedLocalIncome string  `json:"estimatedLocalIncome"`
	OtherIncome          string  `json:"otherIncome"`
	TotalBudget          string  `json:"totalBudget"`
	Status               string  `json:"status"`
	CreatedAt            string  `json:"createdAt"`
	UpdatedAt            *string `json:"updatedAt,omitempty"`
}

type BudgetRequest struct {
	FiscalYear           int    `json:"fiscalYear"`
	TotalIRA             string `json:"totalIRA"`
	EstimatedLocalIncome string `json:"estimatedLocalIncome,omitempty"`
	OtherIncome          string `json:"otherIncome,omitempty"`
	Status               string `json:"status,omitempty"`
}

func toBudgetDTO(b budget.FiscalYearBudget) BudgetDTO {
	return BudgetDTO{
		ID:                   b.ID,
		FiscalYear:           b.FiscalYear,
		TotalIRA:             b.TotalIRA.StringFixed(2),
		EstimatedLocalIncome: b.EstimatedLocalIncome.StringFixed(2),
		OtherIncome:          b.OtherIncome.StringFixed(2),
		TotalBudget:          b.TotalBudget().StringFixed(2),
		Status:               string(b.Status),
		CreatedAt:            b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            formatTimePtr(b.UpdatedAt),
	}
}

type SummaryDTO struct {
	FiscalYear            int     `json:"fiscalYear"`
	FundCount             int     `json:"fundCount"`
	TotalAllocated        string  `json:"totalAllocated"`
	TotalUtilized         string  `json:"totalUtilized"`
	TotalRemaining        string  `json:"totalRemaining"`
	UtilizationPercentage float64 `json:"utilizationPercentage"`
}

func toSummaryDTO(s allocation.Summary) SummaryDTO {
	return SummaryDTO{
		FiscalYear:            s.FiscalYear,
		FundCount:             s.FundCount,
		TotalAllocated:        s.TotalAllocated.StringFixed(2),
		TotalUtilized:         s.TotalUtilized.StringFixed(2),
		TotalRemaining:        s.TotalRemaining.StringFixed(2),
		UtilizationPercentage: s.UtilizationPercentage,
	}
}

type CategorySummaryDTO struct {
	Category              string  `json:"category"`
	FundCount             int     `json:"fundCount"`
	TotalAllocated        string  `json:"totalAllocated"`
	TotalUtilized         string  `json:"totalUtilized"`
	TotalRemaining        string  `json:"totalRemaining"`
	UtilizationPercentage float64 `json:"utilizationPercentage"`
}

type ViolationDTO struct {
	Category  string `json:"category"`
	Required  string `json:"required"`
	Allocated string `json:"allocated"`
	Shortfall string `json:"shortfall"`
}

type MonthlyTotalDTO struct {
	Month int    `json:"month"`
	Total string `json:"total"`
}

func toMonthlyTotalDTOs(totals []ledger.MonthlyTotal) []MonthlyTotalDTO {
	dtos := make([]MonthlyTotalDTO, len(totals))
	for i, t := range totals {
		dtos[i] = MonthlyTotalDTO{Month: t.Month, Total: t.Total.StringFixed(2)}
	}
	return dtos
}

type StatisticsDTO struct {
	Year           int            `json:"year"`
	TotalCount     int            `json:"totalCount"`
	CountByStatus  map[string]int `json:"countByStatus"`
	TotalCommitted string         `json:"totalCommitted"`
}

type UtilizationRowDTO struct {
	FundID          string  `json:"fundId"`
	FundCode        string  `json:"fundCode"`
	FundName        string  `json:"fundName"`
	Category        string  `json:"category"`
	Allocated       string  `json:"allocated"`
	Utilized        string  `json:"utilized"`
	Remaining       string  `json:"remaining"`
	UtilizationRate float64 `json:"utilizationRate"`
}

func toUtilizationRowDTOs(rows []report.UtilizationRow) []UtilizationRowDTO {
	dtos := make([]UtilizationRowDTO, len(rows))
	for i, row := range rows {
		dtos[i] = UtilizationRowDTO{
			FundID:          row.FundID,
			FundCode:        row.FundCode,
			FundName:        row.FundName,
			Category:        string(row.Category),
			Allocated:       row.Allocated.StringFixed(2),
			Utilized:        row.Utilized.StringFixed(2),
			Remaining:       row.Remaining.StringFixed(2),
			UtilizationRate: row.UtilizationRate,
		}
	}
	return dtos
}

type CashFlowMonthDTO struct {
	Month   int    `json:"month"`
	Inflow  string `json:"inflow"`
	Outflow string `json:"outflow"`
	Net     string `json:"net"`
}

func toCashFlowDTOs(months []report.CashFlowMonth) []CashFlowMonthDTO {
	dtos := make([]CashFlowMonthDTO, len(months))
	for i, m := range months {
		dtos[i] = CashFlowMonthDTO{
			Month:   m.Month,
			Inflow:  m.Inflow.StringFixed(2),
			Outflow: m.Outflow.StringFixed(2),
			Net:     m.Net.StringFixed(2),
		}
	}
	return dtos
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// PARSE HELPERS
// =============================================================================

func parseAmount(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &budget.ValidationError{Field: field, Value: s, Reason: "not a decimal amount"}
	}
	return d, nil
}

func parseDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, &budget.ValidationError{Field: field, Value: s, Reason: "not a date (want YYYY-MM-DD)"}
	}
	return &t, nil
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}
