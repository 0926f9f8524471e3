/*
Package budget holds the domain model for the budget ledger engine.

PURPOSE:
  Defines the records the engine persists (fiscal-year budgets, funds,
  particulars, transactions, COA reports), the closed enumerations that
  classify them, and the derived values computed from them.

KEY CONCEPTS IN THIS FILE (types.go):
  - FiscalYearBudget: one per year; the IRA figure funds are carved from
  - Fund: a named budget envelope with an allocated ceiling
  - Particular: a line item (program/project/activity) under a fund
  - Transaction: the unit of financial movement, driven by a state machine
  - COAReport: an immutable point-in-time audit snapshot

DESIGN PRINCIPLES:
  1. Precision: all money is decimal.Decimal, never float
  2. Derived values are pure functions over stored fields - RemainingBalance
     and UtilizationPercentage are computed on read and never persisted,
     so they cannot drift from their sources
  3. UtilizedAmount is owned by the engine: callers never write it, the
     allocation store recomputes it from the transaction ledger
  4. Closed enums: Status, Category and TransactionType are validated
     against fixed sets at the I/O edge, not free-form strings

SEE ALSO:
  - categories.go: fund category rules and mandated percentages
  - statemachine.go: the transaction status transition table
  - errors.go: the error taxonomy
  - events.go: domain events published on mutation
*/
package budget

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FISCAL YEAR BUDGET
// =============================================================================

type BudgetStatus string

const (
	BudgetDraft    BudgetStatus = "Draft"
	BudgetApproved BudgetStatus = "Approved"
	BudgetClosed   BudgetStatus = "Closed"
)

// FiscalYearBudget is the year's budget setup: the internal revenue
// allotment and its sub-components. Funds optionally link to one; a budget
// is never deleted once funds reference it.
type FiscalYearBudget struct {
	ID                   string
	FiscalYear           int
	TotalIRA             decimal.Decimal
	EstimatedLocalIncome decimal.Decimal
	OtherIncome          decimal.Decimal
	Status               BudgetStatus
	CreatedAt            time.Time
	UpdatedAt            *time.Time
}

// TotalBudget is the full estimated income for the year.
func (b FiscalYearBudget) TotalBudget() decimal.Decimal {
	return b.TotalIRA.Add(b.EstimatedLocalIncome).Add(b.OtherIncome)
}

// =============================================================================
// FUND - Appropriation envelope
// =============================================================================

// Fund is a named budget envelope for a fiscal year.
//
// UtilizedAmount is derived state: it is exclusively recomputed by the
// allocation store from committed expenditure transactions. Callers update
// AllocatedAmount; they never touch UtilizedAmount.
type Fund struct {
	ID              string
	FundCode        string // unique, category-prefixed, e.g. "MOOE-2025-001"
	FundName        string
	Description     string
	Category        Category
	AllocatedAmount decimal.Decimal
	UtilizedAmount  decimal.Decimal
	FiscalYear      int
	BudgetID        string // optional link to FiscalYearBudget
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// RemainingBalance is always computed, never stored.
func (f Fund) RemainingBalance() decimal.Decimal {
	return f.AllocatedAmount.Sub(f.UtilizedAmount)
}

// UtilizationPercentage returns utilization as a percentage of allocation,
// or 0 for a zero allocation.
func (f Fund) UtilizationPercentage() float64 {
	if !f.AllocatedAmount.IsPositive() {
		return 0
	}
	pct, _ := f.UtilizedAmount.Div(f.AllocatedAmount).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// =============================================================================
// PARTICULAR - Line item under a fund
// =============================================================================

// Particular is a Program/Project/Activity entry under exactly one fund,
// with its own allocation scoped to the parent fund's envelope.
type Particular struct {
	ID              string
	FundID          string
	ParticularCode  string // e.g. "MOOE-2025-001-P001"
	ParticularName  string
	Description     string
	AllocatedAmount decimal.Decimal
	UtilizedAmount  decimal.Decimal
	UnitOfMeasure   string
	Quantity        int
	UnitCost        decimal.Decimal
	SortOrder       int
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

func (p Particular) RemainingBalance() decimal.Decimal {
	return p.AllocatedAmount.Sub(p.UtilizedAmount)
}

func (p Particular) UtilizationPercentage() float64 {
	if !p.AllocatedAmount.IsPositive() {
		return 0
	}
	pct, _ := p.UtilizedAmount.Div(p.AllocatedAmount).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// =============================================================================
// TRANSACTION
// =============================================================================

type TransactionType string

const (
	TypeExpenditure   TransactionType = "Expenditure"
	TypeAppropriation TransactionType = "Appropriation"
	TypeAdjustment    TransactionType = "Adjustment"
	TypeTransfer      TransactionType = "Transfer"
	TypeReversal      TransactionType = "Reversal"
)

// TransactionTypes lists every valid type, in display order.
func TransactionTypes() []TransactionType {
	return []TransactionType{
		TypeExpenditure, TypeAppropriation, TypeAdjustment, TypeTransfer, TypeReversal,
	}
}

// ParseTransactionType validates an external string against the closed set.
func ParseTransactionType(s string) (TransactionType, error) {
	for _, t := range TransactionTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", &ValidationError{Field: "transactionType", Value: s, Reason: "unknown transaction type"}
}

type TransactionStatus string

const (
	StatusPending     TransactionStatus = "Pending"
	StatusForApproval TransactionStatus = "For Approval"
	StatusApproved    TransactionStatus = "Approved"
	StatusRejected    TransactionStatus = "Rejected"
	StatusCancelled   TransactionStatus = "Cancelled"
	StatusCompleted   TransactionStatus = "Completed"
)

// TransactionStatuses lists every valid status, in display order.
func TransactionStatuses() []TransactionStatus {
	return []TransactionStatus{
		StatusPending, StatusForApproval, StatusApproved,
		StatusRejected, StatusCancelled, StatusCompleted,
	}
}

// ParseTransactionStatus validates an external string against the closed set.
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	for _, st := range TransactionStatuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", &ValidationError{Field: "status", Value: s, Reason: "unknown transaction status"}
}

// Transaction is the unit of financial movement against a fund.
//
// A transaction is mutable only while Pending; once it leaves Pending its
// financial fields are frozen and only status transitions remain.
// Attachments reference transactions but are owned by the file layer.
type Transaction struct {
	ID                string
	TransactionNumber string // unique, sequence-generated, e.g. "TXN-202501-0001"
	FundID            string
	ParticularID      string // optional
	TransactionType   TransactionType
	Description       string
	Payee             string
	Amount            decimal.Decimal
	TransactionDate   time.Time
	Status            TransactionStatus

	// External document references
	PRNumber    string
	PONumber    string
	DVNumber    string
	CheckNumber string
	CheckDate   *time.Time

	Remarks    string
	CreatedBy  string
	ApprovedBy string
	CreatedAt  time.Time
	UpdatedAt  *time.Time
	ApprovedAt *time.Time
}

// Committed reports whether the transaction counts toward utilization
// accounting: an Approved or Completed status.
func (t Transaction) Committed() bool {
	return t.Status == StatusApproved || t.Status == StatusCompleted
}

// Editable reports whether financial fields may still change.
func (t Transaction) Editable() bool {
	return t.Status == StatusPending
}

// Deletable reports whether the transaction may be removed. Anything that
// reached approval stays for the audit trail.
func (t Transaction) Deletable() bool {
	return t.Status == StatusPending || t.Status == StatusRejected
}

// =============================================================================
// COA REPORT - Immutable audit snapshot
// =============================================================================

type ReportType string

const (
	ReportMonthly   ReportType = "Monthly"
	ReportQuarterly ReportType = "Quarterly"
	ReportAnnual    ReportType = "Annual"
	ReportSpecial   ReportType = "Special"
)

type ReportStatus string

const (
	ReportDraft     ReportStatus = "Draft"
	ReportGenerated ReportStatus = "Generated"
	ReportReviewed  ReportStatus = "Reviewed"
	ReportSubmitted ReportStatus = "Submitted"
	ReportArchived  ReportStatus = "Archived"
)

// reportStatusRank orders the monotonic Draft -> Archived progression.
func reportStatusRank(s ReportStatus) int {
	switch s {
	case ReportDraft:
		return 0
	case ReportGenerated:
		return 1
	case ReportReviewed:
		return 2
	case ReportSubmitted:
		return 3
	case ReportArchived:
		return 4
	}
	return -1
}

// ParseReportStatus validates an external string against the closed set.
func ParseReportStatus(s string) (ReportStatus, error) {
	for _, st := range []ReportStatus{ReportDraft, ReportGenerated, ReportReviewed, ReportSubmitted, ReportArchived} {
		if string(st) == s {
			return st, nil
		}
	}
	return "", &ValidationError{Field: "status", Value: s, Reason: "unknown report status"}
}

// CanProgressTo reports whether a report status change respects the
// monotonic Draft -> Generated -> Reviewed -> Submitted -> Archived order.
func (s ReportStatus) CanProgressTo(next ReportStatus) bool {
	from, to := reportStatusRank(s), reportStatusRank(next)
	return from >= 0 && to >= 0 && to > from
}

// COAReport is a persisted audit snapshot. Once Status is Submitted the
// report is immutable: it cannot be deleted or regenerated in place.
type COAReport struct {
	ID           string
	ReportNumber string // unique, e.g. "COA-2025-01-20250201093000"
	ReportTitle  string
	ReportType   ReportType
	FiscalYear   int
	Month        int // 1-12 for Monthly, else 0
	Quarter      int // 1-4 for Quarterly, else 0
	PeriodStart  time.Time
	PeriodEnd    time.Time

	TotalAppropriation decimal.Decimal
	TotalObligations   decimal.Decimal
	TotalDisbursements decimal.Decimal
	UnobligatedBalance decimal.Decimal

	Status      ReportStatus
	Notes       string
	GeneratedBy string
	GeneratedAt time.Time
	SubmittedAt *time.Time

	Details []COAReportDetail
}

// Immutable reports whether the report has been submitted (or archived)
// and is therefore frozen.
func (r COAReport) Immutable() bool {
	return reportStatusRank(r.Status) >= reportStatusRank(ReportSubmitted)
}

// COAReportDetail is one report row per fund covered in the period, with
// the figures as computed at generation time.
type COAReportDetail struct {
	ID            string
	ReportID      string
	FundID        string
	FundCode      string
	FundName      string
	Appropriation decimal.Decimal
	Obligations   decimal.Decimal
	Disbursements decimal.Decimal
	Balance       decimal.Decimal
}

// UtilizationRate is disbursements over appropriation, as a percentage.
func (d COAReportDetail) UtilizationRate() float64 {
	if !d.Appropriation.IsPositive() {
		return 0
	}
	rate, _ := d.Disbursements.Div(d.Appropriation).Mul(decimal.NewFromInt(100)).Float64()
	return rate
}
