/*
Package report builds the audit and dashboard snapshots: COA
(Commission on Audit) reports persisted as immutable records, and the
on-demand utilization and cash-flow views.

PURPOSE:
  Pulls current ledger state through the store, computes the period's
  figures fund by fund, and persists the result as a report snapshot.
  Generation is pull-based: the aggregator is invoked on demand, never
  driven by events, so a report always reflects one consistent read.

FIGURES:
  Appropriation = fund allocated amount
  Obligations   = Approved + Completed expenditures in the period
  Disbursements = Completed expenditures in the period
  Balance       = Appropriation - Obligations

LIFECYCLE:
  Draft -> Generated -> Reviewed -> Submitted -> Archived, strictly
  forward. From Submitted on, the report is immutable: no deletion, no
  regeneration in place. Generating the same period again creates a new
  report with a fresh number.
*/
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/notify"
	"github.com/warp/budget-engine/store/sqlite"
)

// Aggregator generates and manages report snapshots. Construct with New.
type Aggregator struct {
	store *sqlite.Store
	hub   *notify.Hub
	now   func() time.Time
}

// New creates the report aggregator.
func New(store *sqlite.Store, hub *notify.Hub) *Aggregator {
	return &Aggregator{store: store, hub: hub, now: time.Now}
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateMonthly snapshots one calendar month of the fiscal year.
func (a *Aggregator) GenerateMonthly(ctx context.Context, fiscalYear, month int, generatedBy string) (*budget.COAReport, error) {
	if month < 1 || month > 12 {
		return nil, &budget.ValidationError{Field: "month", Value: month, Reason: "must be 1-12"}
	}

	start, end := PeriodFor(budget.ReportMonthly, fiscalYear, month, 0)
	r := budget.COAReport{
		ReportTitle: fmt.Sprintf("Monthly Budget Utilization Report - %s %d", start.Month(), fiscalYear),
		ReportType:  budget.ReportMonthly,
		FiscalYear:  fiscalYear,
		Month:       month,
		PeriodStart: start,
		PeriodEnd:   end,
	}
	return a.generate(ctx, r, fmt.Sprintf("%02d", month), generatedBy)
}

// GenerateQuarterly snapshots one quarter of the fiscal year.
func (a *Aggregator) GenerateQuarterly(ctx context.Context, fiscalYear, quarter int, generatedBy string) (*budget.COAReport, error) {
	if quarter < 1 || quarter > 4 {
		return nil, &budget.ValidationError{Field: "quarter", Value: quarter, Reason: "must be 1-4"}
	}

	start, end := PeriodFor(budget.ReportQuarterly, fiscalYear, 0, quarter)
	r := budget.COAReport{
		ReportTitle: fmt.Sprintf("Quarterly Budget Utilization Report - Q%d %d", quarter, fiscalYear),
		ReportType:  budget.ReportQuarterly,
		FiscalYear:  fiscalYear,
		Quarter:     quarter,
		PeriodStart: start,
		PeriodEnd:   end,
	}
	return a.generate(ctx, r, fmt.Sprintf("Q%d", quarter), generatedBy)
}

// GenerateAnnual snapshots the whole fiscal year.
func (a *Aggregator) GenerateAnnual(ctx context.Context, fiscalYear int, generatedBy string) (*budget.COAReport, error) {
	start, end := PeriodFor(budget.ReportAnnual, fiscalYear, 0, 0)
	r := budget.COAReport{
		ReportTitle: fmt.Sprintf("Annual Budget Utilization Report - %d", fiscalYear),
		ReportType:  budget.ReportAnnual,
		FiscalYear:  fiscalYear,
		PeriodStart: start,
		PeriodEnd:   end,
	}
	return a.generate(ctx, r, "ANNUAL", generatedBy)
}

// generate fills the detail rows from one consistent read of the funds
// and their period expenditures, totals them into the header, and
// persists header plus details in a single database transaction.
func (a *Aggregator) generate(ctx context.Context, r budget.COAReport, periodTag, generatedBy string) (*budget.COAReport, error) {
	funds, err := a.store.ListFunds(ctx, r.FiscalYear)
	if err != nil {
		return nil, err
	}

	fundIDs := make([]string, len(funds))
	for i, f := range funds {
		fundIDs[i] = f.ID
	}
	byFund, err := a.store.ExpendituresForFundsInPeriod(ctx, fundIDs, r.PeriodStart, r.PeriodEnd)
	if err != nil {
		return nil, err
	}

	generatedAt := a.now().UTC()
	r.ID = uuid.NewString()
	r.ReportNumber = fmt.Sprintf("COA-%d-%s-%s", r.FiscalYear, periodTag, generatedAt.Format("20060102150405"))
	r.Status = budget.ReportGenerated
	r.GeneratedBy = generatedBy
	r.GeneratedAt = generatedAt

	r.TotalAppropriation = decimal.Zero
	r.TotalObligations = decimal.Zero
	r.TotalDisbursements = decimal.Zero

	for _, f := range funds {
		obligations := decimal.Zero
		disbursements := decimal.Zero
		for _, t := range byFund[f.ID] {
			switch t.Status {
			case budget.StatusApproved:
				obligations = obligations.Add(t.Amount)
			case budget.StatusCompleted:
				obligations = obligations.Add(t.Amount)
				disbursements = disbursements.Add(t.Amount)
			}
		}

		detail := budget.COAReportDetail{
			ID:            uuid.NewString(),
			ReportID:      r.ID,
			FundID:        f.ID,
			FundCode:      f.FundCode,
			FundName:      f.FundName,
			Appropriation: f.AllocatedAmount,
			Obligations:   obligations,
			Disbursements: disbursements,
			Balance:       f.AllocatedAmount.Sub(obligations),
		}
		r.Details = append(r.Details, detail)

		r.TotalAppropriation = r.TotalAppropriation.Add(detail.Appropriation)
		r.TotalObligations = r.TotalObligations.Add(detail.Obligations)
		r.TotalDisbursements = r.TotalDisbursements.Add(detail.Disbursements)
	}
	r.UnobligatedBalance = r.TotalAppropriation.Sub(r.TotalObligations)

	if err := a.store.InsertReport(ctx, r); err != nil {
		return nil, err
	}

	notify.Publish(a.hub, budget.ReportSnapshotCreated{
		ReportID:     r.ID,
		ReportNumber: r.ReportNumber,
		ReportType:   r.ReportType,
	})
	return &r, nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// GetReport returns the report with its detail rows.
func (a *Aggregator) GetReport(ctx context.Context, id string) (*budget.COAReport, error) {
	r, err := a.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &budget.NotFoundError{Entity: "report", ID: id}
	}
	return r, nil
}

// ListReports returns report headers, newest first. Pass zero values to
// skip either filter.
func (a *Aggregator) ListReports(ctx context.Context, fiscalYear int, reportType budget.ReportType) ([]budget.COAReport, error) {
	return a.store.ListReports(ctx, fiscalYear, reportType)
}

// UpdateReportStatus moves the report forward through its lifecycle.
// Backward moves fail with an invalid-state error; reaching Submitted
// stamps SubmittedAt and freezes the report.
func (a *Aggregator) UpdateReportStatus(ctx context.Context, id string, to budget.ReportStatus) (*budget.COAReport, error) {
	return a.store.ProgressReport(ctx, id, to)
}

// DeleteReport removes a report that has not been submitted. Submitted
// and archived reports are immutable.
func (a *Aggregator) DeleteReport(ctx context.Context, id string) error {
	return a.store.DeleteReport(ctx, id)
}
