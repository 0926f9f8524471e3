package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// DERIVED VIEWS - computed on demand, never persisted
// =============================================================================

// UtilizationRow is one fund's line in the utilization snapshot.
type UtilizationRow struct {
	FundID          string
	FundCode        string
	FundName        string
	Category        budget.Category
	Allocated       decimal.Decimal
	Utilized        decimal.Decimal
	Remaining       decimal.Decimal
	UtilizationRate float64
}

// BudgetUtilizationSnapshot reads the year's active funds and returns
// per-fund utilization rates plus the overall rate, straight from
// current ledger state.
func (a *Aggregator) BudgetUtilizationSnapshot(ctx context.Context, fiscalYear int) ([]UtilizationRow, error) {
	funds, err := a.store.ListFunds(ctx, fiscalYear)
	if err != nil {
		return nil, err
	}

	rows := make([]UtilizationRow, 0, len(funds))
	for _, f := range funds {
		rows = append(rows, UtilizationRow{
			FundID:          f.ID,
			FundCode:        f.FundCode,
			FundName:        f.FundName,
			Category:        f.Category,
			Allocated:       f.AllocatedAmount,
			Utilized:        f.UtilizedAmount,
			Remaining:       f.RemainingBalance(),
			UtilizationRate: f.UtilizationPercentage(),
		})
	}
	return rows, nil
}

// CashFlowMonth is one month's inflow/outflow in the cash-flow snapshot.
type CashFlowMonth struct {
	Month   int // 1-12
	Inflow  decimal.Decimal
	Outflow decimal.Decimal
	Net     decimal.Decimal
}

// CashFlowSnapshot sums the year's transactions per calendar month:
// appropriations of any status count as inflow, completed expenditures
// as outflow (money only leaves on actual disbursement). Every month
// appears, zero or not.
func (a *Aggregator) CashFlowSnapshot(ctx context.Context, fiscalYear int) ([]CashFlowMonth, error) {
	txs, err := a.store.TransactionsForYear(ctx, fiscalYear)
	if err != nil {
		return nil, err
	}

	months := make([]CashFlowMonth, 12)
	for m := range months {
		months[m] = CashFlowMonth{Month: m + 1, Inflow: decimal.Zero, Outflow: decimal.Zero}
	}
	for _, t := range txs {
		m := int(t.TransactionDate.Month()) - 1
		switch {
		case t.TransactionType == budget.TypeAppropriation:
			months[m].Inflow = months[m].Inflow.Add(t.Amount)
		case t.TransactionType == budget.TypeExpenditure && t.Status == budget.StatusCompleted:
			months[m].Outflow = months[m].Outflow.Add(t.Amount)
		}
	}
	for m := range months {
		months[m].Net = months[m].Inflow.Sub(months[m].Outflow)
	}
	return months, nil
}

// PeriodFor returns the inclusive period a report of the type covers,
// mirroring what generation uses. Exposed for callers that preview a
// period before generating.
func PeriodFor(reportType budget.ReportType, fiscalYear, month, quarter int) (start, end time.Time) {
	switch reportType {
	case budget.ReportMonthly:
		start = time.Date(fiscalYear, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	case budget.ReportQuarterly:
		start = time.Date(fiscalYear, time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 3, 0).Add(-time.Nanosecond)
	default:
		start = time.Date(fiscalYear, time.January, 1, 0, 0, 0, 0, time.UTC)
		end = time.Date(fiscalYear+1, time.January, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	}
	return start, end
}
