package allocation

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// SUMMARY QUERIES - dashboard and compliance views
// =============================================================================

// Summary is the fiscal-year rollup the dashboard header shows.
type Summary struct {
	FiscalYear            int
	FundCount             int
	TotalAllocated        decimal.Decimal
	TotalUtilized         decimal.Decimal
	TotalRemaining        decimal.Decimal
	UtilizationPercentage float64
}

// CategorySummary is one per-category rollup row.
type CategorySummary struct {
	Category              budget.Category
	FundCount             int
	TotalAllocated        decimal.Decimal
	TotalUtilized         decimal.Decimal
	TotalRemaining        decimal.Decimal
	UtilizationPercentage float64
}

// FiscalYearSummary totals active funds for the year. All sums are
// decimal; the percentage is utilized over allocated.
func (s *Service) FiscalYearSummary(ctx context.Context, fiscalYear int) (*Summary, error) {
	funds, err := s.store.ListFunds(ctx, fiscalYear)
	if err != nil {
		return nil, err
	}

	out := &Summary{
		FiscalYear:     fiscalYear,
		FundCount:      len(funds),
		TotalAllocated: decimal.Zero,
		TotalUtilized:  decimal.Zero,
	}
	for _, f := range funds {
		out.TotalAllocated = out.TotalAllocated.Add(f.AllocatedAmount)
		out.TotalUtilized = out.TotalUtilized.Add(f.UtilizedAmount)
	}
	out.TotalRemaining = out.TotalAllocated.Sub(out.TotalUtilized)
	out.UtilizationPercentage = percentage(out.TotalUtilized, out.TotalAllocated)
	return out, nil
}

// SummaryByCategory groups the year's active funds per category, in the
// fixed category display order. Categories with no funds are omitted.
func (s *Service) SummaryByCategory(ctx context.Context, fiscalYear int) ([]CategorySummary, error) {
	funds, err := s.store.ListFunds(ctx, fiscalYear)
	if err != nil {
		return nil, err
	}

	byCategory := make(map[budget.Category]*CategorySummary)
	for _, f := range funds {
		row, ok := byCategory[f.Category]
		if !ok {
			row = &CategorySummary{
				Category:       f.Category,
				TotalAllocated: decimal.Zero,
				TotalUtilized:  decimal.Zero,
			}
			byCategory[f.Category] = row
		}
		row.FundCount++
		row.TotalAllocated = row.TotalAllocated.Add(f.AllocatedAmount)
		row.TotalUtilized = row.TotalUtilized.Add(f.UtilizedAmount)
	}

	var out []CategorySummary
	for _, c := range budget.Categories() {
		row, ok := byCategory[c]
		if !ok {
			continue
		}
		row.TotalRemaining = row.TotalAllocated.Sub(row.TotalUtilized)
		row.UtilizationPercentage = percentage(row.TotalUtilized, row.TotalAllocated)
		out = append(out, *row)
	}
	return out, nil
}

// LowBalanceFunds returns the year's active funds whose remaining balance
// has fallen below thresholdPercent of their allocation, most critical
// first (ascending remaining percentage). Pass 0 for the default 20%.
func (s *Service) LowBalanceFunds(ctx context.Context, fiscalYear int, thresholdPercent float64) ([]budget.Fund, error) {
	if thresholdPercent <= 0 {
		thresholdPercent = 20
	}
	funds, err := s.store.ListFunds(ctx, fiscalYear)
	if err != nil {
		return nil, err
	}

	var low []budget.Fund
	for _, f := range funds {
		if !f.AllocatedAmount.IsPositive() {
			continue
		}
		if 100-f.UtilizationPercentage() < thresholdPercent {
			low = append(low, f)
		}
	}
	sort.Slice(low, func(i, j int) bool {
		return 100-low[i].UtilizationPercentage() < 100-low[j].UtilizationPercentage()
	})
	return low, nil
}

// ValidateMandatedAllocations checks the year's per-category allocated
// totals against the mandated IRA shares (20% Development, 5% DRRM,
// 5% GAD, 10% SK). totalIRA comes from the year's FiscalYearBudget; when
// no budget exists for the year the result is a validation error.
func (s *Service) ValidateMandatedAllocations(ctx context.Context, fiscalYear int) ([]budget.AllocationViolation, error) {
	yearBudget, err := s.store.GetBudgetByYear(ctx, fiscalYear)
	if err != nil {
		return nil, err
	}
	if yearBudget == nil {
		return nil, &budget.ValidationError{Field: "fiscalYear", Value: fiscalYear, Reason: "no budget set up for year"}
	}

	funds, err := s.store.ListFunds(ctx, fiscalYear)
	if err != nil {
		return nil, err
	}
	allocations := make(map[budget.Category]decimal.Decimal)
	for _, f := range funds {
		allocations[f.Category] = allocations[f.Category].Add(f.AllocatedAmount)
	}
	return budget.ValidateAllocations(yearBudget.TotalIRA, allocations), nil
}

func percentage(part, whole decimal.Decimal) float64 {
	if !whole.IsPositive() {
		return 0
	}
	pct, _ := part.Div(whole).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}
