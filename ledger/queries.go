package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/store/sqlite"
)

// =============================================================================
// QUERY SURFACE
// =============================================================================

// Filter re-exports the store filter so callers stay off the storage
// package.
type Filter = sqlite.TransactionFilter

// GetTransaction returns the transaction by id.
func (l *Ledger) GetTransaction(ctx context.Context, id string) (*budget.Transaction, error) {
	t, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, &budget.NotFoundError{Entity: "transaction", ID: id}
	}
	return t, nil
}

// GetTransactionByNumber returns the transaction with the number.
func (l *Ledger) GetTransactionByNumber(ctx context.Context, number string) (*budget.Transaction, error) {
	t, err := l.store.GetTransactionByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, &budget.NotFoundError{Entity: "transaction", ID: number}
	}
	return t, nil
}

// ListTransactions returns transactions matching the filter, newest
// first.
func (l *Ledger) ListTransactions(ctx context.Context, filter Filter) ([]budget.Transaction, error) {
	return l.store.ListTransactions(ctx, filter)
}

// PendingApprovals returns the For Approval queue, oldest first.
func (l *Ledger) PendingApprovals(ctx context.Context) ([]budget.Transaction, error) {
	return l.store.PendingApprovals(ctx)
}

// RecentTransactions returns the n most recently created transactions.
// Pass 0 for the default of 10.
func (l *Ledger) RecentTransactions(ctx context.Context, n int) ([]budget.Transaction, error) {
	if n <= 0 {
		n = 10
	}
	return l.store.RecentTransactions(ctx, n)
}

// MonthlyTotal is one month's committed expenditure for a fund.
type MonthlyTotal struct {
	Month int // 1-12
	Total decimal.Decimal
}

// MonthlySummary sums the fund's committed (Approved/Completed)
// expenditures per calendar month of the year, for chart consumption.
// Every month appears, zero or not.
func (l *Ledger) MonthlySummary(ctx context.Context, fundID string, year int) ([]MonthlyTotal, error) {
	txs, err := l.store.CommittedTransactionsForFundYear(ctx, fundID, year)
	if err != nil {
		return nil, err
	}

	totals := make([]MonthlyTotal, 12)
	for m := range totals {
		totals[m] = MonthlyTotal{Month: m + 1, Total: decimal.Zero}
	}
	for _, t := range txs {
		if t.TransactionType != budget.TypeExpenditure {
			continue
		}
		m := int(t.TransactionDate.Month()) - 1
		totals[m].Total = totals[m].Total.Add(t.Amount)
	}
	return totals, nil
}

// Statistics is the yearly transaction rollup for the dashboard.
type Statistics struct {
	Year           int
	TotalCount     int
	CountByStatus  map[budget.TransactionStatus]int
	TotalCommitted decimal.Decimal // Approved/Completed expenditure sum
}

// YearlyStatistics counts the year's transactions per status and sums
// committed expenditure, all client-side over decimals.
func (l *Ledger) YearlyStatistics(ctx context.Context, year int) (*Statistics, error) {
	txs, err := l.store.TransactionsForYear(ctx, year)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		Year:           year,
		CountByStatus:  make(map[budget.TransactionStatus]int),
		TotalCommitted: decimal.Zero,
	}
	for _, t := range txs {
		stats.TotalCount++
		stats.CountByStatus[t.Status]++
		if t.Committed() && t.TransactionType == budget.TypeExpenditure {
			stats.TotalCommitted = stats.TotalCommitted.Add(t.Amount)
		}
	}
	return stats, nil
}

// =============================================================================
// NUMBER PREVIEWS
// =============================================================================

// NextTransactionNumber previews the next sequence number for the
// current month.
func (l *Ledger) NextTransactionNumber(ctx context.Context) (string, error) {
	return l.seq.NextTransactionNumber(ctx)
}

// NextPRNumber previews the next purchase request number.
func (l *Ledger) NextPRNumber(ctx context.Context) (string, error) {
	return l.seq.NextPRNumber(ctx)
}

// NextPONumber previews the next purchase order number.
func (l *Ledger) NextPONumber(ctx context.Context) (string, error) {
	return l.seq.NextPONumber(ctx)
}

// NextDVNumber previews the next disbursement voucher number.
func (l *Ledger) NextDVNumber(ctx context.Context) (string, error) {
	return l.seq.NextDVNumber(ctx)
}
