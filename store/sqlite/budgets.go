// budgets.go - Fiscal-year budget rows. One per year, never deleted once
// funds reference it (there is no delete at all; years are closed, not
// removed).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/budget-engine/budget"
)

const budgetColumns = `id, fiscal_year, total_ira, estimated_local_income, other_income,
	status, created_at, updated_at`

// InsertBudget persists a fiscal-year budget. A second budget for the
// same year surfaces as budget.ConflictError.
func (s *Store) InsertBudget(ctx context.Context, b budget.FiscalYearBudget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fiscal_year_budgets (`+budgetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.FiscalYear, b.TotalIRA.String(), b.EstimatedLocalIncome.String(),
		b.OtherIncome.String(), string(b.Status), formatTime(b.CreatedAt),
		nullableTime(b.UpdatedAt),
	)
	return mapConstraintErr(err, "fiscal year budget", "fiscal year", fmt.Sprint(b.FiscalYear))
}

// UpdateBudget rewrites the revisable estimate fields and status.
func (s *Store) UpdateBudget(ctx context.Context, b budget.FiscalYearBudget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE fiscal_year_budgets
		SET total_ira = ?, estimated_local_income = ?, other_income = ?,
		    status = ?, updated_at = ?
		WHERE id = ?`,
		b.TotalIRA.String(), b.EstimatedLocalIncome.String(), b.OtherIncome.String(),
		string(b.Status), nullableTime(b.UpdatedAt), b.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, "fiscal year budget", b.ID)
}

// GetBudget returns the budget or (nil, nil) when it does not exist.
func (s *Store) GetBudget(ctx context.Context, id string) (*budget.FiscalYearBudget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBudget(ctx, "id = ?", id)
}

// GetBudgetByYear returns the budget for the fiscal year, or (nil, nil).
func (s *Store) GetBudgetByYear(ctx context.Context, fiscalYear int) (*budget.FiscalYearBudget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBudget(ctx, "fiscal_year = ?", fiscalYear)
}

// ListBudgets returns all fiscal-year budgets, newest year first.
func (s *Store) ListBudgets(ctx context.Context) ([]budget.FiscalYearBudget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryBudgets(ctx,
		"SELECT "+budgetColumns+" FROM fiscal_year_budgets ORDER BY fiscal_year DESC")
}

func (s *Store) getBudget(ctx context.Context, where string, args ...any) (*budget.FiscalYearBudget, error) {
	budgets, err := s.queryBudgets(ctx,
		"SELECT "+budgetColumns+" FROM fiscal_year_budgets WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	if len(budgets) == 0 {
		return nil, nil
	}
	return &budgets[0], nil
}

func (s *Store) queryBudgets(ctx context.Context, query string, args ...any) ([]budget.FiscalYearBudget, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query budgets: %w", err)
	}
	defer rows.Close()

	var budgets []budget.FiscalYearBudget
	for rows.Next() {
		var (
			b           budget.FiscalYearBudget
			totalIRA    string
			localIncome string
			otherIncome string
			status      string
			createdAt   string
			updatedAt   sql.NullString
		)
		err := rows.Scan(
			&b.ID, &b.FiscalYear, &totalIRA, &localIncome, &otherIncome,
			&status, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		b.TotalIRA = parseDecimal(totalIRA)
		b.EstimatedLocalIncome = parseDecimal(localIncome)
		b.OtherIncome = parseDecimal(otherIncome)
		b.Status = budget.BudgetStatus(status)
		b.CreatedAt = parseTime(createdAt)
		b.UpdatedAt = scanNullableTime(updatedAt)
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}
