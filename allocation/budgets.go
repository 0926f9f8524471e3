package allocation

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// FISCAL YEAR BUDGETS
// =============================================================================

// CreateBudget sets up a fiscal year's budget. At most one budget exists
// per year; a duplicate year surfaces as a conflict.
func (s *Service) CreateBudget(ctx context.Context, b budget.FiscalYearBudget) (*budget.FiscalYearBudget, error) {
	if err := validateBudget(b); err != nil {
		return nil, err
	}

	b.ID = uuid.NewString()
	if b.Status == "" {
		b.Status = budget.BudgetDraft
	}
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = nil

	if err := s.store.InsertBudget(ctx, b); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBudget revises the income figures and status. The fiscal year
// itself is immutable once created.
func (s *Service) UpdateBudget(ctx context.Context, b budget.FiscalYearBudget) (*budget.FiscalYearBudget, error) {
	existing, err := s.store.GetBudget(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, &budget.NotFoundError{Entity: "budget", ID: b.ID}
	}
	if err := validateBudget(b); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	existing.TotalIRA = b.TotalIRA
	existing.EstimatedLocalIncome = b.EstimatedLocalIncome
	existing.OtherIncome = b.OtherIncome
	if b.Status != "" {
		existing.Status = b.Status
	}
	existing.UpdatedAt = &now

	if err := s.store.UpdateBudget(ctx, *existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// GetBudget returns the budget by id.
func (s *Service) GetBudget(ctx context.Context, id string) (*budget.FiscalYearBudget, error) {
	b, err := s.store.GetBudget(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &budget.NotFoundError{Entity: "budget", ID: id}
	}
	return b, nil
}

// GetBudgetByYear returns the year's budget, or a not-found error when
// the year has not been set up.
func (s *Service) GetBudgetByYear(ctx context.Context, fiscalYear int) (*budget.FiscalYearBudget, error) {
	b, err := s.store.GetBudgetByYear(ctx, fiscalYear)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &budget.NotFoundError{Entity: "budget", ID: strconv.Itoa(fiscalYear)}
	}
	return b, nil
}

// ListBudgets returns every fiscal year budget, newest year first.
func (s *Service) ListBudgets(ctx context.Context) ([]budget.FiscalYearBudget, error) {
	return s.store.ListBudgets(ctx)
}

func validateBudget(b budget.FiscalYearBudget) error {
	if b.FiscalYear <= 0 {
		return &budget.ValidationError{Field: "fiscalYear", Value: b.FiscalYear, Reason: "must be a calendar year"}
	}
	if b.TotalIRA.IsNegative() {
		return &budget.ValidationError{Field: "totalIRA", Value: b.TotalIRA.String(), Reason: "must not be negative"}
	}
	if b.EstimatedLocalIncome.IsNegative() {
		return &budget.ValidationError{Field: "estimatedLocalIncome", Value: b.EstimatedLocalIncome.String(), Reason: "must not be negative"}
	}
	if b.OtherIncome.IsNegative() {
		return &budget.ValidationError{Field: "otherIncome", Value: b.OtherIncome.String(), Reason: "must not be negative"}
	}
	return nil
}
