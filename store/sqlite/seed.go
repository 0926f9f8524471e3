// seed.go - Optional starter funds for a fresh database.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/budget"
)

// Seed inserts a starter set of appropriation funds for the fiscal year
// so a fresh database is immediately usable. No-op when any fund already
// exists.
func (s *Store) Seed(ctx context.Context, fiscalYear int) error {
	existing, err := s.ListFunds(ctx, 0)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	type seedFund struct {
		code        string
		name        string
		description string
		amount      string
		category    budget.Category
	}

	seeds := []seedFund{
		{"PS-%d-001", "General Fund - Personnel Services",
			"Salaries and wages of officials and employees", "500000.00",
			budget.CategoryPersonnelServices},
		{"MOOE-%d-001", "General Fund - MOOE",
			"Maintenance and Other Operating Expenses", "300000.00",
			budget.CategoryMOOE},
		{"SK-%d-001", "SK Fund",
			"Sangguniang Kabataan Fund for youth programs", "100000.00",
			budget.CategorySKFund},
		{"DEV-%d-001", "Development Fund",
			"Infrastructure and development projects", "750000.00",
			budget.CategoryDevelopmentFund},
		{"DRRM-%d-001", "Disaster Risk Reduction Fund",
			"Disaster preparedness and response", "200000.00",
			budget.CategoryDRRMFund},
		{"CO-%d-001", "General Fund - Capital Outlay",
			"Capital expenditures for equipment and infrastructure", "400000.00",
			budget.CategoryCapitalOutlay},
	}

	now := time.Now().UTC()
	for _, sf := range seeds {
		fund := budget.Fund{
			ID:              uuid.NewString(),
			FundCode:        fmt.Sprintf(sf.code, fiscalYear),
			FundName:        sf.name,
			Description:     sf.description,
			Category:        sf.category,
			AllocatedAmount: decimal.RequireFromString(sf.amount),
			UtilizedAmount:  decimal.Zero,
			FiscalYear:      fiscalYear,
			IsActive:        true,
			CreatedAt:       now,
		}
		if err := s.InsertFund(ctx, fund); err != nil {
			return err
		}
	}
	return nil
}
