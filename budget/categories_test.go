package budget_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/budget"
)

func TestCategory_CodePrefixes(t *testing.T) {
	assert.Equal(t, "PS", budget.CategoryPersonnelServices.CodePrefix())
	assert.Equal(t, "MOOE", budget.CategoryMOOE.CodePrefix())
	assert.Equal(t, "DEV", budget.CategoryDevelopmentFund.CodePrefix())
	assert.Equal(t, "DRRM", budget.CategoryDRRMFund.CodePrefix())
	assert.Equal(t, "SK", budget.CategorySKFund.CodePrefix())
	assert.Equal(t, "OTH", budget.Category("Something Else").CodePrefix())
}

func TestRequiredAllocations_MandatedShares(t *testing.T) {
	// GIVEN: 1,000,000 total IRA
	// THEN: Dev 200k (20%), DRRM 50k (5%), GAD 50k (5%), SK 100k (10%)

	required := budget.RequiredAllocations(decimal.NewFromInt(1_000_000))
	require.Len(t, required, 4)
	assert.True(t, required[budget.CategoryDevelopmentFund].Equal(decimal.NewFromInt(200_000)))
	assert.True(t, required[budget.CategoryDRRMFund].Equal(decimal.NewFromInt(50_000)))
	assert.True(t, required[budget.CategoryGADFund].Equal(decimal.NewFromInt(50_000)))
	assert.True(t, required[budget.CategorySKFund].Equal(decimal.NewFromInt(100_000)))
}

func TestValidateAllocations_ReportsShortfallsOnly(t *testing.T) {
	// GIVEN: Dev fund meets the 20% mandate, SK falls short, DRRM/GAD absent
	// WHEN: Validating against a 1M IRA
	// THEN: SK, DRRM, and GAD are violations; Dev is not

	ira := decimal.NewFromInt(1_000_000)
	violations := budget.ValidateAllocations(ira, map[budget.Category]decimal.Decimal{
		budget.CategoryDevelopmentFund: decimal.NewFromInt(200_000),
		budget.CategorySKFund:          decimal.NewFromInt(60_000),
	})

	require.Len(t, violations, 3)
	byCategory := make(map[budget.Category]budget.AllocationViolation)
	for _, v := range violations {
		byCategory[v.Category] = v
	}

	assert.NotContains(t, byCategory, budget.CategoryDevelopmentFund)

	sk := byCategory[budget.CategorySKFund]
	assert.True(t, sk.Required.Equal(decimal.NewFromInt(100_000)))
	assert.True(t, sk.Allocated.Equal(decimal.NewFromInt(60_000)))

	assert.Contains(t, byCategory, budget.CategoryDRRMFund)
	assert.Contains(t, byCategory, budget.CategoryGADFund)
}

func TestValidateAllocations_AllMet_NoViolations(t *testing.T) {
	ira := decimal.NewFromInt(500_000)
	violations := budget.ValidateAllocations(ira, map[budget.Category]decimal.Decimal{
		budget.CategoryDevelopmentFund: decimal.NewFromInt(100_000),
		budget.CategoryDRRMFund:        decimal.NewFromInt(25_000),
		budget.CategoryGADFund:         decimal.NewFromInt(25_000),
		budget.CategorySKFund:          decimal.NewFromInt(50_000),
	})
	assert.Empty(t, violations)
}
