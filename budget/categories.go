/*
categories.go - Fund category rules

PURPOSE:
  The fixed set of budget categories a fund can fall under, their code
  prefixes used by the sequence generator, and the mandated-percentage
  allocation rules for the categories the Local Government Code pins to a
  share of the internal revenue allotment.

MANDATED ALLOCATIONS:
  Development Fund  20%  (RA 7160)
  DRRM Fund          5%  (RA 10121)
  GAD Fund           5%  (RA 9710)
  SK Fund           10%  (RA 10742)

SEE ALSO:
  - allocation: ValidateMandatedAllocations uses these rules against a
    fiscal year's per-category totals
  - sequence: fund codes are built from CodePrefix
*/
package budget

import "github.com/shopspring/decimal"

// Category classifies a fund. The set is closed; external strings are
// validated with ParseCategory at the I/O edge.
type Category string

const (
	// Main expenditure classifications
	CategoryPersonnelServices Category = "Personal Services (PS)"
	CategoryMOOE              Category = "MOOE"
	CategoryCapitalOutlay     Category = "Capital Outlay (CO)"

	// Mandated allocations
	CategoryDevelopmentFund Category = "20% Development Fund"
	CategoryDRRMFund        Category = "5% DRRM Fund"
	CategoryGADFund         Category = "GAD Fund"
	CategorySKFund          Category = "SK Fund"

	// Other funds
	CategoryGeneralFund          Category = "General Fund"
	CategoryTrustFund            Category = "Trust Fund"
	CategorySpecialEducationFund Category = "Special Education Fund"
)

// Categories returns all fund categories in display order.
func Categories() []Category {
	return []Category{
		CategoryPersonnelServices,
		CategoryMOOE,
		CategoryCapitalOutlay,
		CategoryDevelopmentFund,
		CategoryDRRMFund,
		CategoryGADFund,
		CategorySKFund,
		CategoryGeneralFund,
		CategoryTrustFund,
		CategorySpecialEducationFund,
	}
}

// ParseCategory validates an external string against the closed set.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", &ValidationError{Field: "category", Value: s, Reason: "unknown fund category"}
}

// CodePrefix returns the prefix used when generating fund codes for the
// category, e.g. "MOOE" in "MOOE-2025-001".
func (c Category) CodePrefix() string {
	switch c {
	case CategoryPersonnelServices:
		return "PS"
	case CategoryMOOE:
		return "MOOE"
	case CategoryCapitalOutlay:
		return "CO"
	case CategoryDevelopmentFund:
		return "DEV"
	case CategoryDRRMFund:
		return "DRRM"
	case CategoryGADFund:
		return "GAD"
	case CategorySKFund:
		return "SK"
	case CategoryGeneralFund:
		return "GF"
	case CategoryTrustFund:
		return "TF"
	case CategorySpecialEducationFund:
		return "SEF"
	}
	return "OTH"
}

// Description returns a short explanation of what the category covers.
func (c Category) Description() string {
	switch c {
	case CategoryPersonnelServices:
		return "Salaries, wages, honoraria, and benefits of officials and employees"
	case CategoryMOOE:
		return "Maintenance and Other Operating Expenses - supplies, utilities, travel, repairs"
	case CategoryCapitalOutlay:
		return "Purchase of equipment, furniture, and infrastructure projects"
	case CategoryDevelopmentFund:
		return "Mandated 20% allocation for development projects (RA 7160)"
	case CategoryDRRMFund:
		return "Mandated 5% for Disaster Risk Reduction and Management (RA 10121)"
	case CategoryGADFund:
		return "At least 5% for Gender and Development programs (RA 9710)"
	case CategorySKFund:
		return "10% allocation for Sangguniang Kabataan programs (RA 10742)"
	case CategoryGeneralFund:
		return "General purpose fund for day-to-day operations"
	case CategoryTrustFund:
		return "Funds held in trust for specific purposes"
	case CategorySpecialEducationFund:
		return "Fund for education-related expenses"
	}
	return ""
}

// MandatedPercentage returns the share of total IRA the category must
// receive, or zero when no mandate applies.
func (c Category) MandatedPercentage() decimal.Decimal {
	switch c {
	case CategoryDevelopmentFund:
		return decimal.NewFromInt(20)
	case CategoryDRRMFund:
		return decimal.NewFromInt(5)
	case CategoryGADFund:
		return decimal.NewFromInt(5)
	case CategorySKFund:
		return decimal.NewFromInt(10)
	}
	return decimal.Zero
}

// RequiredAllocations computes the minimum amount each mandated category
// must be allocated given the year's total IRA.
func RequiredAllocations(totalIRA decimal.Decimal) map[Category]decimal.Decimal {
	required := make(map[Category]decimal.Decimal)
	for _, c := range Categories() {
		if pct := c.MandatedPercentage(); pct.IsPositive() {
			required[c] = totalIRA.Mul(pct).Div(decimal.NewFromInt(100))
		}
	}
	return required
}

// AllocationViolation names a mandated category whose allocated total falls
// short of the required share.
type AllocationViolation struct {
	Category  Category
	Required  decimal.Decimal
	Allocated decimal.Decimal
}

// ValidateAllocations checks per-category allocated totals against the
// mandated shares of totalIRA. It returns one violation per shortfall;
// nothing is clamped or corrected.
func ValidateAllocations(totalIRA decimal.Decimal, allocations map[Category]decimal.Decimal) []AllocationViolation {
	var violations []AllocationViolation
	for _, c := range Categories() {
		required, ok := RequiredAllocations(totalIRA)[c]
		if !ok {
			continue
		}
		allocated := allocations[c]
		if allocated.LessThan(required) {
			violations = append(violations, AllocationViolation{
				Category:  c,
				Required:  required,
				Allocated: allocated,
			})
		}
	}
	return violations
}
