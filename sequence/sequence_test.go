package sequence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/budget"
)

// fakeCodes returns canned greatest-existing-codes per prefix.
type fakeCodes struct {
	fundCodes       map[string]string
	particularCodes map[string]string
	txNumbers       map[string]string
	docNumbers      map[string]string // keyed column + "|" + prefix
}

func (f *fakeCodes) MaxFundCode(_ context.Context, prefix string) (string, error) {
	return f.fundCodes[prefix], nil
}

func (f *fakeCodes) MaxParticularCode(_ context.Context, prefix string) (string, error) {
	return f.particularCodes[prefix], nil
}

func (f *fakeCodes) MaxTransactionNumber(_ context.Context, prefix string) (string, error) {
	return f.txNumbers[prefix], nil
}

func (f *fakeCodes) MaxDocumentNumber(_ context.Context, column, prefix string) (string, error) {
	return f.docNumbers[column+"|"+prefix], nil
}

func newTestGenerator(codes *fakeCodes) *Generator {
	g := New(codes)
	// Pin the clock: January 15, 2025
	g.now = func() time.Time {
		return time.Date(2025, time.January, 15, 9, 30, 0, 0, time.UTC)
	}
	return g
}

// =============================================================================
// CODE FORMAT TESTS
// =============================================================================

func TestNextFundCode_EmptyTable_StartsAtOne(t *testing.T) {
	g := newTestGenerator(&fakeCodes{})

	code, err := g.NextFundCode(context.Background(), budget.CategoryPersonnelServices, 2025)
	require.NoError(t, err)
	assert.Equal(t, "PS-2025-001", code)
}

func TestNextFundCode_IncrementsGreatestExisting(t *testing.T) {
	g := newTestGenerator(&fakeCodes{
		fundCodes: map[string]string{"MOOE-2025-": "MOOE-2025-007"},
	})

	code, err := g.NextFundCode(context.Background(), budget.CategoryMOOE, 2025)
	require.NoError(t, err)
	assert.Equal(t, "MOOE-2025-008", code)
}

func TestNextFundCode_PerCategoryAndYearSequences(t *testing.T) {
	// GIVEN: MOOE 2025 has codes, DEV 2025 and MOOE 2026 do not
	// THEN: Each (category, year) pair counts independently

	g := newTestGenerator(&fakeCodes{
		fundCodes: map[string]string{"MOOE-2025-": "MOOE-2025-012"},
	})
	ctx := context.Background()

	mooe, err := g.NextFundCode(ctx, budget.CategoryMOOE, 2025)
	require.NoError(t, err)
	assert.Equal(t, "MOOE-2025-013", mooe)

	dev, err := g.NextFundCode(ctx, budget.CategoryDevelopmentFund, 2025)
	require.NoError(t, err)
	assert.Equal(t, "DEV-2025-001", dev)

	nextYear, err := g.NextFundCode(ctx, budget.CategoryMOOE, 2026)
	require.NoError(t, err)
	assert.Equal(t, "MOOE-2026-001", nextYear)
}

func TestNextParticularCode_NestedUnderFundCode(t *testing.T) {
	g := newTestGenerator(&fakeCodes{
		particularCodes: map[string]string{"PS-2025-001-P": "PS-2025-001-P004"},
	})

	code, err := g.NextParticularCode(context.Background(), "PS-2025-001")
	require.NoError(t, err)
	assert.Equal(t, "PS-2025-001-P005", code)
}

func TestNextTransactionNumber_MonthScopedWidthFour(t *testing.T) {
	g := newTestGenerator(&fakeCodes{
		txNumbers: map[string]string{"TXN-202501-": "TXN-202501-0041"},
	})

	number, err := g.NextTransactionNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TXN-202501-0042", number)
}

func TestNextDocumentNumbers_YearScoped(t *testing.T) {
	g := newTestGenerator(&fakeCodes{
		docNumbers: map[string]string{"pr_number|PR-2025-": "PR-2025-0009"},
	})
	ctx := context.Background()

	pr, err := g.NextPRNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PR-2025-0010", pr)

	po, err := g.NextPONumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PO-2025-0001", po)

	dv, err := g.NextDVNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "DV-2025-0001", dv)
}

func TestNextCode_UnparsableSuffix_RestartsAtOne(t *testing.T) {
	assert.Equal(t, "X-001", nextCode("X-", "X-junk", 3))
	assert.Equal(t, "X-001", nextCode("X-", "", 3))
	assert.Equal(t, "X-100", nextCode("X-", "X-099", 3))
	// Counter keeps going past the pad width
	assert.Equal(t, "X-1000", nextCode("X-", "X-999", 3))
}

// =============================================================================
// RETRY TESTS
// =============================================================================

func TestWithRetry_RetriesConflictsThenSucceeds(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &budget.ConflictError{Entity: "fund", Key: "fund code", Value: "PS-2025-001"}
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_NonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	wantErr := &budget.ValidationError{Field: "fundName", Reason: "required"}
	err := WithRetry(context.Background(), func(context.Context) error {
		attempts++
		return wantErr
	})

	assert.ErrorIs(t, err, budget.ErrValidation)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_ExhaustedSurfacesLastConflict(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func(context.Context) error {
		attempts++
		return &budget.ConflictError{Entity: "transaction", Key: "transaction number", Value: "TXN-202501-0001"}
	})

	assert.True(t, budget.IsRetryable(err))
	assert.Equal(t, maxRetries+1, attempts)
}
