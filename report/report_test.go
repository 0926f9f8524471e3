package report_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/allocation"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/ledger"
	"github.com/warp/budget-engine/notify"
	"github.com/warp/budget-engine/report"
	"github.com/warp/budget-engine/sequence"
	"github.com/warp/budget-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testEngine struct {
	store   *sqlite.Store
	alloc   *allocation.Service
	ledger  *ledger.Ledger
	reports *report.Aggregator
	hub     *notify.Hub
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := notify.NewHub()
	t.Cleanup(hub.Close)

	seq := sequence.New(store)
	alloc := allocation.New(store, seq, hub)
	return &testEngine{
		store:   store,
		alloc:   alloc,
		ledger:  ledger.New(store, alloc, seq, hub),
		reports: report.New(store, hub),
		hub:     hub,
	}
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (e *testEngine) createFund(t *testing.T, name, allocated string) *budget.Fund {
	t.Helper()
	f, err := e.alloc.CreateFund(context.Background(), budget.Fund{
		FundName:        name,
		Category:        budget.CategoryMOOE,
		AllocatedAmount: amt(allocated),
		FiscalYear:      2025,
	})
	require.NoError(t, err)
	return f
}

// spend creates an expenditure on the given date and walks it to the
// target status.
func (e *testEngine) spend(t *testing.T, fundID, amount string, date time.Time, target budget.TransactionStatus) {
	t.Helper()
	ctx := context.Background()

	tx, err := e.ledger.CreateTransaction(ctx, budget.Transaction{
		FundID:          fundID,
		TransactionType: budget.TypeExpenditure,
		Description:     "expenditure",
		Amount:          amt(amount),
		TransactionDate: date,
		CreatedBy:       "clerk",
	})
	require.NoError(t, err)
	if target == budget.StatusPending {
		return
	}

	path := []budget.TransactionStatus{budget.StatusForApproval, budget.StatusApproved, budget.StatusCompleted}
	for _, step := range path {
		_, err = e.ledger.UpdateStatus(ctx, tx.ID, step, "treasurer")
		require.NoError(t, err)
		if step == target {
			return
		}
	}
	t.Fatalf("unreachable target status %s", target)
}

var (
	march = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	june  = time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC)
)

// =============================================================================
// GENERATION TESTS
// =============================================================================

func TestGenerateMonthly_DetailAndHeaderMath(t *testing.T) {
	// GIVEN: An 800k fund with March activity in every status
	// WHEN: Generating the March report
	// THEN: Only Approved and Completed count as obligations,
	//       only Completed as disbursements, pending is invisible

	e := newTestEngine(t)
	f := e.createFund(t, "Operations", "800000")
	ctx := context.Background()

	e.spend(t, f.ID, "50000", march, budget.StatusApproved)
	e.spend(t, f.ID, "20000", march, budget.StatusCompleted)
	e.spend(t, f.ID, "10000", march, budget.StatusPending)
	e.spend(t, f.ID, "99999", june, budget.StatusApproved) // outside the period

	r, err := e.reports.GenerateMonthly(ctx, 2025, 3, "treasurer")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(r.ReportNumber, "COA-2025-03-"))
	assert.Equal(t, budget.ReportGenerated, r.Status)
	assert.Equal(t, "treasurer", r.GeneratedBy)

	require.Len(t, r.Details, 1)
	d := r.Details[0]
	assert.Equal(t, f.FundCode, d.FundCode)
	assert.True(t, d.Appropriation.Equal(amt("800000")))
	assert.True(t, d.Obligations.Equal(amt("70000")))
	assert.True(t, d.Disbursements.Equal(amt("20000")))
	assert.True(t, d.Balance.Equal(amt("730000")))

	assert.True(t, r.TotalAppropriation.Equal(amt("800000")))
	assert.True(t, r.TotalObligations.Equal(amt("70000")))
	assert.True(t, r.TotalDisbursements.Equal(amt("20000")))
	assert.True(t, r.UnobligatedBalance.Equal(amt("730000")))
}

func TestGenerateAnnual_SpansAllMonths(t *testing.T) {
	e := newTestEngine(t)
	f := e.createFund(t, "Operations", "800000")
	g := e.createFund(t, "Salaries", "200000")
	ctx := context.Background()

	e.spend(t, f.ID, "50000", march, budget.StatusApproved)
	e.spend(t, f.ID, "30000", june, budget.StatusCompleted)
	e.spend(t, g.ID, "15000", june, budget.StatusApproved)

	r, err := e.reports.GenerateAnnual(ctx, 2025, "treasurer")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(r.ReportNumber, "COA-2025-ANNUAL-"))
	require.Len(t, r.Details, 2)
	assert.True(t, r.TotalAppropriation.Equal(amt("1000000")))
	assert.True(t, r.TotalObligations.Equal(amt("95000")))
	assert.True(t, r.TotalDisbursements.Equal(amt("30000")))
	assert.True(t, r.UnobligatedBalance.Equal(amt("905000")))
}

func TestGenerateQuarterly_PeriodBoundaries(t *testing.T) {
	e := newTestEngine(t)
	f := e.createFund(t, "Operations", "800000")
	ctx := context.Background()

	e.spend(t, f.ID, "50000", march, budget.StatusApproved) // Q1
	e.spend(t, f.ID, "30000", june, budget.StatusApproved)  // Q2

	q1, err := e.reports.GenerateQuarterly(ctx, 2025, 1, "treasurer")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(q1.ReportNumber, "COA-2025-Q1-"))
	assert.True(t, q1.TotalObligations.Equal(amt("50000")))

	q2, err := e.reports.GenerateQuarterly(ctx, 2025, 2, "treasurer")
	require.NoError(t, err)
	assert.True(t, q2.TotalObligations.Equal(amt("30000")))
}

func TestGenerate_RejectsOutOfRangePeriods(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.reports.GenerateMonthly(ctx, 2025, 13, "treasurer")
	assert.ErrorIs(t, err, budget.ErrValidation)
	_, err = e.reports.GenerateMonthly(ctx, 2025, 0, "treasurer")
	assert.ErrorIs(t, err, budget.ErrValidation)
	_, err = e.reports.GenerateQuarterly(ctx, 2025, 5, "treasurer")
	assert.ErrorIs(t, err, budget.ErrValidation)
}

func TestGenerate_RegenerationMatchesWhenNothingChanged(t *testing.T) {
	e := newTestEngine(t)
	f := e.createFund(t, "Operations", "800000")
	ctx := context.Background()

	e.spend(t, f.ID, "50000", march, budget.StatusApproved)

	first, err := e.reports.GenerateMonthly(ctx, 2025, 3, "treasurer")
	require.NoError(t, err)
	second, err := e.reports.GenerateMonthly(ctx, 2025, 3, "treasurer")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "each generation is a distinct snapshot")
	assert.True(t, first.TotalObligations.Equal(second.TotalObligations))
	assert.True(t, first.UnobligatedBalance.Equal(second.UnobligatedBalance))
}

func TestGenerate_PublishesSnapshotEvent(t *testing.T) {
	e := newTestEngine(t)
	e.createFund(t, "Operations", "800000")
	ctx := context.Background()

	var events []budget.ReportSnapshotCreated
	sub := notify.Subscribe(e.hub, func(ev budget.ReportSnapshotCreated) { events = append(events, ev) })
	defer sub.Unsubscribe()

	r, err := e.reports.GenerateAnnual(ctx, 2025, "treasurer")
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, r.ID, events[0].ReportID)
	assert.Equal(t, budget.ReportAnnual, events[0].ReportType)
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestReportLifecycle_SubmissionFreezes(t *testing.T) {
	e := newTestEngine(t)
	e.createFund(t, "Operations", "800000")
	ctx := context.Background()

	r, err := e.reports.GenerateAnnual(ctx, 2025, "treasurer")
	require.NoError(t, err)

	// Forward moves, skipping Reviewed, are fine
	submitted, err := e.reports.UpdateReportStatus(ctx, r.ID, budget.ReportSubmitted)
	require.NoError(t, err)
	assert.NotNil(t, submitted.SubmittedAt)

	// Backward is not
	_, err = e.reports.UpdateReportStatus(ctx, r.ID, budget.ReportDraft)
	assert.ErrorIs(t, err, budget.ErrInvalidState)

	// Neither is deletion once submitted
	err = e.reports.DeleteReport(ctx, r.ID)
	assert.ErrorIs(t, err, budget.ErrInvalidState)
}

func TestDeleteReport_BeforeSubmission(t *testing.T) {
	e := newTestEngine(t)
	e.createFund(t, "Operations", "800000")
	ctx := context.Background()

	r, err := e.reports.GenerateAnnual(ctx, 2025, "treasurer")
	require.NoError(t, err)

	require.NoError(t, e.reports.DeleteReport(ctx, r.ID))
	_, err = e.reports.GetReport(ctx, r.ID)
	assert.ErrorIs(t, err, budget.ErrNotFound)
}

// =============================================================================
// SNAPSHOT TESTS
// =============================================================================

func TestBudgetUtilizationSnapshot(t *testing.T) {
	e := newTestEngine(t)
	f := e.createFund(t, "Operations", "800000")
	ctx := context.Background()

	e.spend(t, f.ID, "200000", march, budget.StatusApproved)

	rows, err := e.reports.BudgetUtilizationSnapshot(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Utilized.Equal(amt("200000")))
	assert.True(t, rows[0].Remaining.Equal(amt("600000")))
	assert.InDelta(t, 25.0, rows[0].UtilizationRate, 0.001)
}

func TestCashFlowSnapshot_InflowVersusOutflow(t *testing.T) {
	// Appropriations flow in regardless of status; expenditures only
	// flow out once Completed.

	e := newTestEngine(t)
	f := e.createFund(t, "Operations", "800000")
	ctx := context.Background()

	_, err := e.ledger.CreateTransaction(ctx, budget.Transaction{
		FundID:          f.ID,
		TransactionType: budget.TypeAppropriation,
		Description:     "IRA tranche",
		Amount:          amt("100000"),
		TransactionDate: march,
		CreatedBy:       "clerk",
	})
	require.NoError(t, err)

	e.spend(t, f.ID, "40000", march, budget.StatusCompleted)
	e.spend(t, f.ID, "25000", march, budget.StatusApproved) // obligated, not yet disbursed

	months, err := e.reports.CashFlowSnapshot(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, months, 12)

	m := months[2] // March
	assert.True(t, m.Inflow.Equal(amt("100000")))
	assert.True(t, m.Outflow.Equal(amt("40000")))
	assert.True(t, m.Net.Equal(amt("60000")))
	assert.True(t, months[5].Inflow.IsZero())
}

// =============================================================================
// PERIOD MATH TESTS
// =============================================================================

func TestPeriodFor(t *testing.T) {
	start, end := report.PeriodFor(budget.ReportMonthly, 2025, 12, 0)
	assert.Equal(t, time.December, start.Month())
	assert.Equal(t, 2025, end.Year(), "december period must not spill into january")

	start, end = report.PeriodFor(budget.ReportQuarterly, 2025, 0, 4)
	assert.Equal(t, time.October, start.Month())
	assert.True(t, end.After(time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)))

	start, end = report.PeriodFor(budget.ReportAnnual, 2025, 0, 0)
	assert.Equal(t, time.January, start.Month())
	assert.Equal(t, 2025, start.Year())
	assert.Equal(t, 2025, end.Year())
}
