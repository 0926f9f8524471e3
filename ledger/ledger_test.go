package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/allocation"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/ledger"
	"github.com/warp/budget-engine/notify"
	"github.com/warp/budget-engine/sequence"
	"github.com/warp/budget-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testEngine struct {
	store  *sqlite.Store
	alloc  *allocation.Service
	ledger *ledger.Ledger
	hub    *notify.Hub
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
		store:  store,
		alloc:  alloc,
		ledger: ledger.New(store, alloc, seq, hub),
		hub:    hub,
	}
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (e *testEngine) createFund(t *testing.T, allocated string) *budget.Fund {
	t.Helper()
	f, err := e.alloc.CreateFund(context.Background(), budget.Fund{
		FundName:        "Operations",
		Category:        budget.CategoryMOOE,
		AllocatedAmount: amt(allocated),
		FiscalYear:      2025,
	})
	require.NoError(t, err)
	return f
}

func expenditure(fundID, amount string) budget.Transaction {
	return budget.Transaction{
		FundID:          fundID,
		TransactionType: budget.TypeExpenditure,
		Description:     "office supplies",
		Payee:           "ACME Trading",
		Amount:          amt(amount),
		TransactionDate: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		CreatedBy:       "clerk",
	}
}

func (e *testEngine) createAndApprove(t *testing.T, fundID, amount string) *budget.Transaction {
	t.Helper()
	ctx := context.Background()

	tx, err := e.ledger.CreateTransaction(ctx, expenditure(fundID, amount))
	require.NoError(t, err)
	_, err = e.ledger.UpdateStatus(ctx, tx.ID, budget.StatusForApproval, "")
	require.NoError(t, err)
	approved, err := e.ledger.UpdateStatus(ctx, tx.ID, budget.StatusApproved, "treasurer")
	require.NoError(t, err)
	return approved
}

// =============================================================================
// CREATION TESTS
// =============================================================================

func TestCreateTransaction_AlwaysPending(t *testing.T) {
	e := newTestEngine(t)
	f := e.createFund(t, "800000")

	input := expenditure(f.ID, "50000")
	input.ApprovedBy = "sneaky" // caller cannot pre-approve

	tx, err := e.ledger.CreateTransaction(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, budget.StatusPending, tx.Status)
	assert.Empty(t, tx.ApprovedBy)
	assert.Nil(t, tx.ApprovedAt)
}

func TestCreateTransaction_NumbersStrictlyIncrease(t *testing.T) {
	e := newTestEngine(t)
	f := e.createFund(t, "800000")
	ctx := context.Background()

	first, err := e.ledger.CreateTransaction(ctx, expenditure(f.ID, "100"))
	require.NoError(t, err)
	second, err := e.ledger.CreateTransaction(ctx, expenditure(f.ID, "100"))
	require.NoError(t, err)

	assert.Greater(t, second.TransactionNumber, first.TransactionNumber)
}

func TestCreateTransaction_InsufficientBalance_CarriesAvailable(t *testing.T) {
	// GIVEN: An 800k fund with 50k committed
	// WHEN: Requesting a 760k expenditure
	// THEN: Rejected, and the error carries the 750k available

	e := newTestEngine(t)
	f := e.createFund(t, "800000")
	ctx := context.Background()

	e.createAndApprove(t, f.ID, "50000")

	_, err := e.ledger.CreateTransaction(ctx, expenditure(f.ID, "760000"))
	require.Error(t, err)

	var ibErr *budget.InsufficientBalanceError
	require.ErrorAs(t, err, &ibErr)
	assert.True(t, ibErr.Available.Equal(amt("750000")))
	assert.True(t, ibErr.Requested.Equal(amt("760000")))

	// 750k on the nose still fits
	tx, err := e.ledger.CreateTransaction(ctx, expenditure(f.ID, "750000"))
	require.NoError(t, err)
	assert.Equal(t, budget.StatusPending, tx.Status)
}

func TestCreateTransaction_PendingDoesNotConsumeBalance(t *testing.T) {
	e := newTestEngine(t)
	f := e.createFund(t, "100000")
	ctx := context.Background()

	_, err := e.ledger.CreateTransaction(ctx, expenditure(f.ID, "90000"))
	require.NoError(t, err)

	// The first is still Pending, so the full 100k remains available
	_, err = e.ledger.CreateTransaction(ctx, expenditure(f.ID, "90000"))
	assert.NoError(t, err)
}

func TestCreateTransaction_NonExpenditureSkipsBalanceCheck(t *testing.T) {
	e := newTestEngine(t)
	f := e.createFund(t, "1000")
	ctx := context.Background()

	appropriation := expenditure(f.ID, "999999")
	appropriation.TransactionType = budget.TypeAppropriation

	_, err := e.ledger.CreateTransaction(ctx, appropriation)
	assert.NoError(t, err)
}

func TestCreateTransaction_ParticularMustBelongToFund(t *testing.T) {
	e := newTestEngine(t)
	f1 := e.createFund(t, "100000")
	f2 := e.createFund(t, "100000")
	ctx := context.Background()

	p, err := e.alloc.CreateParticular(ctx, budget.Particular{
		FundID: f1.ID, ParticularName: "Supplies", AllocatedAmount: amt("50000"),
	})
	require.NoError(t, err)

	input := expenditure(f2.ID, "100")
	input.ParticularID = p.ID
	_, err = e.ledger.CreateTransaction(ctx, input)
	assert.ErrorIs(t, err, budget.ErrValidation)
}

// =============================================================================
// WORKFLOW TESTS
// =============================================================================

func TestApprovalWorkflow_RecomputesUtilization(t *testing.T) {
	// GIVEN: MOOE fund, 800k allocation
	// WHEN: A 50k expenditure travels Pending -> For Approval -> Approved
	// THEN: Utilized 50k, remaining 750k

	e := newTestEngine(t)
	f := e.createFund(t, "800000")
	ctx := context.Background()

	e.createAndApprove(t, f.ID, "50000")

	got, err := e.alloc.GetFund(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, got.UtilizedAmount.Equal(amt("50000")))
	assert.True(t, got.RemainingBalance().Equal(amt("750000")))
}

func TestRejection_NeverTouchesUtilization(t *testing.T) {
	e := newTestEngine(t)
	f := e.createFund(t, "800000")
	ctx := context.Background()

	tx, err := e.ledger.CreateTransaction(ctx, expenditure(f.ID, "50000"))
	require.NoError(t, err)
	_, err = e.ledger.UpdateStatus(ctx, tx.ID, budget.StatusForApproval, "")
	require.NoError(t, err)
	_, err = e.ledger.UpdateStatus(ctx, tx.ID, budget.StatusRejected, "treasurer")
	require.NoError(t, err)

	got, err := e.alloc.GetFund(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, got.UtilizedAmount.IsZero())
}

func TestIllegalTransition_LeavesEverythingUnchanged(t *testing.T) {
	// GIVEN: A Pending transaction on a fresh fund
	// WHEN: Jumping straight to Completed
	// THEN: Invalid-state error naming both statuses; row and fund untouched

	e := newTestEngine(t)
	f := e.createFund(t, "800000")
	ctx := context.Background()

	tx, err := e.ledger.CreateTransaction(ctx, expenditure(f.ID, "50000"))
	require.NoError(t, err)

	_, err = e.ledger.UpdateStatus(ctx, tx.ID, budget.StatusCompleted, "treasurer")
	var stateErr *budget.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, string(budget.StatusPending), stateErr.Current)

	got, err := e.ledger.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, budget.StatusPending, got.Status)

	fund, err := e.alloc.GetFund(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, fund.UtilizedAmount.IsZero())
}

func TestCompletion_UtilizationUnchangedFromApproval(t *testing.T) {
	// Approved already counted the amount; Completed must not double it

	e := newTestEngine(t)
	f := e.createFund(t, "800000")
	ctx := context.Background()

	tx := e.createAndApprove(t, f.ID, "50000")
	_, err := e.ledger.UpdateStatus(ctx, tx.ID, budget.StatusCompleted, "treasurer")
	require.NoError(t, err)

	got, err := e.alloc.GetFund(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, got.UtilizedAmount.Equal(amt("50000")), "recompute is a re-sum, never an add")
}

func TestUpdateStatus_PublishesEvents(t *testing.T) {
	e := newTestEngine(t)
	f := e.createFund(t, "800000")
	ctx := context.Background()

	var changes []budget.TransactionStatusChanged
	sub := notify.Subscribe(e.hub, func(ev budget.TransactionStatusChanged) { changes = append(changes, ev) })
	defer sub.Unsubscribe()

	var refreshes []budget.DashboardRefresh
	sub2 := notify.Subscribe(e.hub, func(ev budget.DashboardRefresh) { refreshes = append(refreshes, ev) })
	defer sub2.Unsubscribe()

	tx, err := e.ledger.CreateTransaction(ctx, expenditure(f.ID, "100"))
	require.NoError(t, err)
	_, err = e.ledger.UpdateStatus(ctx, tx.ID, budget.StatusForApproval, "")
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, budget.StatusPending, changes[0].OldStatus)
	assert.Equal(t, budget.StatusForApproval, changes[0].NewStatus)
	require.Len(t, refreshes, 1)
	assert.False(t, refreshes[0].RefreshCharts, "no money committed yet")
}

// =============================================================================
// EDIT AND DELETE WINDOW TESTS
// =============================================================================

func TestUpdateTransaction_PendingOnly(t *testing.T) {
	e := newTestEngine(t)
	f := e.createFund(t, "800000")
	ctx := context.Background()

	tx, err := e.ledger.CreateTransaction(ctx, expenditure(f.ID, "100"))
	require.NoError(t, err)

	edited := *tx
	edited.Description = "revised description"
	edited.Amount = amt("250")
	updated, err := e.ledger.UpdateTransaction(ctx, edited)
	require.NoError(t, err)
	assert.Equal(t, "revised description", updated.Description)
	assert.True(t, updated.Amount.Equal(amt("250")))

	// Once submitted, frozen
	_, err = e.ledger.UpdateStatus(ctx, tx.ID, budget.StatusForApproval, "")
	require.NoError(t, err)
	_, err = e.ledger.UpdateTransaction(ctx, edited)
	assert.ErrorIs(t, err, budget.ErrInvalidState)
}

func TestDeleteTransaction_AuditTrailPreserved(t *testing.T) {
	e := newTestEngine(t)
	f := e.createFund(t, "800000")
	ctx := context.Background()

	// Pending deletes
	pending, err := e.ledger.CreateTransaction(ctx, expenditure(f.ID, "100"))
	require.NoError(t, err)
	assert.NoError(t, e.ledger.DeleteTransaction(ctx, pending.ID))

	// Rejected deletes
	rejected, err := e.ledger.CreateTransaction(ctx, expenditure(f.ID, "100"))
	require.NoError(t, err)
	_, err = e.ledger.UpdateStatus(ctx, rejected.ID, budget.StatusForApproval, "")
	require.NoError(t, err)
	_, err = e.ledger.UpdateStatus(ctx, rejected.ID, budget.StatusRejected, "treasurer")
	require.NoError(t, err)
	assert.NoError(t, e.ledger.DeleteTransaction(ctx, rejected.ID))

	// Approved stays
	approved := e.createAndApprove(t, f.ID, "100")
	err = e.ledger.DeleteTransaction(ctx, approved.ID)
	assert.ErrorIs(t, err, budget.ErrInvalidState)
}

// =============================================================================
// QUERY TESTS
// =============================================================================

func TestMonthlySummary_TwelveBucketsCommittedOnly(t *testing.T) {
	e := newTestEngine(t)
	f := e.createFund(t, "800000")
	ctx := context.Background()

	marchTx := expenditure(f.ID, "30000")
	created, err := e.ledger.CreateTransaction(ctx, marchTx)
	require.NoError(t, err)
	_, err = e.ledger.UpdateStatus(ctx, created.ID, budget.StatusForApproval, "")
	require.NoError(t, err)
	_, err = e.ledger.UpdateStatus(ctx, created.ID, budget.StatusApproved, "treasurer")
	require.NoError(t, err)

	// A pending one in June must not show up
	juneTx := expenditure(f.ID, "10000")
	juneTx.TransactionDate = time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC)
	_, err = e.ledger.CreateTransaction(ctx, juneTx)
	require.NoError(t, err)

	totals, err := e.ledger.MonthlySummary(ctx, f.ID, 2025)
	require.NoError(t, err)
	require.Len(t, totals, 12)
	assert.True(t, totals[2].Total.Equal(amt("30000")), "march bucket")
	assert.True(t, totals[5].Total.IsZero(), "june stays zero while pending")
}

func TestYearlyStatistics_CountsAndCommittedTotal(t *testing.T) {
	e := newTestEngine(t)
	f := e.createFund(t, "800000")
	ctx := context.Background()

	e.createAndApprove(t, f.ID, "50000")
	_, err := e.ledger.CreateTransaction(ctx, expenditure(f.ID, "10000"))
	require.NoError(t, err)

	stats, err := e.ledger.YearlyStatistics(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCount)
	assert.Equal(t, 1, stats.CountByStatus[budget.StatusApproved])
	assert.Equal(t, 1, stats.CountByStatus[budget.StatusPending])
	assert.True(t, stats.TotalCommitted.Equal(amt("50000")))
}
