/*
Package ledger is the transaction side of the engine: creating,
amending, and moving transactions through the approval workflow.

PURPOSE:
  Every peso leaving a fund passes through here. The ledger enforces the
  balance check on expenditure creation, the Pending-only edit window,
  and the approval state machine, and it is the single trigger for
  utilization recomputation when money becomes committed.

WORKFLOW:
  Pending -> For Approval -> Approved -> Completed
                          -> Rejected
  Pending -> Cancelled

  Approved and Completed are the "committed" statuses: entering either
  one for an Expenditure recomputes the fund's utilization.

INVARIANTS:
  1. New transactions are always Pending, whatever the caller sends
  2. Financial fields freeze once a transaction leaves Pending
  3. Deletion is allowed only from Pending or Rejected; anything that
     reached approval stays for the audit trail
  4. Status changes are validated in the store's write transaction, so
     an illegal move never partially applies

SEE ALSO:
  - budget/statemachine.go: the transition table
  - allocation: RecomputeUtilization, called on commit
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/warp/budget-engine/allocation"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/notify"
	"github.com/warp/budget-engine/sequence"
	"github.com/warp/budget-engine/store/sqlite"
)

// Ledger is the transaction service. Construct with New.
type Ledger struct {
	store *sqlite.Store
	alloc *allocation.Service
	seq   *sequence.Generator
	hub   *notify.Hub
}

// New creates the transaction ledger.
func New(store *sqlite.Store, alloc *allocation.Service, seq *sequence.Generator, hub *notify.Hub) *Ledger {
	return &Ledger{store: store, alloc: alloc, seq: seq, hub: hub}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// CreateTransaction validates and persists a new ledger row, always in
// Pending status. For an Expenditure the fund's remaining balance must
// cover the amount; the failure carries the available balance. An empty
// TransactionNumber is filled from the sequence generator and retried
// on a generated-number race.
func (l *Ledger) CreateTransaction(ctx context.Context, t budget.Transaction) (*budget.Transaction, error) {
	if err := validateTransaction(t); err != nil {
		return nil, err
	}

	fund, err := l.store.GetFund(ctx, t.FundID)
	if err != nil {
		return nil, err
	}
	if fund == nil {
		return nil, &budget.NotFoundError{Entity: "fund", ID: t.FundID}
	}
	if t.ParticularID != "" {
		p, err := l.store.GetParticular(ctx, t.ParticularID)
		if err != nil {
			return nil, err
		}
		if p == nil || p.FundID != t.FundID {
			return nil, &budget.ValidationError{Field: "particularId", Value: t.ParticularID, Reason: "not a particular of the fund"}
		}
	}

	if t.TransactionType == budget.TypeExpenditure {
		if available := fund.RemainingBalance(); available.LessThan(t.Amount) {
			return nil, &budget.InsufficientBalanceError{
				FundCode:  fund.FundCode,
				Available: available,
				Requested: t.Amount,
			}
		}
	}

	t.ID = uuid.NewString()
	t.Status = budget.StatusPending
	t.ApprovedBy = ""
	t.ApprovedAt = nil
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = nil
	if t.TransactionDate.IsZero() {
		t.TransactionDate = t.CreatedAt
	}

	generated := t.TransactionNumber == ""
	err = sequence.WithRetry(ctx, func(ctx context.Context) error {
		if generated {
			number, err := l.seq.NextTransactionNumber(ctx)
			if err != nil {
				return err
			}
			t.TransactionNumber = number
		}
		return l.store.InsertTransaction(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	notify.Publish(l.hub, budget.TransactionCreated{
		TransactionID:     t.ID,
		TransactionNumber: t.TransactionNumber,
		FundID:            t.FundID,
		Amount:            t.Amount,
		TransactionType:   t.TransactionType,
	})
	return &t, nil
}

// UpdateTransaction rewrites the financial fields of a Pending
// transaction. Anything past Pending is frozen. An expenditure amount
// change re-runs the balance check against the fund's remaining balance
// with the old amount excluded (a Pending row never counted toward
// utilization, so the plain remaining balance is the right ceiling).
func (l *Ledger) UpdateTransaction(ctx context.Context, t budget.Transaction) (*budget.Transaction, error) {
	existing, err := l.store.GetTransaction(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, &budget.NotFoundError{Entity: "transaction", ID: t.ID}
	}
	if !existing.Editable() {
		return nil, &budget.InvalidStateError{
			Entity:    "transaction",
			Current:   string(existing.Status),
			Attempted: "edit",
		}
	}
	if err := validateTransaction(t); err != nil {
		return nil, err
	}

	fund, err := l.store.GetFund(ctx, t.FundID)
	if err != nil {
		return nil, err
	}
	if fund == nil {
		return nil, &budget.NotFoundError{Entity: "fund", ID: t.FundID}
	}
	if t.TransactionType == budget.TypeExpenditure {
		if available := fund.RemainingBalance(); available.LessThan(t.Amount) {
			return nil, &budget.InsufficientBalanceError{
				FundCode:  fund.FundCode,
				Available: available,
				Requested: t.Amount,
			}
		}
	}

	now := time.Now().UTC()
	existing.FundID = t.FundID
	existing.ParticularID = t.ParticularID
	existing.TransactionType = t.TransactionType
	existing.Description = t.Description
	existing.Payee = t.Payee
	existing.Amount = t.Amount
	existing.TransactionDate = t.TransactionDate
	existing.PRNumber = t.PRNumber
	existing.PONumber = t.PONumber
	existing.DVNumber = t.DVNumber
	existing.CheckNumber = t.CheckNumber
	existing.CheckDate = t.CheckDate
	existing.Remarks = t.Remarks
	existing.UpdatedAt = &now

	if err := l.store.UpdateTransaction(ctx, *existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// DeleteTransaction removes a Pending or Rejected transaction. Anything
// that reached approval is part of the audit trail and stays.
func (l *Ledger) DeleteTransaction(ctx context.Context, id string) error {
	existing, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return &budget.NotFoundError{Entity: "transaction", ID: id}
	}
	if !existing.Deletable() {
		return &budget.InvalidStateError{
			Entity:    "transaction",
			Current:   string(existing.Status),
			Attempted: "delete",
		}
	}
	return l.store.DeleteTransaction(ctx, id)
}

// UpdateStatus moves the transaction through the approval workflow.
// Illegal transitions fail with an invalid-state error naming the
// current and requested status, and leave the row untouched. Entering
// Approved or Completed for an Expenditure recomputes the fund's
// utilization and refreshes the dashboard.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, to budget.TransactionStatus, approvedBy string) (*budget.Transaction, error) {
	before, after, err := l.store.TransitionTransaction(ctx, id, to, approvedBy)
	if err != nil {
		return nil, err
	}

	if budget.TriggersRecompute(to) && after.TransactionType == budget.TypeExpenditure {
		if err := l.alloc.RecomputeUtilization(ctx, after.FundID, after.ParticularID); err != nil {
			return nil, err
		}
	}

	notify.Publish(l.hub, budget.TransactionStatusChanged{
		TransactionID:     after.ID,
		TransactionNumber: after.TransactionNumber,
		OldStatus:         before.Status,
		NewStatus:         after.Status,
	})
	notify.Publish(l.hub, budget.DashboardRefresh{
		RefreshFunds:        true,
		RefreshTransactions: true,
		RefreshCharts:       budget.TriggersRecompute(to),
	})
	return after, nil
}

func validateTransaction(t budget.Transaction) error {
	if t.FundID == "" {
		return &budget.ValidationError{Field: "fundId", Reason: "required"}
	}
	if _, err := budget.ParseTransactionType(string(t.TransactionType)); err != nil {
		return err
	}
	if t.Description == "" {
		return &budget.ValidationError{Field: "description", Reason: "required"}
	}
	if !t.Amount.IsPositive() {
		return &budget.ValidationError{Field: "amount", Value: t.Amount.String(), Reason: "must be positive"}
	}
	return nil
}
