/*
Package allocation owns fund and particular records: their allocated and
utilized amounts, the mandated-percentage rules for budget categories,
and the summaries the dashboard reads.

PURPOSE:
  The service layer over the store for everything allocation-shaped.
  Validates input, delegates code generation to the sequence package,
  keeps UtilizedAmount derived (recomputed from the ledger, never written
  by a caller), and publishes FundUpdated events on every mutation.

INVARIANTS:
  1. UtilizedAmount is recomputed by full re-sum, never patched
     incrementally, so missed events cannot cause drift
  2. The sum of active particular allocations under a fund never exceeds
     the fund's allocation; violations are errors, never clamped
  3. Deleting a referenced fund or particular retires it (soft delete);
     only unreferenced records are removed

SEE ALSO:
  - ledger: triggers RecomputeUtilization on approval/completion
  - store/sqlite: where the transactional invariant checks run
*/
package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/notify"
	"github.com/warp/budget-engine/sequence"
	"github.com/warp/budget-engine/store/sqlite"
)

// Service is the allocation store. Construct with New.
type Service struct {
	store *sqlite.Store
	seq   *sequence.Generator
	hub   *notify.Hub
}

// New creates the allocation service.
func New(store *sqlite.Store, seq *sequence.Generator, hub *notify.Hub) *Service {
	return &Service{store: store, seq: seq, hub: hub}
}

// =============================================================================
// FUND OPERATIONS
// =============================================================================

// CreateFund validates and persists a new fund. An empty FundCode is
// filled from the sequence generator; the unique constraint backstops
// either path and generation is retried on conflict. UtilizedAmount
// always starts at zero regardless of input.
func (s *Service) CreateFund(ctx context.Context, f budget.Fund) (*budget.Fund, error) {
	if err := validateFund(f); err != nil {
		return nil, err
	}

	f.ID = uuid.NewString()
	f.UtilizedAmount = decimal.Zero
	f.IsActive = true
	f.CreatedAt = time.Now().UTC()
	f.UpdatedAt = nil

	generated := f.FundCode == ""
	err := sequence.WithRetry(ctx, func(ctx context.Context) error {
		if generated {
			code, err := s.seq.NextFundCode(ctx, f.Category, f.FiscalYear)
			if err != nil {
				return err
			}
			f.FundCode = code
		}
		err := s.store.InsertFund(ctx, f)
		if err != nil && !generated {
			// Caller-chosen codes are not retryable; surface the conflict.
			return nonRetryable(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	notify.Publish(s.hub, budget.FundUpdated{
		FundID:     f.ID,
		FundCode:   f.FundCode,
		NewBalance: f.RemainingBalance(),
		Kind:       budget.UpdateCreated,
	})
	return &f, nil
}

// UpdateFund applies the caller-mutable fields: name, description,
// category, allocated amount. FundCode and the derived amounts are
// immutable through this path. Shrinking the allocation below the sum of
// active particular allocations is a validation error.
func (s *Service) UpdateFund(ctx context.Context, f budget.Fund) (*budget.Fund, error) {
	existing, err := s.store.GetFund(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, &budget.NotFoundError{Entity: "fund", ID: f.ID}
	}
	if err := validateFund(f); err != nil {
		return nil, err
	}

	particulars, err := s.store.ListParticularsForFund(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, p := range particulars {
		total = total.Add(p.AllocatedAmount)
	}
	if total.GreaterThan(f.AllocatedAmount) {
		return nil, &budget.AllocationExceededError{
			FundCode:       existing.FundCode,
			FundAllocation: f.AllocatedAmount,
			TotalRequested: total,
		}
	}

	now := time.Now().UTC()
	existing.FundName = f.FundName
	existing.Description = f.Description
	existing.Category = f.Category
	existing.AllocatedAmount = f.AllocatedAmount
	existing.UpdatedAt = &now

	if err := s.store.UpdateFund(ctx, *existing); err != nil {
		return nil, err
	}

	notify.Publish(s.hub, budget.FundUpdated{
		FundID:     existing.ID,
		FundCode:   existing.FundCode,
		NewBalance: existing.RemainingBalance(),
		Kind:       budget.UpdateModified,
	})
	return existing, nil
}

// DeleteFund soft-deletes the fund when ledger history or report rows
// reference it, hard-deletes it otherwise. Particulars cascade on hard
// delete.
func (s *Service) DeleteFund(ctx context.Context, id string) error {
	fund, err := s.store.GetFund(ctx, id)
	if err != nil {
		return err
	}
	if fund == nil {
		return &budget.NotFoundError{Entity: "fund", ID: id}
	}

	if _, err := s.store.RetireFund(ctx, id); err != nil {
		return err
	}

	notify.Publish(s.hub, budget.FundUpdated{
		FundID:   id,
		FundCode: fund.FundCode,
		Kind:     budget.UpdateDeleted,
	})
	return nil
}

// GetFund returns the fund by id.
func (s *Service) GetFund(ctx context.Context, id string) (*budget.Fund, error) {
	fund, err := s.store.GetFund(ctx, id)
	if err != nil {
		return nil, err
	}
	if fund == nil {
		return nil, &budget.NotFoundError{Entity: "fund", ID: id}
	}
	return fund, nil
}

// GetFundByCode returns the active fund with the code.
func (s *Service) GetFundByCode(ctx context.Context, code string) (*budget.Fund, error) {
	fund, err := s.store.GetFundByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if fund == nil {
		return nil, &budget.NotFoundError{Entity: "fund", ID: code}
	}
	return fund, nil
}

// ListFunds returns active funds, optionally filtered to a fiscal year
// (pass 0 for all years).
func (s *Service) ListFunds(ctx context.Context, fiscalYear int) ([]budget.Fund, error) {
	return s.store.ListFunds(ctx, fiscalYear)
}

// ListFundsByCategory returns active funds of one category and year.
func (s *Service) ListFundsByCategory(ctx context.Context, category budget.Category, fiscalYear int) ([]budget.Fund, error) {
	return s.store.ListFundsByCategory(ctx, category, fiscalYear)
}

// NextFundCode previews the next code for the category and year.
func (s *Service) NextFundCode(ctx context.Context, category budget.Category, fiscalYear int) (string, error) {
	return s.seq.NextFundCode(ctx, category, fiscalYear)
}

// RecomputeUtilization re-derives the fund's UtilizedAmount from its
// Approved/Completed Expenditure transactions, atomically with the read.
// Idempotent; safe to re-run at any time. particularID scopes an
// additional recompute to one particular and may be empty.
func (s *Service) RecomputeUtilization(ctx context.Context, fundID, particularID string) error {
	if _, err := s.store.RecomputeFundUtilization(ctx, fundID, particularID); err != nil {
		return err
	}

	fund, err := s.store.GetFund(ctx, fundID)
	if err != nil || fund == nil {
		return err
	}

	notify.Publish(s.hub, budget.FundUpdated{
		FundID:     fundID,
		FundCode:   fund.FundCode,
		NewBalance: fund.RemainingBalance(),
		Kind:       budget.UpdateModified,
	})
	return nil
}

func validateFund(f budget.Fund) error {
	if f.FundName == "" {
		return &budget.ValidationError{Field: "fundName", Reason: "required"}
	}
	if _, err := budget.ParseCategory(string(f.Category)); err != nil {
		return err
	}
	if f.FiscalYear <= 0 {
		return &budget.ValidationError{Field: "fiscalYear", Value: f.FiscalYear, Reason: "must be a calendar year"}
	}
	if f.AllocatedAmount.IsNegative() {
		return &budget.ValidationError{Field: "allocatedAmount", Value: f.AllocatedAmount.String(), Reason: "must not be negative"}
	}
	return nil
}

// nonRetryable strips the retryable classification from a conflict so
// WithRetry surfaces it immediately.
func nonRetryable(err error) error {
	var conflict *budget.ConflictError
	if errors.As(err, &conflict) {
		return &budget.ValidationError{
			Field:  conflict.Key,
			Value:  conflict.Value,
			Reason: "already in use",
		}
	}
	return err
}
