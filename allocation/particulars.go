package allocation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/notify"
	"github.com/warp/budget-engine/sequence"
)

// =============================================================================
// PARTICULAR OPERATIONS
// =============================================================================

// CreateParticular validates and persists a particular under its fund.
// The store enforces the envelope check (sum of active particulars must
// stay within the fund allocation) atomically with the insert.
func (s *Service) CreateParticular(ctx context.Context, p budget.Particular) (*budget.Particular, error) {
	fund, err := s.store.GetFund(ctx, p.FundID)
	if err != nil {
		return nil, err
	}
	if fund == nil {
		return nil, &budget.NotFoundError{Entity: "fund", ID: p.FundID}
	}
	if err := validateParticular(p); err != nil {
		return nil, err
	}

	p.ID = uuid.NewString()
	p.UtilizedAmount = decimal.Zero
	p.IsActive = true
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = nil

	generated := p.ParticularCode == ""
	err = sequence.WithRetry(ctx, func(ctx context.Context) error {
		if generated {
			code, err := s.seq.NextParticularCode(ctx, fund.FundCode)
			if err != nil {
				return err
			}
			p.ParticularCode = code
		}
		err := s.store.InsertParticular(ctx, p)
		if err != nil && !generated {
			return nonRetryable(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	notify.Publish(s.hub, budget.FundUpdated{
		FundID:     fund.ID,
		FundCode:   fund.FundCode,
		NewBalance: fund.RemainingBalance(),
		Kind:       budget.UpdateModified,
	})
	return &p, nil
}

// UpdateParticular applies the caller-mutable fields. The envelope check
// re-runs in the store with the updated amount substituted in.
func (s *Service) UpdateParticular(ctx context.Context, p budget.Particular) (*budget.Particular, error) {
	existing, err := s.store.GetParticular(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, &budget.NotFoundError{Entity: "particular", ID: p.ID}
	}
	if err := validateParticular(p); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	existing.ParticularName = p.ParticularName
	existing.Description = p.Description
	existing.AllocatedAmount = p.AllocatedAmount
	existing.UnitOfMeasure = p.UnitOfMeasure
	existing.Quantity = p.Quantity
	existing.UnitCost = p.UnitCost
	existing.SortOrder = p.SortOrder
	existing.UpdatedAt = &now

	if err := s.store.UpdateParticular(ctx, *existing); err != nil {
		return nil, err
	}

	if fund, err := s.store.GetFund(ctx, existing.FundID); err == nil && fund != nil {
		notify.Publish(s.hub, budget.FundUpdated{
			FundID:     fund.ID,
			FundCode:   fund.FundCode,
			NewBalance: fund.RemainingBalance(),
			Kind:       budget.UpdateModified,
		})
	}
	return existing, nil
}

// DeleteParticular retires the particular: soft delete when transactions
// reference it, hard delete otherwise.
func (s *Service) DeleteParticular(ctx context.Context, id string) error {
	_, fundID, err := s.store.RetireParticular(ctx, id)
	if err != nil {
		return err
	}

	if fund, err := s.store.GetFund(ctx, fundID); err == nil && fund != nil {
		notify.Publish(s.hub, budget.FundUpdated{
			FundID:     fund.ID,
			FundCode:   fund.FundCode,
			NewBalance: fund.RemainingBalance(),
			Kind:       budget.UpdateModified,
		})
	}
	return nil
}

// GetParticular returns the particular by id.
func (s *Service) GetParticular(ctx context.Context, id string) (*budget.Particular, error) {
	p, err := s.store.GetParticular(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &budget.NotFoundError{Entity: "particular", ID: id}
	}
	return p, nil
}

// ListParticulars returns the fund's active particulars in sort order.
func (s *Service) ListParticulars(ctx context.Context, fundID string) ([]budget.Particular, error) {
	return s.store.ListParticularsForFund(ctx, fundID)
}

// NextParticularCode previews the next code under the fund.
func (s *Service) NextParticularCode(ctx context.Context, fundID string) (string, error) {
	fund, err := s.store.GetFund(ctx, fundID)
	if err != nil {
		return "", err
	}
	if fund == nil {
		return "", &budget.NotFoundError{Entity: "fund", ID: fundID}
	}
	return s.seq.NextParticularCode(ctx, fund.FundCode)
}

func validateParticular(p budget.Particular) error {
	if p.ParticularName == "" {
		return &budget.ValidationError{Field: "particularName", Reason: "required"}
	}
	if p.AllocatedAmount.IsNegative() {
		return &budget.ValidationError{Field: "allocatedAmount", Value: p.AllocatedAmount.String(), Reason: "must not be negative"}
	}
	if p.Quantity < 0 {
		return &budget.ValidationError{Field: "quantity", Value: p.Quantity, Reason: "must not be negative"}
	}
	if p.UnitCost.IsNegative() {
		return &budget.ValidationError{Field: "unitCost", Value: p.UnitCost.String(), Reason: "must not be negative"}
	}
	return nil
}
