/*
Package sequence derives the next human-readable code for funds,
particulars, and transaction document numbers from existing persisted
records.

PURPOSE:
  Every code is <prefix><zero-padded counter>:

    fund code           PS-2025-001          (category prefix + year, width 3)
    particular code     PS-2025-001-P001     (fund code, width 3)
    transaction number  TXN-202501-0001      (year+month, width 4)
    PR / PO / DV        PR-2025-0001         (year, width 4)

  The next code is found by scanning for the lexicographically greatest
  existing code sharing the prefix, parsing its trailing numeric suffix,
  and incrementing. No code for the prefix means start at 1.

CONCURRENT CREATION:
  Generation races with inserts. The unique constraint on the code column
  is the last line of defense: an insert that loses the race fails with
  budget.ConflictError, and WithRetry regenerates and retries before
  anything reaches the caller. Only exhausted retries surface.

GAPS:
  Scanning existing rows means deleting the highest-numbered Pending
  transaction frees its number for reuse. Sequential generation without
  deletes is gap-free.
*/
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/warp/budget-engine/budget"
)

const (
	fundCodeWidth = 3
	documentWidth = 4

	// maxRetries bounds regeneration after unique-constraint conflicts.
	maxRetries = 3
)

// CodeSource is the slice of the store the generator scans. Implemented
// by store/sqlite.
type CodeSource interface {
	MaxFundCode(ctx context.Context, prefix string) (string, error)
	MaxParticularCode(ctx context.Context, prefix string) (string, error)
	MaxTransactionNumber(ctx context.Context, prefix string) (string, error)
	MaxDocumentNumber(ctx context.Context, column, prefix string) (string, error)
}

// Generator produces the next code per prefix. The zero value is not
// usable; construct with New.
type Generator struct {
	codes CodeSource

	// now is swappable for tests; prefixes embed the current date.
	now func() time.Time
}

// New creates a generator over the given code source.
func New(codes CodeSource) *Generator {
	return &Generator{codes: codes, now: time.Now}
}

// NextFundCode returns the next fund code for the category and fiscal
// year, e.g. "MOOE-2025-001".
func (g *Generator) NextFundCode(ctx context.Context, category budget.Category, fiscalYear int) (string, error) {
	prefix := fmt.Sprintf("%s-%d-", category.CodePrefix(), fiscalYear)
	last, err := g.codes.MaxFundCode(ctx, prefix)
	if err != nil {
		return "", err
	}
	return nextCode(prefix, last, fundCodeWidth), nil
}

// NextParticularCode returns the next particular code under the fund,
// e.g. "MOOE-2025-001-P002".
func (g *Generator) NextParticularCode(ctx context.Context, fundCode string) (string, error) {
	prefix := fundCode + "-P"
	last, err := g.codes.MaxParticularCode(ctx, prefix)
	if err != nil {
		return "", err
	}
	return nextCode(prefix, last, fundCodeWidth), nil
}

// NextTransactionNumber returns the next transaction number for the
// current month, e.g. "TXN-202501-0001".
func (g *Generator) NextTransactionNumber(ctx context.Context) (string, error) {
	prefix := fmt.Sprintf("TXN-%s-", g.now().Format("200601"))
	last, err := g.codes.MaxTransactionNumber(ctx, prefix)
	if err != nil {
		return "", err
	}
	return nextCode(prefix, last, documentWidth), nil
}

// NextPRNumber returns the next purchase request number for the current
// year, e.g. "PR-2025-0001".
func (g *Generator) NextPRNumber(ctx context.Context) (string, error) {
	return g.nextDocumentNumber(ctx, "PR", "pr_number")
}

// NextPONumber returns the next purchase order number.
func (g *Generator) NextPONumber(ctx context.Context) (string, error) {
	return g.nextDocumentNumber(ctx, "PO", "po_number")
}

// NextDVNumber returns the next disbursement voucher number.
func (g *Generator) NextDVNumber(ctx context.Context) (string, error) {
	return g.nextDocumentNumber(ctx, "DV", "dv_number")
}

func (g *Generator) nextDocumentNumber(ctx context.Context, kind, column string) (string, error) {
	prefix := fmt.Sprintf("%s-%d-", kind, g.now().Year())
	last, err := g.codes.MaxDocumentNumber(ctx, column, prefix)
	if err != nil {
		return "", err
	}
	return nextCode(prefix, last, documentWidth), nil
}

// nextCode parses the trailing counter of the greatest existing code and
// increments it. An unparsable or missing suffix restarts at 1.
func nextCode(prefix, last string, width int) string {
	next := 1
	if last != "" {
		suffix := strings.TrimPrefix(last, prefix)
		if n, err := strconv.Atoi(suffix); err == nil {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s%0*d", prefix, width, next)
}

// WithRetry runs op, regenerating and retrying when it fails with a
// retryable conflict (a code race lost to a concurrent writer). op must
// generate its code fresh on every attempt. The last conflict surfaces
// when retries are exhausted.
func WithRetry(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op(ctx)
		if err == nil || !budget.IsRetryable(err) {
			return err
		}
	}
	return err
}
