/*
funds.go - Fund and particular persistence

PURPOSE:
  CRUD for appropriation funds and their particulars, plus the two
  operations that must be transactional to hold their invariants:

  - Retire: the soft-delete-if-referenced check and the delete run in one
    database transaction, so a transaction inserted between "check" and
    "delete" cannot orphan ledger history.
  - RecomputeFundUtilization: the contributing transactions are read and
    summed inside the same transaction that writes the new
    utilized_amount, so racing status changes cannot produce lost updates.
  - Particular inserts/updates re-check the parent envelope inside the
    write transaction; exceeding it is a validation error, never a clamp.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/budget"
)

const fundColumns = `id, fund_code, fund_name, description, category,
	allocated_amount, utilized_amount, fiscal_year, budget_id, is_active,
	created_at, updated_at`

// InsertFund persists a new fund. A duplicate fund code surfaces as
// budget.ConflictError.
func (s *Store) InsertFund(ctx context.Context, f budget.Fund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO funds (`+fundColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.FundCode, f.FundName, f.Description, string(f.Category),
		f.AllocatedAmount.String(), f.UtilizedAmount.String(), f.FiscalYear,
		nullableString(f.BudgetID), f.IsActive, formatTime(f.CreatedAt),
		nullableTime(f.UpdatedAt),
	)
	return mapConstraintErr(err, "fund", "fund code", f.FundCode)
}

// UpdateFund writes the caller-mutable fields only. FundCode and
// utilized_amount are immutable through this path.
func (s *Store) UpdateFund(ctx context.Context, f budget.Fund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE funds
		SET fund_name = ?, description = ?, category = ?, allocated_amount = ?, updated_at = ?
		WHERE id = ?`,
		f.FundName, f.Description, string(f.Category),
		f.AllocatedAmount.String(), nullableTime(f.UpdatedAt), f.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, "fund", f.ID)
}

// GetFund returns the fund or (nil, nil) when it does not exist.
func (s *Store) GetFund(ctx context.Context, id string) (*budget.Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getFund(ctx, s.db, "id = ?", id)
}

// GetFundByCode returns the active fund with the code, or (nil, nil).
func (s *Store) GetFundByCode(ctx context.Context, code string) (*budget.Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getFund(ctx, s.db, "fund_code = ? AND is_active", code)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) getFund(ctx context.Context, q querier, where string, args ...any) (*budget.Fund, error) {
	funds, err := s.queryFunds(ctx, q, "SELECT "+fundColumns+" FROM funds WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	if len(funds) == 0 {
		return nil, nil
	}
	return &funds[0], nil
}

// ListFunds returns active funds, optionally restricted to a fiscal year,
// ordered by category then name.
func (s *Store) ListFunds(ctx context.Context, fiscalYear int) ([]budget.Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + fundColumns + " FROM funds WHERE is_active"
	var args []any
	if fiscalYear > 0 {
		query += " AND fiscal_year = ?"
		args = append(args, fiscalYear)
	}
	query += " ORDER BY category, fund_name"
	return s.queryFunds(ctx, s.db, query, args...)
}

// ListFundsByCategory returns active funds of one category and year,
// ordered by name.
func (s *Store) ListFundsByCategory(ctx context.Context, category budget.Category, fiscalYear int) ([]budget.Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryFunds(ctx, s.db,
		"SELECT "+fundColumns+` FROM funds
		 WHERE category = ? AND fiscal_year = ? AND is_active
		 ORDER BY fund_name`,
		string(category), fiscalYear)
}

// RetireFund soft-deletes the fund when any transaction or report detail
// references it, hard-deletes it otherwise (particulars cascade). The
// reference check and the delete are one database transaction. Returns
// whether the fund was soft-deleted, and budget.NotFoundError for an
// unknown id.
func (s *Store) RetireFund(ctx context.Context, id string) (softDeleted bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM funds WHERE id = ?", id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return &budget.NotFoundError{Entity: "fund", ID: id}
		}

		var refs int
		if err := tx.QueryRowContext(ctx, `
			SELECT (SELECT COUNT(*) FROM transactions WHERE fund_id = ?)
			     + (SELECT COUNT(*) FROM coa_report_details WHERE fund_id = ?)`,
			id, id).Scan(&refs); err != nil {
			return err
		}

		if refs > 0 {
			softDeleted = true
			_, err := tx.ExecContext(ctx,
				"UPDATE funds SET is_active = FALSE, updated_at = ? WHERE id = ?",
				formatTime(nowUTC()), id)
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM funds WHERE id = ?", id)
		return err
	})
	return softDeleted, err
}

// RecomputeFundUtilization re-derives utilized_amount as the sum of all
// Approved/Completed Expenditure transactions of the fund, atomically with
// the read. Idempotent: running it twice yields the same stored value.
// When particularID is non-empty the same recomputation is applied to that
// particular, scoped to its transactions, in the same database transaction.
func (s *Store) RecomputeFundUtilization(ctx context.Context, fundID, particularID string) (utilized decimal.Decimal, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM funds WHERE id = ?", fundID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return &budget.NotFoundError{Entity: "fund", ID: fundID}
		}

		utilized, err = sumCommittedExpenditures(ctx, tx, "fund_id", fundID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE funds SET utilized_amount = ?, updated_at = ? WHERE id = ?",
			utilized.String(), formatTime(nowUTC()), fundID); err != nil {
			return err
		}

		if particularID != "" {
			partUtilized, err := sumCommittedExpenditures(ctx, tx, "particular_id", particularID)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE fund_particulars SET utilized_amount = ?, updated_at = ? WHERE id = ?",
				partUtilized.String(), formatTime(nowUTC()), particularID); err != nil {
				return err
			}
		}
		return nil
	})
	return utilized, err
}

// sumCommittedExpenditures loads the matching amounts and sums them with
// decimal client-side. SQLite would lose precision aggregating the
// decimal strings itself.
func sumCommittedExpenditures(ctx context.Context, tx *sql.Tx, column, id string) (decimal.Decimal, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT amount FROM transactions
		WHERE `+column+` = ? AND transaction_type = ? AND status IN (?, ?)`,
		id, string(budget.TypeExpenditure),
		string(budget.StatusApproved), string(budget.StatusCompleted))
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(parseDecimal(amount))
	}
	return total, rows.Err()
}

// MaxFundCode returns the lexicographically greatest fund code with the
// prefix, including codes of soft-deleted funds so a retired code is
// never reissued. Empty string when no code matches.
func (s *Store) MaxFundCode(ctx context.Context, prefix string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxCode(ctx, "SELECT MAX(fund_code) FROM funds WHERE fund_code LIKE ?", prefix)
}

func (s *Store) maxCode(ctx context.Context, query, prefix string) (string, error) {
	var code sql.NullString
	err := s.db.QueryRowContext(ctx, query, likePrefix(prefix)).Scan(&code)
	if err != nil {
		return "", err
	}
	return code.String, nil
}

func likePrefix(prefix string) string {
	return prefix + "%"
}

func (s *Store) queryFunds(ctx context.Context, q querier, query string, args ...any) ([]budget.Fund, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query funds: %w", err)
	}
	defer rows.Close()

	var funds []budget.Fund
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, err
		}
		funds = append(funds, f)
	}
	return funds, rows.Err()
}

func scanFund(rows *sql.Rows) (budget.Fund, error) {
	var (
		f         budget.Fund
		category  string
		allocated string
		utilized  string
		budgetID  sql.NullString
		createdAt string
		updatedAt sql.NullString
	)
	err := rows.Scan(
		&f.ID, &f.FundCode, &f.FundName, &f.Description, &category,
		&allocated, &utilized, &f.FiscalYear, &budgetID, &f.IsActive,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return f, fmt.Errorf("failed to scan fund: %w", err)
	}

	f.Category = budget.Category(category)
	f.AllocatedAmount = parseDecimal(allocated)
	f.UtilizedAmount = parseDecimal(utilized)
	f.BudgetID = budgetID.String
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = scanNullableTime(updatedAt)
	return f, nil
}

// =============================================================================
// PARTICULARS
// =============================================================================

const particularColumns = `id, fund_id, particular_code, particular_name, description,
	allocated_amount, utilized_amount, unit_of_measure, quantity, unit_cost,
	sort_order, is_active, created_at, updated_at`

// InsertParticular persists a new particular after re-checking, inside the
// write transaction, that active particular allocations stay within the
// parent fund's envelope. Assigns the next sort order.
func (s *Store) InsertParticular(ctx context.Context, p budget.Particular) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkEnvelope(ctx, tx, p.FundID, "", p.AllocatedAmount); err != nil {
			return err
		}

		var maxOrder sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			"SELECT MAX(sort_order) FROM fund_particulars WHERE fund_id = ?",
			p.FundID).Scan(&maxOrder); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO fund_particulars (`+particularColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.FundID, p.ParticularCode, p.ParticularName, p.Description,
			p.AllocatedAmount.String(), p.UtilizedAmount.String(),
			p.UnitOfMeasure, p.Quantity, p.UnitCost.String(),
			maxOrder.Int64+1, p.IsActive, formatTime(p.CreatedAt),
			nullableTime(p.UpdatedAt),
		)
		return mapConstraintErr(err, "particular", "particular code", p.ParticularCode)
	})
}

// UpdateParticular writes the caller-mutable fields, re-checking the
// parent envelope with the new allocation in the same transaction.
func (s *Store) UpdateParticular(ctx context.Context, p budget.Particular) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var fundID string
		err := tx.QueryRowContext(ctx,
			"SELECT fund_id FROM fund_particulars WHERE id = ?", p.ID).Scan(&fundID)
		if err == sql.ErrNoRows {
			return &budget.NotFoundError{Entity: "particular", ID: p.ID}
		}
		if err != nil {
			return err
		}

		if err := checkEnvelope(ctx, tx, fundID, p.ID, p.AllocatedAmount); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE fund_particulars
			SET particular_name = ?, description = ?, allocated_amount = ?,
			    unit_of_measure = ?, quantity = ?, unit_cost = ?, sort_order = ?,
			    updated_at = ?
			WHERE id = ?`,
			p.ParticularName, p.Description, p.AllocatedAmount.String(),
			p.UnitOfMeasure, p.Quantity, p.UnitCost.String(), p.SortOrder,
			nullableTime(p.UpdatedAt), p.ID,
		)
		return err
	})
}

// checkEnvelope validates that the sum of active particular allocations
// under the fund, with one particular's allocation replaced (or added,
// when excludeID is empty), does not exceed the fund's allocation.
func checkEnvelope(ctx context.Context, tx *sql.Tx, fundID, excludeID string, newAmount decimal.Decimal) error {
	var fundCode, fundAllocated string
	err := tx.QueryRowContext(ctx,
		"SELECT fund_code, allocated_amount FROM funds WHERE id = ?",
		fundID).Scan(&fundCode, &fundAllocated)
	if err == sql.ErrNoRows {
		return &budget.NotFoundError{Entity: "fund", ID: fundID}
	}
	if err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT allocated_amount FROM fund_particulars
		WHERE fund_id = ? AND is_active AND id != ?`,
		fundID, excludeID)
	if err != nil {
		return err
	}
	defer rows.Close()

	total := newAmount
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return err
		}
		total = total.Add(parseDecimal(amount))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	allocation := parseDecimal(fundAllocated)
	if total.GreaterThan(allocation) {
		return &budget.AllocationExceededError{
			FundCode:       fundCode,
			FundAllocation: allocation,
			TotalRequested: total,
		}
	}
	return nil
}

// GetParticular returns the particular or (nil, nil) when it does not
// exist.
func (s *Store) GetParticular(ctx context.Context, id string) (*budget.Particular, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	particulars, err := s.queryParticulars(ctx,
		"SELECT "+particularColumns+" FROM fund_particulars WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(particulars) == 0 {
		return nil, nil
	}
	return &particulars[0], nil
}

// ListParticularsForFund returns the fund's active particulars in sort
// order.
func (s *Store) ListParticularsForFund(ctx context.Context, fundID string) ([]budget.Particular, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryParticulars(ctx,
		"SELECT "+particularColumns+` FROM fund_particulars
		 WHERE fund_id = ? AND is_active
		 ORDER BY sort_order, particular_name`,
		fundID)
}

// CountParticularsForFund counts every particular of the fund, active or
// not. The particular code sequence is derived from it.
func (s *Store) CountParticularsForFund(ctx context.Context, fundID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM fund_particulars WHERE fund_id = ?", fundID).Scan(&count)
	return count, err
}

// MaxParticularCode returns the greatest particular code with the prefix,
// or empty string.
func (s *Store) MaxParticularCode(ctx context.Context, prefix string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxCode(ctx,
		"SELECT MAX(particular_code) FROM fund_particulars WHERE particular_code LIKE ?", prefix)
}

// RetireParticular soft-deletes the particular when transactions reference
// it, hard-deletes otherwise. Check and delete are one transaction.
func (s *Store) RetireParticular(ctx context.Context, id string) (softDeleted bool, fundID string, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"SELECT fund_id FROM fund_particulars WHERE id = ?", id).Scan(&fundID)
		if err == sql.ErrNoRows {
			return &budget.NotFoundError{Entity: "particular", ID: id}
		}
		if err != nil {
			return err
		}

		var refs int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM transactions WHERE particular_id = ?", id).Scan(&refs); err != nil {
			return err
		}

		if refs > 0 {
			softDeleted = true
			_, err := tx.ExecContext(ctx,
				"UPDATE fund_particulars SET is_active = FALSE, updated_at = ? WHERE id = ?",
				formatTime(nowUTC()), id)
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM fund_particulars WHERE id = ?", id)
		return err
	})
	return softDeleted, fundID, err
}

func (s *Store) queryParticulars(ctx context.Context, query string, args ...any) ([]budget.Particular, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query particulars: %w", err)
	}
	defer rows.Close()

	var particulars []budget.Particular
	for rows.Next() {
		var (
			p         budget.Particular
			allocated string
			utilized  string
			unitCost  string
			createdAt string
			updatedAt sql.NullString
		)
		err := rows.Scan(
			&p.ID, &p.FundID, &p.ParticularCode, &p.ParticularName, &p.Description,
			&allocated, &utilized, &p.UnitOfMeasure, &p.Quantity, &unitCost,
			&p.SortOrder, &p.IsActive, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan particular: %w", err)
		}
		p.AllocatedAmount = parseDecimal(allocated)
		p.UtilizedAmount = parseDecimal(utilized)
		p.UnitCost = parseDecimal(unitCost)
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = scanNullableTime(updatedAt)
		particulars = append(particulars, p)
	}
	return particulars, rows.Err()
}

// requireRow converts a zero-row update into NotFoundError.
func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &budget.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}
