/*
transactions.go - Ledger row persistence and queries

PURPOSE:
  Insert/update/delete for transactions, the status transition applied
  atomically against the state machine, the filtered listing the UI
  drives, and the prefix scans the sequence generator builds document
  numbers from.

TRANSITION ATOMICITY:
  TransitionTransaction re-reads the current status inside the write
  transaction and validates the requested move against
  budget.ValidateTransition there. An illegal move leaves the row
  untouched; two racing approvals cannot both succeed.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/warp/budget-engine/budget"
)

const transactionColumns = `id, transaction_number, fund_id, particular_id, transaction_type,
	description, payee, amount, transaction_date, status,
	pr_number, po_number, dv_number, check_number, check_date,
	remarks, created_by, approved_by, created_at, updated_at, approved_at`

// InsertTransaction persists a new ledger row. A duplicate transaction
// number surfaces as budget.ConflictError, which the caller retries with
// a freshly generated number.
func (s *Store) InsertTransaction(ctx context.Context, t budget.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TransactionNumber, t.FundID, nullableString(t.ParticularID),
		string(t.TransactionType), t.Description, t.Payee, t.Amount.String(),
		formatTime(t.TransactionDate), string(t.Status),
		nullableString(t.PRNumber), nullableString(t.PONumber),
		nullableString(t.DVNumber), nullableString(t.CheckNumber),
		nullableTime(t.CheckDate), t.Remarks, t.CreatedBy, t.ApprovedBy,
		formatTime(t.CreatedAt), nullableTime(t.UpdatedAt), nullableTime(t.ApprovedAt),
	)
	return mapConstraintErr(err, "transaction", "transaction number", t.TransactionNumber)
}

// UpdateTransaction rewrites the financial fields. Only called for
// Pending transactions; the ledger service enforces that before calling.
func (s *Store) UpdateTransaction(ctx context.Context, t budget.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET fund_id = ?, particular_id = ?, transaction_type = ?, description = ?,
		    payee = ?, amount = ?, transaction_date = ?, pr_number = ?, po_number = ?,
		    dv_number = ?, check_number = ?, check_date = ?, remarks = ?, updated_at = ?
		WHERE id = ?`,
		t.FundID, nullableString(t.ParticularID), string(t.TransactionType),
		t.Description, t.Payee, t.Amount.String(), formatTime(t.TransactionDate),
		nullableString(t.PRNumber), nullableString(t.PONumber),
		nullableString(t.DVNumber), nullableString(t.CheckNumber),
		nullableTime(t.CheckDate), t.Remarks, nullableTime(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, "transaction", t.ID)
}

// DeleteTransaction removes the row (attachments cascade).
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res, "transaction", id)
}

// TransitionTransaction applies a status change validated against the
// state machine inside one database transaction, stamping the approver
// when the target status requires it. Returns the transaction as it was
// before and after the move.
func (s *Store) TransitionTransaction(ctx context.Context, id string, to budget.TransactionStatus, approvedBy string) (before, after *budget.Transaction, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := s.getTransactionTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return &budget.NotFoundError{Entity: "transaction", ID: id}
		}
		before = current

		if err := budget.ValidateTransition(current.Status, to); err != nil {
			return err
		}

		now := nowUTC()
		updated := *current
		updated.Status = to
		updated.UpdatedAt = &now
		if budget.StampsApprover(to) {
			updated.ApprovedBy = approvedBy
			updated.ApprovedAt = &now
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE transactions
			SET status = ?, approved_by = ?, approved_at = ?, updated_at = ?
			WHERE id = ?`,
			string(updated.Status), updated.ApprovedBy,
			nullableTime(updated.ApprovedAt), nullableTime(updated.UpdatedAt), id,
		)
		after = &updated
		return err
	})
	return before, after, err
}

// GetTransaction returns the transaction or (nil, nil) when it does not
// exist.
func (s *Store) GetTransaction(ctx context.Context, id string) (*budget.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs, err := s.queryTransactions(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[0], nil
}

func (s *Store) getTransactionTx(ctx context.Context, tx *sql.Tx, id string) (*budget.Transaction, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	t, err := scanTransaction(rows)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTransactionByNumber returns the transaction with the number, or
// (nil, nil).
func (s *Store) GetTransactionByNumber(ctx context.Context, number string) (*budget.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs, err := s.queryTransactions(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE transaction_number = ?", number)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[0], nil
}

// TransactionFilter narrows ListTransactions. Zero values mean
// "not filtered".
type TransactionFilter struct {
	Status          budget.TransactionStatus
	FundID          string
	TransactionType budget.TransactionType
	StartDate       *time.Time
	EndDate         *time.Time
	SearchTerm      string // matched against number, description, payee, PR/PO/DV
}

// ListTransactions returns transactions matching the filter, newest
// transaction date first.
func (s *Store) ListTransactions(ctx context.Context, filter TransactionFilter) ([]budget.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + transactionColumns + " FROM transactions WHERE 1=1"
	var args []any

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.FundID != "" {
		query += " AND fund_id = ?"
		args = append(args, filter.FundID)
	}
	if filter.TransactionType != "" {
		query += " AND transaction_type = ?"
		args = append(args, string(filter.TransactionType))
	}
	if filter.StartDate != nil {
		query += " AND transaction_date >= ?"
		args = append(args, formatTime(*filter.StartDate))
	}
	if filter.EndDate != nil {
		query += " AND transaction_date <= ?"
		args = append(args, formatTime(*filter.EndDate))
	}
	if filter.SearchTerm != "" {
		query += ` AND (instr(lower(transaction_number), ?) > 0
			OR instr(lower(description), ?) > 0
			OR instr(lower(payee), ?) > 0
			OR instr(lower(coalesce(pr_number, '')), ?) > 0
			OR instr(lower(coalesce(po_number, '')), ?) > 0
			OR instr(lower(coalesce(dv_number, '')), ?) > 0)`
		term := strings.ToLower(filter.SearchTerm)
		args = append(args, term, term, term, term, term, term)
	}

	query += " ORDER BY transaction_date DESC, created_at DESC"
	return s.queryTransactions(ctx, query, args...)
}

// PendingApprovals returns the For Approval queue, oldest first so
// reviewers work FIFO.
func (s *Store) PendingApprovals(ctx context.Context) ([]budget.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTransactions(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		 WHERE status = ? ORDER BY created_at`,
		string(budget.StatusForApproval))
}

// RecentTransactions returns the newest n rows by creation time.
func (s *Store) RecentTransactions(ctx context.Context, n int) ([]budget.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTransactions(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		 ORDER BY created_at DESC LIMIT ?`, n)
}

// TransactionsForYear returns every transaction dated in the calendar
// year. Statistics are computed client-side over the result.
func (s *Store) TransactionsForYear(ctx context.Context, year int) ([]budget.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	return s.queryTransactions(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		 WHERE transaction_date >= ? AND transaction_date < ?`,
		formatTime(start), formatTime(end))
}

// CommittedTransactionsForFundYear returns the fund's Approved/Completed
// transactions dated in the year, for the monthly chart summary.
func (s *Store) CommittedTransactionsForFundYear(ctx context.Context, fundID string, year int) ([]budget.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	return s.queryTransactions(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		 WHERE fund_id = ? AND transaction_date >= ? AND transaction_date < ?
		   AND status IN (?, ?)`,
		fundID, formatTime(start), formatTime(end),
		string(budget.StatusApproved), string(budget.StatusCompleted))
}

// ExpendituresForFundsInPeriod returns Expenditure transactions for the
// given funds dated within [start, end], keyed by fund id. Used by report
// aggregation.
func (s *Store) ExpendituresForFundsInPeriod(ctx context.Context, fundIDs []string, start, end time.Time) (map[string][]budget.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byFund := make(map[string][]budget.Transaction, len(fundIDs))
	for _, fundID := range fundIDs {
		txs, err := s.queryTransactions(ctx,
			"SELECT "+transactionColumns+` FROM transactions
			 WHERE fund_id = ? AND transaction_type = ?
			   AND transaction_date >= ? AND transaction_date <= ?`,
			fundID, string(budget.TypeExpenditure),
			formatTime(start), formatTime(end))
		if err != nil {
			return nil, err
		}
		byFund[fundID] = txs
	}
	return byFund, nil
}

// =============================================================================
// SEQUENCE SCANS
// =============================================================================

// MaxTransactionNumber returns the greatest transaction number with the
// prefix, or empty string.
func (s *Store) MaxTransactionNumber(ctx context.Context, prefix string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxCode(ctx,
		"SELECT MAX(transaction_number) FROM transactions WHERE transaction_number LIKE ?", prefix)
}

// MaxDocumentNumber returns the greatest PR, PO, or DV number with the
// prefix, or empty string. column must be one of the fixed document
// columns; it is never caller input.
func (s *Store) MaxDocumentNumber(ctx context.Context, column, prefix string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch column {
	case "pr_number", "po_number", "dv_number":
	default:
		return "", fmt.Errorf("unknown document column %q", column)
	}
	return s.maxCode(ctx,
		"SELECT MAX("+column+") FROM transactions WHERE "+column+" LIKE ?", prefix)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]budget.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []budget.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func scanTransaction(rows *sql.Rows) (budget.Transaction, error) {
	var (
		t               budget.Transaction
		particularID    sql.NullString
		txType          string
		amount          string
		transactionDate string
		status          string
		prNumber        sql.NullString
		poNumber        sql.NullString
		dvNumber        sql.NullString
		checkNumber     sql.NullString
		checkDate       sql.NullString
		createdAt       string
		updatedAt       sql.NullString
		approvedAt      sql.NullString
	)
	err := rows.Scan(
		&t.ID, &t.TransactionNumber, &t.FundID, &particularID, &txType,
		&t.Description, &t.Payee, &amount, &transactionDate, &status,
		&prNumber, &poNumber, &dvNumber, &checkNumber, &checkDate,
		&t.Remarks, &t.CreatedBy, &t.ApprovedBy, &createdAt, &updatedAt, &approvedAt,
	)
	if err != nil {
		return t, fmt.Errorf("failed to scan transaction: %w", err)
	}

	t.ParticularID = particularID.String
	t.TransactionType = budget.TransactionType(txType)
	t.Amount = parseDecimal(amount)
	t.TransactionDate = parseTime(transactionDate)
	t.Status = budget.TransactionStatus(status)
	t.PRNumber = prNumber.String
	t.PONumber = poNumber.String
	t.DVNumber = dvNumber.String
	t.CheckNumber = checkNumber.String
	t.CheckDate = scanNullableTime(checkDate)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = scanNullableTime(updatedAt)
	t.ApprovedAt = scanNullableTime(approvedAt)
	return t, nil
}
