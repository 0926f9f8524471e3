/*
Package sqlite provides the SQLite-backed store for the budget ledger
engine.

PURPOSE:
  Owns the relational schema and every query the engine runs. Each
  exported mutation is atomic: it either runs inside a single database
  transaction or is a single statement, so callers never observe partial
  writes.

KEY TABLES:
  fiscal_year_budgets  One row per fiscal year (IRA figures)
  funds                Appropriation envelopes; unique fund_code
  fund_particulars     Line items; cascade-deleted with their fund
  transactions         The ledger; unique transaction_number; restrict
                       delete toward funds
  coa_reports          Immutable report snapshots; unique report_number
  coa_report_details   One row per fund per report; restrict toward funds
  attachments          Cascade-deleted with their transaction (managed by
                       the file layer, schema lives here)

CONSTRAINTS AS LAST LINE OF DEFENSE:
  Generated codes are unique-indexed. A constraint race surfaces as
  budget.ConflictError, which the sequence layer treats as retryable.

AMOUNTS:
  Money is stored as decimal strings and summed client-side with
  decimal.Decimal. SQLite cannot aggregate decimals without losing
  precision, and recomputation must be exact.

CONCURRENCY:
  Uses sync.RWMutex to serialize writers, and WAL mode so readers don't
  block. Recomputation and status transitions re-read inside their own
  database transaction, so racing writers cannot produce lost updates.

USAGE:
  store, err := sqlite.New("./data/budget.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - funds.go: fund and particular persistence
  - transactions.go: ledger rows, filters, code scans
  - reports.go: COA report snapshots
  - budgets.go: fiscal-year budget rows
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/budget-engine/budget"
)

// Store implements persistence for every engine component.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Fiscal year budget setup (IRA and income estimates)
	CREATE TABLE IF NOT EXISTS fiscal_year_budgets (
		id TEXT PRIMARY KEY,
		fiscal_year INTEGER NOT NULL UNIQUE,
		total_ira TEXT NOT NULL,
		estimated_local_income TEXT NOT NULL DEFAULT '0',
		other_income TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'Draft',
		created_at TEXT NOT NULL,
		updated_at TEXT
	);

	-- Appropriation funds
	CREATE TABLE IF NOT EXISTS funds (
		id TEXT PRIMARY KEY,
		fund_code TEXT NOT NULL UNIQUE,
		fund_name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		allocated_amount TEXT NOT NULL DEFAULT '0',
		utilized_amount TEXT NOT NULL DEFAULT '0',
		fiscal_year INTEGER NOT NULL,
		budget_id TEXT REFERENCES fiscal_year_budgets(id) ON DELETE SET NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_funds_fiscal_year ON funds(fiscal_year);
	CREATE INDEX IF NOT EXISTS idx_funds_category ON funds(category);

	-- Fund particulars (PPA line items), cascade-deleted with their fund
	CREATE TABLE IF NOT EXISTS fund_particulars (
		id TEXT PRIMARY KEY,
		fund_id TEXT NOT NULL REFERENCES funds(id) ON DELETE CASCADE,
		particular_code TEXT NOT NULL UNIQUE,
		particular_name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		allocated_amount TEXT NOT NULL DEFAULT '0',
		utilized_amount TEXT NOT NULL DEFAULT '0',
		unit_of_measure TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL DEFAULT 0,
		unit_cost TEXT NOT NULL DEFAULT '0',
		sort_order INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_particulars_fund ON fund_particulars(fund_id);

	-- Transactions: the ledger. Funds with ledger history cannot be
	-- hard-deleted (RESTRICT).
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		transaction_number TEXT NOT NULL UNIQUE,
		fund_id TEXT NOT NULL REFERENCES funds(id) ON DELETE RESTRICT,
		particular_id TEXT REFERENCES fund_particulars(id) ON DELETE SET NULL,
		transaction_type TEXT NOT NULL,
		description TEXT NOT NULL,
		payee TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		transaction_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'Pending',
		pr_number TEXT,
		po_number TEXT,
		dv_number TEXT,
		check_number TEXT,
		check_date TEXT,
		remarks TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		approved_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT,
		approved_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_fund ON transactions(fund_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(transaction_date);
	CREATE INDEX IF NOT EXISTS idx_transactions_pr ON transactions(pr_number) WHERE pr_number IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_po ON transactions(po_number) WHERE po_number IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_dv ON transactions(dv_number) WHERE dv_number IS NOT NULL;

	-- Hot path: utilization recomputation
	CREATE INDEX IF NOT EXISTS idx_transactions_fund_type_status
		ON transactions(fund_id, transaction_type, status);

	-- COA report snapshots
	CREATE TABLE IF NOT EXISTS coa_reports (
		id TEXT PRIMARY KEY,
		report_number TEXT NOT NULL UNIQUE,
		report_title TEXT NOT NULL,
		report_type TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL,
		month INTEGER NOT NULL DEFAULT 0,
		quarter INTEGER NOT NULL DEFAULT 0,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		total_appropriation TEXT NOT NULL DEFAULT '0',
		total_obligations TEXT NOT NULL DEFAULT '0',
		total_disbursements TEXT NOT NULL DEFAULT '0',
		unobligated_balance TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'Draft',
		notes TEXT NOT NULL DEFAULT '',
		generated_by TEXT NOT NULL DEFAULT '',
		generated_at TEXT NOT NULL,
		submitted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reports_fiscal_year ON coa_reports(fiscal_year);
	CREATE INDEX IF NOT EXISTS idx_reports_type ON coa_reports(report_type);

	-- Report detail rows: one per fund covered. Cascade with the report,
	-- restrict toward the fund so audited funds cannot vanish.
	CREATE TABLE IF NOT EXISTS coa_report_details (
		id TEXT PRIMARY KEY,
		report_id TEXT NOT NULL REFERENCES coa_reports(id) ON DELETE CASCADE,
		fund_id TEXT NOT NULL REFERENCES funds(id) ON DELETE RESTRICT,
		appropriation TEXT NOT NULL DEFAULT '0',
		obligations TEXT NOT NULL DEFAULT '0',
		disbursements TEXT NOT NULL DEFAULT '0',
		balance TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_report_details_report ON coa_report_details(report_id);
	CREATE INDEX IF NOT EXISTS idx_report_details_fund ON coa_report_details(fund_id);

	-- Attachments are owned by the file layer; the schema lives here so
	-- the cascade from transactions holds.
	CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		attachment_type TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		uploaded_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attachments_transaction ON attachments(transaction_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// withTx runs fn inside a database transaction under the writer lock.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// SCAN / MAP HELPERS
// =============================================================================

// mapConstraintErr translates a sqlite unique-constraint violation into
// the engine's ConflictError so the sequence layer can retry, and leaves
// every other error untouched.
func mapConstraintErr(err error, entity, key, value string) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return &budget.ConflictError{Entity: entity, Key: key, Value: value}
		}
	}
	return err
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanNullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
