/*
reports.go - COA report snapshot persistence

PURPOSE:
  Reports are written once (header plus detail rows, atomically) and from
  then on only their status moves forward. The monotonic progression and
  the submitted-is-immutable rule are enforced here, inside the write
  transaction, so a racing status change cannot skip past them.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/budget-engine/budget"
)

const reportColumns = `id, report_number, report_title, report_type, fiscal_year,
	month, quarter, period_start, period_end,
	total_appropriation, total_obligations, total_disbursements, unobligated_balance,
	status, notes, generated_by, generated_at, submitted_at`

// InsertReport persists a report header and its detail rows atomically.
// A duplicate report number surfaces as budget.ConflictError.
func (s *Store) InsertReport(ctx context.Context, r budget.COAReport) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO coa_reports (`+reportColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.ReportNumber, r.ReportTitle, string(r.ReportType), r.FiscalYear,
			r.Month, r.Quarter, formatTime(r.PeriodStart), formatTime(r.PeriodEnd),
			r.TotalAppropriation.String(), r.TotalObligations.String(),
			r.TotalDisbursements.String(), r.UnobligatedBalance.String(),
			string(r.Status), r.Notes, r.GeneratedBy,
			formatTime(r.GeneratedAt), nullableTime(r.SubmittedAt),
		)
		if err != nil {
			return mapConstraintErr(err, "report", "report number", r.ReportNumber)
		}

		for _, d := range r.Details {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO coa_report_details
					(id, report_id, fund_id, appropriation, obligations, disbursements, balance)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				d.ID, r.ID, d.FundID, d.Appropriation.String(),
				d.Obligations.String(), d.Disbursements.String(), d.Balance.String(),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetReport returns the report with its detail rows (fund code and name
// joined in), or (nil, nil) when it does not exist.
func (s *Store) GetReport(ctx context.Context, id string) (*budget.COAReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports, err := s.queryReports(ctx,
		"SELECT "+reportColumns+" FROM coa_reports WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}

	report := reports[0]
	details, err := s.queryReportDetails(ctx, report.ID)
	if err != nil {
		return nil, err
	}
	report.Details = details
	return &report, nil
}

// ListReports returns report headers, optionally restricted to a fiscal
// year (0 = all) and one type, newest first. Detail rows are not loaded.
func (s *Store) ListReports(ctx context.Context, fiscalYear int, reportType budget.ReportType) ([]budget.COAReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + reportColumns + " FROM coa_reports WHERE 1=1"
	var args []any
	if fiscalYear > 0 {
		query += " AND fiscal_year = ?"
		args = append(args, fiscalYear)
	}
	if reportType != "" {
		query += " AND report_type = ?"
		args = append(args, string(reportType))
	}
	query += " ORDER BY generated_at DESC"
	return s.queryReports(ctx, query, args...)
}

// ProgressReport moves the report to a later status, validating the
// monotonic Draft -> Archived order inside the write transaction. Moving
// to Submitted stamps submitted_at. Returns the updated report header.
func (s *Store) ProgressReport(ctx context.Context, id string, to budget.ReportStatus) (*budget.COAReport, error) {
	var updated *budget.COAReport
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			"SELECT status FROM coa_reports WHERE id = ?", id).Scan(&current)
		if err == sql.ErrNoRows {
			return &budget.NotFoundError{Entity: "report", ID: id}
		}
		if err != nil {
			return err
		}

		if !budget.ReportStatus(current).CanProgressTo(to) {
			return &budget.InvalidStateError{
				Entity:    "report",
				Current:   current,
				Attempted: "progress to " + string(to),
			}
		}

		if to == budget.ReportSubmitted {
			_, err = tx.ExecContext(ctx,
				"UPDATE coa_reports SET status = ?, submitted_at = ? WHERE id = ?",
				string(to), formatTime(nowUTC()), id)
		} else {
			_, err = tx.ExecContext(ctx,
				"UPDATE coa_reports SET status = ? WHERE id = ?", string(to), id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	updated, err = s.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteReport removes the report and its details (cascade). A Submitted
// or Archived report cannot be deleted; the check and the delete are one
// transaction.
func (s *Store) DeleteReport(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx,
			"SELECT status FROM coa_reports WHERE id = ?", id).Scan(&status)
		if err == sql.ErrNoRows {
			return &budget.NotFoundError{Entity: "report", ID: id}
		}
		if err != nil {
			return err
		}

		report := budget.COAReport{Status: budget.ReportStatus(status)}
		if report.Immutable() {
			return &budget.InvalidStateError{
				Entity:    "report",
				Current:   status,
				Attempted: "delete",
			}
		}

		_, err = tx.ExecContext(ctx, "DELETE FROM coa_reports WHERE id = ?", id)
		return err
	})
}

func (s *Store) queryReports(ctx context.Context, query string, args ...any) ([]budget.COAReport, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []budget.COAReport
	for rows.Next() {
		var (
			r             budget.COAReport
			reportType    string
			periodStart   string
			periodEnd     string
			appropriation string
			obligations   string
			disbursements string
			balance       string
			status        string
			generatedAt   string
			submittedAt   sql.NullString
		)
		err := rows.Scan(
			&r.ID, &r.ReportNumber, &r.ReportTitle, &reportType, &r.FiscalYear,
			&r.Month, &r.Quarter, &periodStart, &periodEnd,
			&appropriation, &obligations, &disbursements, &balance,
			&status, &r.Notes, &r.GeneratedBy, &generatedAt, &submittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		r.ReportType = budget.ReportType(reportType)
		r.PeriodStart = parseTime(periodStart)
		r.PeriodEnd = parseTime(periodEnd)
		r.TotalAppropriation = parseDecimal(appropriation)
		r.TotalObligations = parseDecimal(obligations)
		r.TotalDisbursements = parseDecimal(disbursements)
		r.UnobligatedBalance = parseDecimal(balance)
		r.Status = budget.ReportStatus(status)
		r.GeneratedAt = parseTime(generatedAt)
		r.SubmittedAt = scanNullableTime(submittedAt)
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *Store) queryReportDetails(ctx context.Context, reportID string) ([]budget.COAReportDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.report_id, d.fund_id, f.fund_code, f.fund_name,
		       d.appropriation, d.obligations, d.disbursements, d.balance
		FROM coa_report_details d
		JOIN funds f ON f.id = d.fund_id
		WHERE d.report_id = ?
		ORDER BY f.fund_code`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query report details: %w", err)
	}
	defer rows.Close()

	var details []budget.COAReportDetail
	for rows.Next() {
		var (
			d             budget.COAReportDetail
			appropriation string
			obligations   string
			disbursements string
			balance       string
		)
		err := rows.Scan(
			&d.ID, &d.ReportID, &d.FundID, &d.FundCode, &d.FundName,
			&appropriation, &obligations, &disbursements, &balance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report detail: %w", err)
		}
		d.Appropriation = parseDecimal(appropriation)
		d.Obligations = parseDecimal(obligations)
		d.Disbursements = parseDecimal(disbursements)
		d.Balance = parseDecimal(balance)
		details = append(details, d)
	}
	return details, rows.Err()
}
