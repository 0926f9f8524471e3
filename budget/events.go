/*
events.go - Typed domain events

PURPOSE:
  The events the engine publishes when ledger state changes. External
  observers (dashboards, UI) subscribe via the notify hub; the engine never
  depends on them. Publishing is fire-and-forget: a subscriber failure
  cannot roll back the mutation that triggered it.

SEE ALSO:
  - notify: the hub these are published through
*/
package budget

import "github.com/shopspring/decimal"

// UpdateKind distinguishes fund mutations inside FundUpdated.
type UpdateKind string

const (
	UpdateCreated  UpdateKind = "Created"
	UpdateModified UpdateKind = "Modified"
	UpdateDeleted  UpdateKind = "Deleted"
)

// FundUpdated is published when a fund or one of its particulars is
// created, modified, soft/hard deleted, or has its utilization recomputed.
type FundUpdated struct {
	FundID     string
	FundCode   string
	NewBalance decimal.Decimal
	Kind       UpdateKind
}

// TransactionCreated is published after a transaction is persisted.
type TransactionCreated struct {
	TransactionID     string
	TransactionNumber string
	FundID            string
	Amount            decimal.Decimal
	TransactionType   TransactionType
}

// TransactionStatusChanged is published after every status transition.
type TransactionStatusChanged struct {
	TransactionID     string
	TransactionNumber string
	OldStatus         TransactionStatus
	NewStatus         TransactionStatus
}

// ReportSnapshotCreated is published when a COA report snapshot is
// persisted.
type ReportSnapshotCreated struct {
	ReportID     string
	ReportNumber string
	ReportType   ReportType
}

// DashboardRefresh tells listening views which panels are stale.
type DashboardRefresh struct {
	RefreshFunds        bool
	RefreshTransactions bool
	RefreshCharts       bool
}
