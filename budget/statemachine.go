/*
statemachine.go - Transaction approval state machine

PURPOSE:
  The single source of truth for which status transitions a transaction may
  take, and which of them commit or release money.

TRANSITION TABLE:

  Pending      -> For Approval   submit
  Pending      -> Cancelled      cancel
  For Approval -> Approved       approve (stamps approver, recomputes)
  For Approval -> Rejected       reject
  Approved     -> Completed      complete (disbursement confirmed, recomputes)

  Everything else is rejected with InvalidStateError and leaves the
  transaction untouched. Editing is allowed only in Pending; deletion only
  in Pending or Rejected (see Transaction.Editable / Deletable).

UTILIZATION TRIGGERS:
  Entering Approved or Completed on an Expenditure triggers a full
  recomputation of the fund's UtilizedAmount. Recomputation re-sums the
  ledger rather than patching incrementally, so it cannot drift.
*/
package budget

// allowedTransitions maps each status to the set it may move to.
var allowedTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:     {StatusForApproval, StatusCancelled},
	StatusForApproval: {StatusApproved, StatusRejected},
	StatusApproved:    {StatusCompleted},
	StatusRejected:    {},
	StatusCancelled:   {},
	StatusCompleted:   {},
}

// CanTransition reports whether the status change is in the table.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns nil for a legal transition and an
// InvalidStateError naming current and requested status otherwise.
func ValidateTransition(from, to TransactionStatus) error {
	if !CanTransition(from, to) {
		return &InvalidStateError{
			Entity:    "transaction",
			Current:   string(from),
			Attempted: "transition to " + string(to),
		}
	}
	return nil
}

// StampsApprover reports whether entering the status records who approved
// and when.
func StampsApprover(to TransactionStatus) bool {
	return to == StatusApproved || to == StatusCompleted
}

// TriggersRecompute reports whether a transition into the status changes
// committed money and therefore requires utilization recomputation for
// expenditure transactions.
func TriggersRecompute(to TransactionStatus) bool {
	return to == StatusApproved || to == StatusCompleted
}
