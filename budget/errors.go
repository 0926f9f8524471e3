/*
errors.go - Error taxonomy for the budget ledger engine

PURPOSE:
  All error types in one place. Every failure a caller can see falls into
  one of five classes, each carrying the specific offending values so the
  UI layer can render a precise message instead of "something went wrong".

TAXONOMY:
  ValidationError          caller-correctable input problem
  InsufficientBalanceError specialization of validation for expenditures;
                           always carries the fund's remaining balance
  InvalidStateError        operation not allowed in the record's current state
  NotFoundError            unknown id on Get/Update/Delete
  ConflictError            unique-constraint race on a generated code;
                           retried internally before it ever reaches a caller

PROPAGATION:
  Every mutating operation is atomic - errors mean nothing was written.
  Nothing here is fatal to the process.

USAGE:
  var verr *budget.ValidationError
  if errors.As(err, &verr) { ... }

  if budget.IsRetryable(err) { // regenerate code and retry }
*/
package budget

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation classifies caller-correctable input errors.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState classifies operations rejected by the record's
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound classifies lookups of unknown ids.
	ErrNotFound = errors.New("not found")

	// ErrConflict classifies unique-constraint races on generated codes.
	// Expected under concurrent creation; the generation step is retried.
	ErrConflict = errors.New("conflict")

	// ErrInsufficientBalance classifies expenditures exceeding the fund's
	// remaining balance. It is a specialization of ErrValidation, so
	// errors.Is(err, ErrValidation) also matches.
	ErrInsufficientBalance = fmt.Errorf("insufficient balance: %w", ErrValidation)
)

// =============================================================================
// STRUCTURED ERRORS - Carry the offending values
// =============================================================================

// ValidationError is a caller-correctable input problem: a missing field,
// a non-positive amount, an allocation exceeding its parent envelope.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil || e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientBalanceError is returned when an expenditure exceeds the
// fund's remaining balance. It always carries the available balance so the
// UI can display it.
type InsufficientBalanceError struct {
	FundCode  string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient fund balance on %s: available %s, requested %s",
		e.FundCode, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

// Unwrap classifies the error as both ErrInsufficientBalance and, through
// it, as a validation failure.
func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// AllocationExceededError is a validation failure naming the amounts when a
// particular's allocation would push the fund past its envelope.
type AllocationExceededError struct {
	FundCode       string
	FundAllocation decimal.Decimal
	TotalRequested decimal.Decimal
}

func (e *AllocationExceededError) Error() string {
	return fmt.Sprintf("particular allocations %s exceed fund %s allocation %s",
		e.TotalRequested.StringFixed(2), e.FundCode, e.FundAllocation.StringFixed(2))
}

func (e *AllocationExceededError) Unwrap() error { return ErrValidation }

// InvalidStateError reports an operation that the record's current state
// forbids: editing a non-Pending transaction, an illegal status
// transition, deleting a Submitted report.
type InvalidStateError struct {
	Entity    string // "transaction", "report"
	Current   string
	Attempted string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s in state %q does not allow %q", e.Entity, e.Current, e.Attempted)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// NotFoundError reports an unknown id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a unique-constraint violation, typically a race on
// a generated code. Callers inside the engine retry generation; it is only
// surfaced when retries are exhausted.
type ConflictError struct {
	Entity string
	Key    string
	Value  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Key, e.Value)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry, i.e. a
// generated-code conflict.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidState)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
