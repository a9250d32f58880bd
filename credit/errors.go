/*
errors.go - Centralized error taxonomy for the credit engine

PURPOSE:
  All error kinds in one place. Callers branch with errors.Is against
  the sentinels; structured errors add context (link id, amounts) and
  unwrap to their sentinel.

ERROR CATEGORIES:
  ValidationError          malformed/out-of-range input, never retried
  NotFoundError            unknown link or entry id
  StateError               illegal lifecycle transition
  CurrencyMismatchError    posting currency != link currency
  InsufficientCreditError  authorization refused, no mutation occurred
  ConcurrencyConflictError transient lock contention, safe to retry
  SettlementMismatchError  reconciliation outcome was DISPUTED

PROPAGATION:
  Every error surfaces to the caller with kind + context. Nothing is
  swallowed. The only subsystem-internal retry is bounded backoff on
  ConcurrencyConflictError inside the gate.
*/
package credit

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a link or entry id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrState is returned for illegal lifecycle transitions, e.g.
	// responding to an already-resolved request or authorizing against
	// a non-APPROVED link.
	ErrState = errors.New("illegal state transition")

	// ErrCurrencyMismatch is returned before any posting occurs when an
	// amount's currency differs from the link's currency.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrInsufficientCredit is returned when an authorization would push
	// the balance over the credit limit. No mutation occurs.
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrConcurrencyConflict is returned when the per-link exclusive
	// section cannot be acquired within the bounded wait. Retryable.
	ErrConcurrencyConflict = errors.New("concurrent posting conflict")

	// ErrSettlementMismatch reports a reconciliation that ended DISPUTED.
	ErrSettlementMismatch = errors.New("settlement mismatch")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes which input failed and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StateError describes an illegal transition on a link or entry.
type StateError struct {
	Subject string // "link" or "entry"
	ID      string
	Current string
	Attempt string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state: %s %s is %s, cannot %s", e.Subject, e.ID, e.Current, e.Attempt)
}

func (e *StateError) Unwrap() error { return ErrState }

// CurrencyMismatchError carries both sides of a currency conflict.
type CurrencyMismatchError struct {
	LinkID LinkID
	Link   Currency
	Given  Currency
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch on link %s: link is %s, got %s", e.LinkID, e.Link, e.Given)
}

func (e *CurrencyMismatchError) Unwrap() error { return ErrCurrencyMismatch }

// InsufficientCreditError reports a refused authorization with the
// numbers that refused it.
type InsufficientCreditError struct {
	LinkID    LinkID
	Limit     Amount
	Balance   Amount
	Requested Amount
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit on link %s: balance %s + requested %s exceeds limit %s",
		e.LinkID, e.Balance, e.Requested, e.Limit)
}

func (e *InsufficientCreditError) Unwrap() error { return ErrInsufficientCredit }

// Available returns the credit remaining before the refused request.
func (e *InsufficientCreditError) Available() Amount {
	return e.Limit.Sub(e.Balance)
}

// SettlementMismatchError reports a PENDING entry reconciled as DISPUTED.
type SettlementMismatchError struct {
	EntryID EntryID
	LinkID  LinkID
	Amount  Amount
}

func (e *SettlementMismatchError) Error() string {
	return fmt.Sprintf("settlement %s on link %s disputed (amount %s)", e.EntryID, e.LinkID, e.Amount)
}

func (e *SettlementMismatchError) Unwrap() error { return ErrSettlementMismatch }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable reports whether the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError reports whether the error is the caller's to fix.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrState) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrInsufficientCredit)
}

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
