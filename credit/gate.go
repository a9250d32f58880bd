/*
gate.go - The booking credit authorization choke-point

PURPOSE:
  The sole path by which a booking obtains on-credit funding. Checking
  available credit and then posting the debit as two separate calls is
  a check-then-act race that lets two simultaneous bookings jointly
  overdraw a limit. Here the check and the post run inside one per-link
  critical section, so no interleaving of concurrent authorizations can
  exceed the limit.

AUTHORIZATION STEPS (in order, first failure wins):
  1. amount must be positive            -> ValidationError
  2. link must exist                    -> NotFoundError
  3. link must be APPROVED and active   -> StateError
  4. currency must match the link       -> CurrencyMismatchError
  5. balance + amount <= credit limit   -> InsufficientCreditError
  6. post a CONFIRMED BOOKING debit and return it

  Steps 5 and 6 execute under the same serialized section as every
  other post to the link. Failure anywhere means no mutation and no
  side effect on the external seat-reservation process.

CONTENTION:
  Lock acquisition is bounded. On ConcurrencyConflictError the gate
  retries a few times with backoff; past that the error surfaces and
  the caller owns further retry policy.

COMPENSATION:
  If the caller's seat reservation fails after authorization succeeded,
  it must call Reverse(entry_id), which posts an offsetting ADJUSTMENT
  credit. History is never rewritten.
*/
package credit

import (
	"context"
	"errors"
	"time"

	"github.com/Effimetic/Jaaga-sub003/metrics"
)

// RetryPolicy bounds the gate's internal retry on lock contention.
// Only ConcurrencyConflictError is retried; every other error is
// terminal for the request.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 50 * time.Millisecond}

// BookingCreditGate authorizes on-credit bookings against a link.
type BookingCreditGate struct {
	store  Store
	ledger *Ledger
	retry  RetryPolicy
}

func NewBookingCreditGate(store Store, ledger *Ledger) *BookingCreditGate {
	return &BookingCreditGate{store: store, ledger: ledger, retry: DefaultRetryPolicy}
}

// WithRetry overrides the contention retry policy.
func (g *BookingCreditGate) WithRetry(p RetryPolicy) *BookingCreditGate {
	g.retry = p
	return g
}

// Authorize runs the six-step authorization and, on success, returns
// the committed CONFIRMED BOOKING entry.
func (g *BookingCreditGate) Authorize(ctx context.Context, linkID LinkID, amount Amount, bookingRef string) (LedgerEntry, error) {
	entry, err := g.authorize(ctx, linkID, amount, bookingRef)
	metrics.Authorizations.WithLabelValues(authResult(err)).Inc()
	return entry, err
}

func (g *BookingCreditGate) authorize(ctx context.Context, linkID LinkID, amount Amount, bookingRef string) (LedgerEntry, error) {
	if !amount.IsPositive() {
		return LedgerEntry{}, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	link, err := g.store.Link(ctx, linkID)
	if err != nil {
		return LedgerEntry{}, err
	}
	if !link.AcceptsDebits() {
		return LedgerEntry{}, &StateError{Subject: "link", ID: string(linkID), Current: linkState(link), Attempt: "authorize booking credit"}
	}
	if amount.Currency != link.Currency {
		return LedgerEntry{}, &CurrencyMismatchError{LinkID: linkID, Link: link.Currency, Given: amount.Currency}
	}

	guard := func(outstanding Amount) error {
		if outstanding.Add(amount).GreaterThan(link.CreditLimit) {
			return &InsufficientCreditError{
				LinkID:    linkID,
				Limit:     link.CreditLimit,
				Balance:   outstanding,
				Requested: amount,
			}
		}
		return nil
	}

	posting := Posting{
		Type:         EntryBooking,
		Side:         DebitSide,
		Amount:       amount,
		Status:       EntryConfirmed,
		Counterparty: string(link.AgentID),
		Channel:      ChannelAgent,
		BookingRef:   bookingRef,
	}

	var entry LedgerEntry
	for attempt := 0; ; attempt++ {
		entry, err = g.ledger.PostGuarded(ctx, linkID, posting, guard)
		if !errors.Is(err, ErrConcurrencyConflict) || attempt+1 >= g.retry.Attempts {
			break
		}
		select {
		case <-time.After(g.retry.Backoff * time.Duration(attempt+1)):
		case <-ctx.Done():
			return LedgerEntry{}, ctx.Err()
		}
	}
	return entry, err
}

// Reverse compensates a successful authorization whose downstream seat
// reservation failed. Delegates to the ledger's compensation posting.
func (g *BookingCreditGate) Reverse(ctx context.Context, entryID EntryID) (LedgerEntry, error) {
	return g.ledger.Reverse(ctx, entryID)
}

func linkState(link CreditLink) string {
	if link.Status == LinkApproved && !link.Active {
		return "APPROVED (suspended)"
	}
	return string(link.Status)
}

func authResult(err error) string {
	switch {
	case err == nil:
		return "granted"
	case errors.Is(err, ErrInsufficientCredit):
		return "insufficient"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	default:
		return "error"
	}
}
