/*
ledger.go - Append-only posting algorithm and balance folding

PURPOSE:
  The Ledger is the single source of truth for every balance change on
  a credit link. Bookings, payments, fee accruals, settlements and
  adjustments all land here; balances are always folded from the entry
  stream, never cached as mutable totals.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: posted amounts are never updated or deleted.
  2. ORDERED: SequenceNo is assigned at commit time under the link's
     exclusive section and is the only ordering truth.
  3. FOLDABLE: ResultingBalance[i] = ResultingBalance[i-1] + Debit - Credit.
  4. SERIALIZED: concurrent posts to the same link are strictly
     serialized; different links are fully independent.

BALANCE SEMANTICS:
  ResultingBalance on each entry is the raw fold over ALL entries - the
  auditable record. CurrentBalance (what authorization checks) excludes
  DISPUTED entries: a disputed settlement never reduces the outstanding
  owed amount. PENDING entries are honored.

CORRECTIONS:
  History is never rewritten. Reverse posts a compensating ADJUSTMENT
  credit; both the original and the compensation stay in the ledger.

SEE ALSO:
  - locker.go: bounded per-link exclusive sections
  - gate.go:   the authorization choke-point built on PostGuarded
*/
package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Effimetic/Jaaga-sub003/events"
	"github.com/Effimetic/Jaaga-sub003/metrics"
)

// DefaultLockWait bounds how long a post waits for a contended link
// before failing with ConcurrencyConflictError.
const DefaultLockWait = 2 * time.Second

// =============================================================================
// POSTING - Input to the posting algorithm
// =============================================================================

// Side selects which column of an entry carries the amount.
type Side string

const (
	DebitSide  Side = "DEBIT"
	CreditSide Side = "CREDIT"
)

// Posting describes one entry to be committed. Exactly one side, one
// positive amount, denominated in the link's currency.
type Posting struct {
	Type         EntryType
	Side         Side
	Amount       Amount
	Status       EntryStatus
	Counterparty string
	Channel      Channel
	BookingRef   string
	ProofRef     string
	ReversalOf   EntryID
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store     Store
	locks     *linkLocks
	publisher events.Publisher
	lockWait  time.Duration
	now       func() time.Time
}

type LedgerOption func(*Ledger)

// WithPublisher announces committed entries on the given publisher.
func WithPublisher(p events.Publisher) LedgerOption {
	return func(l *Ledger) { l.publisher = p }
}

// WithLockWait bounds the wait for a contended link section.
func WithLockWait(d time.Duration) LedgerOption {
	return func(l *Ledger) { l.lockWait = d }
}

// WithClock overrides the ledger's time source.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:     store,
		locks:     newLinkLocks(),
		publisher: events.Nop{},
		lockWait:  DefaultLockWait,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post commits one entry against a link. Serialized per link; see
// PostGuarded for the authorization variant that checks the balance
// inside the same critical section.
func (l *Ledger) Post(ctx context.Context, linkID LinkID, p Posting) (LedgerEntry, error) {
	return l.PostGuarded(ctx, linkID, p, nil)
}

// PostGuarded commits one entry after running guard against the
// outstanding balance, all inside the link's exclusive section. If the
// guard fails, nothing is posted. This is the all-or-nothing primitive
// that closes the check-then-act race in credit authorization.
func (l *Ledger) PostGuarded(ctx context.Context, linkID LinkID, p Posting, guard func(outstanding Amount) error) (LedgerEntry, error) {
	if err := validatePosting(p); err != nil {
		return LedgerEntry{}, err
	}
	link, err := l.store.Link(ctx, linkID)
	if err != nil {
		return LedgerEntry{}, err
	}
	if p.Amount.Currency != link.Currency {
		return LedgerEntry{}, &CurrencyMismatchError{LinkID: linkID, Link: link.Currency, Given: p.Amount.Currency}
	}

	release, err := l.locks.acquire(ctx, linkID, l.lockWait)
	if err != nil {
		if err == ErrConcurrencyConflict {
			metrics.LockConflicts.Inc()
		}
		return LedgerEntry{}, err
	}
	defer release()

	entries, err := l.store.EntriesByLink(ctx, linkID)
	if err != nil {
		return LedgerEntry{}, err
	}

	raw, outstanding := foldBalances(link.Currency, entries)
	if guard != nil {
		if err := guard(outstanding); err != nil {
			return LedgerEntry{}, err
		}
	}

	entry := LedgerEntry{
		ID:           EntryID(uuid.NewString()),
		LinkID:       linkID,
		SequenceNo:   nextSequence(entries),
		Type:         p.Type,
		Debit:        ZeroAmount(link.Currency),
		Credit:       ZeroAmount(link.Currency),
		Counterparty: p.Counterparty,
		Channel:      p.Channel,
		BookingRef:   p.BookingRef,
		ProofRef:     p.ProofRef,
		ReversalOf:   p.ReversalOf,
		Status:       p.Status,
		CreatedAt:    l.now().UTC(),
	}
	if p.Side == DebitSide {
		entry.Debit = p.Amount
	} else {
		entry.Credit = p.Amount
	}
	entry.ResultingBalance = raw.Add(entry.Delta())

	if err := l.store.AppendEntry(ctx, entry); err != nil {
		return LedgerEntry{}, err
	}

	metrics.EntriesPosted.WithLabelValues(string(entry.Type)).Inc()
	l.publish(ctx, entry)
	return entry, nil
}

// CurrentBalance returns the outstanding balance of a link: the fold of
// all non-DISPUTED entries, or zero if none exist. Lock-free snapshot
// read; may be momentarily stale, never inconsistent.
func (l *Ledger) CurrentBalance(ctx context.Context, linkID LinkID) (Amount, error) {
	link, err := l.store.Link(ctx, linkID)
	if err != nil {
		return Amount{}, err
	}
	entries, err := l.store.EntriesByLink(ctx, linkID)
	if err != nil {
		return Amount{}, err
	}
	_, outstanding := foldBalances(link.Currency, entries)
	return outstanding, nil
}

// Entries returns the link's entries in SequenceNo order, narrowed by
// the filter. Restartable: re-querying yields the same prefix plus any
// new commits.
func (l *Ledger) Entries(ctx context.Context, linkID LinkID, filter EntryFilter) ([]LedgerEntry, error) {
	if _, err := l.store.Link(ctx, linkID); err != nil {
		return nil, err
	}
	entries, err := l.store.EntriesByLink(ctx, linkID)
	if err != nil {
		return nil, err
	}
	var out []LedgerEntry
	for _, e := range entries {
		if filter.match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Reverse posts a compensating ADJUSTMENT credit offsetting a committed
// debit entry. Used when the caller's seat-reservation step fails after
// authorization succeeded. History is never rewritten, only offset; a
// debit can be reversed at most once.
func (l *Ledger) Reverse(ctx context.Context, entryID EntryID) (LedgerEntry, error) {
	orig, err := l.store.Entry(ctx, entryID)
	if err != nil {
		return LedgerEntry{}, err
	}
	if !orig.IsDebit() {
		return LedgerEntry{}, &StateError{Subject: "entry", ID: string(entryID), Current: "credit-side", Attempt: "reverse"}
	}
	if orig.Status != EntryConfirmed {
		return LedgerEntry{}, &StateError{Subject: "entry", ID: string(entryID), Current: string(orig.Status), Attempt: "reverse"}
	}

	guard := func(Amount) error {
		// Re-checked under the lock so two concurrent reversals cannot
		// both pass.
		entries, err := l.store.EntriesByLink(ctx, orig.LinkID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.ReversalOf == entryID {
				return &StateError{Subject: "entry", ID: string(entryID), Current: "already reversed", Attempt: "reverse"}
			}
		}
		return nil
	}

	return l.PostGuarded(ctx, orig.LinkID, Posting{
		Type:         EntryAdjustment,
		Side:         CreditSide,
		Amount:       orig.Debit,
		Status:       EntryConfirmed,
		Counterparty: orig.Counterparty,
		Channel:      orig.Channel,
		BookingRef:   orig.BookingRef,
		ReversalOf:   entryID,
	}, guard)
}

func (l *Ledger) publish(ctx context.Context, e LedgerEntry) {
	_ = l.publisher.Publish(ctx, events.TopicEntryPosted, EntryPostedEvent{
		EntryID:          string(e.ID),
		LinkID:           string(e.LinkID),
		SequenceNo:       e.SequenceNo,
		Type:             string(e.Type),
		Debit:            e.Debit.Value.String(),
		Credit:           e.Credit.Value.String(),
		ResultingBalance: e.ResultingBalance.Value.String(),
		Currency:         string(e.Debit.Currency),
		Status:           string(e.Status),
		BookingRef:       e.BookingRef,
		PostedAt:         e.CreatedAt,
	})
}

// EntryPostedEvent is the wire shape announced after every commit.
type EntryPostedEvent struct {
	EntryID          string    `json:"entry_id"`
	LinkID           string    `json:"link_id"`
	SequenceNo       int64     `json:"sequence_no"`
	Type             string    `json:"type"`
	Debit            string    `json:"debit"`
	Credit           string    `json:"credit"`
	ResultingBalance string    `json:"resulting_balance"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	BookingRef       string    `json:"booking_ref,omitempty"`
	PostedAt         time.Time `json:"posted_at"`
}

// =============================================================================
// FILTERS AND FOLDS
// =============================================================================

// EntryFilter narrows an entry query. Zero value matches everything.
type EntryFilter struct {
	Types    []EntryType
	Statuses []EntryStatus
	From     time.Time // inclusive, zero = unbounded
	To       time.Time // exclusive, zero = unbounded
}

func (f EntryFilter) match(e LedgerEntry) bool {
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, e.Status) {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

func containsType(ts []EntryType, t EntryType) bool {
	for _, v := range ts {
		if v == t {
			return true
		}
	}
	return false
}

func containsStatus(ss []EntryStatus, s EntryStatus) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// foldBalances computes both balance views in one pass: raw is the fold
// over every entry (what ResultingBalance extends), outstanding excludes
// DISPUTED entries (what authorization checks).
func foldBalances(currency Currency, entries []LedgerEntry) (raw, outstanding Amount) {
	raw = ZeroAmount(currency)
	outstanding = ZeroAmount(currency)
	for _, e := range entries {
		raw = raw.Add(e.Delta())
		if e.Status != EntryDisputed {
			outstanding = outstanding.Add(e.Delta())
		}
	}
	return raw, outstanding
}

func nextSequence(entries []LedgerEntry) int64 {
	if len(entries) == 0 {
		return 1
	}
	return entries[len(entries)-1].SequenceNo + 1
}

func validatePosting(p Posting) error {
	if !p.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: fmt.Sprintf("must be positive, got %s", p.Amount.Value)}
	}
	if p.Side != DebitSide && p.Side != CreditSide {
		return &ValidationError{Field: "side", Reason: "must be DEBIT or CREDIT"}
	}
	switch p.Type {
	case EntryBooking, EntryPayment, EntryAppFee, EntrySettlement, EntryAdjustment:
	default:
		return &ValidationError{Field: "type", Reason: "unknown entry type"}
	}
	switch p.Status {
	case EntryPending, EntryConfirmed:
	default:
		return &ValidationError{Field: "status", Reason: "new entries must be PENDING or CONFIRMED"}
	}
	return nil
}
