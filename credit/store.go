/*
store.go - Persistence interfaces for links and ledger entries

PURPOSE:
  Defines the boundary between the domain logic and the database.
  Implementations: store/memory (tests/dev) and store/sqlite
  (production).

APPEND-ONLY CONTRACT:
  EntryStore has no Update or Delete for posted amounts. The single
  legal mutation is the one-shot PENDING -> CONFIRMED|DISPUTED status
  transition, guarded by a compare-and-set on the current status.

LINK GUARDS:
  UpdateLink takes the status the caller observed. Implementations
  must apply the update only if the stored status still matches,
  returning StateError otherwise. This closes lost-update races on
  the workflow state machine without a global lock.
*/
package credit

import "context"

// =============================================================================
// LINK STORE
// =============================================================================

// LinkStore persists CreditLinks. Links are never deleted.
type LinkStore interface {
	// CreateLink persists a new link. Fails with StateError if a
	// non-REJECTED link already exists for the (owner, agent) pair.
	CreateLink(ctx context.Context, link CreditLink) error

	// Link returns the link by id, or ErrNotFound.
	Link(ctx context.Context, id LinkID) (CreditLink, error)

	// OpenLinkByPair returns the non-REJECTED link for the pair, if any.
	OpenLinkByPair(ctx context.Context, owner, agent PrincipalID) (CreditLink, bool, error)

	// LinksByOwner returns all links (any status) for an owner.
	LinksByOwner(ctx context.Context, owner PrincipalID) ([]CreditLink, error)

	// UpdateLink overwrites the link's mutable fields if its stored
	// status still equals expectStatus. Returns ErrNotFound for an
	// unknown id, StateError when the guard fails.
	UpdateLink(ctx context.Context, link CreditLink, expectStatus LinkStatus) error
}

// =============================================================================
// ENTRY STORE (append-only)
// =============================================================================

// EntryStore persists LedgerEntries. Append-only: posted amounts are
// immutable, corrections arrive as new ADJUSTMENT entries.
type EntryStore interface {
	// AppendEntry persists an entry. The caller (Ledger) assigns
	// SequenceNo and ResultingBalance under the link's exclusive
	// section before calling.
	AppendEntry(ctx context.Context, e LedgerEntry) error

	// Entry returns the entry by id, or ErrNotFound.
	Entry(ctx context.Context, id EntryID) (LedgerEntry, error)

	// LatestEntry returns the highest-sequence entry for a link.
	LatestEntry(ctx context.Context, link LinkID) (LedgerEntry, bool, error)

	// EntriesByLink returns all entries for a link ordered by
	// SequenceNo ascending.
	EntriesByLink(ctx context.Context, link LinkID) ([]LedgerEntry, error)

	// SetEntryStatus transitions an entry's status if it still equals
	// from. Returns the updated entry; ErrNotFound for an unknown id,
	// StateError when the guard fails.
	SetEntryStatus(ctx context.Context, id EntryID, from, to EntryStatus) (LedgerEntry, error)
}

// Store is the full persistence surface the engine needs.
type Store interface {
	LinkStore
	EntryStore
}

// =============================================================================
// DIRECTORY - External identity lookups (consumed, not owned)
// =============================================================================

// Directory resolves principals. Identity lives in the auth subsystem;
// the engine only needs to know a referenced owner exists. Owners may
// be addressed by id or by phone number (agents connect to owners they
// know by phone).
type Directory interface {
	ResolveOwner(ctx context.Context, idOrPhone string) (PrincipalID, error)
}
