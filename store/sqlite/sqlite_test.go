package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Effimetic/Jaaga-sub003/credit"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleLink(id string) credit.CreditLink {
	now := time.Now().UTC()
	return credit.CreditLink{
		ID:               credit.LinkID(id),
		OwnerID:          "owner-1",
		AgentID:          "agent-1",
		CreditLimit:      credit.NewAmount("5000", credit.CurrencyMVR),
		Currency:         credit.CurrencyMVR,
		PaymentTermsDays: 14,
		AllowedMethods:   []credit.PaymentMethod{credit.MethodTransfer, credit.MethodCash},
		Status:           credit.LinkRequested,
		Active:           false,
		Message:          "season partnership",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func sampleEntry(id string, link credit.LinkID, seq int64) credit.LedgerEntry {
	return credit.LedgerEntry{
		ID:               credit.EntryID(id),
		LinkID:           link,
		SequenceNo:       seq,
		Type:             credit.EntryBooking,
		Debit:            credit.NewAmount("1250.50", credit.CurrencyMVR),
		Credit:           credit.ZeroAmount(credit.CurrencyMVR),
		ResultingBalance: credit.NewAmount("1250.50", credit.CurrencyMVR),
		Counterparty:     "agent-1",
		Channel:          credit.ChannelAgent,
		BookingRef:       "BK-1",
		Status:           credit.EntryConfirmed,
		CreatedAt:        time.Now().UTC(),
	}
}

// =============================================================================
// LINK ROUND TRIP AND GUARDS
// =============================================================================

func TestStore_Link_RoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	link := sampleLink("link-1")
	require.NoError(t, store.CreateLink(ctx, link))

	got, err := store.Link(ctx, link.ID)
	require.NoError(t, err)

	assert.Equal(t, link.ID, got.ID)
	assert.Equal(t, link.OwnerID, got.OwnerID)
	assert.Equal(t, link.AgentID, got.AgentID)
	assert.True(t, got.CreditLimit.Equal(link.CreditLimit))
	assert.Equal(t, link.PaymentTermsDays, got.PaymentTermsDays)
	assert.Equal(t, link.AllowedMethods, got.AllowedMethods)
	assert.Equal(t, link.Status, got.Status)
	assert.Equal(t, link.Message, got.Message)
	assert.True(t, got.CreatedAt.Equal(link.CreatedAt))
}

func TestStore_Link_NotFound(t *testing.T) {
	store := newStore(t)
	_, err := store.Link(context.Background(), "missing")
	assert.ErrorIs(t, err, credit.ErrNotFound)
}

func TestStore_CreateLink_PairIndexRejectsDuplicate(t *testing.T) {
	// The partial unique index backs the one-open-link-per-pair
	// invariant at the database level.
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateLink(ctx, sampleLink("link-1")))

	err := store.CreateLink(ctx, sampleLink("link-2"))
	assert.ErrorIs(t, err, credit.ErrState)
}

func TestStore_CreateLink_RejectedPairReusable(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := sampleLink("link-1")
	require.NoError(t, store.CreateLink(ctx, first))

	first.Status = credit.LinkRejected
	require.NoError(t, store.UpdateLink(ctx, first, credit.LinkRequested))

	// REJECTED rows fall out of the partial index.
	assert.NoError(t, store.CreateLink(ctx, sampleLink("link-2")))
}

func TestStore_OpenLinkByPair(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, ok, err := store.OpenLinkByPair(ctx, "owner-1", "agent-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.CreateLink(ctx, sampleLink("link-1")))

	got, ok, err := store.OpenLinkByPair(ctx, "owner-1", "agent-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, credit.LinkID("link-1"), got.ID)
}

func TestStore_UpdateLink_StatusGuard(t *testing.T) {
	// The status guard is a compare-and-set: a stale expectation fails
	// with StateError and writes nothing.
	store := newStore(t)
	ctx := context.Background()

	link := sampleLink("link-1")
	require.NoError(t, store.CreateLink(ctx, link))

	link.Status = credit.LinkApproved
	link.Active = true
	require.NoError(t, store.UpdateLink(ctx, link, credit.LinkRequested))

	// Second transition from REQUESTED: the row moved on.
	link.Status = credit.LinkRejected
	err := store.UpdateLink(ctx, link, credit.LinkRequested)
	assert.ErrorIs(t, err, credit.ErrState)

	got, err := store.Link(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, credit.LinkApproved, got.Status)
}

func TestStore_UpdateLink_NotFound(t *testing.T) {
	store := newStore(t)
	err := store.UpdateLink(context.Background(), sampleLink("missing"), credit.LinkRequested)
	assert.ErrorIs(t, err, credit.ErrNotFound)
}

func TestStore_LinksByOwner(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	a := sampleLink("link-1")
	b := sampleLink("link-2")
	b.AgentID = "agent-2"
	c := sampleLink("link-3")
	c.OwnerID = "owner-2"

	require.NoError(t, store.CreateLink(ctx, a))
	require.NoError(t, store.CreateLink(ctx, b))
	require.NoError(t, store.CreateLink(ctx, c))

	links, err := store.LinksByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

// =============================================================================
// ENTRY ROUND TRIP AND APPEND-ONLY GUARDS
// =============================================================================

func TestStore_Entry_RoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateLink(ctx, sampleLink("link-1")))
	entry := sampleEntry("entry-1", "link-1", 1)
	entry.ProofRef = "slip-9"
	entry.ReversalOf = "entry-0"
	require.NoError(t, store.AppendEntry(ctx, entry))

	got, err := store.Entry(ctx, entry.ID)
	require.NoError(t, err)

	assert.Equal(t, entry.LinkID, got.LinkID)
	assert.Equal(t, entry.SequenceNo, got.SequenceNo)
	assert.Equal(t, entry.Type, got.Type)
	assert.True(t, got.Debit.Equal(entry.Debit), "decimal text survives the round trip")
	assert.True(t, got.ResultingBalance.Equal(entry.ResultingBalance))
	assert.Equal(t, credit.CurrencyMVR, got.Credit.Currency)
	assert.Equal(t, entry.Counterparty, got.Counterparty)
	assert.Equal(t, entry.Channel, got.Channel)
	assert.Equal(t, entry.BookingRef, got.BookingRef)
	assert.Equal(t, entry.ProofRef, got.ProofRef)
	assert.Equal(t, entry.ReversalOf, got.ReversalOf)
	assert.True(t, got.CreatedAt.Equal(entry.CreatedAt))
}

func TestStore_AppendEntry_DuplicateSequenceRejected(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateLink(ctx, sampleLink("link-1")))
	require.NoError(t, store.AppendEntry(ctx, sampleEntry("entry-1", "link-1", 1)))

	err := store.AppendEntry(ctx, sampleEntry("entry-2", "link-1", 1))
	assert.Error(t, err, "unique (link_id, sequence_no) must hold")
}

func TestStore_LatestEntry(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateLink(ctx, sampleLink("link-1")))

	_, ok, err := store.LatestEntry(ctx, "link-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.AppendEntry(ctx, sampleEntry("entry-1", "link-1", 1)))
	require.NoError(t, store.AppendEntry(ctx, sampleEntry("entry-2", "link-1", 2)))

	latest, ok, err := store.LatestEntry(ctx, "link-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), latest.SequenceNo)
}

func TestStore_EntriesByLink_SequenceOrder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateLink(ctx, sampleLink("link-1")))
	// Inserted out of order; read back in sequence order.
	require.NoError(t, store.AppendEntry(ctx, sampleEntry("entry-2", "link-1", 2)))
	require.NoError(t, store.AppendEntry(ctx, sampleEntry("entry-1", "link-1", 1)))

	entries, err := store.EntriesByLink(ctx, "link-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].SequenceNo)
	assert.Equal(t, int64(2), entries[1].SequenceNo)
}

func TestStore_SetEntryStatus_Guard(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateLink(ctx, sampleLink("link-1")))
	entry := sampleEntry("entry-1", "link-1", 1)
	entry.Status = credit.EntryPending
	require.NoError(t, store.AppendEntry(ctx, entry))

	confirmed, err := store.SetEntryStatus(ctx, entry.ID, credit.EntryPending, credit.EntryConfirmed)
	require.NoError(t, err)
	assert.Equal(t, credit.EntryConfirmed, confirmed.Status)

	// The transition happens at most once.
	_, err = store.SetEntryStatus(ctx, entry.ID, credit.EntryPending, credit.EntryDisputed)
	assert.ErrorIs(t, err, credit.ErrState)

	_, err = store.SetEntryStatus(ctx, "missing", credit.EntryPending, credit.EntryConfirmed)
	assert.ErrorIs(t, err, credit.ErrNotFound)
}

// =============================================================================
// FULL ENGINE OVER SQLITE
// =============================================================================

func TestStore_DrivesLedger(t *testing.T) {
	// The production store behind the real posting path: sequence
	// assignment, folding and the no-overdraft guard all hold on disk
	// semantics, not just in memory.
	store := newStore(t)
	ctx := context.Background()

	link := sampleLink("link-1")
	link.Status = credit.LinkApproved
	link.Active = true
	require.NoError(t, store.CreateLink(ctx, link))

	ledger := credit.NewLedger(store)
	gate := credit.NewBookingCreditGate(store, ledger)

	_, err := gate.Authorize(ctx, link.ID, credit.NewAmount("3000", credit.CurrencyMVR), "BK-1")
	require.NoError(t, err)
	_, err = gate.Authorize(ctx, link.ID, credit.NewAmount("2500", credit.CurrencyMVR), "BK-2")
	assert.ErrorIs(t, err, credit.ErrInsufficientCredit)

	balance, err := ledger.CurrentBalance(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(credit.NewAmount("3000", credit.CurrencyMVR)))

	entries, err := store.EntriesByLink(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].SequenceNo)
}
