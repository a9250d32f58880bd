package credit_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Effimetic/Jaaga-sub003/credit"
)

// =============================================================================
// AUTHORIZATION STEPS
// =============================================================================

func TestGate_Authorize_RejectsNonPositiveAmount(t *testing.T) {
	e := newEngine(t)
	link := approvedLink(t, e, "5000")

	_, err := e.gate.Authorize(context.Background(), link.ID, mvr("0"), "BK-1")
	assert.ErrorIs(t, err, credit.ErrValidation)
	_, err = e.gate.Authorize(context.Background(), link.ID, mvr("-10"), "BK-1")
	assert.ErrorIs(t, err, credit.ErrValidation)
}

func TestGate_Authorize_UnknownLink(t *testing.T) {
	e := newEngine(t)
	_, err := e.gate.Authorize(context.Background(), "no-such-link", mvr("100"), "BK-1")
	assert.True(t, credit.IsNotFound(err))
}

func TestGate_Authorize_RequiresApprovedActiveLink(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// REQUESTED: no credit yet.
	requested, err := e.workflow.CreateRequest(ctx, credit.ConnectionRequest{
		AgentID:        "agent-1",
		Owner:          "owner-1",
		RequestedLimit: mvr("5000"),
	})
	require.NoError(t, err)
	_, err = e.gate.Authorize(ctx, requested.ID, mvr("100"), "BK-1")
	assert.ErrorIs(t, err, credit.ErrState)

	// APPROVED but suspended: debits refused, balance stays payable.
	link, err := e.workflow.RespondToRequest(ctx, requested.ID, credit.DecisionApprove, nil)
	require.NoError(t, err)
	_, err = e.workflow.SetActive(ctx, link.ID, false)
	require.NoError(t, err)
	_, err = e.gate.Authorize(ctx, link.ID, mvr("100"), "BK-2")
	assert.ErrorIs(t, err, credit.ErrState)

	// Reactivated: authorization works again.
	_, err = e.workflow.SetActive(ctx, link.ID, true)
	require.NoError(t, err)
	_, err = e.gate.Authorize(ctx, link.ID, mvr("100"), "BK-3")
	assert.NoError(t, err)
}

func TestGate_Authorize_CurrencyMismatch(t *testing.T) {
	e := newEngine(t)
	link := approvedLink(t, e, "5000")

	_, err := e.gate.Authorize(context.Background(), link.ID, credit.NewAmount("100", "USD"), "BK-1")
	assert.ErrorIs(t, err, credit.ErrCurrencyMismatch)
}

// =============================================================================
// CREDIT LIMIT WALK-THROUGH (MVR 5000 line)
// =============================================================================

func TestGate_CreditLifecycle_Scenarios(t *testing.T) {
	e := newEngine(t)
	link := approvedLink(t, e, "5000")
	ctx := context.Background()

	// 1. Authorize 3000 -> balance 3000, available 2000.
	entry, err := e.gate.Authorize(ctx, link.ID, mvr("3000"), "BK-1")
	require.NoError(t, err)
	assert.Equal(t, credit.EntryConfirmed, entry.Status)
	assert.Equal(t, credit.EntryBooking, entry.Type)
	assert.Equal(t, "BK-1", entry.BookingRef)

	balance, err := e.ledger.CurrentBalance(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(mvr("3000")))

	// 2. Authorize 2500 fails: 3000+2500 > 5000. Balance untouched.
	_, err = e.gate.Authorize(ctx, link.ID, mvr("2500"), "BK-2")
	var insufficient *credit.InsufficientCreditError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available().Equal(mvr("2000")))

	balance, err = e.ledger.CurrentBalance(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(mvr("3000")), "refused authorization must not mutate")

	// 3. Settle 1000 and confirm -> balance 2000.
	settlement, err := e.settlements.InitiateSettlement(ctx, link.ID, mvr("1000"), "proof-1")
	require.NoError(t, err)
	_, err = e.settlements.Reconcile(ctx, settlement.ID, credit.OutcomeAccept)
	require.NoError(t, err)

	balance, err = e.ledger.CurrentBalance(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(mvr("2000")))

	// 4. Authorize 2000 now fits exactly -> balance 4000.
	_, err = e.gate.Authorize(ctx, link.ID, mvr("2000"), "BK-3")
	require.NoError(t, err)
	balance, err = e.ledger.CurrentBalance(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(mvr("4000")))

	// 5. Block: authorization refused, repayment still possible.
	_, err = e.workflow.SetBlocked(ctx, link.ID)
	require.NoError(t, err)

	_, err = e.gate.Authorize(ctx, link.ID, mvr("500"), "BK-4")
	assert.ErrorIs(t, err, credit.ErrState)

	settlement, err = e.settlements.InitiateSettlement(ctx, link.ID, mvr("4000"), "proof-2")
	require.NoError(t, err)
	_, err = e.settlements.Reconcile(ctx, settlement.ID, credit.OutcomeAccept)
	require.NoError(t, err)

	balance, err = e.ledger.CurrentBalance(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "blocked link must still be repayable to zero")
}

// =============================================================================
// NO OVERDRAFT UNDER CONCURRENCY
// =============================================================================

func TestGate_ConcurrentAuthorize_ExactlyOneWins(t *testing.T) {
	// Two concurrent 3000 authorizations against a fresh 5000 line:
	// exactly one succeeds, final balance is 3000, never 6000.
	e := newEngine(t)
	link := approvedLink(t, e, "5000")
	ctx := context.Background()

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.gate.Authorize(ctx, link.ID, mvr("3000"), "BK-race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var granted, refused int
	for err := range results {
		switch {
		case err == nil:
			granted++
		case errors.Is(err, credit.ErrInsufficientCredit):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, granted)
	assert.Equal(t, 1, refused)

	balance, err := e.ledger.CurrentBalance(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(mvr("3000")), "final balance must never be 6000, got %s", balance)
}

func TestGate_ConcurrentAuthorize_NeverExceedsLimit(t *testing.T) {
	// Limit 1000, debit size 100, 25 concurrent attempts: at most 10
	// succeed and the balance never exceeds the limit.
	e := newEngine(t)
	link := approvedLink(t, e, "1000")
	ctx := context.Background()

	const attempts = 25
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.gate.Authorize(ctx, link.ID, mvr("100"), "BK-n")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	granted := 0
	for err := range results {
		if err == nil {
			granted++
		} else {
			assert.ErrorIs(t, err, credit.ErrInsufficientCredit)
		}
	}
	assert.Equal(t, 10, granted, "floor(1000/100) successful debits")

	balance, err := e.ledger.CurrentBalance(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(mvr("1000")))

	link2, err := e.store.Link(ctx, link.ID)
	require.NoError(t, err)
	assert.False(t, balance.GreaterThan(link2.CreditLimit))
}

// =============================================================================
// COMPENSATION AFTER DOWNSTREAM FAILURE
// =============================================================================

func TestGate_Reverse_RestoresAvailableCredit(t *testing.T) {
	// Seat reservation failed downstream: the caller compensates and
	// the full line is available again.
	e := newEngine(t)
	link := approvedLink(t, e, "5000")
	ctx := context.Background()

	entry, err := e.gate.Authorize(ctx, link.ID, mvr("5000"), "BK-1")
	require.NoError(t, err)

	_, err = e.gate.Authorize(ctx, link.ID, mvr("1"), "BK-2")
	assert.ErrorIs(t, err, credit.ErrInsufficientCredit)

	_, err = e.gate.Reverse(ctx, entry.ID)
	require.NoError(t, err)

	_, err = e.gate.Authorize(ctx, link.ID, mvr("5000"), "BK-3")
	assert.NoError(t, err, "full line available after compensation")
}
