package credit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Effimetic/Jaaga-sub003/credit"
	"github.com/Effimetic/Jaaga-sub003/store/memory"
)

// =============================================================================
// TEST SETUP - shared engine wiring over the memory store
// =============================================================================

type engine struct {
	store       *memory.Store
	ledger      *credit.Ledger
	workflow    *credit.ConnectionWorkflow
	gate        *credit.BookingCreditGate
	settlements *credit.SettlementProcessor
	book        *credit.AccountBook
	directory   *credit.MapDirectory
}

func newEngine(t *testing.T, opts ...credit.LedgerOption) *engine {
	t.Helper()
	store := memory.New()
	ledger := credit.NewLedger(store, opts...)
	directory := credit.NewMapDirectory()
	directory.AddOwner("owner-1", "+9607771234")
	directory.AddOwner("owner-2", "")
	return &engine{
		store:       store,
		ledger:      ledger,
		workflow:    credit.NewConnectionWorkflow(store, directory),
		gate:        credit.NewBookingCreditGate(store, ledger),
		settlements: credit.NewSettlementProcessor(store, ledger),
		book:        credit.NewAccountBook(store),
		directory:   directory,
	}
}

func mvr(value string) credit.Amount {
	return credit.NewAmount(value, credit.CurrencyMVR)
}

// approvedLink walks a request through approval: the standard starting
// point for ledger and gate tests.
func approvedLink(t *testing.T, e *engine, limit string) credit.CreditLink {
	t.Helper()
	ctx := context.Background()

	link, err := e.workflow.CreateRequest(ctx, credit.ConnectionRequest{
		AgentID:        "agent-1",
		Owner:          "owner-1",
		RequestedLimit: mvr(limit),
		TermsDays:      14,
		Methods:        []credit.PaymentMethod{credit.MethodTransfer},
	})
	require.NoError(t, err)

	link, err = e.workflow.RespondToRequest(ctx, link.ID, credit.DecisionApprove, nil)
	require.NoError(t, err)
	require.Equal(t, credit.LinkApproved, link.Status)
	require.True(t, link.Active)
	return link
}
