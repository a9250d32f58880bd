/*
settlement.go - Repayments, platform fee accruals, reconciliation

PURPOSE:
  Posts the credit-side life of a link: agent repayments and platform
  fee accruals/settlements, and the reconciliation step that moves
  PENDING entries to CONFIRMED or DISPUTED.

PENDING vs CONFIRMED:
  A settlement references an externally stored proof-of-payment
  document. It posts PENDING and counts toward the outstanding balance
  until the owner reconciles it. Acceptance confirms it permanently;
  a mismatch marks it DISPUTED, which keeps the entry in history but
  removes it from the outstanding balance - a disputed repayment never
  reduces what the agent owes.

BLOCKED LINKS:
  Settlements stay postable on BLOCKED links. Blocking ends new debt,
  not the obligation to repay existing debt.
*/
package credit

import (
	"context"

	"github.com/Effimetic/Jaaga-sub003/metrics"
)

// ReconcileOutcome is the owner's verdict on a PENDING entry.
type ReconcileOutcome string

const (
	OutcomeAccept ReconcileOutcome = "ACCEPT"
	OutcomeReject ReconcileOutcome = "REJECT"
)

// SettlementProcessor posts payment and fee entries against the ledger.
type SettlementProcessor struct {
	store  Store
	ledger *Ledger
}

func NewSettlementProcessor(store Store, ledger *Ledger) *SettlementProcessor {
	return &SettlementProcessor{store: store, ledger: ledger}
}

// AccrueAppFee posts a PENDING APP_FEE debit. The percentage-of-booking
// computation lives in the external booking subsystem; the engine only
// records the accrued amount. Allowed on APPROVED and BLOCKED links
// (fees follow bookings that already happened), refused before approval.
func (sp *SettlementProcessor) AccrueAppFee(ctx context.Context, linkID LinkID, amount Amount) (LedgerEntry, error) {
	if _, err := sp.requireEstablished(ctx, linkID, "accrue app fee"); err != nil {
		return LedgerEntry{}, err
	}
	return sp.ledger.Post(ctx, linkID, Posting{
		Type:         EntryAppFee,
		Side:         DebitSide,
		Amount:       amount,
		Status:       EntryPending,
		Counterparty: CounterpartyAppOwner,
		Channel:      ChannelAgent,
	})
}

// InitiateSettlement posts a PENDING SETTLEMENT credit: the agent's
// repayment of outstanding debt, referencing an externally stored
// proof-of-payment document.
func (sp *SettlementProcessor) InitiateSettlement(ctx context.Context, linkID LinkID, amount Amount, proofRef string) (LedgerEntry, error) {
	link, err := sp.requireEstablished(ctx, linkID, "initiate settlement")
	if err != nil {
		return LedgerEntry{}, err
	}
	return sp.ledger.Post(ctx, linkID, Posting{
		Type:         EntrySettlement,
		Side:         CreditSide,
		Amount:       amount,
		Status:       EntryPending,
		Counterparty: string(link.AgentID),
		Channel:      ChannelAgent,
		ProofRef:     proofRef,
	})
}

// SettleAppFees posts a PENDING SETTLEMENT credit earmarked to the
// platform, paying down accrued APP_FEE debt. Distinguished from agent
// repayments by its counterparty so reporting can split the two.
func (sp *SettlementProcessor) SettleAppFees(ctx context.Context, linkID LinkID, amount Amount, proofRef string) (LedgerEntry, error) {
	if _, err := sp.requireEstablished(ctx, linkID, "settle app fees"); err != nil {
		return LedgerEntry{}, err
	}
	return sp.ledger.Post(ctx, linkID, Posting{
		Type:         EntrySettlement,
		Side:         CreditSide,
		Amount:       amount,
		Status:       EntryPending,
		Counterparty: CounterpartyAppOwner,
		Channel:      ChannelAgent,
		ProofRef:     proofRef,
	})
}

// Reconcile moves a PENDING entry to CONFIRMED (accept) or DISPUTED
// (reject), exactly once; a non-PENDING entry fails with StateError.
// A rejection applies the DISPUTED transition and reports it as
// SettlementMismatchError so callers treat the mismatch as actionable.
func (sp *SettlementProcessor) Reconcile(ctx context.Context, entryID EntryID, outcome ReconcileOutcome) (LedgerEntry, error) {
	var to EntryStatus
	switch outcome {
	case OutcomeAccept:
		to = EntryConfirmed
	case OutcomeReject:
		to = EntryDisputed
	default:
		return LedgerEntry{}, &ValidationError{Field: "outcome", Reason: "must be ACCEPT or REJECT"}
	}

	entry, err := sp.store.SetEntryStatus(ctx, entryID, EntryPending, to)
	if err != nil {
		return LedgerEntry{}, err
	}
	metrics.Reconciliations.WithLabelValues(string(to)).Inc()

	if to == EntryDisputed {
		amount := entry.Credit
		if entry.IsDebit() {
			amount = entry.Debit
		}
		return entry, &SettlementMismatchError{EntryID: entryID, LinkID: entry.LinkID, Amount: amount}
	}
	return entry, nil
}

// requireEstablished loads the link and refuses settlement-side posts
// before the relationship exists (REQUESTED/REJECTED).
func (sp *SettlementProcessor) requireEstablished(ctx context.Context, linkID LinkID, attempt string) (CreditLink, error) {
	link, err := sp.store.Link(ctx, linkID)
	if err != nil {
		return CreditLink{}, err
	}
	if link.Status != LinkApproved && link.Status != LinkBlocked {
		return CreditLink{}, &StateError{Subject: "link", ID: string(linkID), Current: string(link.Status), Attempt: attempt}
	}
	return link, nil
}
