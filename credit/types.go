/*
Package credit implements the agent–owner credit ledger and settlement
engine.

PURPOSE:
  A boat operator (owner) extends a revolving credit line to a booking
  agent. The agent consumes that credit by creating bookings without
  upfront payment; repayments and platform fees are reconciled against
  the same ledger over time.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount:      A monetary value with a currency (fixed-point decimal)
  - CreditLink:  The credit relationship between one owner and one agent
  - LedgerEntry: One immutable posting against a CreditLink
  - Enumerations for link status, entry type/status, channel, methods

DESIGN PRINCIPLES:
  1. Immutability: ledger entries are never edited, only compensated
  2. Precision: decimal.Decimal everywhere money is touched
  3. Closed enums: no string-typed status fields that can hold garbage
  4. Ordering: SequenceNo is the ordering truth, timestamps are
     informational only

SEE ALSO:
  - ledger.go:     Posting algorithm and balance folding
  - workflow.go:   CreditLink lifecycle state machine
  - gate.go:       Booking credit authorization
  - settlement.go: Repayments, fee accruals, reconciliation
*/
package credit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Monetary value with currency
// =============================================================================

// Currency is an ISO-4217 code. The product's home currency is MVR.
type Currency string

const CurrencyMVR Currency = "MVR"

// Amount couples a fixed-point decimal value with its currency.
// Arithmetic between different currencies is never performed; operation
// boundaries reject mismatches with CurrencyMismatchError first.
type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

func NewAmount(value string, currency Currency) Amount {
	return Amount{Value: MustParseDecimal(value), Currency: currency}
}

func NewAmountFromInt(value int64, currency Currency) Amount {
	return Amount{Value: decimal.NewFromInt(value), Currency: currency}
}

func ZeroAmount(currency Currency) Amount {
	return Amount{Value: decimal.Zero, Currency: currency}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value), Currency: a.Currency} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg(), Currency: a.Currency} }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool {
	return a.Currency == b.Currency && a.Value.Equal(b.Value)
}

// SameCurrency reports whether b is denominated in a's currency.
func (a Amount) SameCurrency(b Amount) bool { return a.Currency == b.Currency }

func (a Amount) String() string {
	return fmt.Sprintf("%s %s", a.Value.StringFixed(2), a.Currency)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PrincipalID string
type LinkID string
type EntryID string

// =============================================================================
// CREDIT LINK - The owner/agent credit relationship
// =============================================================================

// LinkStatus is the workflow state of a CreditLink.
//
// REQUESTED is the initial state. APPROVED/REJECTED are set exactly once
// by the owner's response. BLOCKED is terminal for new debits but the
// outstanding balance remains payable.
type LinkStatus string

const (
	LinkRequested LinkStatus = "REQUESTED"
	LinkApproved  LinkStatus = "APPROVED"
	LinkRejected  LinkStatus = "REJECTED"
	LinkBlocked   LinkStatus = "BLOCKED"
)

// PaymentMethod enumerates how an agent may settle debt with the owner.
type PaymentMethod string

const (
	MethodTransfer PaymentMethod = "TRANSFER"
	MethodCash     PaymentMethod = "CASH"
	MethodGateway  PaymentMethod = "GATEWAY"
)

// Terms are the owner-controlled parameters of a credit line. The owner
// may adjust them when approving a request, and later while APPROVED.
// Changes never rewrite posted balances; they only affect future
// authorization checks.
type Terms struct {
	CreditLimit      Amount
	PaymentTermsDays int
	AllowedMethods   []PaymentMethod
}

// CreditLink is the credit relationship between one owner and one agent.
//
// INVARIANTS:
//   - At most one non-REJECTED link per (OwnerID, AgentID) pair.
//   - Status == BLOCKED implies Active == false.
//   - Status == APPROVED with Active == false is a temporary suspension:
//     new debits are refused, the existing balance remains payable.
//   - Links are never physically deleted.
type CreditLink struct {
	ID               LinkID
	OwnerID          PrincipalID
	AgentID          PrincipalID
	CreditLimit      Amount
	Currency         Currency
	PaymentTermsDays int
	AllowedMethods   []PaymentMethod
	Status           LinkStatus
	Active           bool
	Message          string // agent's note on the connection request
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AcceptsDebits reports whether new BOOKING debits may be posted.
// Settlements are always postable so outstanding debt can be repaid.
func (l CreditLink) AcceptsDebits() bool {
	return l.Status == LinkApproved && l.Active
}

// Terms returns the link's current terms.
func (l CreditLink) Terms() Terms {
	return Terms{
		CreditLimit:      l.CreditLimit,
		PaymentTermsDays: l.PaymentTermsDays,
		AllowedMethods:   l.AllowedMethods,
	}
}

// =============================================================================
// LEDGER ENTRY - One immutable posting against a link
// =============================================================================

// EntryType is the business reason for a posting.
type EntryType string

const (
	EntryBooking    EntryType = "BOOKING"    // on-credit booking, debit
	EntryPayment    EntryType = "PAYMENT"    // direct payment, credit
	EntryAppFee     EntryType = "APP_FEE"    // platform commission accrual, debit
	EntrySettlement EntryType = "SETTLEMENT" // agent repayment / fee payment, credit
	EntryAdjustment EntryType = "ADJUSTMENT" // manual or compensating correction
)

// EntryStatus is the reconciliation state of a posting. CONFIRMED entries
// are permanent. A PENDING entry transitions to CONFIRMED or DISPUTED
// exactly once. DISPUTED entries stay in history but never reduce the
// outstanding owed amount.
type EntryStatus string

const (
	EntryPending   EntryStatus = "PENDING"
	EntryConfirmed EntryStatus = "CONFIRMED"
	EntryDisputed  EntryStatus = "DISPUTED"
)

// Channel classifies who initiated the booking behind an entry. Used for
// reporting partition only; it never affects balance computation.
type Channel string

const (
	ChannelAgent  Channel = "AGENT"
	ChannelPublic Channel = "PUBLIC"
	ChannelOwner  Channel = "OWNER"
)

// CounterpartyAppOwner labels postings between a boat owner and the
// platform (app-fee accruals and their settlements).
const CounterpartyAppOwner = "app-owner"

// LedgerEntry is one immutable posting against a CreditLink.
//
// INVARIANTS:
//   - Exactly one of Debit/Credit is non-zero.
//   - SequenceNo is monotonic per link and assigned at commit time;
//     it is the ordering key, not wall-clock time.
//   - ResultingBalance = previous ResultingBalance + Debit - Credit.
//   - Entries are insert-only. Corrections are new ADJUSTMENT entries.
type LedgerEntry struct {
	ID               EntryID
	LinkID           LinkID
	SequenceNo       int64
	Type             EntryType
	Debit            Amount
	Credit           Amount
	ResultingBalance Amount
	Counterparty     string
	Channel          Channel
	BookingRef       string
	ProofRef         string
	ReversalOf       EntryID // set on compensating adjustments
	Status           EntryStatus
	CreatedAt        time.Time
}

// Delta is the signed balance effect of the entry (debit minus credit).
func (e LedgerEntry) Delta() Amount {
	return e.Debit.Sub(e.Credit)
}

// IsDebit reports whether the entry carries the debit side.
func (e LedgerEntry) IsDebit() bool { return !e.Debit.IsZero() }
