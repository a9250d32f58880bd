// dto.go - Wire shapes for the credit engine API.
//
// Monetary values travel as strings to keep fixed-point precision
// across the wire; they are parsed into decimals at the boundary and
// never touched as floats.
package api

import (
	"time"

	"github.com/Effimetic/Jaaga-sub003/credit"
)

// =============================================================================
// REQUESTS
// =============================================================================

type createConnectionRequest struct {
	AgentID        string   `json:"agent_id"`
	Owner          string   `json:"owner"` // owner id or phone number
	RequestedLimit string   `json:"requested_limit"`
	Currency       string   `json:"currency"`
	TermsDays      int      `json:"payment_terms_days"`
	Methods        []string `json:"allowed_payment_methods,omitempty"`
	Message        string   `json:"message,omitempty"`
}

type respondConnectionRequest struct {
	Decision   string   `json:"decision"` // APPROVE | REJECT
	FinalLimit string   `json:"final_limit,omitempty"`
	TermsDays  *int     `json:"payment_terms_days,omitempty"`
	Methods    []string `json:"allowed_payment_methods,omitempty"`
}

type updateConnectionRequest struct {
	NewLimit  string   `json:"new_limit"`
	TermsDays *int     `json:"payment_terms_days,omitempty"`
	Methods   []string `json:"allowed_payment_methods,omitempty"`
	Active    *bool    `json:"active,omitempty"`
}

type authorizeRequest struct {
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	BookingRef string `json:"booking_ref"`
}

type accrueFeeRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type settlementRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	ProofRef string `json:"proof_ref"`
	// AppFees earmarks the settlement to the platform instead of the
	// agent's booking debt.
	AppFees bool `json:"app_fees,omitempty"`
}

type reconcileRequest struct {
	Outcome string `json:"outcome"` // ACCEPT | REJECT
}

// =============================================================================
// RESPONSES
// =============================================================================

type linkResponse struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	AgentID          string    `json:"agent_id"`
	CreditLimit      string    `json:"credit_limit"`
	Currency         string    `json:"currency"`
	PaymentTermsDays int       `json:"payment_terms_days"`
	AllowedMethods   []string  `json:"allowed_payment_methods"`
	Status           string    `json:"status"`
	Active           bool      `json:"active"`
	Message          string    `json:"message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type entryResponse struct {
	ID               string    `json:"id"`
	LinkID           string    `json:"link_id"`
	SequenceNo       int64     `json:"sequence_no"`
	Type             string    `json:"type"`
	Debit            string    `json:"debit"`
	Credit           string    `json:"credit"`
	ResultingBalance string    `json:"resulting_balance"`
	Currency         string    `json:"currency"`
	Counterparty     string    `json:"counterparty,omitempty"`
	Channel          string    `json:"channel"`
	BookingRef       string    `json:"booking_ref,omitempty"`
	ProofRef         string    `json:"proof_ref,omitempty"`
	ReversalOf       string    `json:"reversal_of,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

type balanceResponse struct {
	LinkID    string `json:"link_id"`
	Balance   string `json:"balance"`
	Available string `json:"available"`
	Currency  string `json:"currency"`
}

type summaryResponse struct {
	Currency         string `json:"currency"`
	TotalRevenue     string `json:"total_revenue"`
	AgentReceivables string `json:"agent_receivables"`
	PublicSales      string `json:"public_sales"`
	AppFeesOwed      string `json:"app_fees_owed"`
	AppFeesPaid      string `json:"app_fees_paid"`
}

type statementResponse struct {
	LinkID         string    `json:"link_id"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	OpeningBalance string    `json:"opening_balance"`
	Debits         string    `json:"debits"`
	Credits        string    `json:"credits"`
	ClosingBalance string    `json:"closing_balance"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toLinkResponse(l credit.CreditLink) linkResponse {
	methods := make([]string, 0, len(l.AllowedMethods))
	for _, m := range l.AllowedMethods {
		methods = append(methods, string(m))
	}
	return linkResponse{
		ID:               string(l.ID),
		OwnerID:          string(l.OwnerID),
		AgentID:          string(l.AgentID),
		CreditLimit:      l.CreditLimit.Value.StringFixed(2),
		Currency:         string(l.Currency),
		PaymentTermsDays: l.PaymentTermsDays,
		AllowedMethods:   methods,
		Status:           string(l.Status),
		Active:           l.Active,
		Message:          l.Message,
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}

func toEntryResponse(e credit.LedgerEntry) entryResponse {
	return entryResponse{
		ID:               string(e.ID),
		LinkID:           string(e.LinkID),
		SequenceNo:       e.SequenceNo,
		Type:             string(e.Type),
		Debit:            e.Debit.Value.StringFixed(2),
		Credit:           e.Credit.Value.StringFixed(2),
		ResultingBalance: e.ResultingBalance.Value.StringFixed(2),
		Currency:         string(e.Debit.Currency),
		Counterparty:     e.Counterparty,
		Channel:          string(e.Channel),
		BookingRef:       e.BookingRef,
		ProofRef:         e.ProofRef,
		ReversalOf:       string(e.ReversalOf),
		Status:           string(e.Status),
		CreatedAt:        e.CreatedAt,
	}
}

func toSummaryResponse(s credit.Summary) summaryResponse {
	return summaryResponse{
		Currency:         string(s.Currency),
		TotalRevenue:     s.TotalRevenue.Value.StringFixed(2),
		AgentReceivables: s.AgentReceivables.Value.StringFixed(2),
		PublicSales:      s.PublicSales.Value.StringFixed(2),
		AppFeesOwed:      s.AppFeesOwed.Value.StringFixed(2),
		AppFeesPaid:      s.AppFeesPaid.Value.StringFixed(2),
	}
}

func toStatementResponse(s credit.Statement) statementResponse {
	return statementResponse{
		LinkID:         string(s.LinkID),
		From:           s.From,
		To:             s.To,
		OpeningBalance: s.OpeningBalance.Value.StringFixed(2),
		Debits:         s.Debits.Value.StringFixed(2),
		Credits:        s.Credits.Value.StringFixed(2),
		ClosingBalance: s.ClosingBalance.Value.StringFixed(2),
	}
}

func toMethods(in []string) []credit.PaymentMethod {
	if in == nil {
		return nil
	}
	out := make([]credit.PaymentMethod, 0, len(in))
	for _, m := range in {
		out = append(out, credit.PaymentMethod(m))
	}
	return out
}
