/*
handlers.go - HTTP handlers for the credit engine

PURPOSE:
  Exposes the engine's operation-level calls over REST. Handlers parse
  and validate the wire shapes, delegate to the domain services, and
  map error kinds to HTTP status codes. No business logic lives here.

ENDPOINTS:
  Connections:
    POST /api/connections/requests                agent requests a credit line
    POST /api/connections/requests/{id}/respond   owner approves/rejects
    PUT  /api/connections/{id}                    owner updates terms/active
    POST /api/connections/{id}/block              owner blocks the line
    GET  /api/connections?owner_id=               list an owner's links
    GET  /api/connections/{id}/balance            outstanding + available
    GET  /api/connections/{id}/entries            ledger entries for a link
    GET  /api/connections/{id}/statement          period statement

  Credit and settlement:
    POST /api/connections/{id}/authorize          booking credit authorization
    POST /api/connections/{id}/fees               platform fee accrual
    POST /api/connections/{id}/settlements        repayment / fee settlement
    POST /api/entries/{id}/reverse                compensate a booking debit
    POST /api/entries/{id}/reconcile              confirm or dispute PENDING

  Account book:
    GET  /api/accountbook/summary?owner_id=&types=&period=
    GET  /api/accountbook/entries?owner_id=&types=&period=

ERROR MAPPING:
  400 validation / currency mismatch      404 unknown link or entry
  409 illegal state / settlement mismatch 422 insufficient credit
  503 concurrency conflict (retryable)    500 everything else
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Effimetic/Jaaga-sub003/credit"
)

// Handler holds the domain services the routes delegate to.
type Handler struct {
	Workflow    *credit.ConnectionWorkflow
	Gate        *credit.BookingCreditGate
	Settlements *credit.SettlementProcessor
	Ledger      *credit.Ledger
	Book        *credit.AccountBook
	Links       credit.LinkStore
}

func NewHandler(
	workflow *credit.ConnectionWorkflow,
	gate *credit.BookingCreditGate,
	settlements *credit.SettlementProcessor,
	ledger *credit.Ledger,
	book *credit.AccountBook,
	links credit.LinkStore,
) *Handler {
	return &Handler{
		Workflow:    workflow,
		Gate:        gate,
		Settlements: settlements,
		Ledger:      ledger,
		Book:        book,
		Links:       links,
	}
}

// =============================================================================
// CONNECTION WORKFLOW
// =============================================================================

func (h *Handler) CreateConnectionRequest(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if !decode(w, r, &req) {
		return
	}
	limit, err := parseAmount(req.RequestedLimit, req.Currency)
	if err != nil {
		writeError(w, err)
		return
	}
	link, err := h.Workflow.CreateRequest(r.Context(), credit.ConnectionRequest{
		AgentID:        credit.PrincipalID(req.AgentID),
		Owner:          req.Owner,
		RequestedLimit: limit,
		TermsDays:      req.TermsDays,
		Methods:        toMethods(req.Methods),
		Message:        req.Message,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLinkResponse(link))
}

func (h *Handler) RespondToConnectionRequest(w http.ResponseWriter, r *http.Request) {
	linkID := credit.LinkID(chi.URLParam(r, "id"))
	var req respondConnectionRequest
	if !decode(w, r, &req) {
		return
	}

	var finalTerms *credit.Terms
	if req.FinalLimit != "" {
		link, err := h.Links.Link(r.Context(), linkID)
		if err != nil {
			writeError(w, err)
			return
		}
		limit, err := parseAmount(req.FinalLimit, string(link.Currency))
		if err != nil {
			writeError(w, err)
			return
		}
		terms := credit.Terms{
			CreditLimit:      limit,
			PaymentTermsDays: link.PaymentTermsDays,
			AllowedMethods:   toMethods(req.Methods),
		}
		if req.TermsDays != nil {
			terms.PaymentTermsDays = *req.TermsDays
		}
		finalTerms = &terms
	}

	link, err := h.Workflow.RespondToRequest(r.Context(), linkID, credit.Decision(req.Decision), finalTerms)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLinkResponse(link))
}

func (h *Handler) UpdateConnection(w http.ResponseWriter, r *http.Request) {
	linkID := credit.LinkID(chi.URLParam(r, "id"))
	var req updateConnectionRequest
	if !decode(w, r, &req) {
		return
	}

	link, err := h.Links.Link(r.Context(), linkID)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.NewLimit != "" {
		limit, err := parseAmount(req.NewLimit, string(link.Currency))
		if err != nil {
			writeError(w, err)
			return
		}
		terms := credit.Terms{
			CreditLimit:      limit,
			PaymentTermsDays: link.PaymentTermsDays,
			AllowedMethods:   toMethods(req.Methods),
		}
		if req.TermsDays != nil {
			terms.PaymentTermsDays = *req.TermsDays
		}
		if link, err = h.Workflow.UpdateTerms(r.Context(), linkID, terms); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Active != nil {
		if link, err = h.Workflow.SetActive(r.Context(), linkID, *req.Active); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toLinkResponse(link))
}

func (h *Handler) BlockConnection(w http.ResponseWriter, r *http.Request) {
	linkID := credit.LinkID(chi.URLParam(r, "id"))
	link, err := h.Workflow.SetBlocked(r.Context(), linkID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLinkResponse(link))
}

func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner_id")
	if owner == "" {
		writeError(w, &credit.ValidationError{Field: "owner_id", Reason: "required"})
		return
	}
	links, err := h.Links.LinksByOwner(r.Context(), credit.PrincipalID(owner))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]linkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, toLinkResponse(l))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// LEDGER READS
// =============================================================================

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	linkID := credit.LinkID(chi.URLParam(r, "id"))
	link, err := h.Links.Link(r.Context(), linkID)
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := h.Ledger.CurrentBalance(r.Context(), linkID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		LinkID:    string(linkID),
		Balance:   balance.Value.StringFixed(2),
		Available: link.CreditLimit.Sub(balance).Value.StringFixed(2),
		Currency:  string(link.Currency),
	})
}

func (h *Handler) ListLinkEntries(w http.ResponseWriter, r *http.Request) {
	linkID := credit.LinkID(chi.URLParam(r, "id"))
	entries, err := h.Ledger.Entries(r.Context(), linkID, credit.EntryFilter{
		Types: parseTypes(r.URL.Query().Get("types")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeEntries(w, entries)
}

func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	linkID := credit.LinkID(chi.URLParam(r, "id"))
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, err)
		return
	}
	stmt, err := h.Book.StatementFor(r.Context(), linkID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementResponse(stmt))
}

// =============================================================================
// CREDIT AUTHORIZATION AND SETTLEMENT
// =============================================================================

func (h *Handler) AuthorizeBookingCredit(w http.ResponseWriter, r *http.Request) {
	linkID := credit.LinkID(chi.URLParam(r, "id"))
	var req authorizeRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount, req.Currency)
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := h.Gate.Authorize(r.Context(), linkID, amount, req.BookingRef)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) AccrueAppFee(w http.ResponseWriter, r *http.Request) {
	linkID := credit.LinkID(chi.URLParam(r, "id"))
	var req accrueFeeRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount, req.Currency)
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := h.Settlements.AccrueAppFee(r.Context(), linkID, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) InitiateSettlement(w http.ResponseWriter, r *http.Request) {
	linkID := credit.LinkID(chi.URLParam(r, "id"))
	var req settlementRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount, req.Currency)
	if err != nil {
		writeError(w, err)
		return
	}

	var entry credit.LedgerEntry
	if req.AppFees {
		entry, err = h.Settlements.SettleAppFees(r.Context(), linkID, amount, req.ProofRef)
	} else {
		entry, err = h.Settlements.InitiateSettlement(r.Context(), linkID, amount, req.ProofRef)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) ReverseEntry(w http.ResponseWriter, r *http.Request) {
	entryID := credit.EntryID(chi.URLParam(r, "id"))
	entry, err := h.Gate.Reverse(r.Context(), entryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) ReconcileEntry(w http.ResponseWriter, r *http.Request) {
	entryID := credit.EntryID(chi.URLParam(r, "id"))
	var req reconcileRequest
	if !decode(w, r, &req) {
		return
	}
	entry, err := h.Settlements.Reconcile(r.Context(), entryID, credit.ReconcileOutcome(req.Outcome))
	if err != nil && !errors.Is(err, credit.ErrSettlementMismatch) {
		writeError(w, err)
		return
	}
	// A disputed outcome is an applied transition; report the entry with
	// its DISPUTED status rather than failing the request.
	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

// =============================================================================
// ACCOUNT BOOK
// =============================================================================

func (h *Handler) GetAccountSummary(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner_id")
	if owner == "" {
		writeError(w, &credit.ValidationError{Field: "owner_id", Reason: "required"})
		return
	}
	summary, err := h.Book.Summarize(r.Context(),
		credit.PrincipalID(owner),
		parseTypes(r.URL.Query().Get("types")),
		parsePeriod(r.URL.Query().Get("period")),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}

func (h *Handler) ListAccountEntries(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner_id")
	if owner == "" {
		writeError(w, &credit.ValidationError{Field: "owner_id", Reason: "required"})
		return
	}
	entries, err := h.Book.ListEntries(r.Context(),
		credit.PrincipalID(owner),
		parseTypes(r.URL.Query().Get("types")),
		parsePeriod(r.URL.Query().Get("period")),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeEntries(w, entries)
}

// =============================================================================
// HELPERS
// =============================================================================

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, &credit.ValidationError{Field: "body", Reason: "malformed JSON"})
		return false
	}
	return true
}

func parseAmount(value, currency string) (credit.Amount, error) {
	if currency == "" {
		currency = string(credit.CurrencyMVR)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return credit.Amount{}, &credit.ValidationError{Field: "amount", Reason: "not a decimal: " + value}
	}
	return credit.Amount{Value: d, Currency: credit.Currency(currency)}, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, &credit.ValidationError{Field: "date", Reason: "want YYYY-MM-DD, got " + s}
	}
	return t, nil
}

func parseTypes(s string) []credit.EntryType {
	if s == "" {
		return nil
	}
	var out []credit.EntryType
	for _, t := range strings.Split(s, ",") {
		out = append(out, credit.EntryType(strings.ToUpper(strings.TrimSpace(t))))
	}
	return out
}

func parsePeriod(s string) credit.Period {
	switch s {
	case "30d":
		return credit.PeriodLast30
	case "90d":
		return credit.PeriodLast90
	case "365d":
		return credit.PeriodLast365
	default:
		return credit.PeriodAll
	}
}

func writeEntries(w http.ResponseWriter, entries []credit.LedgerEntry) {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, credit.ErrValidation):
		status, kind = http.StatusBadRequest, "validation"
	case errors.Is(err, credit.ErrCurrencyMismatch):
		status, kind = http.StatusBadRequest, "currency_mismatch"
	case errors.Is(err, credit.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, credit.ErrState):
		status, kind = http.StatusConflict, "state"
	case errors.Is(err, credit.ErrSettlementMismatch):
		status, kind = http.StatusConflict, "settlement_mismatch"
	case errors.Is(err, credit.ErrInsufficientCredit):
		status, kind = http.StatusUnprocessableEntity, "insufficient_credit"
	case errors.Is(err, credit.ErrConcurrencyConflict):
		status, kind = http.StatusServiceUnavailable, "concurrency_conflict"
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}
