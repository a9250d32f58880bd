/*
workflow.go - CreditLink lifecycle state machine

PURPOSE:
  Governs how a credit relationship is requested by an agent, answered
  by the owner, re-termed, suspended and blocked.

STATES AND TRANSITIONS:

  REQUESTED --(owner APPROVE, final terms)--> APPROVED
  REQUESTED --(owner REJECT)----------------> REJECTED   (terminal)
  APPROVED  --(owner BLOCK)-----------------> BLOCKED    (terminal)
  APPROVED  <--> owner toggles Active        (status unchanged)

  The owner responds to a request exactly once; a second response
  attempt fails with StateError. A REJECTED link does not block the
  agent from requesting again.

SEE ALSO:
  - store.go: UpdateLink's status guard closes double-submit races
*/
package credit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Decision is the owner's answer to a connection request.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// ConnectionRequest is the agent's ask for a credit line. Owner may be
// addressed by id or phone number.
type ConnectionRequest struct {
	AgentID        PrincipalID
	Owner          string // id or phone, resolved via Directory
	RequestedLimit Amount
	TermsDays      int
	Methods        []PaymentMethod
	Message        string
}

// ConnectionWorkflow mutates CreditLinks through their legal lifecycle.
type ConnectionWorkflow struct {
	store     LinkStore
	directory Directory
	now       func() time.Time
}

func NewConnectionWorkflow(store LinkStore, directory Directory) *ConnectionWorkflow {
	return &ConnectionWorkflow{store: store, directory: directory, now: time.Now}
}

// CreateRequest opens a REQUESTED link from agent to owner.
// Fails with ValidationError on a non-positive limit or unknown owner,
// StateError if a non-REJECTED link already exists for the pair.
func (w *ConnectionWorkflow) CreateRequest(ctx context.Context, req ConnectionRequest) (CreditLink, error) {
	if !req.RequestedLimit.IsPositive() {
		return CreditLink{}, &ValidationError{Field: "requested_limit", Reason: "must be positive"}
	}
	if req.TermsDays < 0 {
		return CreditLink{}, &ValidationError{Field: "payment_terms_days", Reason: "must not be negative"}
	}
	if req.AgentID == "" {
		return CreditLink{}, &ValidationError{Field: "agent_id", Reason: "required"}
	}

	ownerID, err := w.directory.ResolveOwner(ctx, req.Owner)
	if err != nil {
		return CreditLink{}, &ValidationError{Field: "owner", Reason: "does not resolve"}
	}

	if existing, ok, err := w.store.OpenLinkByPair(ctx, ownerID, req.AgentID); err != nil {
		return CreditLink{}, err
	} else if ok {
		return CreditLink{}, &StateError{Subject: "link", ID: string(existing.ID), Current: string(existing.Status), Attempt: "create another request for the same pair"}
	}

	now := w.now().UTC()
	link := CreditLink{
		ID:               LinkID(uuid.NewString()),
		OwnerID:          ownerID,
		AgentID:          req.AgentID,
		CreditLimit:      req.RequestedLimit,
		Currency:         req.RequestedLimit.Currency,
		PaymentTermsDays: req.TermsDays,
		AllowedMethods:   req.Methods,
		Status:           LinkRequested,
		Active:           false,
		Message:          req.Message,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := w.store.CreateLink(ctx, link); err != nil {
		return CreditLink{}, err
	}
	return link, nil
}

// RespondToRequest records the owner's one-time decision. Not
// idempotent-retryable: a second response fails with StateError and has
// no side effect. On APPROVE the owner may override the requested terms
// via finalTerms (nil keeps them as requested).
func (w *ConnectionWorkflow) RespondToRequest(ctx context.Context, linkID LinkID, decision Decision, finalTerms *Terms) (CreditLink, error) {
	link, err := w.store.Link(ctx, linkID)
	if err != nil {
		return CreditLink{}, err
	}
	if link.Status != LinkRequested {
		return CreditLink{}, &StateError{Subject: "link", ID: string(linkID), Current: string(link.Status), Attempt: "respond"}
	}

	switch decision {
	case DecisionApprove:
		if finalTerms != nil {
			if err := w.applyTerms(&link, *finalTerms); err != nil {
				return CreditLink{}, err
			}
		}
		link.Status = LinkApproved
		link.Active = true
	case DecisionReject:
		link.Status = LinkRejected
		link.Active = false
	default:
		return CreditLink{}, &ValidationError{Field: "decision", Reason: "must be APPROVE or REJECT"}
	}

	link.UpdatedAt = w.now().UTC()
	if err := w.store.UpdateLink(ctx, link, LinkRequested); err != nil {
		return CreditLink{}, err
	}
	return link, nil
}

// UpdateTerms changes the limit/terms of an APPROVED link. Posted
// balances are untouched; only future authorization checks see the new
// limit.
func (w *ConnectionWorkflow) UpdateTerms(ctx context.Context, linkID LinkID, terms Terms) (CreditLink, error) {
	link, err := w.store.Link(ctx, linkID)
	if err != nil {
		return CreditLink{}, err
	}
	if link.Status != LinkApproved {
		return CreditLink{}, &StateError{Subject: "link", ID: string(linkID), Current: string(link.Status), Attempt: "update terms"}
	}
	if err := w.applyTerms(&link, terms); err != nil {
		return CreditLink{}, err
	}
	link.UpdatedAt = w.now().UTC()
	if err := w.store.UpdateLink(ctx, link, LinkApproved); err != nil {
		return CreditLink{}, err
	}
	return link, nil
}

// SetBlocked ends the credit line. Terminal for new debits; settlements
// remain postable so the outstanding debt can still be repaid.
func (w *ConnectionWorkflow) SetBlocked(ctx context.Context, linkID LinkID) (CreditLink, error) {
	link, err := w.store.Link(ctx, linkID)
	if err != nil {
		return CreditLink{}, err
	}
	if link.Status != LinkApproved {
		return CreditLink{}, &StateError{Subject: "link", ID: string(linkID), Current: string(link.Status), Attempt: "block"}
	}
	link.Status = LinkBlocked
	link.Active = false
	link.UpdatedAt = w.now().UTC()
	if err := w.store.UpdateLink(ctx, link, LinkApproved); err != nil {
		return CreditLink{}, err
	}
	return link, nil
}

// SetActive toggles the reversible suspension flag on an APPROVED link.
// Independent of status: suspending does not block repayment, and
// reactivating needs no new approval.
func (w *ConnectionWorkflow) SetActive(ctx context.Context, linkID LinkID, active bool) (CreditLink, error) {
	link, err := w.store.Link(ctx, linkID)
	if err != nil {
		return CreditLink{}, err
	}
	if link.Status != LinkApproved {
		return CreditLink{}, &StateError{Subject: "link", ID: string(linkID), Current: string(link.Status), Attempt: "toggle active"}
	}
	link.Active = active
	link.UpdatedAt = w.now().UTC()
	if err := w.store.UpdateLink(ctx, link, LinkApproved); err != nil {
		return CreditLink{}, err
	}
	return link, nil
}

func (w *ConnectionWorkflow) applyTerms(link *CreditLink, terms Terms) error {
	if !terms.CreditLimit.IsPositive() {
		return &ValidationError{Field: "credit_limit", Reason: "must be positive"}
	}
	if terms.CreditLimit.Currency != link.Currency {
		return &CurrencyMismatchError{LinkID: link.ID, Link: link.Currency, Given: terms.CreditLimit.Currency}
	}
	if terms.PaymentTermsDays < 0 {
		return &ValidationError{Field: "payment_terms_days", Reason: "must not be negative"}
	}
	link.CreditLimit = terms.CreditLimit
	link.PaymentTermsDays = terms.PaymentTermsDays
	if terms.AllowedMethods != nil {
		link.AllowedMethods = terms.AllowedMethods
	}
	return nil
}

// =============================================================================
// DIRECTORY - map-backed implementation for tests and dev
// =============================================================================

// MapDirectory resolves owners from a fixed set, keyed by id and phone.
type MapDirectory struct {
	byID    map[PrincipalID]struct{}
	byPhone map[string]PrincipalID
}

func NewMapDirectory() *MapDirectory {
	return &MapDirectory{
		byID:    make(map[PrincipalID]struct{}),
		byPhone: make(map[string]PrincipalID),
	}
}

func (d *MapDirectory) AddOwner(id PrincipalID, phone string) {
	d.byID[id] = struct{}{}
	if phone != "" {
		d.byPhone[phone] = id
	}
}

func (d *MapDirectory) ResolveOwner(_ context.Context, idOrPhone string) (PrincipalID, error) {
	if id, ok := d.byPhone[idOrPhone]; ok {
		return id, nil
	}
	if _, ok := d.byID[PrincipalID(idOrPhone)]; ok {
		return PrincipalID(idOrPhone), nil
	}
	return "", ErrNotFound
}
