/*
Package memory provides an in-memory credit.Store for tests and dev.

Append-only semantics match the production store: entries are only ever
appended, and the single legal mutation is the guarded status
transition. All guards run under one mutex, so the compare-and-set
contracts of UpdateLink and SetEntryStatus hold.
*/
package memory

import (
	"context"
	"sync"

	"github.com/Effimetic/Jaaga-sub003/credit"
)

type entryRef struct {
	link credit.LinkID
	idx  int
}

type Store struct {
	mu      sync.RWMutex
	links   map[credit.LinkID]credit.CreditLink
	entries map[credit.LinkID][]credit.LedgerEntry
	byEntry map[credit.EntryID]entryRef
}

func New() *Store {
	return &Store{
		links:   make(map[credit.LinkID]credit.CreditLink),
		entries: make(map[credit.LinkID][]credit.LedgerEntry),
		byEntry: make(map[credit.EntryID]entryRef),
	}
}

// =============================================================================
// LINK STORE
// =============================================================================

func (s *Store) CreateLink(_ context.Context, link credit.CreditLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.links {
		if existing.OwnerID == link.OwnerID && existing.AgentID == link.AgentID &&
			existing.Status != credit.LinkRejected {
			return &credit.StateError{
				Subject: "link",
				ID:      string(existing.ID),
				Current: string(existing.Status),
				Attempt: "create duplicate link for pair",
			}
		}
	}
	s.links[link.ID] = cloneLink(link)
	return nil
}

func (s *Store) Link(_ context.Context, id credit.LinkID) (credit.CreditLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[id]
	if !ok {
		return credit.CreditLink{}, credit.ErrNotFound
	}
	return cloneLink(link), nil
}

func (s *Store) OpenLinkByPair(_ context.Context, owner, agent credit.PrincipalID) (credit.CreditLink, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, link := range s.links {
		if link.OwnerID == owner && link.AgentID == agent && link.Status != credit.LinkRejected {
			return cloneLink(link), true, nil
		}
	}
	return credit.CreditLink{}, false, nil
}

func (s *Store) LinksByOwner(_ context.Context, owner credit.PrincipalID) ([]credit.CreditLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []credit.CreditLink
	for _, link := range s.links {
		if link.OwnerID == owner {
			out = append(out, cloneLink(link))
		}
	}
	return out, nil
}

func (s *Store) UpdateLink(_ context.Context, link credit.CreditLink, expectStatus credit.LinkStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.links[link.ID]
	if !ok {
		return credit.ErrNotFound
	}
	if current.Status != expectStatus {
		return &credit.StateError{
			Subject: "link",
			ID:      string(link.ID),
			Current: string(current.Status),
			Attempt: "update with stale status " + string(expectStatus),
		}
	}
	s.links[link.ID] = cloneLink(link)
	return nil
}

// =============================================================================
// ENTRY STORE (append-only)
// =============================================================================

func (s *Store) AppendEntry(_ context.Context, e credit.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[e.LinkID] = append(s.entries[e.LinkID], e)
	s.byEntry[e.ID] = entryRef{link: e.LinkID, idx: len(s.entries[e.LinkID]) - 1}
	return nil
}

func (s *Store) Entry(_ context.Context, id credit.EntryID) (credit.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.byEntry[id]
	if !ok {
		return credit.LedgerEntry{}, credit.ErrNotFound
	}
	return s.entries[ref.link][ref.idx], nil
}

func (s *Store) LatestEntry(_ context.Context, link credit.LinkID) (credit.LedgerEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries[link]
	if len(entries) == 0 {
		return credit.LedgerEntry{}, false, nil
	}
	return entries[len(entries)-1], true, nil
}

func (s *Store) EntriesByLink(_ context.Context, link credit.LinkID) ([]credit.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]credit.LedgerEntry, len(s.entries[link]))
	copy(out, s.entries[link])
	return out, nil
}

func (s *Store) SetEntryStatus(_ context.Context, id credit.EntryID, from, to credit.EntryStatus) (credit.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.byEntry[id]
	if !ok {
		return credit.LedgerEntry{}, credit.ErrNotFound
	}
	e := s.entries[ref.link][ref.idx]
	if e.Status != from {
		return credit.LedgerEntry{}, &credit.StateError{
			Subject: "entry",
			ID:      string(id),
			Current: string(e.Status),
			Attempt: "transition to " + string(to),
		}
	}
	e.Status = to
	s.entries[ref.link][ref.idx] = e
	return e, nil
}

func cloneLink(l credit.CreditLink) credit.CreditLink {
	out := l
	out.AllowedMethods = append([]credit.PaymentMethod(nil), l.AllowedMethods...)
	return out
}
