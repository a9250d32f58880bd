/*
accountbook.go - Read-only reporting projections over the ledger

PURPOSE:
  The owner's "account book" screens: filtered, time-windowed summaries
  and entry listings. Pure folds over the entry streams - no stored
  state, idempotent, safe to recompute on every call. Consumers always
  re-fold rather than cache mutable totals.

WINDOWS:
  Period bounds entries by CreatedAt against now - {30d, 90d, 365d} or
  unbounded. Receivables and fee debt are point-in-time obligations and
  ignore the window; revenue-style aggregates respect it.
*/
package credit

import (
	"context"
	"sort"
	"time"
)

// =============================================================================
// PERIOD - Reporting time window
// =============================================================================

type Period string

const (
	PeriodLast30  Period = "30d"
	PeriodLast90  Period = "90d"
	PeriodLast365 Period = "365d"
	PeriodAll     Period = "all"
)

// Cutoff returns the window start, or ok=false for an unbounded period.
func (p Period) Cutoff(now time.Time) (time.Time, bool) {
	switch p {
	case PeriodLast30:
		return now.AddDate(0, 0, -30), true
	case PeriodLast90:
		return now.AddDate(0, 0, -90), true
	case PeriodLast365:
		return now.AddDate(0, 0, -365), true
	default:
		return time.Time{}, false
	}
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary is the owner-facing aggregate view.
type Summary struct {
	Currency Currency

	// TotalRevenue is the sum of non-disputed booking debits in the window.
	TotalRevenue Amount

	// AgentReceivables is the outstanding balance across the owner's
	// links right now. Debt does not expire with the window.
	AgentReceivables Amount

	// PublicSales is the booking revenue attributed to the PUBLIC channel.
	PublicSales Amount

	// AppFeesOwed is accrued platform fees minus confirmed fee
	// settlements, all-time.
	AppFeesOwed Amount

	// AppFeesPaid is confirmed fee settlements in the window.
	AppFeesPaid Amount
}

// Statement summarizes one link over a date range, the shape of the
// periodic settlement statement issued between parties.
type Statement struct {
	LinkID         LinkID
	From, To       time.Time
	OpeningBalance Amount
	Debits         Amount
	Credits        Amount
	ClosingBalance Amount
}

// =============================================================================
// ACCOUNT BOOK
// =============================================================================

// AccountBook projects ledger entries for reporting. Stateless; reads
// the store directly, never takes a link's exclusive section.
type AccountBook struct {
	store Store
	now   func() time.Time
}

func NewAccountBook(store Store) *AccountBook {
	return &AccountBook{store: store, now: time.Now}
}

// Summarize folds the owner's entry streams into the account-book
// aggregates. typeFilter narrows which entry types feed the windowed
// aggregates; empty means all.
func (ab *AccountBook) Summarize(ctx context.Context, owner PrincipalID, typeFilter []EntryType, period Period) (Summary, error) {
	links, err := ab.store.LinksByOwner(ctx, owner)
	if err != nil {
		return Summary{}, err
	}

	currency := CurrencyMVR
	if len(links) > 0 {
		currency = links[0].Currency
	}
	s := Summary{
		Currency:         currency,
		TotalRevenue:     ZeroAmount(currency),
		AgentReceivables: ZeroAmount(currency),
		PublicSales:      ZeroAmount(currency),
		AppFeesOwed:      ZeroAmount(currency),
		AppFeesPaid:      ZeroAmount(currency),
	}

	cutoff, bounded := period.Cutoff(ab.now().UTC())

	for _, link := range links {
		entries, err := ab.store.EntriesByLink(ctx, link.ID)
		if err != nil {
			return Summary{}, err
		}

		_, outstanding := foldBalances(link.Currency, entries)
		s.AgentReceivables = s.AgentReceivables.Add(outstanding)

		for _, e := range entries {
			if e.Status == EntryDisputed {
				continue
			}
			inWindow := !bounded || !e.CreatedAt.Before(cutoff)
			inFilter := len(typeFilter) == 0 || containsType(typeFilter, e.Type)

			switch {
			case e.Type == EntryBooking && e.IsDebit():
				if inWindow && inFilter {
					s.TotalRevenue = s.TotalRevenue.Add(e.Debit)
					if e.Channel == ChannelPublic {
						s.PublicSales = s.PublicSales.Add(e.Debit)
					}
				}
			case e.Type == EntryAppFee && e.IsDebit():
				s.AppFeesOwed = s.AppFeesOwed.Add(e.Debit)
			case e.Type == EntrySettlement && e.Counterparty == CounterpartyAppOwner && e.Status == EntryConfirmed:
				s.AppFeesOwed = s.AppFeesOwed.Sub(e.Credit)
				if inWindow && inFilter {
					s.AppFeesPaid = s.AppFeesPaid.Add(e.Credit)
				}
			}
		}
	}
	return s, nil
}

// ListEntries returns the owner's entries across all links, narrowed by
// type filter and period, ordered by posting time (ties broken by link
// and sequence so the order is total and stable).
func (ab *AccountBook) ListEntries(ctx context.Context, owner PrincipalID, typeFilter []EntryType, period Period) ([]LedgerEntry, error) {
	links, err := ab.store.LinksByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	cutoff, bounded := period.Cutoff(ab.now().UTC())
	filter := EntryFilter{Types: typeFilter}
	if bounded {
		filter.From = cutoff
	}

	var out []LedgerEntry
	for _, link := range links {
		entries, err := ab.store.EntriesByLink(ctx, link.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if filter.match(e) {
				out = append(out, e)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if out[i].LinkID != out[j].LinkID {
			return out[i].LinkID < out[j].LinkID
		}
		return out[i].SequenceNo < out[j].SequenceNo
	})
	return out, nil
}

// StatementFor folds one link's raw entry stream into an opening/closing
// statement over [from, to). Uses the raw fold (every entry, disputed
// included) - statements are audit documents, not credit checks.
func (ab *AccountBook) StatementFor(ctx context.Context, linkID LinkID, from, to time.Time) (Statement, error) {
	link, err := ab.store.Link(ctx, linkID)
	if err != nil {
		return Statement{}, err
	}
	entries, err := ab.store.EntriesByLink(ctx, linkID)
	if err != nil {
		return Statement{}, err
	}

	opening := ZeroAmount(link.Currency)
	debits := ZeroAmount(link.Currency)
	credits := ZeroAmount(link.Currency)

	for _, e := range entries {
		switch {
		case e.CreatedAt.Before(from):
			opening = opening.Add(e.Delta())
		case e.CreatedAt.Before(to):
			debits = debits.Add(e.Debit)
			credits = credits.Add(e.Credit)
		}
	}

	return Statement{
		LinkID:         linkID,
		From:           from,
		To:             to,
		OpeningBalance: opening,
		Debits:         debits,
		Credits:        credits,
		ClosingBalance: opening.Add(debits).Sub(credits),
	}, nil
}
