/*
Package sqlite provides the SQLite-backed credit.Store.

PURPOSE:
  Production persistence for credit links and the append-only ledger.
  The same patterns apply to PostgreSQL - only minor dialect
  differences.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE ever touches posted amounts. The only UPDATE on
  ledger_entries flips status, guarded by "AND status = ?" so the
  PENDING -> CONFIRMED|DISPUTED transition happens at most once even
  under races. Link updates carry the same status guard.

KEY TABLES:
  credit_links:   one row per owner/agent relationship, never deleted
  ledger_entries: immutable postings, unique (link_id, sequence_no)

INDEXES:
  idx_links_pair (partial, unique): at most one non-REJECTED link per
  (owner_id, agent_id) - the database backs the workflow invariant.
  idx_entries_link_seq: the balance-fold hot path.

WAL MODE:
  Opened with WAL so snapshot reads don't block the single writer.

USAGE:
  store, err := sqlite.New("./data/jaaga.db")   // ":memory:" for tests
  ledger := credit.NewLedger(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/Effimetic/Jaaga-sub003/credit"
)

// Store implements credit.Store on SQLite.
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the database at dbPath. Use ":memory:" for
// an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The ledger serializes writes per link itself; a single connection
	// keeps sqlite's writer lock uncontended.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credit_links (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		credit_limit TEXT NOT NULL,
		currency TEXT NOT NULL,
		payment_terms_days INTEGER NOT NULL DEFAULT 0,
		allowed_methods TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- The workflow invariant: one non-REJECTED link per pair.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_links_pair
		ON credit_links(owner_id, agent_id)
		WHERE status != 'REJECTED';

	CREATE INDEX IF NOT EXISTS idx_links_owner
		ON credit_links(owner_id);

	-- Append-only ledger. Posted amounts are never updated or deleted.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		link_id TEXT NOT NULL REFERENCES credit_links(id),
		sequence_no INTEGER NOT NULL,
		entry_type TEXT NOT NULL,
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		resulting_balance TEXT NOT NULL,
		currency TEXT NOT NULL,
		counterparty TEXT NOT NULL DEFAULT '',
		channel TEXT NOT NULL DEFAULT 'AGENT',
		booking_ref TEXT NOT NULL DEFAULT '',
		proof_ref TEXT NOT NULL DEFAULT '',
		reversal_of TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(link_id, sequence_no)
	);

	-- Balance-fold hot path.
	CREATE INDEX IF NOT EXISTS idx_entries_link_seq
		ON ledger_entries(link_id, sequence_no);

	CREATE INDEX IF NOT EXISTS idx_entries_booking_ref
		ON ledger_entries(booking_ref) WHERE booking_ref != '';
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LINK STORE
// =============================================================================

func (s *Store) CreateLink(ctx context.Context, link credit.CreditLink) error {
	methods, err := json.Marshal(link.AllowedMethods)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credit_links
			(id, owner_id, agent_id, credit_limit, currency, payment_terms_days,
			 allowed_methods, status, active, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(link.ID), string(link.OwnerID), string(link.AgentID),
		link.CreditLimit.Value.String(), string(link.Currency), link.PaymentTermsDays,
		string(methods), string(link.Status), boolToInt(link.Active), link.Message,
		link.CreatedAt.Format(time.RFC3339Nano), link.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil && isUniqueViolation(err) {
		return &credit.StateError{
			Subject: "link",
			ID:      string(link.ID),
			Current: "pair already linked",
			Attempt: "create duplicate link for pair",
		}
	}
	return err
}

func (s *Store) Link(ctx context.Context, id credit.LinkID) (credit.CreditLink, error) {
	row := s.db.QueryRowContext(ctx,
		linkColumns+` FROM credit_links WHERE id = ?`, string(id))
	return scanLink(row)
}

func (s *Store) OpenLinkByPair(ctx context.Context, owner, agent credit.PrincipalID) (credit.CreditLink, bool, error) {
	row := s.db.QueryRowContext(ctx,
		linkColumns+` FROM credit_links
		 WHERE owner_id = ? AND agent_id = ? AND status != 'REJECTED'`,
		string(owner), string(agent))
	link, err := scanLink(row)
	if errors.Is(err, credit.ErrNotFound) {
		return credit.CreditLink{}, false, nil
	}
	if err != nil {
		return credit.CreditLink{}, false, err
	}
	return link, true, nil
}

func (s *Store) LinksByOwner(ctx context.Context, owner credit.PrincipalID) ([]credit.CreditLink, error) {
	rows, err := s.db.QueryContext(ctx,
		linkColumns+` FROM credit_links WHERE owner_id = ? ORDER BY created_at`, string(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []credit.CreditLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

func (s *Store) UpdateLink(ctx context.Context, link credit.CreditLink, expectStatus credit.LinkStatus) error {
	methods, err := json.Marshal(link.AllowedMethods)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE credit_links
		   SET credit_limit = ?, payment_terms_days = ?, allowed_methods = ?,
		       status = ?, active = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		link.CreditLimit.Value.String(), link.PaymentTermsDays, string(methods),
		string(link.Status), boolToInt(link.Active), link.UpdatedAt.Format(time.RFC3339Nano),
		string(link.ID), string(expectStatus),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing link from a stale status guard.
		if _, err := s.Link(ctx, link.ID); errors.Is(err, credit.ErrNotFound) {
			return credit.ErrNotFound
		}
		return &credit.StateError{
			Subject: "link",
			ID:      string(link.ID),
			Current: "changed",
			Attempt: "update with stale status " + string(expectStatus),
		}
	}
	return nil
}

// =============================================================================
// ENTRY STORE (append-only)
// =============================================================================

func (s *Store) AppendEntry(ctx context.Context, e credit.LedgerEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
			(id, link_id, sequence_no, entry_type, debit, credit, resulting_balance,
			 currency, counterparty, channel, booking_ref, proof_ref, reversal_of,
			 status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), string(e.LinkID), e.SequenceNo, string(e.Type),
		e.Debit.Value.String(), e.Credit.Value.String(), e.ResultingBalance.Value.String(),
		string(e.Debit.Currency), e.Counterparty, string(e.Channel),
		e.BookingRef, e.ProofRef, string(e.ReversalOf),
		string(e.Status), e.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) Entry(ctx context.Context, id credit.EntryID) (credit.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		entryColumns+` FROM ledger_entries WHERE id = ?`, string(id))
	return scanEntry(row)
}

func (s *Store) LatestEntry(ctx context.Context, link credit.LinkID) (credit.LedgerEntry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		entryColumns+` FROM ledger_entries
		 WHERE link_id = ? ORDER BY sequence_no DESC LIMIT 1`, string(link))
	e, err := scanEntry(row)
	if errors.Is(err, credit.ErrNotFound) {
		return credit.LedgerEntry{}, false, nil
	}
	if err != nil {
		return credit.LedgerEntry{}, false, err
	}
	return e, true, nil
}

func (s *Store) EntriesByLink(ctx context.Context, link credit.LinkID) ([]credit.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		entryColumns+` FROM ledger_entries WHERE link_id = ? ORDER BY sequence_no`, string(link))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []credit.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SetEntryStatus(ctx context.Context, id credit.EntryID, from, to credit.EntryStatus) (credit.LedgerEntry, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger_entries SET status = ? WHERE id = ? AND status = ?`,
		string(to), string(id), string(from))
	if err != nil {
		return credit.LedgerEntry{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return credit.LedgerEntry{}, err
	}
	if n == 0 {
		e, err := s.Entry(ctx, id)
		if err != nil {
			return credit.LedgerEntry{}, err
		}
		return credit.LedgerEntry{}, &credit.StateError{
			Subject: "entry",
			ID:      string(id),
			Current: string(e.Status),
			Attempt: "transition to " + string(to),
		}
	}
	return s.Entry(ctx, id)
}

// =============================================================================
// ROW SCANNING
// =============================================================================

const linkColumns = `SELECT id, owner_id, agent_id, credit_limit, currency,
	payment_terms_days, allowed_methods, status, active, message, created_at, updated_at`

const entryColumns = `SELECT id, link_id, sequence_no, entry_type, debit, credit,
	resulting_balance, currency, counterparty, channel, booking_ref, proof_ref,
	reversal_of, status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (credit.CreditLink, error) {
	var (
		link                         credit.CreditLink
		id, owner, agent             string
		limit, currency, methods     string
		status                       string
		active                       int
		createdAt, updatedAt         string
	)
	err := row.Scan(&id, &owner, &agent, &limit, &currency, &link.PaymentTermsDays,
		&methods, &status, &active, &link.Message, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return credit.CreditLink{}, credit.ErrNotFound
	}
	if err != nil {
		return credit.CreditLink{}, err
	}

	link.ID = credit.LinkID(id)
	link.OwnerID = credit.PrincipalID(owner)
	link.AgentID = credit.PrincipalID(agent)
	link.Currency = credit.Currency(currency)
	link.Status = credit.LinkStatus(status)
	link.Active = active != 0

	if link.CreditLimit.Value, err = decimal.NewFromString(limit); err != nil {
		return credit.CreditLink{}, fmt.Errorf("corrupt credit_limit for link %s: %w", id, err)
	}
	link.CreditLimit.Currency = link.Currency

	if err := json.Unmarshal([]byte(methods), &link.AllowedMethods); err != nil {
		return credit.CreditLink{}, fmt.Errorf("corrupt allowed_methods for link %s: %w", id, err)
	}
	if link.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return credit.CreditLink{}, err
	}
	if link.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return credit.CreditLink{}, err
	}
	return link, nil
}

func scanEntry(row rowScanner) (credit.LedgerEntry, error) {
	var (
		e                                 credit.LedgerEntry
		id, linkID, entryType             string
		debit, creditAmt, balance         string
		currency, channel, status         string
		reversalOf, createdAt             string
	)
	err := row.Scan(&id, &linkID, &e.SequenceNo, &entryType, &debit, &creditAmt,
		&balance, &currency, &e.Counterparty, &channel, &e.BookingRef, &e.ProofRef,
		&reversalOf, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return credit.LedgerEntry{}, credit.ErrNotFound
	}
	if err != nil {
		return credit.LedgerEntry{}, err
	}

	e.ID = credit.EntryID(id)
	e.LinkID = credit.LinkID(linkID)
	e.Type = credit.EntryType(entryType)
	e.Channel = credit.Channel(channel)
	e.ReversalOf = credit.EntryID(reversalOf)
	e.Status = credit.EntryStatus(status)

	cur := credit.Currency(currency)
	if e.Debit.Value, err = decimal.NewFromString(debit); err != nil {
		return credit.LedgerEntry{}, fmt.Errorf("corrupt debit for entry %s: %w", id, err)
	}
	if e.Credit.Value, err = decimal.NewFromString(creditAmt); err != nil {
		return credit.LedgerEntry{}, fmt.Errorf("corrupt credit for entry %s: %w", id, err)
	}
	if e.ResultingBalance.Value, err = decimal.NewFromString(balance); err != nil {
		return credit.LedgerEntry{}, fmt.Errorf("corrupt resulting_balance for entry %s: %w", id, err)
	}
	e.Debit.Currency = cur
	e.Credit.Currency = cur
	e.ResultingBalance.Currency = cur

	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return credit.LedgerEntry{}, err
	}
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	// mattn/go-sqlite3 surfaces constraint failures with this prefix.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
