/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces (ledger.Store and queue.JobStore).

PURPOSE:
  Single source of truth for holders, accounts, transactions, statements,
  cases and queued jobs. The same patterns carry to PostgreSQL - only SQL
  dialect details differ.

KEY TABLES:
  holders:       one row per employee; national_id, code and address UNIQUE
  accounts:      1:1 with holders; closing schedule + last close timestamp
  transactions:  signed postings in integer cents
  statements:    closing snapshots, ordered per account by period_end
  cases:         dispute / escalation tracking
  jobs:          durable queue work items

BALANCE AGGREGATION:
  SumCents pushes COALESCE(SUM(amount_cents), 0) into SQL. Amounts are
  INTEGER columns, so sums are exact int64 arithmetic - never floats.

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, single
  writer, good crash recovery. Use ":memory:" for tests.

MIGRATION:
  Schema is auto-migrated on New(). For production rollouts, a versioned
  migration tool is the better home for schema changes.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/illeiva2/cuentas-bot/ledger"
	"github.com/illeiva2/cuentas-bot/queue"
)

// Store implements ledger.Store and queue.JobStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes writes; SQLite allows one writer at a time
}

// New opens (and migrates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS holders (
		id TEXT PRIMARY KEY,
		national_id TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE,
		address TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- One address binds to at most one holder. NULL/empty don't collide.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_holders_address
		ON holders(address) WHERE address IS NOT NULL AND address != '';

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		holder_id TEXT NOT NULL UNIQUE REFERENCES holders(id),
		closing_day INTEGER NOT NULL,
		last_closing_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		category TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		posted_at TEXT NOT NULL,
		description TEXT,
		source_ref TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot path: balance sums and period range loads.
	CREATE INDEX IF NOT EXISTS idx_transactions_account_posted
		ON transactions(account_id, posted_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_source_ref
		ON transactions(source_ref) WHERE source_ref IS NOT NULL AND source_ref != '';

	CREATE TABLE IF NOT EXISTS statements (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		closing_balance_cents INTEGER NOT NULL,
		document_url TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_statements_account_end
		ON statements(account_id, period_end DESC);

	CREATE TABLE IF NOT EXISTS cases (
		id TEXT PRIMARY KEY,
		holder_id TEXT NOT NULL REFERENCES holders(id),
		topic TEXT NOT NULL,
		status TEXT NOT NULL,
		last_message TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		payload BLOB,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		run_at TEXT NOT NULL,
		last_error TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status_run_at ON jobs(status, run_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Fixed-width UTC timestamps so TEXT comparison in SQL matches time order.
// RFC3339Nano would drop trailing zeros and break that.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

// uniqueViolation maps SQLite constraint errors to the domain conflict error.
func uniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// =============================================================================
// HOLDERS
// =============================================================================

func (s *Store) CreateHolder(ctx context.Context, h ledger.Holder, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO holders (id, national_id, full_name, code, address, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(h.ID), h.NationalID, h.FullName, h.Code, h.Address, string(h.Status), fmtTime(h.CreatedAt))
	if err != nil {
		if uniqueViolation(err) {
			return ledger.ErrConflict
		}
		return err
	}

	var lastClosing any
	if a.LastClosingAt != nil {
		lastClosing = fmtTime(*a.LastClosingAt)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (id, holder_id, closing_day, last_closing_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(a.ID), string(a.HolderID), a.ClosingDay, lastClosing, fmtTime(a.CreatedAt))
	if err != nil {
		return err
	}
	return tx.Commit()
}

const holderCols = `id, national_id, full_name, code, COALESCE(address, ''), status, created_at`

func scanHolder(row interface{ Scan(...any) error }) (ledger.Holder, error) {
	var h ledger.Holder
	var id, status, createdAt string
	if err := row.Scan(&id, &h.NationalID, &h.FullName, &h.Code, &h.Address, &status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Holder{}, ledger.ErrNotFound
		}
		return ledger.Holder{}, err
	}
	h.ID = ledger.HolderID(id)
	h.Status = ledger.HolderStatus(status)
	t, err := parseTime(createdAt)
	if err != nil {
		return ledger.Holder{}, err
	}
	h.CreatedAt = t
	return h, nil
}

func (s *Store) holderWhere(ctx context.Context, where string, arg any) (ledger.Holder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+holderCols+` FROM holders WHERE `+where, arg)
	return scanHolder(row)
}

func (s *Store) Holder(ctx context.Context, id ledger.HolderID) (ledger.Holder, error) {
	return s.holderWhere(ctx, "id = ?", string(id))
}

func (s *Store) HolderByAddress(ctx context.Context, address string) (ledger.Holder, error) {
	if address == "" {
		return ledger.Holder{}, ledger.ErrNotFound
	}
	return s.holderWhere(ctx, "address = ?", address)
}

func (s *Store) HolderByNationalID(ctx context.Context, nationalID string) (ledger.Holder, error) {
	return s.holderWhere(ctx, "national_id = ?", nationalID)
}

func (s *Store) HolderByCode(ctx context.Context, code string) (ledger.Holder, error) {
	return s.holderWhere(ctx, "code = ?", code)
}

func (s *Store) UpdateHolder(ctx context.Context, h ledger.Holder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE holders SET national_id = ?, full_name = ?, code = ?, address = ?, status = ? WHERE id = ?`,
		h.NationalID, h.FullName, h.Code, h.Address, string(h.Status), string(h.ID))
	if err != nil {
		if uniqueViolation(err) {
			return ledger.ErrConflict
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) ListHolders(ctx context.Context) ([]ledger.Holder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+holderCols+` FROM holders ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Holder
	for rows.Next() {
		h, err := scanHolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountCols = `id, holder_id, closing_day, last_closing_at, created_at`

func scanAccount(row interface{ Scan(...any) error }) (ledger.Account, error) {
	var a ledger.Account
	var id, holderID, createdAt string
	var lastClosing sql.NullString
	if err := row.Scan(&id, &holderID, &a.ClosingDay, &lastClosing, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Account{}, ledger.ErrNotFound
		}
		return ledger.Account{}, err
	}
	a.ID = ledger.AccountID(id)
	a.HolderID = ledger.HolderID(holderID)
	if lastClosing.Valid {
		t, err := parseTime(lastClosing.String)
		if err != nil {
			return ledger.Account{}, err
		}
		a.LastClosingAt = &t
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return ledger.Account{}, err
	}
	a.CreatedAt = t
	return a, nil
}

func (s *Store) Account(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, string(id))
	return scanAccount(row)
}

func (s *Store) AccountByHolder(ctx context.Context, holderID ledger.HolderID) (ledger.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE holder_id = ?`, string(holderID))
	return scanAccount(row)
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountCols+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateLastClosing(ctx context.Context, id ledger.AccountID, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_closing_at = ? WHERE id = ?`, fmtTime(closedAt), string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) AddTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, account_id, category, amount_cents, posted_at, description, source_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(tx.ID), string(tx.AccountID), string(tx.Category), tx.AmountCents,
		fmtTime(tx.PostedAt), tx.Description, tx.SourceRef, fmtTime(tx.CreatedAt))
	if uniqueViolation(err) {
		return ledger.ErrConflict
	}
	return err
}

func (s *Store) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET category = ?, amount_cents = ?, posted_at = ?, description = ?, source_ref = ?
		 WHERE id = ? AND account_id = ?`,
		string(tx.Category), tx.AmountCents, fmtTime(tx.PostedAt), tx.Description, tx.SourceRef,
		string(tx.ID), string(tx.AccountID))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) TransactionsInRange(ctx context.Context, id ledger.AccountID, after, until time.Time) ([]ledger.Transaction, error) {
	q := `SELECT id, account_id, category, amount_cents, posted_at, COALESCE(description, ''), COALESCE(source_ref, ''), created_at
	      FROM transactions WHERE account_id = ?`
	args := []any{string(id)}
	if !after.IsZero() {
		q += ` AND posted_at > ?`
		args = append(args, fmtTime(after))
	}
	if !until.IsZero() {
		q += ` AND posted_at <= ?`
		args = append(args, fmtTime(until))
	}
	q += ` ORDER BY posted_at ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var tx ledger.Transaction
		var txID, accID, category, postedAt, createdAt string
		if err := rows.Scan(&txID, &accID, &category, &tx.AmountCents, &postedAt, &tx.Description, &tx.SourceRef, &createdAt); err != nil {
			return nil, err
		}
		tx.ID = ledger.TransactionID(txID)
		tx.AccountID = ledger.AccountID(accID)
		tx.Category = ledger.Category(category)
		if tx.PostedAt, err = parseTime(postedAt); err != nil {
			return nil, err
		}
		if tx.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) SumCents(ctx context.Context, id ledger.AccountID, until *time.Time) (int64, error) {
	q := `SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE account_id = ?`
	args := []any{string(id)}
	if until != nil {
		q += ` AND posted_at <= ?`
		args = append(args, fmtTime(*until))
	}
	var sum int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

// =============================================================================
// STATEMENTS
// =============================================================================

func (s *Store) AddStatement(ctx context.Context, st ledger.Statement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO statements (id, account_id, period_start, period_end, closing_balance_cents, document_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(st.ID), string(st.AccountID), fmtTime(st.PeriodStart), fmtTime(st.PeriodEnd),
		st.ClosingBalanceCents, st.DocumentURL, fmtTime(st.CreatedAt))
	return err
}

func (s *Store) AttachStatementDocument(ctx context.Context, id ledger.StatementID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE statements SET document_url = ? WHERE id = ?`, url, string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

const statementCols = `id, account_id, period_start, period_end, closing_balance_cents, COALESCE(document_url, ''), created_at`

func scanStatement(row interface{ Scan(...any) error }) (ledger.Statement, error) {
	var st ledger.Statement
	var id, accID, start, end, createdAt string
	if err := row.Scan(&id, &accID, &start, &end, &st.ClosingBalanceCents, &st.DocumentURL, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Statement{}, ledger.ErrNotFound
		}
		return ledger.Statement{}, err
	}
	st.ID = ledger.StatementID(id)
	st.AccountID = ledger.AccountID(accID)
	var err error
	if st.PeriodStart, err = parseTime(start); err != nil {
		return ledger.Statement{}, err
	}
	if st.PeriodEnd, err = parseTime(end); err != nil {
		return ledger.Statement{}, err
	}
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Statement{}, err
	}
	return st, nil
}

func (s *Store) LatestStatement(ctx context.Context, id ledger.AccountID) (ledger.Statement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+statementCols+` FROM statements WHERE account_id = ? ORDER BY period_end DESC LIMIT 1`,
		string(id))
	return scanStatement(row)
}

func (s *Store) ListStatements(ctx context.Context, id ledger.AccountID) ([]ledger.Statement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+statementCols+` FROM statements WHERE account_id = ? ORDER BY period_end ASC`,
		string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// =============================================================================
// CASES
// =============================================================================

func (s *Store) CreateCase(ctx context.Context, c ledger.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cases (id, holder_id, topic, status, last_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID), string(c.HolderID), string(c.Topic), string(c.Status),
		c.LastMessage, fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt))
	return err
}

const caseCols = `id, holder_id, topic, status, COALESCE(last_message, ''), created_at, updated_at`

func scanCase(row interface{ Scan(...any) error }) (ledger.Case, error) {
	var c ledger.Case
	var id, holderID, topic, status, createdAt, updatedAt string
	if err := row.Scan(&id, &holderID, &topic, &status, &c.LastMessage, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Case{}, ledger.ErrNotFound
		}
		return ledger.Case{}, err
	}
	c.ID = ledger.CaseID(id)
	c.HolderID = ledger.HolderID(holderID)
	c.Topic = ledger.CaseTopic(topic)
	c.Status = ledger.CaseStatus(status)
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Case{}, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ledger.Case{}, err
	}
	return c, nil
}

func (s *Store) Case(ctx context.Context, id ledger.CaseID) (ledger.Case, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+caseCols+` FROM cases WHERE id = ?`, string(id))
	return scanCase(row)
}

func (s *Store) UpdateCase(ctx context.Context, c ledger.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE cases SET status = ?, last_message = ?, updated_at = ? WHERE id = ?`,
		string(c.Status), c.LastMessage, fmtTime(c.UpdatedAt), string(c.ID))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) ListCases(ctx context.Context, status *ledger.CaseStatus) ([]ledger.Case, error) {
	q := `SELECT ` + caseCols + ` FROM cases`
	var args []any
	if status != nil {
		q += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	q += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// JOBS (queue.JobStore)
// =============================================================================

func (s *Store) EnqueueJob(ctx context.Context, j queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, type, payload, status, attempts, run_at, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(j.ID), j.Type, j.Payload, string(j.Status), j.Attempts,
		fmtTime(j.RunAt), j.LastError, fmtTime(j.CreatedAt), fmtTime(j.UpdatedAt))
	return err
}

func (s *Store) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, type, payload, attempts, run_at, COALESCE(last_error, ''), created_at
		 FROM jobs WHERE status = ? AND run_at <= ? ORDER BY run_at ASC LIMIT ?`,
		string(queue.StatusPending), fmtTime(now), limit)
	if err != nil {
		return nil, err
	}

	var claimed []queue.Job
	for rows.Next() {
		var j queue.Job
		var id, runAt, createdAt string
		if err := rows.Scan(&id, &j.Type, &j.Payload, &j.Attempts, &runAt, &j.LastError, &createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		j.ID = queue.JobID(id)
		j.Status = queue.StatusRunning
		if j.RunAt, err = parseTime(runAt); err != nil {
			rows.Close()
			return nil, err
		}
		if j.CreatedAt, err = parseTime(createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, j := range claimed {
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
			string(queue.StatusRunning), fmtTime(now), string(j.ID)); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) MarkJobDone(ctx context.Context, id queue.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(queue.StatusDone), fmtTime(time.Now()), string(id))
	return err
}

func (s *Store) MarkJobRetry(ctx context.Context, id queue.JobID, attempts int, runAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempts = ?, run_at = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(queue.StatusPending), attempts, fmtTime(runAt), lastError, fmtTime(time.Now()), string(id))
	return err
}

func (s *Store) MarkJobFailed(ctx context.Context, id queue.JobID, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(queue.StatusFailed), attempts, lastError, fmtTime(time.Now()), string(id))
	return err
}
