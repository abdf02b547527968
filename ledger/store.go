/*
store.go - Persistence interface

PURPOSE:
  Defines the contract between domain logic and the database. The engine,
  resolver, conversation flow and period closer all talk to this interface;
  store/sqlite implements it for production and store/memory for tests.

CONTRACT NOTES:
  - Reads return ledger.ErrNotFound (possibly wrapped) when nothing matches.
  - CreateHolder persists holder and account atomically: a holder without an
    account is never observable.
  - Address, national ID and code uniqueness are enforced by the store;
    violations surface as ledger.ErrConflict.
  - SumCents pushes balance aggregation into the store so computing a
    balance never loads the full transaction history.
*/
package ledger

import (
	"context"
	"time"
)

// Store is the single source of truth for all persistent state.
type Store interface {
	// --- Holders ---

	// CreateHolder persists a holder together with its account, atomically.
	CreateHolder(ctx context.Context, h Holder, a Account) error
	Holder(ctx context.Context, id HolderID) (Holder, error)
	HolderByAddress(ctx context.Context, address string) (Holder, error)
	HolderByNationalID(ctx context.Context, nationalID string) (Holder, error)
	HolderByCode(ctx context.Context, code string) (Holder, error)
	// UpdateHolder rewrites mutable holder fields (address, name, status).
	UpdateHolder(ctx context.Context, h Holder) error
	ListHolders(ctx context.Context) ([]Holder, error)

	// --- Accounts ---

	Account(ctx context.Context, id AccountID) (Account, error)
	AccountByHolder(ctx context.Context, holderID HolderID) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	UpdateLastClosing(ctx context.Context, id AccountID, closedAt time.Time) error

	// --- Transactions ---

	AddTransaction(ctx context.Context, tx Transaction) error
	// UpdateTransaction applies a back-office correction. The row must exist.
	UpdateTransaction(ctx context.Context, tx Transaction) error
	// TransactionsInRange returns the account's transactions with
	// PostedAt in (after, until], ordered by PostedAt ascending.
	// A zero after means unbounded below; a zero until unbounded above.
	TransactionsInRange(ctx context.Context, id AccountID, after, until time.Time) ([]Transaction, error)
	// SumCents returns the exact sum of AmountCents for transactions with
	// PostedAt <= until (all transactions when until is nil).
	SumCents(ctx context.Context, id AccountID, until *time.Time) (int64, error)

	// --- Statements ---

	AddStatement(ctx context.Context, st Statement) error
	AttachStatementDocument(ctx context.Context, id StatementID, url string) error
	// LatestStatement returns the statement with the greatest period end.
	LatestStatement(ctx context.Context, id AccountID) (Statement, error)
	ListStatements(ctx context.Context, id AccountID) ([]Statement, error)

	// --- Cases ---

	CreateCase(ctx context.Context, c Case) error
	Case(ctx context.Context, id CaseID) (Case, error)
	UpdateCase(ctx context.Context, c Case) error
	// ListCases filters by status when status is non-nil.
	ListCases(ctx context.Context, status *CaseStatus) ([]Case, error)
}
