/*
Package ledger contains the core domain model and the balance/period engine
for the employee current-account system.

PURPOSE:
  Every other package builds on the types here: holders (the employees),
  their single running-balance account, the signed transactions posted
  against it, the closing statements produced at period end, and the
  back-office cases opened from the chat flow.

KEY CONCEPTS IN THIS FILE (types.go):
  - Holder: a natural person, identified by national ID, optionally bound
    to one chat address
  - Account: the per-holder ledger container with its closing schedule
  - Transaction: one signed posting, amount in integer cents
  - Statement: a persisted closing snapshot for a period
  - Case: a tracked dispute or escalation

DESIGN PRINCIPLES:
  1. Money is int64 cents everywhere. No floating point, no decimal
     accumulation. Formatting to pesos happens only at the rendering edge.
  2. Transactions are immutable once posted; back-office corrections are
     explicit updates, never silent rewrites.
  3. One holder, one account, at most one bound address.

SEE ALSO:
  - engine.go: balance and period arithmetic
  - store.go:  persistence interface
  - errors.go: error taxonomy
*/
package ledger

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type HolderID string
type AccountID string
type TransactionID string
type StatementID string
type CaseID string

// =============================================================================
// HOLDER - The employee whose account is tracked
// =============================================================================

type HolderStatus string

const (
	HolderActive    HolderStatus = "active"
	HolderInactive  HolderStatus = "inactive"
	HolderSuspended HolderStatus = "suspended"
)

// Holder is the account owner. NationalID and Code are unique across
// holders; Address is unique too and empty until the holder identifies
// themselves through the chat flow.
type Holder struct {
	ID         HolderID
	NationalID string // 7-8 digit document number, unique
	FullName   string
	Code       string // external payroll code, unique
	Address    string // bound chat address ("" = not bound yet)
	Status     HolderStatus
	CreatedAt  time.Time
}

// Bound reports whether the holder already has a chat address.
func (h Holder) Bound() bool { return h.Address != "" }

// =============================================================================
// ACCOUNT - One per holder
// =============================================================================

// Account holds the closing schedule and the high-water mark of the last
// successful period close. LastClosingAt == nil means the account has never
// been closed and its open period starts at the current calendar month.
type Account struct {
	ID            AccountID
	HolderID      HolderID
	ClosingDay    int // day of month, default 20
	LastClosingAt *time.Time
	CreatedAt     time.Time
}

const DefaultClosingDay = 20

// =============================================================================
// TRANSACTION - One signed posting against an account
// =============================================================================

type Category string

const (
	CategoryBakery   Category = "panaderia"
	CategoryButcher  Category = "carniceria"
	CategorySupplier Category = "proveedores"
	CategoryAdvance  Category = "adelanto"
)

// Categories lists every valid category in display order.
func Categories() []Category {
	return []Category{CategoryBakery, CategoryButcher, CategorySupplier, CategoryAdvance}
}

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryBakery, CategoryButcher, CategorySupplier, CategoryAdvance:
		return true
	}
	return false
}

// Label returns the user-facing name of the category.
func (c Category) Label() string {
	switch c {
	case CategoryBakery:
		return "Panadería"
	case CategoryButcher:
		return "Carnicería"
	case CategorySupplier:
		return "Proveedores"
	case CategoryAdvance:
		return "Adelanto de sueldo"
	}
	return string(c)
}

// Transaction is immutable once posted except for back-office corrections.
// AmountCents is signed: purchases are positive (they increase the debt the
// employee carries), payroll deductions are negative.
type Transaction struct {
	ID          TransactionID
	AccountID   AccountID
	Category    Category
	AmountCents int64
	PostedAt    time.Time
	Description string
	SourceRef   string // optional external reference for dedup/traceability
	CreatedAt   time.Time
}

// =============================================================================
// STATEMENT - Persisted closing snapshot
// =============================================================================

// Statement records one period close. ClosingBalanceCents is the all-time
// balance through PeriodEnd, not just the period's own delta: the statement
// must stand alone as "what the employee owes as of this date".
// DocumentURL is attached after creation when rendering succeeds.
type Statement struct {
	ID                  StatementID
	AccountID           AccountID
	PeriodStart         time.Time
	PeriodEnd           time.Time
	ClosingBalanceCents int64
	DocumentURL         string
	CreatedAt           time.Time
}

// =============================================================================
// CASE - Back-office dispute / escalation tracking
// =============================================================================

type CaseTopic string

const (
	TopicInquiry CaseTopic = "inquiry"
	TopicDispute CaseTopic = "dispute"
)

type CaseStatus string

const (
	CaseOpen      CaseStatus = "open"
	CaseEscalated CaseStatus = "escalated"
	CaseClosed    CaseStatus = "closed"
)

// Case transitions are one-directional: open -> escalated -> closed.
// Disputes start in open; handoffs start directly in escalated.
type Case struct {
	ID          CaseID
	HolderID    HolderID
	Topic       CaseTopic
	Status      CaseStatus
	LastMessage string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CanTransition reports whether a case may move from its current status to
// next. Reopening is not allowed.
func (c Case) CanTransition(next CaseStatus) bool {
	switch c.Status {
	case CaseOpen:
		return next == CaseEscalated || next == CaseClosed
	case CaseEscalated:
		return next == CaseClosed
	}
	return false
}
