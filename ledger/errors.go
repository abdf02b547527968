/*
errors.go - Centralized error taxonomy

PURPOSE:
  Expected business conditions (not found, already linked, bad input) are
  sentinel errors returned as values; callers branch with errors.Is().
  Infrastructure faults (store unreachable) are wrapped with %w and carry
  through to the outermost handler, which degrades to a generic user-facing
  apology instead of crashing the session.

USAGE:
  holder, err := store.HolderByAddress(ctx, addr)
  if errors.Is(err, ledger.ErrNotFound) { ... expected, handle ... }
*/
package ledger

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when an address or id has no matching entity.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyLinked is returned when a holder already has a different
	// bound address. Binding is one-way: rebinding is rejected, never
	// overwritten.
	ErrAlreadyLinked = errors.New("holder already linked to another address")

	// ErrInvalidInput is returned for malformed user input (bad national ID,
	// unknown category, malformed CSV row).
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when a concurrent write raced us (e.g. two
	// binds to the same address). User-facing handling treats it like
	// ErrAlreadyLinked.
	ErrConflict = errors.New("conflict")

	// ErrInvalidPeriod is returned when a period end precedes its start.
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// HELPERS
// =============================================================================

// IsBusiness reports whether err is an expected business condition rather
// than an infrastructure fault.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyLinked) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrConflict)
}
