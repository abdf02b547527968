/*
Package identity maps inbound chat addresses to account holders.

PURPOSE:
  An inbound message carries only an address (a phone number). Resolve
  answers "whose account is this?"; when the address is unknown, the
  conversation flow walks the holder through identification: they type their
  national ID, we show name + redacted ID, and only an explicit confirmation
  binds the address.

SECURITY:
  Binding is one-way and exclusive. Once a holder has bound a device,
  knowing their national ID is not enough to take over the session from
  another phone: Bind rejects with ErrAlreadyLinked. The two-step confirm
  also keeps an ID typo from silently exposing someone else's account.
*/
package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/illeiva2/cuentas-bot/ledger"
)

// nationalIDPattern matches the 7-8 digit document numbers holders type in.
var nationalIDPattern = regexp.MustCompile(`^[0-9]{7,8}$`)

// ValidNationalID reports whether s looks like a document number.
func ValidNationalID(s string) bool {
	return nationalIDPattern.MatchString(strings.TrimSpace(s))
}

// Redact hides all but the last 4 digits: "12345678" -> "****5678".
// Shown in confirm prompts and logs; the full ID never leaves the store.
func Redact(nationalID string) string {
	if len(nationalID) <= 4 {
		return strings.Repeat("*", len(nationalID))
	}
	return strings.Repeat("*", len(nationalID)-4) + nationalID[len(nationalID)-4:]
}

// =============================================================================
// RESOLVER
// =============================================================================

type Resolver struct {
	store ledger.Store
	log   zerolog.Logger
}

func NewResolver(store ledger.Store, log zerolog.Logger) *Resolver {
	return &Resolver{store: store, log: log.With().Str("component", "identity").Logger()}
}

// Resolve maps an address to its bound holder. known == false is the
// expected outcome for a first contact, not an error.
func (r *Resolver) Resolve(ctx context.Context, address string) (holder ledger.Holder, known bool, err error) {
	h, err := r.store.HolderByAddress(ctx, address)
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.Holder{}, false, nil
	}
	if err != nil {
		return ledger.Holder{}, false, fmt.Errorf("resolve address: %w", err)
	}
	return h, true, nil
}

// Lookup finds the bind candidate for a typed national ID.
// Returns ledger.ErrInvalidInput for malformed input and ledger.ErrNotFound
// when no holder matches.
func (r *Resolver) Lookup(ctx context.Context, nationalID string) (ledger.Holder, error) {
	nationalID = strings.TrimSpace(nationalID)
	if !ValidNationalID(nationalID) {
		return ledger.Holder{}, ledger.ErrInvalidInput
	}
	return r.store.HolderByNationalID(ctx, nationalID)
}

// Bind links the address to the holder after an explicit confirmation.
//
// Outcomes:
//   - holder missing                       -> ErrNotFound
//   - holder bound to a different address  -> ErrAlreadyLinked
//   - holder already bound to this address -> success, no-op (idempotent)
//   - address raced by a concurrent bind   -> ErrAlreadyLinked
func (r *Resolver) Bind(ctx context.Context, holderID ledger.HolderID, address string) (ledger.Holder, error) {
	h, err := r.store.Holder(ctx, holderID)
	if err != nil {
		return ledger.Holder{}, err
	}

	if h.Bound() {
		if h.Address == address {
			return h, nil
		}
		return ledger.Holder{}, ledger.ErrAlreadyLinked
	}

	h.Address = address
	if err := r.store.UpdateHolder(ctx, h); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			// Someone else bound this address between our read and write.
			return ledger.Holder{}, ledger.ErrAlreadyLinked
		}
		return ledger.Holder{}, fmt.Errorf("bind holder %s: %w", holderID, err)
	}

	r.log.Info().
		Str("holder_id", string(h.ID)).
		Str("address", Redact(address)).
		Msg("address bound")
	return h, nil
}

// Register creates a holder with its account in one shot. Used by the
// back-office API and the bulk importer.
func (r *Resolver) Register(ctx context.Context, nationalID, fullName, code string, closingDay int) (ledger.Holder, ledger.Account, error) {
	if !ValidNationalID(nationalID) {
		return ledger.Holder{}, ledger.Account{}, ledger.ErrInvalidInput
	}
	if closingDay <= 0 || closingDay > 28 {
		closingDay = ledger.DefaultClosingDay
	}

	now := time.Now().UTC()
	h := ledger.Holder{
		ID:         ledger.HolderID(newID()),
		NationalID: strings.TrimSpace(nationalID),
		FullName:   strings.TrimSpace(fullName),
		Code:       strings.TrimSpace(code),
		Status:     ledger.HolderActive,
		CreatedAt:  now,
	}
	a := ledger.Account{
		ID:         ledger.AccountID(newID()),
		HolderID:   h.ID,
		ClosingDay: closingDay,
		CreatedAt:  now,
	}
	if err := r.store.CreateHolder(ctx, h, a); err != nil {
		return ledger.Holder{}, ledger.Account{}, err
	}
	return h, a, nil
}
