/*
Package transport defines the chat-channel boundary: the inbound event shape
the webhook normalizes to, and the outbound Sender contract the conversation
flow and the period-close notifier speak.

Sends are fire-and-forget from the core's perspective: an error is logged by
the caller, never retried there. The provider client (transport/meta) owns
its own bounded retry.
*/
package transport

import "context"

// =============================================================================
// INBOUND
// =============================================================================

type EventKind string

const (
	// KindFreeText is a plain typed message.
	KindFreeText EventKind = "free-text"
	// KindChoice carries the opaque id of a button or list row the bot
	// itself generated. Ids must be validated, never trusted.
	KindChoice EventKind = "structured-choice"
)

// Event is one inbound message, already normalized from the provider's
// webhook payload.
type Event struct {
	Address string
	Text    string
	Kind    EventKind
}

// =============================================================================
// OUTBOUND
// =============================================================================

// Provider limits for interactive messages.
const (
	MaxButtons          = 3
	MaxButtonTitleLen   = 20
	MaxListSections     = 10
	MaxListRows         = 10
	MaxListRowTitleLen  = 24
	MaxListRowDescLen   = 72
)

// Choice is one reply button.
type Choice struct {
	ID    string
	Title string
}

// ListRow is one selectable row inside a list section.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

type ListSection struct {
	Title string
	Rows  []ListRow
}

// Sender is the outbound side of the channel.
type Sender interface {
	SendText(ctx context.Context, address, body string) error
	SendButtons(ctx context.Context, address, body string, choices []Choice) error
	SendList(ctx context.Context, address, body, buttonLabel string, sections []ListSection) error
	SendDocument(ctx context.Context, address, url, filename, caption string) error
}

// Truncate trims s to max runes. Provider APIs hard-reject oversized titles,
// so trimming beats a failed send.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
