package ledger

import "time"

// =============================================================================
// PERIOD - Span of an accounting period
// =============================================================================

// Period is a half-open span (Start, End]: a transaction posted exactly at
// Start belongs to the previous period (it was counted in that period's
// closing balance), one posted exactly at End belongs to this one.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period (Start, End].
func (p Period) Contains(t time.Time) bool {
	return t.After(p.Start) && !t.After(p.End)
}

func (p Period) Valid() bool { return !p.End.Before(p.Start) }

func (p Period) String() string {
	return "(" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}

// StartOfMonth returns midnight UTC on the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// OpenPeriod returns the account's current unclosed period as of now.
// If the account has been closed before, the open period extends from that
// close to now; otherwise it starts at the current calendar month. The open
// period has no fixed end until it is explicitly closed.
func OpenPeriod(account Account, now time.Time) Period {
	if account.LastClosingAt != nil {
		return Period{Start: *account.LastClosingAt, End: now}
	}
	return Period{Start: StartOfMonth(now), End: now}
}
