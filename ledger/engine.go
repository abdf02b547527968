/*
engine.go - Balance and period arithmetic

PURPOSE:
  Answers the two questions everything else depends on:
    "what does this employee owe right now?"          -> ComputeBalance
    "what happened inside this accounting period?"    -> PeriodData

KEY INSIGHT:
  A closing balance is always the ALL-TIME balance through period end, never
  just the period's own delta. A statement has to stand alone: whatever the
  period boundaries, PeriodData(start, end).ClosingBalanceCents equals
  ComputeBalance(end). The half-open (start, end] range convention in
  period.go is what makes that identity exact.

PRECISION:
  All arithmetic is int64 cents. The store does the summing (SumCents) so
  balances are exact and never require loading full histories.
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine computes balances and period data. It is pure arithmetic over the
// store: no I/O beyond reading transactions.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// ComputeBalance returns the exact balance in cents: the sum of every
// transaction with PostedAt <= asOf, or of all transactions when asOf is
// nil. An account with no transactions has balance 0; an asOf before the
// first transaction yields 0 as well. Neither is an error.
func (e *Engine) ComputeBalance(ctx context.Context, id AccountID, asOf *time.Time) (int64, error) {
	sum, err := e.store.SumCents(ctx, id, asOf)
	if err != nil {
		return 0, fmt.Errorf("compute balance for %s: %w", id, err)
	}
	return sum, nil
}

// =============================================================================
// PERIOD DATA
// =============================================================================

// PeriodData is the reconciled view of one period: its transactions, the
// balance the period opened with, the balance it closes with, and per
// category totals. A category with no activity is simply absent from
// CategoryTotals; treat a missing key as 0.
type PeriodData struct {
	Period              Period
	Transactions        []Transaction
	OpeningBalanceCents int64
	ClosingBalanceCents int64
	CategoryTotals      map[Category]int64
}

// TotalFor returns the period total for one category (0 when absent).
func (pd PeriodData) TotalFor(c Category) int64 { return pd.CategoryTotals[c] }

// ByCategory returns the period's transactions for one category, in posting
// order.
func (pd PeriodData) ByCategory(c Category) []Transaction {
	var out []Transaction
	for _, tx := range pd.Transactions {
		if tx.Category == c {
			out = append(out, tx)
		}
	}
	return out
}

// PeriodData loads the transactions in (start, end] and reconciles them
// against the opening balance.
//
// Invariant: ClosingBalanceCents == ComputeBalance(end) for any start <= end,
// even when start is after the account's first transaction.
func (e *Engine) PeriodData(ctx context.Context, id AccountID, start, end time.Time) (PeriodData, error) {
	p := Period{Start: start, End: end}
	if !p.Valid() {
		return PeriodData{}, ErrInvalidPeriod
	}

	opening, err := e.ComputeBalance(ctx, id, &start)
	if err != nil {
		return PeriodData{}, err
	}

	txs, err := e.store.TransactionsInRange(ctx, id, start, end)
	if err != nil {
		return PeriodData{}, fmt.Errorf("load period transactions for %s: %w", id, err)
	}

	totals := make(map[Category]int64)
	closing := opening
	for _, tx := range txs {
		closing += tx.AmountCents
		totals[tx.Category] += tx.AmountCents
	}

	return PeriodData{
		Period:              p,
		Transactions:        txs,
		OpeningBalanceCents: opening,
		ClosingBalanceCents: closing,
		CategoryTotals:      totals,
	}, nil
}

// OpenPeriodData is a convenience for the conversation flow: the account's
// current open period reconciled through now.
func (e *Engine) OpenPeriodData(ctx context.Context, account Account, now time.Time) (PeriodData, error) {
	p := OpenPeriod(account, now)
	return e.PeriodData(ctx, account.ID, p.Start, p.End)
}
