/*
Package closing orchestrates period closes: ledger arithmetic + statement
persistence + document generation + best-effort notification.

SINGLE CLOSE:
  CloseAccount computes the open period through the closing date, persists
  the statement, advances the account's close marker, then attaches a
  rendered document and notifies the holder. The statement write and the
  marker update are the authoritative actions; document and notification
  failures are logged, never fatal.

REPEAT CALLS:
  Calling CloseAccount twice with the same closing date produces two
  statements. That is deliberate, preserved behavior (and what makes queued
  retries safe to re-run); dedup would need a uniqueness key on
  (account, period end) and is an open decision recorded in DESIGN.md.

BULK CLOSE:
  CloseAll walks every account with a bounded worker pool. One account's
  failure never aborts or rolls back the others: failures come back as data
  in the result tally, keyed by account.
*/
package closing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/illeiva2/cuentas-bot/docgen"
	"github.com/illeiva2/cuentas-bot/ledger"
)

// =============================================================================
// CLOSER
// =============================================================================

// Notifier delivers the proactive "your period closed" message. Optional.
type Notifier interface {
	NotifyClosed(ctx context.Context, holder ledger.Holder, st ledger.Statement) error
}

type Closer struct {
	store  ledger.Store
	engine *ledger.Engine
	log    zerolog.Logger

	// Docs and Notify are optional collaborators; nil disables them.
	Docs   docgen.Generator
	Notify Notifier

	// Workers bounds CloseAll's parallelism.
	Workers int
}

func NewCloser(store ledger.Store, engine *ledger.Engine, log zerolog.Logger) *Closer {
	return &Closer{
		store:   store,
		engine:  engine,
		log:     log.With().Str("component", "closing").Logger(),
		Workers: 8,
	}
}

// =============================================================================
// SINGLE ACCOUNT
// =============================================================================

// CloseAccount closes the account's open period through closingDate and
// returns the persisted statement. Safe to re-invoke: a retry after a
// partial failure yields a second statement rather than corrupt state.
func (c *Closer) CloseAccount(ctx context.Context, accountID ledger.AccountID, closingDate time.Time) (ledger.Statement, error) {
	account, err := c.store.Account(ctx, accountID)
	if err != nil {
		return ledger.Statement{}, err
	}

	period := ledger.OpenPeriod(account, closingDate)
	pd, err := c.engine.PeriodData(ctx, accountID, period.Start, closingDate)
	if err != nil {
		return ledger.Statement{}, err
	}

	st := ledger.Statement{
		ID:                  ledger.StatementID(uuid.NewString()),
		AccountID:           accountID,
		PeriodStart:         period.Start,
		PeriodEnd:           closingDate,
		ClosingBalanceCents: pd.ClosingBalanceCents,
		CreatedAt:           time.Now().UTC(),
	}
	if err := c.store.AddStatement(ctx, st); err != nil {
		return ledger.Statement{}, err
	}
	if err := c.store.UpdateLastClosing(ctx, accountID, closingDate); err != nil {
		return ledger.Statement{}, err
	}

	c.log.Info().
		Str("account_id", string(accountID)).
		Str("period", pd.Period.String()).
		Int64("closing_balance_cents", st.ClosingBalanceCents).
		Msg("period closed")

	// Everything past this point is best effort: the books are closed.
	c.attachDocument(ctx, account, &st, pd.Transactions)
	c.notify(ctx, account, st)

	return st, nil
}

func (c *Closer) attachDocument(ctx context.Context, account ledger.Account, st *ledger.Statement, txs []ledger.Transaction) {
	if c.Docs == nil {
		return
	}
	holder, err := c.store.Holder(ctx, account.HolderID)
	if err != nil {
		c.log.Warn().Err(err).Str("account_id", string(account.ID)).Msg("document skipped: holder load failed")
		return
	}
	url, err := c.Docs.Render(ctx, holder, *st, txs)
	if err != nil {
		c.log.Warn().Err(err).Str("statement_id", string(st.ID)).Msg("document rendering failed")
		return
	}
	if err := c.store.AttachStatementDocument(ctx, st.ID, url); err != nil {
		c.log.Warn().Err(err).Str("statement_id", string(st.ID)).Msg("document attach failed")
		return
	}
	st.DocumentURL = url
}

func (c *Closer) notify(ctx context.Context, account ledger.Account, st ledger.Statement) {
	if c.Notify == nil {
		return
	}
	holder, err := c.store.Holder(ctx, account.HolderID)
	if err != nil || !holder.Bound() {
		return
	}
	if err := c.Notify.NotifyClosed(ctx, holder, st); err != nil {
		// Closing the books is authoritative; notifying is not.
		c.log.Warn().Err(err).Str("statement_id", string(st.ID)).Msg("close notification failed")
	}
}

// =============================================================================
// BULK CLOSE
// =============================================================================

type Failure struct {
	AccountID ledger.AccountID `json:"account_id"`
	Reason    string           `json:"reason"`
}

type Result struct {
	Succeeded int       `json:"succeeded"`
	Failures  []Failure `json:"failures,omitempty"`
}

// CloseAll closes every account independently with bounded concurrency.
// The batch always completes; per-account failures are reported as data.
func (c *Closer) CloseAll(ctx context.Context, closingDate time.Time) (Result, error) {
	accounts, err := c.store.ListAccounts(ctx)
	if err != nil {
		return Result{}, err
	}

	workers := c.Workers
	if workers < 1 {
		workers = 1
	}

	type outcome struct {
		accountID ledger.AccountID
		err       error
	}

	jobs := make(chan ledger.Account)
	results := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for account := range jobs {
				_, err := c.CloseAccount(ctx, account.ID, closingDate)
				results <- outcome{accountID: account.ID, err: err}
			}
		}()
	}

	go func() {
		for _, a := range accounts {
			jobs <- a
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	var res Result
	for o := range results {
		if o.err != nil {
			res.Failures = append(res.Failures, Failure{AccountID: o.accountID, Reason: o.err.Error()})
			continue
		}
		res.Succeeded++
	}

	c.log.Info().
		Int("succeeded", res.Succeeded).
		Int("failed", len(res.Failures)).
		Time("closing_date", closingDate).
		Msg("bulk close finished")
	return res, nil
}
