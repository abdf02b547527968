/*
jobs.go - Queue handlers for background closes

The HTTP layer enqueues; these handlers run inside the queue's worker pool.
Both are safe under at-least-once delivery: re-running a close yields an
extra statement, never corrupt balances.
*/
package closing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/illeiva2/cuentas-bot/ledger"
)

const (
	JobCloseAccount = "close-account"
	JobCloseAll     = "close-all"
)

type CloseAccountPayload struct {
	AccountID   string    `json:"account_id"`
	ClosingDate time.Time `json:"closing_date"`
}

type CloseAllPayload struct {
	ClosingDate time.Time `json:"closing_date"`
}

// HandleCloseAccount is the queue handler for a single-account close.
func (c *Closer) HandleCloseAccount(ctx context.Context, payload []byte) error {
	var p CloseAccountPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode close-account payload: %w", err)
	}
	_, err := c.CloseAccount(ctx, ledger.AccountID(p.AccountID), p.ClosingDate.UTC())
	return err
}

// HandleCloseAll is the queue handler for the bulk close. Per-account
// failures are data inside the result, not handler errors: retrying the
// whole batch because three accounts failed would re-close the rest.
func (c *Closer) HandleCloseAll(ctx context.Context, payload []byte) error {
	var p CloseAllPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode close-all payload: %w", err)
	}
	res, err := c.CloseAll(ctx, p.ClosingDate.UTC())
	if err != nil {
		return err
	}
	for _, f := range res.Failures {
		c.log.Warn().Str("account_id", string(f.AccountID)).Str("reason", f.Reason).Msg("account close failed in bulk run")
	}
	return nil
}
