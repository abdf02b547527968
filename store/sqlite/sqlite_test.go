/*
sqlite_test.go - Storage contract tests

Tests for:
- Holder uniqueness (national_id, code, bound address)
- Transaction range semantics: (after, until], exact integer sums
- Statement ordering and job claiming
*/
package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/illeiva2/cuentas-bot/ledger"
	"github.com/illeiva2/cuentas-bot/queue"
	"github.com/illeiva2/cuentas-bot/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func seedHolder(t *testing.T, store *sqlite.Store, n int, address string) (ledger.Holder, ledger.Account) {
	t.Helper()
	now := date(2025, time.January, 1)
	h := ledger.Holder{
		ID:         ledger.HolderID(fmt.Sprintf("holder-%d", n)),
		NationalID: fmt.Sprintf("3012345%d", n),
		FullName:   "Maria Gomez",
		Code:       fmt.Sprintf("E-%d", n),
		Address:    address,
		Status:     ledger.HolderActive,
		CreatedAt:  now,
	}
	a := ledger.Account{
		ID:         ledger.AccountID(fmt.Sprintf("account-%d", n)),
		HolderID:   h.ID,
		ClosingDay: ledger.DefaultClosingDay,
		CreatedAt:  now,
	}
	if err := store.CreateHolder(context.Background(), h, a); err != nil {
		t.Fatalf("Failed to create holder: %v", err)
	}
	return h, a
}

// =============================================================================
// HOLDER UNIQUENESS
// =============================================================================

func TestCreateHolder_UniqueConstraints(t *testing.T) {
	// GIVEN: An existing holder
	// WHEN: Creating holders reusing its national id, code or address
	// THEN: Each attempt fails with ErrConflict; empty addresses never clash
	store := newTestStore(t)
	ctx := context.Background()
	seedHolder(t, store, 1, "5491100000001")

	dup := func(id, nationalID, code, address string) error {
		return store.CreateHolder(ctx,
			ledger.Holder{ID: ledger.HolderID(id), NationalID: nationalID, FullName: "X",
				Code: code, Address: address, Status: ledger.HolderActive, CreatedAt: date(2025, time.January, 2)},
			ledger.Account{ID: ledger.AccountID("acct-" + id), HolderID: ledger.HolderID(id),
				ClosingDay: 20, CreatedAt: date(2025, time.January, 2)})
	}

	if err := dup("h2", "30123451", "E-99", ""); err != ledger.ErrConflict {
		t.Errorf("duplicate national_id: expected ErrConflict, got %v", err)
	}
	if err := dup("h3", "20999991", "E-1", ""); err != ledger.ErrConflict {
		t.Errorf("duplicate code: expected ErrConflict, got %v", err)
	}
	if err := dup("h4", "20999992", "E-98", "5491100000001"); err != ledger.ErrConflict {
		t.Errorf("duplicate address: expected ErrConflict, got %v", err)
	}
	if err := dup("h5", "20999993", "E-97", ""); err != nil {
		t.Errorf("second unbound holder should be fine, got %v", err)
	}
	if err := dup("h6", "20999994", "E-96", ""); err != nil {
		t.Errorf("empty addresses must not collide, got %v", err)
	}
}

func TestUpdateHolder_AddressTakeoverRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedHolder(t, store, 1, "5491100000001")
	h2, _ := seedHolder(t, store, 2, "")

	h2.Address = "5491100000001"
	if err := store.UpdateHolder(ctx, h2); err != ledger.ErrConflict {
		t.Errorf("expected ErrConflict on address takeover, got %v", err)
	}
}

// =============================================================================
// TRANSACTION RANGES
// =============================================================================

func TestTransactionsInRange_HalfOpenBoundaries(t *testing.T) {
	// GIVEN: Transactions on Jan 1, Jan 15 and Jan 31
	// WHEN: Loading the range (Jan 1, Jan 31]
	// THEN: The start-boundary row is excluded, the end-boundary row included
	store := newTestStore(t)
	ctx := context.Background()
	_, account := seedHolder(t, store, 1, "")

	for i, day := range []int{1, 15, 31} {
		err := store.AddTransaction(ctx, ledger.Transaction{
			ID: ledger.TransactionID(fmt.Sprintf("tx-%d", i)), AccountID: account.ID,
			Category: ledger.CategoryBakery, AmountCents: int64(100 * (i + 1)),
			PostedAt: date(2025, time.January, day), CreatedAt: date(2025, time.January, day),
		})
		if err != nil {
			t.Fatalf("Failed to add transaction: %v", err)
		}
	}

	txs, err := store.TransactionsInRange(ctx, account.ID, date(2025, time.January, 1), date(2025, time.January, 31))
	if err != nil {
		t.Fatalf("TransactionsInRange failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if txs[0].AmountCents != 200 || txs[1].AmountCents != 300 {
		t.Errorf("wrong rows in range: %+v", txs)
	}

	until := date(2025, time.January, 15)
	sum, err := store.SumCents(ctx, account.ID, &until)
	if err != nil {
		t.Fatalf("SumCents failed: %v", err)
	}
	if sum != 300 {
		t.Errorf("expected sum 300 through Jan 15 inclusive, got %d", sum)
	}
}

func TestSumCents_SubSecondCutoff(t *testing.T) {
	// GIVEN: A transaction posted on a whole second
	// WHEN: Summing with a cutoff half a second later
	// THEN: The transaction counts; fractional timestamps must compare
	//       consistently with whole-second ones
	store := newTestStore(t)
	ctx := context.Background()
	_, account := seedHolder(t, store, 1, "")

	posted := time.Date(2025, time.January, 10, 10, 0, 0, 0, time.UTC)
	err := store.AddTransaction(ctx, ledger.Transaction{
		ID: "tx-1", AccountID: account.ID, Category: ledger.CategoryBakery,
		AmountCents: 100, PostedAt: posted, CreatedAt: posted,
	})
	if err != nil {
		t.Fatalf("Failed to add transaction: %v", err)
	}

	cutoff := posted.Add(500 * time.Millisecond)
	sum, err := store.SumCents(ctx, account.ID, &cutoff)
	if err != nil {
		t.Fatalf("SumCents failed: %v", err)
	}
	if sum != 100 {
		t.Errorf("expected 100 with sub-second cutoff, got %d", sum)
	}

	txs, err := store.TransactionsInRange(ctx, account.ID, posted.Add(-time.Second), cutoff)
	if err != nil {
		t.Fatalf("TransactionsInRange failed: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("expected 1 transaction in sub-second range, got %d", len(txs))
	}
	if len(txs) == 1 && !txs[0].PostedAt.Equal(posted) {
		t.Errorf("posted_at did not round-trip: got %v, want %v", txs[0].PostedAt, posted)
	}
}

// =============================================================================
// STATEMENTS
// =============================================================================

func TestStatements_LatestByPeriodEnd(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, account := seedHolder(t, store, 1, "")

	for i, month := range []time.Month{time.February, time.January, time.March} {
		err := store.AddStatement(ctx, ledger.Statement{
			ID: ledger.StatementID(fmt.Sprintf("st-%d", i)), AccountID: account.ID,
			PeriodStart: date(2025, month, 1), PeriodEnd: date(2025, month, 28),
			ClosingBalanceCents: int64(i), CreatedAt: date(2025, month, 28),
		})
		if err != nil {
			t.Fatalf("Failed to add statement: %v", err)
		}
	}

	latest, err := store.LatestStatement(ctx, account.ID)
	if err != nil {
		t.Fatalf("LatestStatement failed: %v", err)
	}
	if latest.ID != "st-2" {
		t.Errorf("expected the March statement, got %s", latest.ID)
	}

	all, err := store.ListStatements(ctx, account.ID)
	if err != nil {
		t.Fatalf("ListStatements failed: %v", err)
	}
	if len(all) != 3 || !all[0].PeriodEnd.Before(all[1].PeriodEnd) {
		t.Errorf("expected 3 statements ordered by period end, got %+v", all)
	}
}

// =============================================================================
// JOBS
// =============================================================================

func TestClaimDueJobs_ClaimsOnce(t *testing.T) {
	// GIVEN: One due job and one scheduled for the future
	// WHEN: Claiming twice
	// THEN: The due job is claimed exactly once; the future job stays put
	store := newTestStore(t)
	ctx := context.Background()
	now := date(2025, time.June, 1)

	add := func(id string, runAt time.Time) {
		err := store.EnqueueJob(ctx, queue.Job{
			ID: queue.JobID(id), Type: "close-all", Status: queue.StatusPending,
			RunAt: runAt, CreatedAt: runAt, UpdatedAt: runAt,
		})
		if err != nil {
			t.Fatalf("Failed to enqueue job: %v", err)
		}
	}
	add("job-due", now.Add(-time.Minute))
	add("job-later", now.Add(time.Hour))

	claimed, err := store.ClaimDueJobs(ctx, now, 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != "job-due" {
		t.Fatalf("expected only job-due, got %+v", claimed)
	}

	again, err := store.ClaimDueJobs(ctx, now, 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected no jobs on second claim, got %d", len(again))
	}
}

func TestJobLifecycle_RetryThenFail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := date(2025, time.June, 1)

	err := store.EnqueueJob(ctx, queue.Job{
		ID: "job-1", Type: "close-account", Status: queue.StatusPending,
		RunAt: now, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Failed to enqueue job: %v", err)
	}

	if _, err := store.ClaimDueJobs(ctx, now, 1); err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if err := store.MarkJobRetry(ctx, "job-1", 1, now.Add(time.Minute), "transient"); err != nil {
		t.Fatalf("MarkJobRetry failed: %v", err)
	}

	// Not due yet.
	claimed, err := store.ClaimDueJobs(ctx, now, 1)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("retried job claimed before its backoff elapsed")
	}

	// Due after backoff.
	claimed, err = store.ClaimDueJobs(ctx, now.Add(2*time.Minute), 1)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].Attempts != 1 {
		t.Fatalf("expected the retried job with 1 attempt, got %+v", claimed)
	}

	if err := store.MarkJobFailed(ctx, "job-1", 2, "permanent"); err != nil {
		t.Fatalf("MarkJobFailed failed: %v", err)
	}
	claimed, err = store.ClaimDueJobs(ctx, now.Add(time.Hour), 1)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("failed job must never be claimed again")
	}
}
