/*
importer_test.go - CSV ingestion tests

Tests for:
- Holder upsert by code and transaction append by holder code
- Malformed rows: skipped, tallied, never abort the batch
- Validate: parse-only, no writes
*/
package bulkimport_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/illeiva2/cuentas-bot/bulkimport"
	"github.com/illeiva2/cuentas-bot/ledger"
	"github.com/illeiva2/cuentas-bot/store/memory"
)

func newImporter(t *testing.T) (*bulkimport.Importer, *memory.Store) {
	t.Helper()
	store := memory.New()
	return bulkimport.NewImporter(store, zerolog.Nop()), store
}

// =============================================================================
// HOLDERS
// =============================================================================

func TestProcess_HoldersCreateAndUpdate(t *testing.T) {
	// GIVEN: A holders file with a header, a new row and a closing-day row
	// WHEN: Processing it twice, the second time with a changed name
	// THEN: First pass creates holder + account, second pass updates in place
	im, store := newImporter(t)
	ctx := context.Background()

	csv := "code,national_id,full_name,closing_day\n" +
		"E-100,30123456,Maria Gomez,15\n" +
		"E-200,28555444,Juan Perez\n"

	res, err := im.Process(ctx, strings.NewReader(csv), bulkimport.RecordHolders)
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	require.Equal(t, 2, res.Succeeded)
	require.Zero(t, res.Failed)

	h, err := store.HolderByCode(ctx, "E-100")
	require.NoError(t, err)
	require.Equal(t, "Maria Gomez", h.FullName)

	a, err := store.AccountByHolder(ctx, h.ID)
	require.NoError(t, err)
	require.Equal(t, 15, a.ClosingDay)

	// Re-import with a corrected name: update, not duplicate.
	res, err = im.Process(ctx, strings.NewReader("E-100,30123456,Maria Gomez de Perez\n"), bulkimport.RecordHolders)
	require.NoError(t, err)
	require.Equal(t, 1, res.Succeeded)

	h, err = store.HolderByCode(ctx, "E-100")
	require.NoError(t, err)
	require.Equal(t, "Maria Gomez de Perez", h.FullName)

	holders, err := store.ListHolders(ctx)
	require.NoError(t, err)
	require.Len(t, holders, 2)
}

func TestProcess_MalformedHolderRowsAreSkipped(t *testing.T) {
	// GIVEN: A file mixing good rows with short rows and bad documents
	// WHEN: Processing
	// THEN: The batch completes, failures carry row numbers, good rows land
	im, store := newImporter(t)

	csv := "E-100,30123456,Maria Gomez\n" +
		"E-200,not-a-document,Juan Perez\n" +
		"E-300\n" +
		"E-400,27111222,Ana Diaz\n"

	res, err := im.Process(context.Background(), strings.NewReader(csv), bulkimport.RecordHolders)
	require.NoError(t, err)
	require.Equal(t, 4, res.Total)
	require.Equal(t, 2, res.Succeeded)
	require.Equal(t, 2, res.Failed)
	require.Len(t, res.Errors, 2)
	require.Equal(t, 2, res.Errors[0].Row)
	require.Equal(t, 3, res.Errors[1].Row)

	holders, err := store.ListHolders(context.Background())
	require.NoError(t, err)
	require.Len(t, holders, 2)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestProcess_TransactionsAppendByHolderCode(t *testing.T) {
	// GIVEN: An imported holder and a transactions file with integer cents
	// WHEN: Processing
	// THEN: Transactions land on the holder's account with exact amounts
	im, store := newImporter(t)
	ctx := context.Background()

	_, err := im.Process(ctx, strings.NewReader("E-100,30123456,Maria Gomez\n"), bulkimport.RecordHolders)
	require.NoError(t, err)

	csv := "holder_code,category,amount_cents,posted_at,description,source_ref\n" +
		"E-100,panaderia,150000,2025-01-05,Pan y facturas,PLAN-01\n" +
		"E-100,adelanto,-50000,2025-01-10T12:30:00Z,Adelanto de sueldo\n"

	res, err := im.Process(ctx, strings.NewReader(csv), bulkimport.RecordTransactions)
	require.NoError(t, err)
	require.Equal(t, 2, res.Succeeded)

	h, err := store.HolderByCode(ctx, "E-100")
	require.NoError(t, err)
	a, err := store.AccountByHolder(ctx, h.ID)
	require.NoError(t, err)

	sum, err := store.SumCents(ctx, a.ID, nil)
	require.NoError(t, err)
	require.Equal(t, int64(100000), sum)

	txs, err := store.TransactionsInRange(ctx, a.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, ledger.CategoryBakery, txs[0].Category)
	require.Equal(t, "PLAN-01", txs[0].SourceRef)
}

func TestProcess_TransactionRowFailures(t *testing.T) {
	// GIVEN: Rows with an unknown holder, a bad category, a decimal amount
	//        and one good row
	// WHEN: Processing
	// THEN: Only the good row lands; each failure is reported once
	im, store := newImporter(t)
	ctx := context.Background()

	_, err := im.Process(ctx, strings.NewReader("E-100,30123456,Maria Gomez\n"), bulkimport.RecordHolders)
	require.NoError(t, err)

	csv := "E-999,panaderia,1000,2025-01-05\n" +
		"E-100,joyeria,1000,2025-01-05\n" +
		"E-100,panaderia,10.50,2025-01-05\n" +
		"E-100,panaderia,1000,2025-01-05\n"

	res, err := im.Process(ctx, strings.NewReader(csv), bulkimport.RecordTransactions)
	require.NoError(t, err)
	require.Equal(t, 4, res.Total)
	require.Equal(t, 1, res.Succeeded)
	require.Equal(t, 3, res.Failed)

	h, _ := store.HolderByCode(ctx, "E-100")
	a, _ := store.AccountByHolder(ctx, h.ID)
	sum, err := store.SumCents(ctx, a.ID, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1000), sum)
}

// =============================================================================
// VALIDATE
// =============================================================================

func TestValidate_ReportsWithoutWriting(t *testing.T) {
	// GIVEN: A transactions file with one bad row
	// WHEN: Validating
	// THEN: The report flags the row; the store stays empty
	im, store := newImporter(t)

	csv := "E-100,panaderia,1000,2025-01-05\n" +
		"E-100,panaderia,diez,2025-01-05\n"

	v, err := im.Validate(strings.NewReader(csv), bulkimport.RecordTransactions)
	require.NoError(t, err)
	require.False(t, v.Valid)
	require.Equal(t, 2, v.RowCount)
	require.Len(t, v.Errors, 1)
	require.Equal(t, 2, v.Errors[0].Row)

	holders, err := store.ListHolders(context.Background())
	require.NoError(t, err)
	require.Empty(t, holders)
}

func TestProcess_UnknownRecordType(t *testing.T) {
	im, _ := newImporter(t)
	_, err := im.Process(context.Background(), strings.NewReader(""), "payrolls")
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
}
