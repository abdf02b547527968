/*
Package bulkimport ingests back-office CSV files.

RECORD TYPES:
  holders:       code,national_id,full_name[,closing_day]
                 upserted by code - an existing code updates name/national
                 ID, a new one creates holder + account atomically.
  transactions:  holder_code,category,amount_cents,posted_at,description[,source_ref]
                 appended to the holder's account; amounts are integer
                 cents, posted_at is RFC 3339 or YYYY-MM-DD.

FAILURE MODEL:
  Malformed rows are skipped and recorded with their row number; the batch
  always completes and reports a tally. A broken row never aborts the file.
*/
package bulkimport

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/illeiva2/cuentas-bot/identity"
	"github.com/illeiva2/cuentas-bot/ledger"
)

type RecordType string

const (
	RecordHolders      RecordType = "holders"
	RecordTransactions RecordType = "transactions"
)

type RowError struct {
	Row int    `json:"row"`
	Msg string `json:"msg"`
}

type Validation struct {
	Valid    bool       `json:"valid"`
	RowCount int        `json:"row_count"`
	Errors   []RowError `json:"errors,omitempty"`
}

type Result struct {
	Total     int        `json:"total"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Errors    []RowError `json:"errors,omitempty"`
}

// =============================================================================
// IMPORTER
// =============================================================================

type Importer struct {
	store ledger.Store
	log   zerolog.Logger
}

func NewImporter(store ledger.Store, log zerolog.Logger) *Importer {
	return &Importer{store: store, log: log.With().Str("component", "bulkimport").Logger()}
}

// Validate parses the file without writing anything.
func (im *Importer) Validate(r io.Reader, rt RecordType) (Validation, error) {
	rows, errs, err := im.parse(r, rt)
	if err != nil {
		return Validation{}, err
	}
	return Validation{Valid: len(errs) == 0, RowCount: rows, Errors: errs}, nil
}

// Process parses and applies the file. Row failures (parse or store) are
// collected; the batch never aborts.
func (im *Importer) Process(ctx context.Context, r io.Reader, rt RecordType) (Result, error) {
	switch rt {
	case RecordHolders:
		return im.processRows(r, func(row []string) error { return im.upsertHolder(ctx, row) })
	case RecordTransactions:
		return im.processRows(r, func(row []string) error { return im.appendTransaction(ctx, row) })
	default:
		return Result{}, fmt.Errorf("%w: unknown record type %q", ledger.ErrInvalidInput, rt)
	}
}

func (im *Importer) processRows(r io.Reader, apply func([]string) error) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var res Result
	rowNum := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			res.Total++
			res.Failed++
			res.Errors = append(res.Errors, RowError{Row: rowNum, Msg: err.Error()})
			continue
		}
		if rowNum == 1 && isHeader(row) {
			continue
		}
		res.Total++
		if err := apply(row); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, RowError{Row: rowNum, Msg: err.Error()})
			continue
		}
		res.Succeeded++
	}

	im.log.Info().Int("total", res.Total).Int("succeeded", res.Succeeded).Int("failed", res.Failed).Msg("import processed")
	return res, nil
}

func (im *Importer) parse(r io.Reader, rt RecordType) (rows int, errs []RowError, err error) {
	var check func([]string) error
	switch rt {
	case RecordHolders:
		check = parseHolderRow
	case RecordTransactions:
		check = func(row []string) error { _, err := parseTransactionRow(row); return err }
	default:
		return 0, nil, fmt.Errorf("%w: unknown record type %q", ledger.ErrInvalidInput, rt)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rowNum := 0
	for {
		row, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		rowNum++
		if readErr != nil {
			rows++
			errs = append(errs, RowError{Row: rowNum, Msg: readErr.Error()})
			continue
		}
		if rowNum == 1 && isHeader(row) {
			continue
		}
		rows++
		if err := check(row); err != nil {
			errs = append(errs, RowError{Row: rowNum, Msg: err.Error()})
		}
	}
	return rows, errs, nil
}

// isHeader sniffs a leading header row (no digits in the amount/ID-ish
// columns).
func isHeader(row []string) bool {
	for _, f := range row {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "code" || f == "codigo" || f == "holder_code" || f == "national_id" {
			return true
		}
	}
	return false
}

// =============================================================================
// ROW APPLICATION
// =============================================================================

func parseHolderRow(row []string) error {
	if len(row) < 3 {
		return fmt.Errorf("%w: expected code,national_id,full_name", ledger.ErrInvalidInput)
	}
	if !identity.ValidNationalID(strings.TrimSpace(row[1])) {
		return fmt.Errorf("%w: bad national id %q", ledger.ErrInvalidInput, row[1])
	}
	if strings.TrimSpace(row[0]) == "" || strings.TrimSpace(row[2]) == "" {
		return fmt.Errorf("%w: empty code or name", ledger.ErrInvalidInput)
	}
	return nil
}

func (im *Importer) upsertHolder(ctx context.Context, row []string) error {
	if err := parseHolderRow(row); err != nil {
		return err
	}
	code := strings.TrimSpace(row[0])
	nationalID := strings.TrimSpace(row[1])
	fullName := strings.TrimSpace(row[2])
	closingDay := ledger.DefaultClosingDay
	if len(row) > 3 && strings.TrimSpace(row[3]) != "" {
		d, err := strconv.Atoi(strings.TrimSpace(row[3]))
		if err != nil {
			return fmt.Errorf("%w: bad closing day %q", ledger.ErrInvalidInput, row[3])
		}
		closingDay = d
	}

	existing, err := im.store.HolderByCode(ctx, code)
	if err == nil {
		existing.NationalID = nationalID
		existing.FullName = fullName
		return im.store.UpdateHolder(ctx, existing)
	}

	now := time.Now().UTC()
	h := ledger.Holder{
		ID:         ledger.HolderID(uuid.NewString()),
		NationalID: nationalID,
		FullName:   fullName,
		Code:       code,
		Status:     ledger.HolderActive,
		CreatedAt:  now,
	}
	a := ledger.Account{
		ID:         ledger.AccountID(uuid.NewString()),
		HolderID:   h.ID,
		ClosingDay: closingDay,
		CreatedAt:  now,
	}
	return im.store.CreateHolder(ctx, h, a)
}

type transactionRow struct {
	holderCode  string
	category    ledger.Category
	amountCents int64
	postedAt    time.Time
	description string
	sourceRef   string
}

func parseTransactionRow(row []string) (transactionRow, error) {
	if len(row) < 4 {
		return transactionRow{}, fmt.Errorf("%w: expected holder_code,category,amount_cents,posted_at", ledger.ErrInvalidInput)
	}
	out := transactionRow{
		holderCode: strings.TrimSpace(row[0]),
		category:   ledger.Category(strings.ToLower(strings.TrimSpace(row[1]))),
	}
	if out.holderCode == "" {
		return transactionRow{}, fmt.Errorf("%w: empty holder code", ledger.ErrInvalidInput)
	}
	if !ledger.ValidCategory(out.category) {
		return transactionRow{}, fmt.Errorf("%w: unknown category %q", ledger.ErrInvalidInput, row[1])
	}

	cents, err := strconv.ParseInt(strings.TrimSpace(row[2]), 10, 64)
	if err != nil {
		return transactionRow{}, fmt.Errorf("%w: bad amount %q (integer cents expected)", ledger.ErrInvalidInput, row[2])
	}
	out.amountCents = cents

	out.postedAt, err = parseDate(strings.TrimSpace(row[3]))
	if err != nil {
		return transactionRow{}, fmt.Errorf("%w: bad posted_at %q", ledger.ErrInvalidInput, row[3])
	}

	if len(row) > 4 {
		out.description = strings.TrimSpace(row[4])
	}
	if len(row) > 5 {
		out.sourceRef = strings.TrimSpace(row[5])
	}
	return out, nil
}

func (im *Importer) appendTransaction(ctx context.Context, row []string) error {
	parsed, err := parseTransactionRow(row)
	if err != nil {
		return err
	}
	holder, err := im.store.HolderByCode(ctx, parsed.holderCode)
	if err != nil {
		return fmt.Errorf("holder %q: %w", parsed.holderCode, err)
	}
	account, err := im.store.AccountByHolder(ctx, holder.ID)
	if err != nil {
		return fmt.Errorf("account for holder %q: %w", parsed.holderCode, err)
	}
	return im.store.AddTransaction(ctx, ledger.Transaction{
		ID:          ledger.TransactionID(uuid.NewString()),
		AccountID:   account.ID,
		Category:    parsed.category,
		AmountCents: parsed.amountCents,
		PostedAt:    parsed.postedAt,
		Description: parsed.description,
		SourceRef:   parsed.sourceRef,
		CreatedAt:   time.Now().UTC(),
	})
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
