/*
Package docgen renders closing statements into retrievable documents.

The Generator contract is what the period closer depends on; the file
implementation writes a plain-text statement into a configured directory and
derives a durable URL from a public base. A PDF renderer slots in behind the
same interface.
*/
package docgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/illeiva2/cuentas-bot/ledger"
)

// Generator turns a statement plus its ordered transactions into a durable,
// retrievable URL.
type Generator interface {
	Render(ctx context.Context, holder ledger.Holder, st ledger.Statement, txs []ledger.Transaction) (url string, err error)
}

// =============================================================================
// FILE GENERATOR
// =============================================================================

// FileGenerator writes text statements under Dir and serves them at BaseURL.
type FileGenerator struct {
	Dir     string
	BaseURL string
}

func NewFileGenerator(dir, baseURL string) (*FileGenerator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	return &FileGenerator{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (g *FileGenerator) Render(_ context.Context, holder ledger.Holder, st ledger.Statement, txs []ledger.Transaction) (string, error) {
	name := fmt.Sprintf("resumen-%s-%s.txt", holder.Code, st.PeriodEnd.Format("2006-01"))

	var b strings.Builder
	fmt.Fprintf(&b, "RESUMEN DE CUENTA CORRIENTE\n")
	fmt.Fprintf(&b, "Titular: %s (legajo %s)\n", holder.FullName, holder.Code)
	fmt.Fprintf(&b, "Período: %s al %s\n\n",
		st.PeriodStart.Format("02/01/2006"), st.PeriodEnd.Format("02/01/2006"))

	totals := make(map[ledger.Category]int64)
	for _, tx := range txs {
		desc := tx.Description
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(&b, "%s  %-14s %-32s %14s\n",
			tx.PostedAt.Format("02/01/2006"), tx.Category.Label(), desc, money(tx.AmountCents))
		totals[tx.Category] += tx.AmountCents
	}

	b.WriteString("\nTotales por rubro:\n")
	for _, c := range ledger.Categories() {
		if amount, ok := totals[c]; ok {
			fmt.Fprintf(&b, "  %-16s %14s\n", c.Label(), money(amount))
		}
	}
	fmt.Fprintf(&b, "\nSALDO AL CIERRE: %s\n", money(st.ClosingBalanceCents))

	path := filepath.Join(g.Dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write statement document: %w", err)
	}
	return g.BaseURL + "/" + name, nil
}

// money formats cents with two decimal places. Presentation only; sums are
// done upstream in int64.
func money(cents int64) string {
	return "$" + decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}
