/*
render.go - Outbound message texts and menu construction

All user-facing copy lives here, plus the fixed keyword table for free-text
dispatch. Matching is case-insensitive substring over a small closed set; no
NLP, by scope.
*/
package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/illeiva2/cuentas-bot/ledger"
	"github.com/illeiva2/cuentas-bot/transport"
)

// Structured ids the machine generates and later expects back.
const (
	idConfirmYesPrefix = "confirm-yes:"
	idConfirmNo        = "confirm-no"
	idMenuSummary      = "menu:summary"
	idMenuDetail       = "menu:detail"
	idMenuDispute      = "menu:dispute"
	idMenuHandoff      = "menu:handoff"
	idCategoryPrefix   = "cat:"
)

// =============================================================================
// TEXTS
// =============================================================================

const (
	msgAskID = "¡Hola! Soy el asistente de cuenta corriente. " +
		"Para identificarte, escribime tu número de documento (sin puntos)."
	msgInvalidID = "Ese número no parece un documento válido. " +
		"Escribí solo los dígitos, por ejemplo: 30123456."
	msgIDNotFound = "No encontré ese documento en el sistema. " +
		"Verificá el número o consultá en administración."
	msgNotYou        = "Sin problema. Escribí tu número de documento para intentar de nuevo."
	msgAlreadyLinked = "Ese legajo ya está vinculado a otro teléfono. " +
		"Si cambiaste de número, consultá en administración."
	msgDisputePrompt = "Contame brevemente cuál es el consumo que querés revisar " +
		"(fecha, rubro y monto si los tenés)."
	msgHandoff = "Listo, le paso tu consulta a una persona del equipo. " +
		"Te van a responder por este mismo chat."
	msgGenericError = "Ups, tuve un problema procesando tu mensaje. " +
		"Probá de nuevo en unos minutos."
	msgMenuBody   = "¿Qué querés hacer?"
	msgMenuButton = "Ver opciones"
)

func msgWelcome(name string) string {
	return fmt.Sprintf("¡Listo, %s! Quedaste identificado.", firstName(name))
}

func msgConfirmIdentity(name, redactedID string) string {
	return fmt.Sprintf("Encontré este legajo:\n*%s*\nDocumento: %s\n¿Sos vos?", name, redactedID)
}

func msgDisputeCreated(caseRef string) string {
	return fmt.Sprintf("Anotado ✅. Registré tu reclamo con el número *%s*. "+
		"Administración lo va a revisar y te contactará por acá.", caseRef)
}

func firstName(full string) string {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return full
	}
	return parts[0]
}

// =============================================================================
// MONEY / DATE FORMATTING
// =============================================================================

// formatCents renders integer cents as "$1.234,56". Decimal only touches
// presentation; all arithmetic upstream stays int64.
func formatCents(cents int64) string {
	d := decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
	s := d.StringFixed(2)

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	parts := strings.SplitN(s, ".", 2)

	// Group thousands with dots, decimal comma (es-AR convention).
	intPart := parts[0]
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "$" + b.String() + "," + parts[1]
	if neg {
		out = "-" + out
	}
	return out
}

func formatDate(t time.Time) string { return t.Format("02/01/2006") }

// =============================================================================
// MENU / VIEW BUILDERS
// =============================================================================

func mainMenuSections() []transport.ListSection {
	return []transport.ListSection{{
		Title: "Cuenta corriente",
		Rows: []transport.ListRow{
			{ID: idMenuSummary, Title: "Resumen", Description: "Saldo actual y último cierre"},
			{ID: idMenuDetail, Title: "Detalle por rubro", Description: "Consumos del período por rubro"},
			{ID: idMenuDispute, Title: "Revisar un consumo", Description: "Reportar un cargo que no reconocés"},
			{ID: idMenuHandoff, Title: "Hablar con una persona", Description: "Derivar la consulta al equipo"},
		},
	}}
}

func categorySections() []transport.ListSection {
	rows := make([]transport.ListRow, 0, len(ledger.Categories()))
	for _, c := range ledger.Categories() {
		rows = append(rows, transport.ListRow{ID: idCategoryPrefix + string(c), Title: c.Label()})
	}
	return []transport.ListSection{{Title: "Rubros", Rows: rows}}
}

func renderSummary(name string, balanceCents int64, last *ledger.Statement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s 👋\n", firstName(name))
	fmt.Fprintf(&b, "Tu saldo actual es *%s*.\n", formatCents(balanceCents))
	if last != nil {
		fmt.Fprintf(&b, "Último cierre: %s por %s.",
			formatDate(last.PeriodEnd), formatCents(last.ClosingBalanceCents))
	} else {
		b.WriteString("Todavía no tenés cierres registrados.")
	}
	return b.String()
}

func renderCategoryDetail(c ledger.Category, pd ledger.PeriodData) string {
	txs := pd.ByCategory(c)
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* — período %s al %s\n",
		c.Label(), formatDate(pd.Period.Start), formatDate(pd.Period.End))
	if len(txs) == 0 {
		b.WriteString("Sin movimientos en el período.")
		return b.String()
	}
	for _, tx := range txs {
		desc := tx.Description
		if desc == "" {
			desc = "Consumo"
		}
		fmt.Fprintf(&b, "• %s  %s  %s\n", formatDate(tx.PostedAt), desc, formatCents(tx.AmountCents))
	}
	fmt.Fprintf(&b, "Total del rubro: *%s*", formatCents(pd.TotalFor(c)))
	return b.String()
}

// =============================================================================
// KEYWORD DISPATCH - fixed fallback table for free text
// =============================================================================

type menuAction int

const (
	actionUnknown menuAction = iota
	actionSummary
	actionDetail
	actionDispute
	actionHandoff
)

// keywordTable maps lowercase substrings to actions. First match wins, in
// declaration order.
var keywordTable = []struct {
	substr string
	action menuAction
}{
	{"resumen", actionSummary},
	{"saldo", actionSummary},
	{"detalle", actionDetail},
	{"consumo", actionDetail},
	{"rubro", actionDetail},
	{"disput", actionDispute},
	{"reclam", actionDispute},
	{"revis", actionDispute},
	{"asesor", actionHandoff},
	{"humano", actionHandoff},
	{"persona", actionHandoff},
}

func keywordAction(text string) menuAction {
	t := strings.ToLower(text)
	for _, kw := range keywordTable {
		if strings.Contains(t, kw.substr) {
			return kw.action
		}
	}
	return actionUnknown
}
