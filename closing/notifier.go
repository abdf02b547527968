package closing

import (
	"context"
	"fmt"

	"github.com/illeiva2/cuentas-bot/ledger"
	"github.com/illeiva2/cuentas-bot/transport"
)

// ChatNotifier sends the close notice through the chat channel. If the
// statement already carries a document URL the file goes along with it.
type ChatNotifier struct {
	Sender transport.Sender
}

func (n *ChatNotifier) NotifyClosed(ctx context.Context, holder ledger.Holder, st ledger.Statement) error {
	body := fmt.Sprintf(
		"Hola %s, se cerró tu período del %s al %s. Podés consultar el resumen escribiendo *resumen*.",
		holder.FullName,
		st.PeriodStart.Format("02/01/2006"),
		st.PeriodEnd.Format("02/01/2006"))

	if st.DocumentURL != "" {
		filename := fmt.Sprintf("resumen-%s.txt", st.PeriodEnd.Format("2006-01"))
		return n.Sender.SendDocument(ctx, holder.Address, st.DocumentURL, filename, body)
	}
	return n.Sender.SendText(ctx, holder.Address, body)
}
