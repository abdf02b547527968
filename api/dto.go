/*
dto.go - JSON shapes for the back-office API and the provider webhook

The webhook types mirror the provider's nested envelope (entry -> changes
-> value -> messages); events() flattens that into the transport events
the conversation machine consumes.
*/
package api

import (
	"time"

	"github.com/illeiva2/cuentas-bot/ledger"
	"github.com/illeiva2/cuentas-bot/transport"
)

// =============================================================================
// BACK-OFFICE DTOS
// =============================================================================

type holderDTO struct {
	ID         string    `json:"id"`
	NationalID string    `json:"national_id"`
	FullName   string    `json:"full_name"`
	Code       string    `json:"code"`
	Address    string    `json:"address,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func toHolderDTO(h ledger.Holder) holderDTO {
	return holderDTO{
		ID:         string(h.ID),
		NationalID: h.NationalID,
		FullName:   h.FullName,
		Code:       h.Code,
		Address:    h.Address,
		Status:     string(h.Status),
		CreatedAt:  h.CreatedAt,
	}
}

type createHolderRequest struct {
	NationalID string `json:"national_id"`
	FullName   string `json:"full_name"`
	Code       string `json:"code"`
	ClosingDay int    `json:"closing_day"`
}

type createHolderResponse struct {
	Holder    holderDTO `json:"holder"`
	AccountID string    `json:"account_id"`
}

type balanceDTO struct {
	AccountID    string `json:"account_id"`
	BalanceCents int64  `json:"balance_cents"`
}

type closeRequest struct {
	ClosingDate time.Time `json:"closing_date"`
}

type enqueueResponse struct {
	JobID string `json:"job_id"`
}

type correctTransactionRequest struct {
	AccountID   string          `json:"account_id"`
	Category    ledger.Category `json:"category"`
	AmountCents int64           `json:"amount_cents"`
	PostedAt    time.Time       `json:"posted_at"`
	Description string          `json:"description"`
	SourceRef   string          `json:"source_ref"`
}

type statementDTO struct {
	ID                  string    `json:"id"`
	AccountID           string    `json:"account_id"`
	PeriodStart         time.Time `json:"period_start"`
	PeriodEnd           time.Time `json:"period_end"`
	ClosingBalanceCents int64     `json:"closing_balance_cents"`
	DocumentURL         string    `json:"document_url,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

func toStatementDTO(s ledger.Statement) statementDTO {
	return statementDTO{
		ID:                  string(s.ID),
		AccountID:           string(s.AccountID),
		PeriodStart:         s.PeriodStart,
		PeriodEnd:           s.PeriodEnd,
		ClosingBalanceCents: s.ClosingBalanceCents,
		DocumentURL:         s.DocumentURL,
		CreatedAt:           s.CreatedAt,
	}
}

type caseDTO struct {
	ID          string    `json:"id"`
	HolderID    string    `json:"holder_id"`
	Topic       string    `json:"topic"`
	Status      string    `json:"status"`
	LastMessage string    `json:"last_message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toCaseDTO(c ledger.Case) caseDTO {
	return caseDTO{
		ID:          string(c.ID),
		HolderID:    string(c.HolderID),
		Topic:       string(c.Topic),
		Status:      string(c.Status),
		LastMessage: c.LastMessage,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// =============================================================================
// WEBHOOK ENVELOPE
// =============================================================================

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive struct {
		Type        string `json:"type"`
		ButtonReply struct {
			ID string `json:"id"`
		} `json:"button_reply"`
		ListReply struct {
			ID string `json:"id"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// events flattens the envelope. Statuses, reactions and media messages
// produce no event.
func (p webhookPayload) events() []transport.Event {
	var out []transport.Event
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				ev, ok := msg.event()
				if ok {
					out = append(out, ev)
				}
			}
		}
	}
	return out
}

func (m webhookMessage) event() (transport.Event, bool) {
	switch m.Type {
	case "text":
		return transport.Event{
			Address: m.From,
			Text:    m.Text.Body,
			Kind:    transport.KindFreeText,
		}, true
	case "interactive":
		id := m.Interactive.ButtonReply.ID
		if m.Interactive.Type == "list_reply" {
			id = m.Interactive.ListReply.ID
		}
		if id == "" {
			return transport.Event{}, false
		}
		return transport.Event{
			Address: m.From,
			Text:    id,
			Kind:    transport.KindChoice,
		}, true
	default:
		return transport.Event{}, false
	}
}
