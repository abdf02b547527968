/*
Package meta implements transport.Sender against a WhatsApp-Cloud-style
provider HTTP API.

DESIGN:
  One JSON endpoint per phone-number id; message kind selected by the "type"
  field. Requests retry with linear backoff on network errors and 5xx - 4xx
  means the payload is wrong and retrying cannot help.
*/
package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/illeiva2/cuentas-bot/transport"
)

// =============================================================================
// CLIENT
// =============================================================================

type Config struct {
	BaseURL       string        `yaml:"base_url"`
	PhoneNumberID string        `yaml:"phone_number_id"`
	Token         string        `yaml:"token"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

type Client struct {
	baseURL    string
	phoneID    string
	token      string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 3
	}
	delay := cfg.RetryDelay
	if delay == 0 {
		delay = 2 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		phoneID:    cfg.PhoneNumberID,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: retries,
		retryDelay: delay,
		logger:     logger.With().Str("component", "meta-client").Logger(),
	}
}

// =============================================================================
// MESSAGE PAYLOADS
// =============================================================================

type message struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *textBody    `json:"text,omitempty"`
	Interactive      *interactive `json:"interactive,omitempty"`
	Document         *document    `json:"document,omitempty"`
}

type textBody struct {
	Body string `json:"body"`
}

type interactive struct {
	Type   string      `json:"type"` // "button" or "list"
	Body   textBody    `json:"body"`
	Action interAction `json:"action"`
}

type interAction struct {
	Buttons  []button  `json:"buttons,omitempty"`
	Button   string    `json:"button,omitempty"`
	Sections []section `json:"sections,omitempty"`
}

type button struct {
	Type  string      `json:"type"`
	Reply buttonReply `json:"reply"`
}

type buttonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type section struct {
	Title string `json:"title"`
	Rows  []row  `json:"rows"`
}

type row struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type document struct {
	Link     string `json:"link"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// =============================================================================
// SENDER IMPLEMENTATION
// =============================================================================

func (c *Client) SendText(ctx context.Context, address, body string) error {
	return c.send(ctx, message{
		MessagingProduct: "whatsapp",
		To:               address,
		Type:             "text",
		Text:             &textBody{Body: body},
	})
}

func (c *Client) SendButtons(ctx context.Context, address, body string, choices []transport.Choice) error {
	if len(choices) > transport.MaxButtons {
		choices = choices[:transport.MaxButtons]
	}
	btns := make([]button, len(choices))
	for i, ch := range choices {
		btns[i] = button{
			Type: "reply",
			Reply: buttonReply{
				ID:    ch.ID,
				Title: transport.Truncate(ch.Title, transport.MaxButtonTitleLen),
			},
		}
	}
	return c.send(ctx, message{
		MessagingProduct: "whatsapp",
		To:               address,
		Type:             "interactive",
		Interactive: &interactive{
			Type:   "button",
			Body:   textBody{Body: body},
			Action: interAction{Buttons: btns},
		},
	})
}

func (c *Client) SendList(ctx context.Context, address, body, buttonLabel string, sections []transport.ListSection) error {
	if len(sections) > transport.MaxListSections {
		sections = sections[:transport.MaxListSections]
	}
	secs := make([]section, len(sections))
	for i, s := range sections {
		rows := s.Rows
		if len(rows) > transport.MaxListRows {
			rows = rows[:transport.MaxListRows]
		}
		out := make([]row, len(rows))
		for j, r := range rows {
			out[j] = row{
				ID:          r.ID,
				Title:       transport.Truncate(r.Title, transport.MaxListRowTitleLen),
				Description: transport.Truncate(r.Description, transport.MaxListRowDescLen),
			}
		}
		secs[i] = section{Title: s.Title, Rows: out}
	}
	return c.send(ctx, message{
		MessagingProduct: "whatsapp",
		To:               address,
		Type:             "interactive",
		Interactive: &interactive{
			Type:   "list",
			Body:   textBody{Body: body},
			Action: interAction{Button: buttonLabel, Sections: secs},
		},
	})
}

func (c *Client) SendDocument(ctx context.Context, address, url, filename, caption string) error {
	return c.send(ctx, message{
		MessagingProduct: "whatsapp",
		To:               address,
		Type:             "document",
		Document:         &document{Link: url, Filename: filename, Caption: caption},
	})
}

// send posts the message with retries on network errors and 5xx.
func (c *Client) send(ctx context.Context, msg message) error {
	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("send failed, retrying")
			continue
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("provider returned %d: %s", resp.StatusCode, respBody)
			c.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("provider error, retrying")
		default:
			// 4xx: our payload is wrong, retrying cannot help.
			return fmt.Errorf("provider rejected message (%d): %s", resp.StatusCode, respBody)
		}
	}
	return fmt.Errorf("send to %s failed after %d attempts: %w", msg.To, c.maxRetries, lastErr)
}
