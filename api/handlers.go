/*
handlers.go - HTTP handlers for webhook and back-office operations

PATTERN:
  Parse/validate -> call domain logic -> serialize. Business errors map to
  400/404/409; everything else is a 500 with the detail kept in the logs,
  not the response.
*/
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/illeiva2/cuentas-bot/bulkimport"
	"github.com/illeiva2/cuentas-bot/closing"
	"github.com/illeiva2/cuentas-bot/conversation"
	"github.com/illeiva2/cuentas-bot/identity"
	"github.com/illeiva2/cuentas-bot/ledger"
	"github.com/illeiva2/cuentas-bot/queue"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

type Handler struct {
	Store    ledger.Store
	Engine   *ledger.Engine
	Resolver *identity.Resolver
	Machine  *conversation.Machine
	Importer *bulkimport.Importer
	Queue    *queue.Runner

	// VerifyToken authenticates the provider's webhook challenge; APIToken
	// protects the back-office routes.
	VerifyToken string
	APIToken    string

	Log zerolog.Logger
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.Log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(token) > len(prefix) {
			token = token[len(prefix):]
		}
		if h.APIToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.APIToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// WEBHOOK
// =============================================================================

// VerifyWebhook answers the provider's subscription challenge.
func (h *Handler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.VerifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	writeError(w, http.StatusForbidden, "verification failed", nil)
}

// ReceiveWebhook normalizes provider payloads into events and dispatches
// them to the conversation machine. Always answers 200 quickly: the
// provider retries non-2xx, and the machine owns per-address ordering.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		// Unparseable payloads get a 200 too; there is nothing to retry.
		h.Log.Warn().Err(err).Msg("unparseable webhook payload")
		w.WriteHeader(http.StatusOK)
		return
	}

	// The request context dies as soon as we answer 200, so the machine
	// runs on a detached context that keeps the request's values.
	ctx := context.WithoutCancel(r.Context())
	for _, ev := range payload.events() {
		ev := ev
		go h.Machine.Handle(ctx, ev)
	}
	w.WriteHeader(http.StatusOK)
}

// =============================================================================
// HOLDERS
// =============================================================================

func (h *Handler) ListHolders(w http.ResponseWriter, r *http.Request) {
	holders, err := h.Store.ListHolders(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list holders", err)
		return
	}
	dtos := make([]holderDTO, len(holders))
	for i, holder := range holders {
		dtos[i] = toHolderDTO(holder)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateHolder(w http.ResponseWriter, r *http.Request) {
	var req createHolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	holder, account, err := h.Resolver.Register(r.Context(), req.NationalID, req.FullName, req.Code, req.ClosingDay)
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid national id", err)
		return
	case errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, "national id, code or address already registered", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to create holder", err)
		return
	}

	writeJSON(w, http.StatusCreated, createHolderResponse{
		Holder:    toHolderDTO(holder),
		AccountID: string(account.ID),
	})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	holderID := ledger.HolderID(chi.URLParam(r, "id"))
	account, err := h.Store.AccountByHolder(r.Context(), holderID)
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "holder not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load account", err)
		return
	}

	balance, err := h.Engine.ComputeBalance(r.Context(), account.ID, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balanceDTO{
		AccountID:    string(account.ID),
		BalanceCents: balance,
	})
}

// =============================================================================
// CLOSES
// =============================================================================

func (h *Handler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	closingDate, ok := h.parseClosingDate(w, r)
	if !ok {
		return
	}

	payload, _ := json.Marshal(closing.CloseAccountPayload{AccountID: accountID, ClosingDate: closingDate})
	jobID, err := h.Queue.Enqueue(r.Context(), closing.JobCloseAccount, payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue close", err)
		return
	}
	writeJSON(w, http.StatusAccepted, enqueueResponse{JobID: string(jobID)})
}

func (h *Handler) CloseAll(w http.ResponseWriter, r *http.Request) {
	closingDate, ok := h.parseClosingDate(w, r)
	if !ok {
		return
	}

	payload, _ := json.Marshal(closing.CloseAllPayload{ClosingDate: closingDate})
	jobID, err := h.Queue.Enqueue(r.Context(), closing.JobCloseAll, payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue close", err)
		return
	}
	writeJSON(w, http.StatusAccepted, enqueueResponse{JobID: string(jobID)})
}

// parseClosingDate reads {"closing_date": ...}; an empty body means "now".
func (h *Handler) parseClosingDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body", err)
		return time.Time{}, false
	}

	var req closeRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body", err)
			return time.Time{}, false
		}
	}
	if req.ClosingDate.IsZero() {
		return time.Now().UTC(), true
	}
	return req.ClosingDate.UTC(), true
}

func (h *Handler) ListStatements(w http.ResponseWriter, r *http.Request) {
	accountID := ledger.AccountID(chi.URLParam(r, "id"))
	statements, err := h.Store.ListStatements(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list statements", err)
		return
	}
	dtos := make([]statementDTO, len(statements))
	for i, st := range statements {
		dtos[i] = toStatementDTO(st)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// CorrectTransaction applies a back-office correction to a posted
// transaction. Corrections rewrite the row in place; postings are never
// deleted.
func (h *Handler) CorrectTransaction(w http.ResponseWriter, r *http.Request) {
	txID := ledger.TransactionID(chi.URLParam(r, "id"))

	var req correctTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	if !ledger.ValidCategory(req.Category) {
		writeError(w, http.StatusBadRequest, "unknown category", nil)
		return
	}
	if req.PostedAt.IsZero() {
		writeError(w, http.StatusBadRequest, "posted_at is required", nil)
		return
	}

	tx := ledger.Transaction{
		ID:          txID,
		AccountID:   ledger.AccountID(req.AccountID),
		Category:    req.Category,
		AmountCents: req.AmountCents,
		PostedAt:    req.PostedAt.UTC(),
		Description: req.Description,
		SourceRef:   req.SourceRef,
	}
	err := h.Store.UpdateTransaction(r.Context(), tx)
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transaction not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// =============================================================================
// IMPORTS
// =============================================================================

// Import ingests a CSV body. ?validate=true parses without writing.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	rt := bulkimport.RecordType(chi.URLParam(r, "recordType"))

	if r.URL.Query().Get("validate") == "true" {
		v, err := h.Importer.Validate(r.Body, rt)
		if errors.Is(err, ledger.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "unknown record type", err)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "validation failed", err)
			return
		}
		writeJSON(w, http.StatusOK, v)
		return
	}

	res, err := h.Importer.Process(r.Context(), r.Body, rt)
	if errors.Is(err, ledger.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, "unknown record type", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "import failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// CASES
// =============================================================================

func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	var filter *ledger.CaseStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status := ledger.CaseStatus(s)
		filter = &status
	}
	cases, err := h.Store.ListCases(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list cases", err)
		return
	}
	dtos := make([]caseDTO, len(cases))
	for i, c := range cases {
		dtos[i] = toCaseDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CloseCase resolves a case and, when the holder was handed off, returns
// the chat to the bot.
func (h *Handler) CloseCase(w http.ResponseWriter, r *http.Request) {
	caseID := ledger.CaseID(chi.URLParam(r, "id"))
	c, err := h.Store.Case(r.Context(), caseID)
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "case not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load case", err)
		return
	}

	if !c.CanTransition(ledger.CaseClosed) {
		writeError(w, http.StatusConflict, "case already closed", nil)
		return
	}
	c.Status = ledger.CaseClosed
	c.UpdatedAt = time.Now().UTC()
	if err := h.Store.UpdateCase(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update case", err)
		return
	}

	if holder, err := h.Store.Holder(r.Context(), c.HolderID); err == nil && holder.Bound() {
		h.Machine.Reset(holder.Address)
	}

	writeJSON(w, http.StatusOK, toCaseDTO(c))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	body := map[string]string{"error": msg}
	if err != nil && status < http.StatusInternalServerError {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}
