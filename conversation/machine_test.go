/*
machine_test.go - Conversation state machine tests

Tests for:
- Identification: invalid documents, forged confirmation ids, the full
  confirm-and-bind path
- Main menu dispatch via structured ids and keyword fallback
- Dispute collection and human handoff, including the silenced state
- Fail-safe error handling: generic apology, state unchanged
*/
package conversation_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/illeiva2/cuentas-bot/conversation"
	"github.com/illeiva2/cuentas-bot/identity"
	"github.com/illeiva2/cuentas-bot/ledger"
	"github.com/illeiva2/cuentas-bot/store/memory"
	"github.com/illeiva2/cuentas-bot/transport"
)

// =============================================================================
// FAKE SENDER
// =============================================================================

type sentMessage struct {
	kind     string
	address  string
	body     string
	choices  []transport.Choice
	sections []transport.ListSection
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) SendText(_ context.Context, address, body string) error {
	f.record(sentMessage{kind: "text", address: address, body: body})
	return nil
}

func (f *fakeSender) SendButtons(_ context.Context, address, body string, choices []transport.Choice) error {
	f.record(sentMessage{kind: "buttons", address: address, body: body, choices: choices})
	return nil
}

func (f *fakeSender) SendList(_ context.Context, address, body, _ string, sections []transport.ListSection) error {
	f.record(sentMessage{kind: "list", address: address, body: body, sections: sections})
	return nil
}

func (f *fakeSender) SendDocument(_ context.Context, address, url, _, _ string) error {
	f.record(sentMessage{kind: "document", address: address, body: url})
	return nil
}

func (f *fakeSender) record(m sentMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
}

func (f *fakeSender) last(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("expected at least one outbound message")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// =============================================================================
// TEST HELPERS
// =============================================================================

const testAddress = "5491100000001"

type fixture struct {
	store   *memory.Store
	machine *conversation.Machine
	sender  *fakeSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	engine := ledger.NewEngine(store)
	resolver := identity.NewResolver(store, zerolog.Nop())
	sender := &fakeSender{}
	machine := conversation.NewMachine(store, engine, resolver, sender, zerolog.Nop())
	return &fixture{store: store, machine: machine, sender: sender}
}

func (fx *fixture) seedHolder(t *testing.T, address string) (ledger.Holder, ledger.Account) {
	t.Helper()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	h := ledger.Holder{
		ID:         "holder-1",
		NationalID: "30123456",
		FullName:   "Maria Gomez",
		Code:       "E-100",
		Address:    address,
		Status:     ledger.HolderActive,
		CreatedAt:  now,
	}
	a := ledger.Account{
		ID:         "account-1",
		HolderID:   h.ID,
		ClosingDay: ledger.DefaultClosingDay,
		CreatedAt:  now,
	}
	require.NoError(t, fx.store.CreateHolder(context.Background(), h, a))
	return h, a
}

func (fx *fixture) text(text string) {
	fx.machine.Handle(context.Background(), transport.Event{
		Address: testAddress, Text: text, Kind: transport.KindFreeText,
	})
}

func (fx *fixture) choice(id string) {
	fx.machine.Handle(context.Background(), transport.Event{
		Address: testAddress, Text: id, Kind: transport.KindChoice,
	})
}

// =============================================================================
// IDENTIFICATION
// =============================================================================

func TestIdentify_RejectsNonDocumentText(t *testing.T) {
	// GIVEN: An unknown address
	// WHEN: The first message is not a document number
	// THEN: The bot asks again and nothing gets bound
	fx := newFixture(t)
	fx.seedHolder(t, "")

	fx.text("hola, quiero ver mi saldo")

	msg := fx.sender.last(t)
	require.Equal(t, "text", msg.kind)
	require.Contains(t, msg.body, "documento")

	_, err := fx.store.HolderByAddress(context.Background(), testAddress)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestIdentify_UnknownDocument(t *testing.T) {
	fx := newFixture(t)
	fx.seedHolder(t, "")

	fx.text("20999999")

	msg := fx.sender.last(t)
	require.Equal(t, "text", msg.kind)
	require.Contains(t, msg.body, "No encontré")
}

func TestIdentify_ConfirmAndBind(t *testing.T) {
	// GIVEN: An unbound holder
	// WHEN: They type their document and confirm the offered identity
	// THEN: Confirm prompt shows redacted ID only, the address gets bound,
	//        and the main menu appears
	fx := newFixture(t)
	fx.seedHolder(t, "")
	ctx := context.Background()

	fx.text("30123456")

	confirm := fx.sender.last(t)
	require.Equal(t, "buttons", confirm.kind)
	require.Contains(t, confirm.body, "****3456")
	require.NotContains(t, confirm.body, "30123456")
	require.Len(t, confirm.choices, 2)
	require.Equal(t, "confirm-yes:holder-1", confirm.choices[0].ID)

	fx.choice("confirm-yes:holder-1")

	welcome := fx.sender.last(t)
	require.Equal(t, "list", welcome.kind)
	require.Contains(t, welcome.body, "Maria")

	bound, err := fx.store.HolderByAddress(ctx, testAddress)
	require.NoError(t, err)
	require.Equal(t, ledger.HolderID("holder-1"), bound.ID)
}

func TestIdentify_ForgedConfirmIDIsIgnored(t *testing.T) {
	// GIVEN: A confirm prompt offered for holder-1
	// WHEN: The wire replies with a confirm id naming a different holder
	// THEN: No binding happens; the bot re-asks for the document
	fx := newFixture(t)
	fx.seedHolder(t, "")
	fx.seedOtherHolder(t)

	fx.text("30123456")
	fx.choice("confirm-yes:holder-2")

	msg := fx.sender.last(t)
	require.Equal(t, "text", msg.kind)
	require.Contains(t, msg.body, "documento")

	_, err := fx.store.HolderByAddress(context.Background(), testAddress)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func (fx *fixture) seedOtherHolder(t *testing.T) {
	t.Helper()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	h := ledger.Holder{
		ID: "holder-2", NationalID: "28555444", FullName: "Otro Empleado",
		Code: "E-200", Status: ledger.HolderActive, CreatedAt: now,
	}
	a := ledger.Account{ID: "account-2", HolderID: h.ID, ClosingDay: 20, CreatedAt: now}
	require.NoError(t, fx.store.CreateHolder(context.Background(), h, a))
}

func TestIdentify_AlreadyLinkedHolder(t *testing.T) {
	// GIVEN: A holder already bound to another phone
	// WHEN: A different address confirms that holder's identity
	// THEN: Binding is refused without revealing the existing address
	fx := newFixture(t)
	fx.seedHolder(t, "5491100009999")

	fx.text("30123456")
	fx.choice("confirm-yes:holder-1")

	msg := fx.sender.last(t)
	require.Contains(t, msg.body, "vinculado")
	require.NotContains(t, msg.body, "9999")
}

// =============================================================================
// MAIN MENU
// =============================================================================

func TestMainMenu_SummaryByKeyword(t *testing.T) {
	// GIVEN: A bound holder with transactions
	// WHEN: They type "saldo"
	// THEN: One text reply with the formatted current balance
	fx := newFixture(t)
	_, account := fx.seedHolder(t, testAddress)
	addTx(t, fx.store, account.ID, "tx-1", ledger.CategoryBakery, 150000)

	fx.text("saldo")

	require.Equal(t, 1, fx.sender.count())
	msg := fx.sender.last(t)
	require.Equal(t, "text", msg.kind)
	require.Contains(t, msg.body, "$1.500,00")
}

func TestMainMenu_CategoryDetail(t *testing.T) {
	// GIVEN: A bound holder with bakery activity this month
	// WHEN: They pick the bakery row from the category list
	// THEN: The detail lists the movements and the category total
	fx := newFixture(t)
	_, account := fx.seedHolder(t, testAddress)
	addTx(t, fx.store, account.ID, "tx-1", ledger.CategoryBakery, 250050)

	fx.choice("cat:panaderia")

	msg := fx.sender.last(t)
	require.Equal(t, "text", msg.kind)
	require.Contains(t, msg.body, "Panadería")
	require.Contains(t, msg.body, "$2.500,50")
}

func TestMainMenu_UnknownCategoryIDFallsBackToMenu(t *testing.T) {
	fx := newFixture(t)
	fx.seedHolder(t, testAddress)

	fx.choice("cat:joyeria")

	msg := fx.sender.last(t)
	require.Equal(t, "list", msg.kind)
}

func TestMainMenu_UnrecognizedTextShowsMenu(t *testing.T) {
	fx := newFixture(t)
	fx.seedHolder(t, testAddress)

	fx.text("qué onda")

	msg := fx.sender.last(t)
	require.Equal(t, "list", msg.kind)
	require.Contains(t, msg.body, "querés hacer")
}

func addTx(t *testing.T, store *memory.Store, accountID ledger.AccountID, id string, c ledger.Category, cents int64) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, store.AddTransaction(context.Background(), ledger.Transaction{
		ID: ledger.TransactionID(id), AccountID: accountID, Category: c,
		AmountCents: cents, PostedAt: now, CreatedAt: now,
	}))
}

// =============================================================================
// DISPUTE FLOW
// =============================================================================

func TestDispute_CollectsTextAndOpensCase(t *testing.T) {
	// GIVEN: A bound holder in the main menu
	// WHEN: They ask to dispute and then describe the charge
	// THEN: An open dispute case stores their text, the reply carries a
	//        short reference, and the next message lands in the main menu
	fx := newFixture(t)
	holder, _ := fx.seedHolder(t, testAddress)
	ctx := context.Background()

	fx.text("quiero hacer un reclamo")
	prompt := fx.sender.last(t)
	require.Contains(t, prompt.body, "consumo")

	fx.text("hay un cargo de panadería del 5/6 que no reconozco")

	cases, err := fx.store.ListCases(ctx, nil)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, holder.ID, cases[0].HolderID)
	require.Equal(t, ledger.TopicDispute, cases[0].Topic)
	require.Equal(t, ledger.CaseOpen, cases[0].Status)
	require.Equal(t, "hay un cargo de panadería del 5/6 que no reconozco", cases[0].LastMessage)

	confirmation := fx.sender.last(t)
	ref := strings.ToUpper(string(cases[0].ID)[:8])
	require.Contains(t, confirmation.body, ref)

	// Back in the main menu: a keyword works again.
	fx.text("saldo")
	require.Equal(t, "text", fx.sender.last(t).kind)
	require.Contains(t, fx.sender.last(t).body, "saldo")
}

func TestDispute_EmptyTextReprompts(t *testing.T) {
	fx := newFixture(t)
	fx.seedHolder(t, testAddress)

	fx.text("reclamo")
	fx.text("   ")

	msg := fx.sender.last(t)
	require.Contains(t, msg.body, "consumo")

	cases, err := fx.store.ListCases(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, cases)
}

// =============================================================================
// HANDOFF
// =============================================================================

func TestHandoff_SilencesBotUntilReset(t *testing.T) {
	// GIVEN: A bound holder asking for a human
	// WHEN: The handoff fires and more messages arrive
	// THEN: An escalated case exists, the bot confirms once, then goes
	//        silent; Reset brings it back
	fx := newFixture(t)
	fx.seedHolder(t, testAddress)
	ctx := context.Background()

	fx.text("quiero hablar con una persona")

	cases, err := fx.store.ListCases(ctx, nil)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, ledger.TopicInquiry, cases[0].Topic)
	require.Equal(t, ledger.CaseEscalated, cases[0].Status)

	require.Equal(t, 1, fx.sender.count())
	require.Contains(t, fx.sender.last(t).body, "persona del equipo")

	// Silenced: no outbound while a human owns the chat.
	fx.text("hola?")
	fx.text("sigue ahí?")
	require.Equal(t, 1, fx.sender.count())

	// Back-office closes the case and resets the session.
	fx.machine.Reset(testAddress)
	fx.text("saldo")
	require.Equal(t, 2, fx.sender.count())
}

// =============================================================================
// FAIL-SAFE ERRORS
// =============================================================================

func TestInternalError_ApologizesAndKeepsState(t *testing.T) {
	// GIVEN: A bound holder whose balance query hits a store fault
	// WHEN: They ask for the summary, then the fault clears
	// THEN: First reply is the generic apology; the retry succeeds from the
	//        same state with no re-identification
	fx := newFixture(t)
	_, account := fx.seedHolder(t, testAddress)
	addTx(t, fx.store, account.ID, "tx-1", ledger.CategoryBakery, 150000)

	fx.store.FailSumFor[account.ID] = errors.New("disk on fire")
	fx.text("saldo")

	require.Equal(t, 1, fx.sender.count())
	require.Contains(t, fx.sender.last(t).body, "Ups")

	delete(fx.store.FailSumFor, account.ID)
	fx.text("saldo")

	require.Equal(t, 2, fx.sender.count())
	require.Contains(t, fx.sender.last(t).body, "$1.500,00")
}
