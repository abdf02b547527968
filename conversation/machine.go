/*
machine.go - Conversation state machine

PURPOSE:
  Drives the per-address dialogue:

    IDENTIFY -> MAIN_MENU -> {summary, category detail, DISPUTE_COLLECT,
                              HANDED_OFF}

  Every sub-flow except HANDED_OFF returns to MAIN_MENU after responding.
  HANDED_OFF silences the bot for the address so a human can take over the
  same chat; back-office reactivates via Reset.

TRANSITION DISCIPLINE:
  Handlers compute and send first, then mutate session state. Any internal
  error aborts the transition: the user gets the generic apology and the
  session stays exactly where it was (fail-safe, never fail-open). Exactly
  one outbound message per inbound event, except the silenced HANDED_OFF
  state.

STRUCTURED IDS:
  Button/list ids coming back from the transport are validated against what
  the machine actually offered - a confirm-yes must name the session's own
  candidate, a category id must be a known category. Arbitrary ids from the
  wire are treated as unrecognized input.
*/
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/illeiva2/cuentas-bot/identity"
	"github.com/illeiva2/cuentas-bot/ledger"
	"github.com/illeiva2/cuentas-bot/transport"
)

// =============================================================================
// MACHINE
// =============================================================================

type Machine struct {
	store    ledger.Store
	engine   *ledger.Engine
	resolver *identity.Resolver
	sender   transport.Sender
	sessions *sessionMap
	log      zerolog.Logger

	// SessionTTL bounds how long an idle session survives before the
	// janitor evicts it.
	SessionTTL time.Duration

	now func() time.Time

	janitorTicker *time.Ticker
	janitorStop   chan struct{}
}

func NewMachine(store ledger.Store, engine *ledger.Engine, resolver *identity.Resolver, sender transport.Sender, log zerolog.Logger) *Machine {
	return &Machine{
		store:      store,
		engine:     engine,
		resolver:   resolver,
		sender:     sender,
		sessions:   newSessionMap(),
		log:        log.With().Str("component", "conversation").Logger(),
		SessionTTL: 12 * time.Hour,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes one inbound event end to end. Handlers for the same
// address are serialized; different addresses run in parallel.
func (m *Machine) Handle(ctx context.Context, ev transport.Event) {
	unlock := m.sessions.lock(ev.Address)
	defer unlock()

	log := m.log.With().Str("address", identity.Redact(ev.Address)).Logger()

	sess := m.sessions.get(ev.Address)
	if sess == nil {
		var err error
		sess, err = m.openSession(ctx, ev.Address)
		if err != nil {
			log.Error().Err(err).Msg("identity resolution failed")
			m.apologize(ctx, ev.Address)
			return
		}
	}
	sess.LastActivity = m.now()

	var err error
	switch sess.State {
	case StateIdentify:
		err = m.handleIdentify(ctx, ev, sess)
	case StateMainMenu:
		err = m.handleMainMenu(ctx, ev, sess)
	case StateDisputeCollect:
		err = m.handleDisputeCollect(ctx, ev, sess)
	case StateHandedOff:
		// Silenced: a human owns this chat until back-office resets it.
		return
	default:
		err = m.handleIdentify(ctx, ev, sess)
	}

	if err != nil {
		// Business conditions that reach here are unhandled flow bugs, but
		// they don't warrant the same alarm as infrastructure faults.
		evt := log.Error()
		if ledger.IsBusiness(err) {
			evt = log.Warn()
		}
		evt.Err(err).Str("state", string(sess.State)).Msg("transition failed")
		m.apologize(ctx, ev.Address)
	}
}

// openSession re-derives dialogue state from the store: a bound address
// lands in the main menu, an unknown one starts identification. Session
// state is bookkeeping, never authoritative.
func (m *Machine) openSession(ctx context.Context, address string) (*session, error) {
	holder, known, err := m.resolver.Resolve(ctx, address)
	if err != nil {
		return nil, err
	}
	sess := &session{State: StateIdentify, LastActivity: m.now()}
	if known {
		sess.State = StateMainMenu
		sess.HolderID = holder.ID
	}
	m.sessions.put(address, sess)
	return sess, nil
}

// Reset drops the address's session. The next message re-resolves identity
// from scratch; back-office uses this to end a HANDED_OFF takeover.
func (m *Machine) Reset(address string) {
	unlock := m.sessions.lock(address)
	defer unlock()
	m.sessions.delete(address)
}

// apologize sends the generic error message. Best effort: a failing send on
// the failure path is only logged.
func (m *Machine) apologize(ctx context.Context, address string) {
	if err := m.sender.SendText(ctx, address, msgGenericError); err != nil {
		m.log.Error().Err(err).Msg("could not deliver error message")
	}
}

// =============================================================================
// IDENTIFY
// =============================================================================

func (m *Machine) handleIdentify(ctx context.Context, ev transport.Event, sess *session) error {
	if ev.Kind == transport.KindChoice {
		switch {
		case strings.HasPrefix(ev.Text, idConfirmYesPrefix):
			candidate := ledger.HolderID(strings.TrimPrefix(ev.Text, idConfirmYesPrefix))
			if sess.CandidateID == "" || candidate != sess.CandidateID {
				// Not an id we offered. Never bind on it.
				return m.sender.SendText(ctx, ev.Address, msgAskID)
			}
			return m.confirmBind(ctx, ev.Address, candidate, sess)

		case ev.Text == idConfirmNo:
			if err := m.sender.SendText(ctx, ev.Address, msgNotYou); err != nil {
				return err
			}
			sess.CandidateID = ""
			return nil

		default:
			return m.sender.SendText(ctx, ev.Address, msgAskID)
		}
	}

	// Free text: expect a national ID.
	text := strings.TrimSpace(ev.Text)
	if !identity.ValidNationalID(text) {
		return m.sender.SendText(ctx, ev.Address, msgInvalidID)
	}

	holder, err := m.resolver.Lookup(ctx, text)
	if errors.Is(err, ledger.ErrNotFound) {
		return m.sender.SendText(ctx, ev.Address, msgIDNotFound)
	}
	if err != nil {
		return err
	}

	err = m.sender.SendButtons(ctx, ev.Address,
		msgConfirmIdentity(holder.FullName, identity.Redact(holder.NationalID)),
		[]transport.Choice{
			{ID: idConfirmYesPrefix + string(holder.ID), Title: "Sí, soy yo"},
			{ID: idConfirmNo, Title: "No"},
		})
	if err != nil {
		return err
	}
	sess.CandidateID = holder.ID
	return nil
}

func (m *Machine) confirmBind(ctx context.Context, address string, candidate ledger.HolderID, sess *session) error {
	holder, err := m.resolver.Bind(ctx, candidate, address)
	switch {
	case errors.Is(err, ledger.ErrAlreadyLinked):
		// Never reveal who the address or holder is linked to.
		if sendErr := m.sender.SendText(ctx, address, msgAlreadyLinked); sendErr != nil {
			return sendErr
		}
		sess.CandidateID = ""
		return nil
	case errors.Is(err, ledger.ErrNotFound):
		if sendErr := m.sender.SendText(ctx, address, msgIDNotFound); sendErr != nil {
			return sendErr
		}
		sess.CandidateID = ""
		return nil
	case err != nil:
		return err
	}

	if err := m.sender.SendList(ctx, address, msgWelcome(holder.FullName), msgMenuButton, mainMenuSections()); err != nil {
		return err
	}
	sess.HolderID = holder.ID
	sess.CandidateID = ""
	sess.State = StateMainMenu
	return nil
}

// =============================================================================
// MAIN MENU
// =============================================================================

func (m *Machine) handleMainMenu(ctx context.Context, ev transport.Event, sess *session) error {
	// Category rows carry their own id family; handle them before the
	// general action dispatch.
	if ev.Kind == transport.KindChoice && strings.HasPrefix(ev.Text, idCategoryPrefix) {
		c := ledger.Category(strings.TrimPrefix(ev.Text, idCategoryPrefix))
		if !ledger.ValidCategory(c) {
			return m.renderMenu(ctx, ev.Address)
		}
		return m.sendCategoryDetail(ctx, ev.Address, sess.HolderID, c)
	}

	action := actionUnknown
	if ev.Kind == transport.KindChoice {
		switch ev.Text {
		case idMenuSummary:
			action = actionSummary
		case idMenuDetail:
			action = actionDetail
		case idMenuDispute:
			action = actionDispute
		case idMenuHandoff:
			action = actionHandoff
		}
	} else {
		action = keywordAction(ev.Text)
	}

	switch action {
	case actionSummary:
		return m.sendSummary(ctx, ev.Address, sess.HolderID)

	case actionDetail:
		return m.sender.SendList(ctx, ev.Address, "Elegí un rubro para ver el detalle:", msgMenuButton, categorySections())

	case actionDispute:
		if err := m.sender.SendText(ctx, ev.Address, msgDisputePrompt); err != nil {
			return err
		}
		sess.State = StateDisputeCollect
		return nil

	case actionHandoff:
		if err := m.openCase(ctx, sess.HolderID, ledger.TopicInquiry, ledger.CaseEscalated, ev.Text); err != nil {
			return err
		}
		if err := m.sender.SendText(ctx, ev.Address, msgHandoff); err != nil {
			return err
		}
		sess.State = StateHandedOff
		return nil

	default:
		return m.renderMenu(ctx, ev.Address)
	}
}

func (m *Machine) renderMenu(ctx context.Context, address string) error {
	return m.sender.SendList(ctx, address, msgMenuBody, msgMenuButton, mainMenuSections())
}

func (m *Machine) sendSummary(ctx context.Context, address string, holderID ledger.HolderID) error {
	holder, err := m.store.Holder(ctx, holderID)
	if err != nil {
		return err
	}
	account, err := m.store.AccountByHolder(ctx, holderID)
	if err != nil {
		return err
	}
	balance, err := m.engine.ComputeBalance(ctx, account.ID, nil)
	if err != nil {
		return err
	}

	var last *ledger.Statement
	st, err := m.store.LatestStatement(ctx, account.ID)
	switch {
	case err == nil:
		last = &st
	case errors.Is(err, ledger.ErrNotFound):
		// First period still open; nothing to show yet.
	default:
		return err
	}

	return m.sender.SendText(ctx, address, renderSummary(holder.FullName, balance, last))
}

func (m *Machine) sendCategoryDetail(ctx context.Context, address string, holderID ledger.HolderID, c ledger.Category) error {
	account, err := m.store.AccountByHolder(ctx, holderID)
	if err != nil {
		return err
	}
	pd, err := m.engine.OpenPeriodData(ctx, account, m.now())
	if err != nil {
		return err
	}
	return m.sender.SendText(ctx, address, renderCategoryDetail(c, pd))
}

// =============================================================================
// DISPUTE COLLECT
// =============================================================================

func (m *Machine) handleDisputeCollect(ctx context.Context, ev transport.Event, sess *session) error {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return m.sender.SendText(ctx, ev.Address, msgDisputePrompt)
	}

	caseID, err := m.createCase(ctx, sess.HolderID, ledger.TopicDispute, ledger.CaseOpen, text)
	if err != nil {
		return err
	}
	if err := m.sender.SendText(ctx, ev.Address, msgDisputeCreated(shortRef(caseID))); err != nil {
		return err
	}
	sess.State = StateMainMenu
	return nil
}

func (m *Machine) openCase(ctx context.Context, holderID ledger.HolderID, topic ledger.CaseTopic, status ledger.CaseStatus, lastMessage string) error {
	_, err := m.createCase(ctx, holderID, topic, status, lastMessage)
	return err
}

func (m *Machine) createCase(ctx context.Context, holderID ledger.HolderID, topic ledger.CaseTopic, status ledger.CaseStatus, lastMessage string) (ledger.CaseID, error) {
	now := m.now()
	c := ledger.Case{
		ID:          ledger.CaseID(uuid.NewString()),
		HolderID:    holderID,
		Topic:       topic,
		Status:      status,
		LastMessage: lastMessage,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.CreateCase(ctx, c); err != nil {
		return "", err
	}
	m.log.Info().Str("case_id", string(c.ID)).Str("topic", string(topic)).Msg("case created")
	return c.ID, nil
}

// shortRef is the human-friendly case reference shown in the chat.
func shortRef(id ledger.CaseID) string {
	s := string(id)
	if len(s) > 8 {
		return strings.ToUpper(s[:8])
	}
	return strings.ToUpper(s)
}

// =============================================================================
// JANITOR - TTL eviction of idle sessions
// =============================================================================

// StartJanitor begins periodic eviction of idle sessions.
func (m *Machine) StartJanitor(interval time.Duration) {
	m.janitorTicker = time.NewTicker(interval)
	m.janitorStop = make(chan struct{})
	go func() {
		for {
			select {
			case <-m.janitorTicker.C:
				if n := m.sessions.evictBefore(m.now().Add(-m.SessionTTL)); n > 0 {
					m.log.Debug().Int("evicted", n).Msg("idle sessions evicted")
				}
			case <-m.janitorStop:
				return
			}
		}
	}()
}

// StopJanitor halts the eviction loop.
func (m *Machine) StopJanitor() {
	if m.janitorTicker != nil {
		m.janitorTicker.Stop()
		close(m.janitorStop)
	}
}
