/*
session.go - Per-address dialogue bookkeeping

PURPOSE:
  Sessions are ephemeral and re-derivable: identity is resolved from the
  store on first contact, so losing this map on restart costs nothing but a
  re-greeting. What the map DOES guarantee:

  1. Per-address serialization. Handlers for the same address never
     interleave; two rapid messages from one user cannot race on the
     pending-dispute state or double-bind identity. Different addresses
     run fully parallel.
  2. Keyed pending state. Dispute data lives inside the address's own
     session entry - never a process-wide unkeyed variable - so two users
     mid-dispute cannot cross-contaminate.

LIFECYCLE:
  Entries are created on the first event from an address, cleared when a
  flow resets them, and TTL-evicted by the machine's janitor.
*/
package conversation

import (
	"sync"
	"time"

	"github.com/illeiva2/cuentas-bot/ledger"
)

// State enumerates the dialogue states.
type State string

const (
	StateIdentify       State = "IDENTIFY"
	StateMainMenu       State = "MAIN_MENU"
	StateDisputeCollect State = "DISPUTE_COLLECT"
	StateHandedOff      State = "HANDED_OFF"
)

// session is one address's dialogue state. Only touched while holding the
// address lock.
type session struct {
	State        State
	HolderID     ledger.HolderID
	CandidateID  ledger.HolderID // set while an identify-confirm is pending
	LastActivity time.Time
}

// =============================================================================
// SESSION MAP - address-keyed store with per-address locks
// =============================================================================

type sessionMap struct {
	mu       sync.Mutex
	sessions map[string]*session
	locks    map[string]*sync.Mutex
}

func newSessionMap() *sessionMap {
	return &sessionMap{
		sessions: make(map[string]*session),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lock acquires the address's own mutex and returns the unlock func.
// The outer map mutex is held only long enough to find/create the entry.
func (sm *sessionMap) lock(address string) func() {
	sm.mu.Lock()
	l, ok := sm.locks[address]
	if !ok {
		l = &sync.Mutex{}
		sm.locks[address] = l
	}
	sm.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// get returns the session for address, or nil. Caller holds the address lock.
func (sm *sessionMap) get(address string) *session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.sessions[address]
}

func (sm *sessionMap) put(address string, s *session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[address] = s
}

func (sm *sessionMap) delete(address string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, address)
}

// evictBefore drops sessions idle since before the cutoff and returns how
// many were removed. Lock entries stay: they are tiny and an in-flight
// handler may hold one. Addresses whose lock is currently held are skipped;
// their handler still holds a pointer to the session and will bump
// LastActivity anyway.
func (sm *sessionMap) evictBefore(cutoff time.Time) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	n := 0
	for addr, s := range sm.sessions {
		if !s.LastActivity.Before(cutoff) {
			continue
		}
		if l, ok := sm.locks[addr]; ok {
			if !l.TryLock() {
				continue
			}
			l.Unlock()
		}
		delete(sm.sessions, addr)
		n++
	}
	return n
}
