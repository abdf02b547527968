/*
session_test.go - Session map eviction tests

Tests for:
- TTL eviction skipping addresses with a handler in flight
*/
package conversation

import (
	"testing"
	"time"
)

func TestEvictBefore_SkipsInFlightAddress(t *testing.T) {
	// GIVEN: Two idle sessions, one with its address lock held by a handler
	// WHEN: The janitor evicts
	// THEN: Only the unlocked session goes; the held one survives until the
	//       handler releases it
	sm := newSessionMap()
	stale := time.Now().Add(-24 * time.Hour)
	sm.put("busy", &session{State: StateMainMenu, LastActivity: stale})
	sm.put("idle", &session{State: StateMainMenu, LastActivity: stale})

	unlock := sm.lock("busy")
	if n := sm.evictBefore(time.Now()); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if sm.get("busy") == nil {
		t.Error("session with a handler in flight was evicted")
	}
	if sm.get("idle") != nil {
		t.Error("idle session should have been evicted")
	}
	unlock()

	if n := sm.evictBefore(time.Now()); n != 1 {
		t.Errorf("expected the released session to be evicted, got %d", n)
	}
}
