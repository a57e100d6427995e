// Package syncer reconciles the local progression cache with the remote
// authoritative record: one cold hydrate per session, then best-effort
// background pushes of every local mutation.
package syncer

import "sync"

// Session is the explicit per-login object that owns the hydrate latch.
// Create one at login and Reset it on logout; nothing else holds the latch.
type Session struct {
	UserID string

	mu       sync.Mutex
	hydrated bool
	epoch    uint64 // bumped by Reset; a hydrate started in an older epoch must not write
}

// NewSession starts an unhydrated session for userID.
func NewSession(userID string) *Session {
	return &Session{UserID: userID}
}

// Hydrated reports whether a hydrate attempt already completed.
func (s *Session) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// Reset clears the latch so the next hydrate goes to the remote again.
func (s *Session) Reset() {
	s.mu.Lock()
	s.hydrated = false
	s.epoch++
	s.mu.Unlock()
}

// latch marks the session hydrated unless it was Reset since epoch.
func (s *Session) latch(epoch uint64) {
	s.mu.Lock()
	if s.epoch == epoch {
		s.hydrated = true
	}
	s.mu.Unlock()
}

func (s *Session) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}
