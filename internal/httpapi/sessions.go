// Package httpapi is a minimal reference HTTP host: it exercises the core
// end to end, not a production front-end (the CLI, real routing, and a
// skill-manifest publisher remain external collaborators).
package httpapi

import (
	"sync"
	"time"

	"github.com/rlmlabs/rlmreview/internal/domain"
)

// sessionTTL bounds how long a ReviewSession is kept after its last touch
// before sweep reclaims it: destroyed when the response is fully consumed
// by the caller or the TTL expires.
const sessionTTL = 30 * time.Minute

// sessionStore holds in-memory ReviewSessions keyed by review_id. A
// session is owned by a single logical caller, so a plain mutex-guarded map
// is sufficient; no per-session concurrent mutation is expected.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
}

type trackedSession struct {
	session   *domain.ReviewSession
	lastTouch time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*trackedSession)}
}

func (s *sessionStore) put(session *domain.ReviewSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ReviewID] = &trackedSession{session: session, lastTouch: time.Now()}
}

func (s *sessionStore) get(reviewID string) (*domain.ReviewSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.sessions[reviewID]
	if !ok || time.Since(t.lastTouch) > sessionTTL {
		return nil, false
	}
	t.lastTouch = time.Now()
	return t.session, true
}

// sweep deletes sessions untouched for longer than sessionTTL. Callers run
// it periodically (see Server.runSweeper).
func (s *sessionStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.sessions {
		if time.Since(t.lastTouch) > sessionTTL {
			delete(s.sessions, id)
		}
	}
}
