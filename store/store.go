// Package store holds the client-side session state: the single shared
// mutable resource of the subsystem. Every mutation swaps a fully
// consistent session, persists it, and publishes a typed event.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/NovuntFinance/authgate/domain"
	"github.com/NovuntFinance/authgate/storage"
)

// EventType identifies a session state transition.
type EventType string

const (
	EventHydrated      EventType = "hydrated"
	EventLoggedIn      EventType = "logged_in"
	EventTokensRotated EventType = "tokens_rotated"
	EventUserUpdated   EventType = "user_updated"
	EventLoggedOut     EventType = "logged_out"
)

// Event carries a transition type and a snapshot of the session after it.
type Event struct {
	Type    EventType
	Session domain.Session
}

const eventBuffer = 16

// SessionStore is the single source of truth for the authenticated
// session. It is an explicit, constructed container; callers inject it
// where needed and reset it in tests by constructing a new one.
type SessionStore struct {
	mu       sync.RWMutex
	sess     domain.Session
	hydrated bool

	hydratedCh chan struct{}
	backend    storage.Storage // may be nil for purely in-memory use

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewSessionStore creates an empty, un-hydrated store persisting to
// backend. A nil backend keeps the session in memory only; such a store
// still hydrates (to an empty session) so guards don't wait forever.
func NewSessionStore(backend storage.Storage) *SessionStore {
	return &SessionStore{
		hydratedCh: make(chan struct{}),
		backend:    backend,
		subs:       make(map[int]chan Event),
	}
}

// Hydrate populates the store from durable storage. It flips HasHydrated
// false→true exactly once; repeated calls are no-ops. A missing or
// unparsable blob degrades to an empty, unauthenticated session and is
// never surfaced as an error.
func (s *SessionStore) Hydrate(ctx context.Context) {
	s.mu.Lock()
	if s.hydrated {
		s.mu.Unlock()
		return
	}

	if s.backend != nil {
		blob, err := s.backend.Load(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// First run, nothing persisted yet.
		case err != nil:
			log.Ctx(ctx).Warn().Err(err).Msg("session hydration failed, starting unauthenticated")
		default:
			var sess domain.Session
			if err := json.Unmarshal(blob, &sess); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("persisted session blob unparsable, starting unauthenticated")
			} else {
				s.sess = sess
			}
		}
	}

	s.hydrated = true
	close(s.hydratedCh)
	snapshot := s.sess
	s.mu.Unlock()

	s.publish(Event{Type: EventHydrated, Session: snapshot})
}

// HasHydrated reports whether persisted state has been loaded. Consumers
// must treat the store as unknown, neither authenticated nor not, until
// this is true.
func (s *SessionStore) HasHydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// WaitHydrated blocks until hydration completes or ctx is done.
func (s *SessionStore) WaitHydrated(ctx context.Context) error {
	select {
	case <-s.hydratedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetSession installs a full session, the login path. Both tokens and the
// user are swapped in one step.
func (s *SessionStore) SetSession(user *domain.User, access, refresh string) {
	s.mu.Lock()
	s.sess = domain.Session{User: cloneUser(user), AccessToken: access, RefreshToken: refresh}
	snapshot := s.sess
	s.mu.Unlock()

	s.persist(snapshot)
	s.publish(Event{Type: EventLoggedIn, Session: snapshot})
}

// SetTokens overwrites both tokens, leaving the user untouched. Persists
// immediately. Idempotent for identical values.
func (s *SessionStore) SetTokens(access, refresh string) {
	s.mu.Lock()
	if s.sess.AccessToken == access && s.sess.RefreshToken == refresh {
		s.mu.Unlock()
		return
	}
	s.sess.AccessToken = access
	s.sess.RefreshToken = refresh
	snapshot := s.sess
	s.mu.Unlock()

	s.persist(snapshot)
	s.publish(Event{Type: EventTokensRotated, Session: snapshot})
}

// SetUser overwrites the user profile; tokens are unaffected.
func (s *SessionStore) SetUser(user *domain.User) {
	s.mu.Lock()
	s.sess.User = cloneUser(user)
	snapshot := s.sess
	s.mu.Unlock()

	s.persist(snapshot)
	s.publish(Event{Type: EventUserUpdated, Session: snapshot})
}

// Logout clears the user and both tokens. Derived predicates read false
// from the moment this returns.
func (s *SessionStore) Logout() {
	s.mu.Lock()
	s.sess = domain.Session{}
	s.mu.Unlock()

	if s.backend != nil {
		if err := s.backend.Clear(context.Background()); err != nil {
			log.Warn().Err(err).Msg("failed to clear persisted session")
		}
	}
	s.publish(Event{Type: EventLoggedOut, Session: domain.Session{}})
}

// Session returns a snapshot of the current session.
func (s *SessionStore) Session() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := s.sess
	sess.User = cloneUser(sess.User)
	return sess
}

// AccessToken returns the current access token, or "".
func (s *SessionStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.AccessToken
}

// RefreshToken returns the current refresh token, or "".
func (s *SessionStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.RefreshToken
}

// User returns a copy of the current user, or nil.
func (s *SessionStore) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.sess.User)
}

// IsAuthenticated reports whether both a user and an access token are
// present.
func (s *SessionStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.IsAuthenticated()
}

// HasRole reports whether the current user holds any of the given roles.
// False when no user is present.
func (s *SessionStore) HasRole(roles ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.User.HasRole(roles...)
}

// IsAdmin reports whether the current user holds an administrative role.
func (s *SessionStore) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.User.IsAdmin()
}

// IsVerified reports whether the current user's email is verified.
func (s *SessionStore) IsVerified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.User != nil && s.sess.User.IsEmailVerified
}

// Subscribe registers for session events. The returned cancel func must be
// called to release the subscription. Slow subscribers drop events rather
// than block mutations.
func (s *SessionStore) Subscribe() (<-chan Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, eventBuffer)
	s.subs[id] = ch

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *SessionStore) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("event", string(ev.Type)).Msg("session event dropped, slow subscriber")
		}
	}
}

// persist writes the snapshot to the backend. Failures are logged, never
// propagated: the in-memory session stays authoritative for this run.
func (s *SessionStore) persist(sess domain.Session) {
	if s.backend == nil {
		return
	}

	blob, err := json.Marshal(sess)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal session for persistence")
		return
	}
	if err := s.backend.Save(context.Background(), blob); err != nil {
		log.Warn().Err(err).Msg("failed to persist session")
	}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
