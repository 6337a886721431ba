// Package guard protects views or handlers from running without a valid
// session, while tolerating the short window in which a silent refresh may
// still rescue it.
package guard

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	autherrors "github.com/NovuntFinance/authgate/errors"
	"github.com/NovuntFinance/authgate/store"
)

// State is the guard's position in its lifecycle.
type State int

const (
	StateHydrating State = iota
	StateAwaitingRefresh
	StateAuthenticated
	StateRedirecting
)

func (s State) String() string {
	switch s {
	case StateHydrating:
		return "hydrating"
	case StateAwaitingRefresh:
		return "awaiting_refresh"
	case StateAuthenticated:
		return "authenticated"
	case StateRedirecting:
		return "redirecting"
	default:
		return "unknown"
	}
}

// DefaultGraceWindow bounds how long an unauthenticated-but-refreshable
// session may wait for the background refresh before redirecting.
const DefaultGraceWindow = 2 * time.Second

// Decision is the guard's verdict for one protected entry.
type Decision struct {
	Allow bool
	// RedirectTo is the login URL, carrying redirect and reason query
	// parameters, when Allow is false.
	RedirectTo string
	// Reason is auth_required or session_expired.
	Reason string
}

// Guard gates a protected surface against the session store.
type Guard struct {
	store     *store.SessionStore
	loginPath string
	grace     time.Duration

	mu         sync.Mutex
	state      State
	redirected bool
}

// Option configures a Guard.
type Option func(*Guard)

// WithGraceWindow overrides the refresh grace window.
func WithGraceWindow(d time.Duration) Option {
	return func(g *Guard) { g.grace = d }
}

// WithLoginPath overrides the login path redirects point at.
func WithLoginPath(path string) Option {
	return func(g *Guard) { g.loginPath = path }
}

// New creates a guard over the given store.
func New(s *store.SessionStore, opts ...Option) *Guard {
	g := &Guard{
		store:     s,
		loginPath: "/login",
		grace:     DefaultGraceWindow,
		state:     StateHydrating,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the guard's current state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Resolve decides whether the protected surface at requestedPath may
// render. It blocks through hydration and, when a refresh token is
// present, through the grace window. It never panics; internal failures
// degrade to an unauthenticated redirect.
func (g *Guard) Resolve(ctx context.Context, requestedPath string) Decision {
	g.setState(StateHydrating)

	if err := g.store.WaitHydrated(ctx); err != nil {
		return g.redirect(requestedPath, autherrors.AuthRequired)
	}

	if g.store.IsAuthenticated() {
		g.clearRedirected()
		g.setState(StateAuthenticated)
		return Decision{Allow: true}
	}

	if g.store.RefreshToken() == "" {
		// Nothing to wait for.
		return g.redirect(requestedPath, autherrors.AuthRequired)
	}

	return g.awaitRefresh(ctx, requestedPath)
}

// awaitRefresh renders the "refreshing session" window: subscribe first,
// then re-check, so a refresh landing between the check and the subscribe
// is not missed.
func (g *Guard) awaitRefresh(ctx context.Context, requestedPath string) Decision {
	g.setState(StateAwaitingRefresh)

	events, cancel := g.store.Subscribe()
	defer cancel()

	if g.store.IsAuthenticated() {
		g.clearRedirected()
		g.setState(StateAuthenticated)
		return Decision{Allow: true}
	}

	timer := time.NewTimer(g.grace)
	defer timer.Stop()

	for {
		select {
		case <-events:
			if g.store.IsAuthenticated() {
				g.clearRedirected()
				g.setState(StateAuthenticated)
				return Decision{Allow: true}
			}
		case <-timer.C:
			// Re-check live state: the redirect must not fire if the
			// refresh won the race with the timer.
			if g.store.IsAuthenticated() {
				g.clearRedirected()
				g.setState(StateAuthenticated)
				return Decision{Allow: true}
			}
			return g.redirect(requestedPath, autherrors.SessionExpired)
		case <-ctx.Done():
			return Decision{Allow: false, Reason: autherrors.AuthRequired}
		}
	}
}

// redirect issues at most one redirect decision per failed session; rapid
// repeat resolutions reuse the verdict without logging again.
func (g *Guard) redirect(requestedPath, reason string) Decision {
	g.setState(StateRedirecting)

	g.mu.Lock()
	first := !g.redirected
	g.redirected = true
	g.mu.Unlock()

	if first {
		log.Info().
			Str("path", requestedPath).
			Str("reason", reason).
			Msg("session guard redirecting to login")
	}

	q := url.Values{}
	if requestedPath != "" {
		q.Set("redirect", requestedPath)
	}
	q.Set("reason", reason)

	return Decision{
		Allow:      false,
		RedirectTo: g.loginPath + "?" + q.Encode(),
		Reason:     reason,
	}
}

func (g *Guard) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// clearRedirected re-arms the one-redirect latch once a session succeeds,
// so a later failed session may redirect again.
func (g *Guard) clearRedirected() {
	g.mu.Lock()
	g.redirected = false
	g.mu.Unlock()
}
