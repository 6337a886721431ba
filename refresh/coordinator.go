// Package refresh transparently recovers from expired access tokens. The
// Coordinator is an http.RoundTripper that injects the bearer token,
// detects authorization failures, and funnels every concurrent failure
// through a single refresh call.
package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	autherrors "github.com/NovuntFinance/authgate/errors"
)

// SessionState is the slice of the session store the coordinator needs.
type SessionState interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(access, refresh string)
	Logout()
}

// refreshTimeout bounds the refresh round-trip. The call runs detached
// from any single caller's context: all queued requests share its outcome,
// so one caller cancelling must not abort it for the rest.
const refreshTimeout = 10 * time.Second

type ctxKey int

const retriedKey ctxKey = iota

// episode is one refresh attempt shared by every request that failed
// authorization while it was in flight.
type episode struct {
	done chan struct{}
	err  error
}

// Coordinator wraps a base RoundTripper with bearer injection and
// single-flight token refresh.
type Coordinator struct {
	base       http.RoundTripper
	state      SessionState
	refreshURL string
	client     *http.Client // plain client for the refresh call itself

	mu sync.Mutex
	ep *episode
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithHTTPClient overrides the client used for the refresh call. It must
// not share the coordinator's own transport.
func WithHTTPClient(c *http.Client) Option {
	return func(co *Coordinator) { co.client = c }
}

// NewCoordinator creates a coordinator around base (nil means
// http.DefaultTransport) refreshing against refreshURL.
func NewCoordinator(base http.RoundTripper, state SessionState, refreshURL string, opts ...Option) *Coordinator {
	if base == nil {
		base = http.DefaultTransport
	}
	c := &Coordinator{
		base:       base,
		state:      state,
		refreshURL: refreshURL,
		client:     &http.Client{Timeout: refreshTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RoundTrip implements http.RoundTripper.
//
// On a 401 the request waits for the (single) in-flight refresh and is
// replayed once with the new token. A request that already went through
// one replay surfaces its 401 untouched; it never re-enters the cycle.
func (c *Coordinator) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	if wasRetried(req) {
		// Second consecutive authorization failure on the same logical
		// request is terminal.
		return resp, nil
	}
	if req.Body != nil && req.GetBody == nil {
		// Body cannot be replayed; the caller gets the 401.
		return resp, nil
	}

	drain(resp)

	if err := c.awaitRefresh(req.Context()); err != nil {
		return nil, err
	}

	retry, err := cloneForRetry(req)
	if err != nil {
		return nil, err
	}
	return c.send(retry)
}

// send clones req and attaches the current bearer token. The caller's
// request is never mutated.
func (c *Coordinator) send(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if tok := c.state.AccessToken(); tok != "" && out.Header.Get("Authorization") == "" {
		out.Header.Set("Authorization", "Bearer "+tok)
	}
	return c.base.RoundTrip(out)
}

// awaitRefresh joins the in-flight refresh episode, starting one if none
// exists. The check-and-start is a single critical section: under N
// concurrent failures exactly one refresh call is made.
func (c *Coordinator) awaitRefresh(ctx context.Context) error {
	c.mu.Lock()
	ep := c.ep
	if ep == nil {
		ep = &episode{done: make(chan struct{})}
		c.ep = ep
		go c.runRefresh(ep)
	}
	c.mu.Unlock()

	select {
	case <-ep.done:
		return ep.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runRefresh performs the refresh call and settles the episode. Any
// failure is fatal to the session: the store is logged out and every
// queued request observes the same authentication error.
func (c *Coordinator) runRefresh(ep *episode) {
	defer func() {
		c.mu.Lock()
		c.ep = nil
		c.mu.Unlock()
		close(ep.done)
	}()

	refreshToken := c.state.RefreshToken()
	if refreshToken == "" {
		c.state.Logout()
		ep.err = autherrors.NewSessionExpired("no refresh token available")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	access, rotated, err := c.callRefreshEndpoint(ctx, refreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("token refresh failed, clearing session")
		c.state.Logout()
		ep.err = autherrors.NewSessionExpired("token refresh failed")
		return
	}

	if rotated == "" {
		rotated = refreshToken
	}
	c.state.SetTokens(access, rotated)
	log.Debug().Msg("access token refreshed")
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshResponse tolerates both the enveloped and the flat response
// shape the backend has used.
type refreshResponse struct {
	Data struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	} `json:"data"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (c *Coordinator) callRefreshEndpoint(ctx context.Context, refreshToken string) (access, rotated string, err error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", "", fmt.Errorf("marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.refreshURL, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("refresh call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("refresh endpoint returned %d", resp.StatusCode)
	}

	var rr refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return "", "", fmt.Errorf("decode refresh response: %w", err)
	}

	access = rr.Data.AccessToken
	rotated = rr.Data.RefreshToken
	if access == "" {
		access = rr.AccessToken
		rotated = rr.RefreshToken
	}
	if access == "" {
		return "", "", fmt.Errorf("refresh response carried no access token")
	}
	return access, rotated, nil
}

func cloneForRetry(req *http.Request) (*http.Request, error) {
	retry := req.Clone(context.WithValue(req.Context(), retriedKey, true))
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body for retry: %w", err)
		}
		retry.Body = body
	}
	// Force re-injection of the fresh token.
	retry.Header.Del("Authorization")
	return retry, nil
}

func wasRetried(req *http.Request) bool {
	v, _ := req.Context().Value(retriedKey).(bool)
	return v
}

func drain(resp *http.Response) {
	if resp.Body != nil {
		resp.Body.Close()
	}
}

var _ http.RoundTripper = (*Coordinator)(nil)
