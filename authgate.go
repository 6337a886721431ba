// Package authgate wires the session store, refresh coordinator, and
// two-factor gate into an HTTP client for the Novunt backend. It is the
// entry point most consumers need; the subpackages stay usable on their
// own.
package authgate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/NovuntFinance/authgate/config"
	"github.com/NovuntFinance/authgate/domain"
	autherrors "github.com/NovuntFinance/authgate/errors"
	"github.com/NovuntFinance/authgate/refresh"
	"github.com/NovuntFinance/authgate/store"
	"github.com/NovuntFinance/authgate/twofactor"
)

// Convenience re-exports so simple consumers import one package.
var (
	ErrPromptCancelled = autherrors.ErrPromptCancelled

	IsCancelled      = autherrors.IsCancelled
	IsSessionExpired = autherrors.IsSessionExpired
)

const clientTimeout = 30 * time.Second

// Client is an HTTP client for the Novunt API with transparent token
// refresh and two-factor gating.
type Client struct {
	cfg   *config.Config
	store *store.SessionStore
	gate  *twofactor.Gate

	http  *http.Client // gated + refreshed transport
	plain *http.Client // for login, which predates any session
}

// New builds a client around the given store. prompter may be nil for
// consumers that never touch gated endpoints.
func New(cfg *config.Config, st *store.SessionStore, prompter twofactor.Prompter) *Client {
	coordinator := refresh.NewCoordinator(nil, st, cfg.APIBaseURL+cfg.RefreshPath)
	gate := twofactor.NewGate(st, prompter, twofactor.NewClassifier(cfg.SensitivePrefixes))

	return &Client{
		cfg:   cfg,
		store: st,
		gate:  gate,
		http: &http.Client{
			Transport: twofactor.NewTransport(coordinator, gate),
			Timeout:   clientTimeout,
		},
		plain: &http.Client{Timeout: clientTimeout},
	}
}

// Store returns the underlying session store.
func (c *Client) Store() *store.SessionStore { return c.store }

// HTTP returns the composed client: bearer injection, single-flight
// refresh, and two-factor gating on every request.
func (c *Client) HTTP() *http.Client { return c.http }

// apiEnvelope is the backend's uniform response wrapper.
type apiEnvelope struct {
	Status  string          `json:"status,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type loginData struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

// Login authenticates against the backend and installs the session.
// twoFACode may be empty; accounts with 2FA enabled then get a
// two_fa_required error and the caller retries with a code.
func (c *Client) Login(ctx context.Context, email, password, twoFACode string) (*domain.User, error) {
	payload := map[string]string{
		"email":    email,
		"password": password,
	}
	if twoFACode != "" {
		payload["twoFACode"] = twoFACode
	}

	var data loginData
	if err := c.postPlain(ctx, c.cfg.APIBaseURL+c.cfg.LoginAPI, payload, &data); err != nil {
		return nil, err
	}
	if data.AccessToken == "" {
		return nil, fmt.Errorf("login response did not contain an access token")
	}

	c.store.SetSession(data.User, data.AccessToken, data.RefreshToken)
	log.Ctx(ctx).Info().Str("email", email).Msg("login successful")

	return c.store.User(), nil
}

// Logout revokes the session server-side on a best-effort basis and always
// clears the local session.
func (c *Client) Logout(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+c.cfg.LogoutAPI, nil)
	if err == nil {
		if resp, doErr := c.http.Do(req); doErr != nil {
			log.Ctx(ctx).Warn().Err(doErr).Msg("server-side logout failed, clearing local session anyway")
		} else {
			resp.Body.Close()
		}
	}
	c.store.Logout()
}

// Profile fetches the authenticated user's profile and refreshes the
// stored snapshot.
func (c *Client) Profile(ctx context.Context) (*domain.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBaseURL+c.cfg.ProfileAPI, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var user domain.User
	if err := decodeEnvelope(resp, &user); err != nil {
		return nil, err
	}

	c.store.SetUser(&user)
	return c.store.User(), nil
}

// postPlain sends an unauthenticated JSON request and decodes the data
// envelope into out.
func (c *Client) postPlain(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.plain.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, out)
}

// decodeEnvelope unwraps the backend's response envelope, converting its
// error codes into AuthErrors the rest of the kit understands.
func decodeEnvelope(resp *http.Response, out any) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return fmt.Errorf("request failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if env.Code != "" {
			return &autherrors.AuthError{Code: env.Code, Description: env.Message}
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, env.Message)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
