// Package middleware implements the edge-level session check. It runs in
// a context with no access to the client's session store: the only
// credential it sees is the access-token cookie, which it decodes, without
// verification, just far enough to reject obviously dead sessions before
// they reach protected pages.
package middleware

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/NovuntFinance/authgate/cache"
	"github.com/NovuntFinance/authgate/domain"
	autherrors "github.com/NovuntFinance/authgate/errors"
	"github.com/NovuntFinance/authgate/token"
)

// Config wires the session middleware.
type Config struct {
	Routes             Routes
	LoginPath          string
	DefaultLandingPath string
	AccessCookie       string
	RefreshCookie      string
	// Claims caches decoded cookie claims between requests. Optional.
	Claims *cache.ClaimsCache
	// Now is swapped in tests. Nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns the platform's conventional cookie and path
// names.
func DefaultConfig() Config {
	return Config{
		Routes:             DefaultRoutes(),
		LoginPath:          "/login",
		DefaultLandingPath: "/dashboard",
		AccessCookie:       "accessToken",
		RefreshCookie:      "refreshToken",
	}
}

// Session returns the echo middleware performing the edge check.
func Session(cfg Config) echo.MiddlewareFunc {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.DefaultLandingPath == "" {
		cfg.DefaultLandingPath = "/dashboard"
	}
	if cfg.AccessCookie == "" {
		cfg.AccessCookie = "accessToken"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path

			switch cfg.Routes.Classify(path) {
			case ClassPublic:
				return next(c)
			case ClassAdmin:
				// The admin credential lives outside this cookie; the
				// downstream layout guard owns the decision.
				return next(c)
			case ClassAuthOnly:
				return handleAuthOnly(c, cfg, next)
			default:
				return handleProtected(c, cfg, next)
			}
		}
	}
}

func handleProtected(c echo.Context, cfg Config, next echo.HandlerFunc) error {
	cookie, err := c.Cookie(cfg.AccessCookie)
	if err != nil || cookie.Value == "" {
		return redirectToLogin(c, cfg, autherrors.AuthRequired)
	}

	if expired(cfg, cookie.Value) {
		log.Debug().Str("path", c.Request().URL.Path).Msg("expired credential cookie at edge, clearing")
		clearCookie(c, cfg.AccessCookie)
		if cfg.RefreshCookie != "" {
			clearCookie(c, cfg.RefreshCookie)
		}
		return redirectToLogin(c, cfg, autherrors.SessionExpired)
	}

	return next(c)
}

// handleAuthOnly bounces an already-authenticated visitor off the
// login/signup pages, unless they explicitly forced their way there or
// asked for a specific destination.
func handleAuthOnly(c echo.Context, cfg Config, next echo.HandlerFunc) error {
	cookie, err := c.Cookie(cfg.AccessCookie)
	if err != nil || cookie.Value == "" || expired(cfg, cookie.Value) {
		return next(c)
	}

	if c.QueryParam("force") == "true" {
		return next(c)
	}
	if target := c.QueryParam("redirect"); isLocalPath(target) {
		return c.Redirect(http.StatusFound, target)
	}
	return c.Redirect(http.StatusFound, cfg.DefaultLandingPath)
}

// expired runs the shared fail-closed expiry check, consulting the claims
// cache when one is configured.
func expired(cfg Config, raw string) bool {
	if cfg.Claims != nil {
		if claims, ok := cfg.Claims.Get(raw); ok {
			return claims.Expired(cfg.Now())
		}
	}

	claims, err := token.Decode(raw)
	if err != nil {
		return true
	}
	if cfg.Claims != nil {
		cfg.Claims.Set(raw, claims)
	}
	return claims.Expired(cfg.Now())
}

func redirectToLogin(c echo.Context, cfg Config, reason string) error {
	q := url.Values{}
	q.Set("redirect", c.Request().URL.Path)
	q.Set("reason", reason)
	return c.Redirect(http.StatusFound, cfg.LoginPath+"?"+q.Encode())
}

func clearCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})
}

// isLocalPath accepts only same-site absolute paths as redirect targets.
func isLocalPath(target string) bool {
	return strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//")
}

// ClaimsFor decodes the request's credential cookie for downstream
// handlers that want the role or subject without re-parsing.
func ClaimsFor(c echo.Context, cfg Config) (*domain.Claims, bool) {
	cookie, err := c.Cookie(cfg.AccessCookie)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	claims, err := token.Decode(cookie.Value)
	if err != nil {
		return nil, false
	}
	return claims, true
}
