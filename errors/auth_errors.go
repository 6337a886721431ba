package errors

import (
	stderrors "errors"
	"fmt"
)

// AuthError is the standardized error shape for the session subsystem.
// Code is machine-readable and shared with the backend's error envelope and
// the login page's reason query parameter.
type AuthError struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches AuthErrors by code so sentinels work with errors.Is.
func (e *AuthError) Is(target error) bool {
	var ae *AuthError
	if !stderrors.As(target, &ae) {
		return false
	}
	return e.Code == ae.Code
}

// Error codes carried in redirect parameters and API error envelopes.
const (
	AuthRequired   = "auth_required"
	SessionExpired = "session_expired"
	RefreshFailed  = "refresh_failed"
	TwoFARequired  = "two_fa_required"
	TwoFAInvalid   = "two_fa_invalid"
	TwoFACancelled = "two_fa_cancelled"
)

// Common error constructors
func NewAuthRequired(description string) *AuthError {
	return &AuthError{
		Code:        AuthRequired,
		Description: description,
	}
}

func NewSessionExpired(description string) *AuthError {
	return &AuthError{
		Code:        SessionExpired,
		Description: description,
	}
}

func NewRefreshFailed(description string) *AuthError {
	return &AuthError{
		Code:        RefreshFailed,
		Description: description,
	}
}

func NewTwoFARequired(description string) *AuthError {
	return &AuthError{
		Code:        TwoFARequired,
		Description: description,
	}
}

func NewTwoFAInvalid(description string) *AuthError {
	return &AuthError{
		Code:        TwoFAInvalid,
		Description: description,
	}
}

// ErrPromptCancelled is returned to callers whose gated operation was
// abandoned by the user dismissing the step-up prompt. It is deliberately
// distinguishable from network and credential errors so callers can skip
// alarming error messaging.
var ErrPromptCancelled = &AuthError{
	Code:        TwoFACancelled,
	Description: "user cancelled the two-factor prompt",
}

// CodeOf returns the AuthError code carried by err, or "" when err carries
// none.
func CodeOf(err error) string {
	var ae *AuthError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsCancelled reports whether err represents a user-cancelled 2FA prompt.
func IsCancelled(err error) bool {
	return CodeOf(err) == TwoFACancelled
}

// IsSessionExpired reports whether err represents an unrecoverable loss of
// session (failed refresh, rejected refresh token).
func IsSessionExpired(err error) bool {
	return CodeOf(err) == SessionExpired
}

// IsTwoFARequired reports whether err is the backend's "code required"
// signal for a gated request sent without a step-up code.
func IsTwoFARequired(err error) bool {
	return CodeOf(err) == TwoFARequired
}
