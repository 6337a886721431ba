// Package twofactor decides which requests need step-up authentication and
// obtains the 6-digit code from the user when they do.
package twofactor

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	autherrors "github.com/NovuntFinance/authgate/errors"
	"github.com/NovuntFinance/authgate/token"
)

// PromptRequest asks the user for a 6-digit code so a pending operation
// can proceed. ID correlates the eventual response.
type PromptRequest struct {
	ID     uuid.UUID
	Method string
	URL    string
	// Retry is true when a previous code was rejected and the prompt is
	// reopening.
	Retry bool
}

// PromptResponse is the user's answer to a PromptRequest.
type PromptResponse struct {
	ID        uuid.UUID
	Code      string
	Cancelled bool
}

// Prompter obtains a code for a prompt request. Implementations must
// always settle: either a response or an error, never an indefinite hang
// beyond ctx.
//
//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE
type Prompter interface {
	Prompt(ctx context.Context, req PromptRequest) (PromptResponse, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, req PromptRequest) (PromptResponse, error)

func (f PrompterFunc) Prompt(ctx context.Context, req PromptRequest) (PromptResponse, error) {
	return f(ctx, req)
}

// TokenSource exposes the current access token for the verified-claim
// check.
type TokenSource interface {
	AccessToken() string
}

// pendingPrompt is the at-most-one-active prompt. Concurrent gated
// requests coalesce onto it and observe the same outcome.
type pendingPrompt struct {
	done chan struct{}
	code string
	err  error
}

// Gate serializes step-up prompts: checking for an open prompt and opening
// one happen in a single critical section, so two concurrent gated
// requests never open two prompts.
type Gate struct {
	source     TokenSource
	prompter   Prompter
	classifier *Classifier

	mu     sync.Mutex
	active *pendingPrompt
}

// NewGate creates a gate. A nil classifier keeps the defaults.
func NewGate(source TokenSource, prompter Prompter, classifier *Classifier) *Gate {
	if classifier == nil {
		classifier = defaultClassifier
	}
	return &Gate{
		source:     source,
		prompter:   prompter,
		classifier: classifier,
	}
}

// Code returns the step-up code to attach to a request, or needed=false
// when the request is not gated or the session already completed step-up
// verification. A cancelled prompt returns ErrPromptCancelled.
func (g *Gate) Code(ctx context.Context, method, rawURL string) (code string, needed bool, err error) {
	if !g.classifier.RequiresStepUp(method, rawURL) {
		return "", false, nil
	}
	if token.Is2FAVerified(g.source.AccessToken()) {
		return "", false, nil
	}

	code, err = g.obtain(ctx, PromptRequest{ID: uuid.New(), Method: method, URL: rawURL})
	return code, true, err
}

// Reprompt forces a prompt regardless of classification, used on the
// backend's explicit "code required" or "code invalid" signal.
func (g *Gate) Reprompt(ctx context.Context, method, rawURL string, retry bool) (string, error) {
	return g.obtain(ctx, PromptRequest{ID: uuid.New(), Method: method, URL: rawURL, Retry: retry})
}

func (g *Gate) obtain(ctx context.Context, req PromptRequest) (string, error) {
	g.mu.Lock()
	if p := g.active; p != nil {
		// A prompt is already open; queue behind its outcome.
		g.mu.Unlock()
		select {
		case <-p.done:
			return p.code, p.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	p := &pendingPrompt{done: make(chan struct{})}
	g.active = p
	g.mu.Unlock()

	p.code, p.err = g.runPrompt(ctx, req)

	g.mu.Lock()
	g.active = nil
	g.mu.Unlock()
	close(p.done)

	return p.code, p.err
}

func (g *Gate) runPrompt(ctx context.Context, req PromptRequest) (string, error) {
	if g.prompter == nil {
		return "", autherrors.NewTwoFARequired("no prompter configured")
	}

	log.Ctx(ctx).Debug().
		Str("prompt_id", req.ID.String()).
		Str("method", req.Method).
		Str("url", req.URL).
		Msg("opening two-factor prompt")

	resp, err := g.prompter.Prompt(ctx, req)
	if err != nil {
		return "", err
	}
	if resp.Cancelled || resp.Code == "" {
		return "", autherrors.ErrPromptCancelled
	}
	if resp.ID != req.ID {
		// A stale response from an earlier prompt must not unblock this
		// one.
		return "", autherrors.NewTwoFARequired("prompt response id mismatch")
	}
	return resp.Code, nil
}
