package twofactor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	autherrors "github.com/NovuntFinance/authgate/errors"
)

// stepUpBackend rejects requests without the expected code header using
// the backend's error envelope.
func stepUpBackend(t *testing.T, status int, errCode, wantCode string, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get(CodeHeader) != wantCode {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{"code": errCode})
			return
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"status":"success"}`)
	}))
}

func transportClient(gate *Gate) *http.Client {
	return &http.Client{Transport: NewTransport(nil, gate)}
}

func TestTransportReactivePromptAndRetry(t *testing.T) {
	var apiCalls, prompts atomic.Int32
	srv := stepUpBackend(t, http.StatusPreconditionRequired, autherrors.TwoFARequired, "123456", &apiCalls)
	defer srv.Close()

	prompter := PrompterFunc(func(_ context.Context, req PromptRequest) (PromptResponse, error) {
		prompts.Add(1)
		assert.False(t, req.Retry)
		return PromptResponse{ID: req.ID, Code: "123456"}, nil
	})
	gate := NewGate(staticSource{}, prompter, nil)

	// A plain GET is not gated proactively; only the backend's answer
	// triggers the prompt.
	resp, err := transportClient(gate).Get(srv.URL + "/profile")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), apiCalls.Load())
	assert.Equal(t, int32(1), prompts.Load())
}

func TestTransportInvalidCodeRepromptsWithRetry(t *testing.T) {
	var apiCalls, prompts atomic.Int32
	srv := stepUpBackend(t, http.StatusForbidden, autherrors.TwoFAInvalid, "654321", &apiCalls)
	defer srv.Close()

	prompter := PrompterFunc(func(_ context.Context, req PromptRequest) (PromptResponse, error) {
		prompts.Add(1)
		assert.True(t, req.Retry, "an invalid-code answer must reopen the prompt as a retry")
		return PromptResponse{ID: req.ID, Code: "654321"}, nil
	})
	gate := NewGate(staticSource{}, prompter, nil)

	resp, err := transportClient(gate).Get(srv.URL + "/profile")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), prompts.Load())
}

func TestTransportCancelledRepromptSurfaces(t *testing.T) {
	var apiCalls atomic.Int32
	srv := stepUpBackend(t, http.StatusPreconditionRequired, autherrors.TwoFARequired, "123456", &apiCalls)
	defer srv.Close()

	prompter := PrompterFunc(func(_ context.Context, req PromptRequest) (PromptResponse, error) {
		return PromptResponse{ID: req.ID, Cancelled: true}, nil
	})
	gate := NewGate(staticSource{}, prompter, nil)

	_, err := transportClient(gate).Get(srv.URL + "/profile")
	require.Error(t, err)
	assert.True(t, autherrors.IsCancelled(err))
	assert.Equal(t, int32(1), apiCalls.Load())
}

func TestTransportRetriesReactivelyOnlyOnce(t *testing.T) {
	var apiCalls, prompts atomic.Int32
	// The backend never accepts any code.
	srv := stepUpBackend(t, http.StatusPreconditionRequired, autherrors.TwoFARequired, "never", &apiCalls)
	defer srv.Close()

	prompter := PrompterFunc(func(_ context.Context, req PromptRequest) (PromptResponse, error) {
		prompts.Add(1)
		return PromptResponse{ID: req.ID, Code: "123456"}, nil
	})
	gate := NewGate(staticSource{}, prompter, nil)

	resp, err := transportClient(gate).Get(srv.URL + "/profile")
	require.NoError(t, err)
	defer resp.Body.Close()

	// The second rejection comes back to the caller untouched.
	assert.Equal(t, http.StatusPreconditionRequired, resp.StatusCode)
	assert.Equal(t, int32(2), apiCalls.Load())
	assert.Equal(t, int32(1), prompts.Load())

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), autherrors.TwoFARequired)
}

func TestTransportProactiveCodeOnGatedRequest(t *testing.T) {
	var apiCalls, prompts atomic.Int32
	srv := stepUpBackend(t, http.StatusPreconditionRequired, autherrors.TwoFARequired, "123456", &apiCalls)
	defer srv.Close()

	prompter := PrompterFunc(func(_ context.Context, req PromptRequest) (PromptResponse, error) {
		prompts.Add(1)
		return PromptResponse{ID: req.ID, Code: "123456"}, nil
	})
	gate := NewGate(staticSource{}, prompter, nil)

	// A mutating request is gated before it leaves, so the backend sees
	// the code on the first attempt.
	resp, err := transportClient(gate).Post(srv.URL+"/wallet/withdraw", "application/json", strings.NewReader(`{"amount":10}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), apiCalls.Load())
	assert.Equal(t, int32(1), prompts.Load())
}
