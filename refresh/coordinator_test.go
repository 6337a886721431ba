package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	autherrors "github.com/NovuntFinance/authgate/errors"
)

// fakeState is a minimal SessionState for transport tests.
type fakeState struct {
	mu        sync.Mutex
	access    string
	refresh   string
	loggedOut bool
}

func (s *fakeState) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

func (s *fakeState) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}

func (s *fakeState) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
}

func (s *fakeState) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
	s.loggedOut = true
}

func (s *fakeState) LoggedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedOut
}

// testBackend is an API that rejects the old token and accepts the new
// one, with a counting refresh endpoint.
type testBackend struct {
	refreshCalls atomic.Int32
	refreshOK    bool

	server *httptest.Server
}

func newTestBackend(refreshOK bool) *testBackend {
	b := &testBackend{refreshOK: refreshOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		// Slow enough that every concurrently failing request joins the
		// in-flight episode instead of racing past its completion.
		time.Sleep(150 * time.Millisecond)
		if !b.refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"code":"session_expired"}`)
			return
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.RefreshToken != "refresh-old" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{
				"accessToken":  "access-new",
				"refreshToken": "refresh-new",
			},
		})
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer access-new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	})
	b.server = httptest.NewServer(mux)
	return b
}

func TestRoundTripRefreshesOnUnauthorized(t *testing.T) {
	backend := newTestBackend(true)
	defer backend.server.Close()

	state := &fakeState{access: "access-old", refresh: "refresh-old"}
	coordinator := NewCoordinator(nil, state, backend.server.URL+"/auth/refresh-token")
	client := &http.Client{Transport: coordinator}

	resp, err := client.Get(backend.server.URL + "/api/wallets")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), backend.refreshCalls.Load())
	assert.Equal(t, "access-new", state.AccessToken())
	assert.Equal(t, "refresh-new", state.RefreshToken())
}

func TestConcurrentFailuresShareOneRefresh(t *testing.T) {
	backend := newTestBackend(true)
	defer backend.server.Close()

	state := &fakeState{access: "access-old", refresh: "refresh-old"}
	coordinator := NewCoordinator(nil, state, backend.server.URL+"/auth/refresh-token")
	client := &http.Client{Transport: coordinator}

	const n = 8
	var wg sync.WaitGroup
	statuses := make([]int, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(backend.server.URL + "/api/wallets")
			if err != nil {
				errs[i] = err
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), backend.refreshCalls.Load(), "exactly one refresh under concurrent failures")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, statuses[i], "request %d", i)
	}
}

func TestRefreshFailureClearsSessionForAllCallers(t *testing.T) {
	backend := newTestBackend(false)
	defer backend.server.Close()

	state := &fakeState{access: "access-old", refresh: "refresh-old"}
	coordinator := NewCoordinator(nil, state, backend.server.URL+"/auth/refresh-token")
	client := &http.Client{Transport: coordinator}

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(backend.server.URL + "/api/wallets")
			if err == nil {
				resp.Body.Close()
				err = fmt.Errorf("unexpected success: %d", resp.StatusCode)
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), backend.refreshCalls.Load())
	assert.True(t, state.LoggedOut())
	for i := 0; i < n; i++ {
		require.Error(t, errs[i])
		assert.True(t, autherrors.IsSessionExpired(errs[i]), "request %d: %v", i, errs[i])
	}
}

func TestSecondUnauthorizedAfterRetryIsTerminal(t *testing.T) {
	var refreshCalls, apiCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"accessToken": "access-new"},
		})
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		// Reject every token: the retried request must not trigger a
		// second refresh cycle.
		apiCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	state := &fakeState{access: "access-old", refresh: "refresh-old"}
	coordinator := NewCoordinator(nil, state, server.URL+"/auth/refresh-token")
	client := &http.Client{Transport: coordinator}

	resp, err := client.Get(server.URL + "/api/wallets")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), refreshCalls.Load(), "no second refresh for the same logical request")
	assert.Equal(t, int32(2), apiCalls.Load(), "original call plus exactly one replay")
}

func TestRefreshRotationKeepsOldRefreshTokenWhenNotRotated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"accessToken": "access-new"},
		})
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer access-new" {
			fmt.Fprint(w, `{}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	state := &fakeState{access: "access-old", refresh: "refresh-old"}
	coordinator := NewCoordinator(nil, state, server.URL+"/auth/refresh-token")
	client := &http.Client{Transport: coordinator}

	resp, err := client.Get(server.URL + "/api/wallets")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "refresh-old", state.RefreshToken())
}

func TestBodyIsReplayedOnRetry(t *testing.T) {
	var seen []string
	var mu sync.Mutex

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"accessToken": "access-new"},
		})
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		body := new(strings.Builder)
		_, _ = io.Copy(body, r.Body)
		mu.Lock()
		seen = append(seen, body.String())
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer access-new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	state := &fakeState{access: "access-old", refresh: "refresh-old"}
	coordinator := NewCoordinator(nil, state, server.URL+"/auth/refresh-token")
	client := &http.Client{Transport: coordinator}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		server.URL+"/api/stakes", strings.NewReader(`{"amount":100}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, `{"amount":100}`, seen[0])
	assert.Equal(t, `{"amount":100}`, seen[1], "retried request must carry the original body")
}
