package melcloud

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newLoginServer returns a fake MELCloud login endpoint. loginCount is
// incremented for every ClientLogin request received.
func newLoginServer(t *testing.T, loginCount *atomic.Int64, acceptPassword string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/Login/ClientLogin", func(w http.ResponseWriter, r *http.Request) {
		loginCount.Add(1)

		var body struct {
			Email    string `json:"Email"`
			Password string `json:"Password"`
		}
		if err := decodeJSON(r, &body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if body.Password != acceptPassword {
			// MELCloud reports bad credentials in-band on a 200.
			writeTestJSON(w, map[string]any{"ErrorId": 1, "ErrorMessage": "bad credentials"})
			return
		}
		writeTestJSON(w, map[string]any{
			"ErrorId":      nil,
			"LoginData":    map[string]any{"ContextKey": "ctx-key-123"},
			"LoginMinutes": 1440,
		})
	})
	return httptest.NewServer(mux)
}

func newSessionManager(baseURL, password string) *SessionManager {
	return NewSessionManager(SessionConfig{
		BaseURL:    baseURL,
		AppVersion: "1.19.1.1",
		Timeout:    5 * time.Second,
	}, Credentials{Email: "user@example.com", Password: password})
}

func TestSessionManager_Login(t *testing.T) {
	var count atomic.Int64
	srv := newLoginServer(t, &count, "correct")
	defer srv.Close()

	m := newSessionManager(srv.URL, "correct")

	if m.IsAuthenticated() {
		t.Error("IsAuthenticated() = true before login")
	}

	if err := m.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if !m.IsAuthenticated() {
		t.Error("IsAuthenticated() = false after successful login")
	}

	if _, ok := m.ExpiryEstimate(); !ok {
		t.Error("ExpiryEstimate() missing after login")
	}

	// Authorize attaches the context key.
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	if err := m.Authorize(req); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if got := req.Header.Get("X-MitsContextKey"); got != "ctx-key-123" {
		t.Errorf("context key header = %q, want %q", got, "ctx-key-123")
	}
}

func TestSessionManager_BadCredentials(t *testing.T) {
	var count atomic.Int64
	srv := newLoginServer(t, &count, "correct")
	defer srv.Close()

	m := newSessionManager(srv.URL, "wrong")

	err := m.Login(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("Login() error = %v, want ErrAuthFailed", err)
	}

	// A fatal auth failure must not be retried automatically and must
	// leave the manager unauthenticated.
	if m.IsAuthenticated() {
		t.Error("IsAuthenticated() = true after rejected login")
	}
	if got := count.Load(); got != 1 {
		t.Errorf("login requests = %d, want 1 (no automatic retry)", got)
	}
}

func TestSessionManager_EnsureValidIsIdempotent(t *testing.T) {
	var count atomic.Int64
	srv := newLoginServer(t, &count, "correct")
	defer srv.Close()

	m := newSessionManager(srv.URL, "correct")

	for i := 0; i < 3; i++ {
		if err := m.EnsureValid(context.Background()); err != nil {
			t.Fatalf("EnsureValid() error = %v", err)
		}
	}

	if got := count.Load(); got != 1 {
		t.Errorf("login requests = %d, want 1 (cached session reused)", got)
	}
}

func TestSessionManager_InvalidateForcesRelogin(t *testing.T) {
	var count atomic.Int64
	srv := newLoginServer(t, &count, "correct")
	defer srv.Close()

	m := newSessionManager(srv.URL, "correct")

	if err := m.EnsureValid(context.Background()); err != nil {
		t.Fatalf("EnsureValid() error = %v", err)
	}
	m.Invalidate()
	if m.IsAuthenticated() {
		t.Error("IsAuthenticated() = true after Invalidate()")
	}
	if err := m.EnsureValid(context.Background()); err != nil {
		t.Fatalf("EnsureValid() after invalidate error = %v", err)
	}

	if got := count.Load(); got != 2 {
		t.Errorf("login requests = %d, want 2", got)
	}
}

func TestSessionManager_SingleFlight(t *testing.T) {
	var count atomic.Int64
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/Login/ClientLogin", func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		<-release // Hold every login until all callers are waiting.
		writeTestJSON(w, map[string]any{
			"LoginData":    map[string]any{"ContextKey": "ctx-key-123"},
			"LoginMinutes": 1440,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := newSessionManager(srv.URL, "correct")

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.EnsureValid(context.Background())
		}()
	}

	// Give the goroutines time to pile up behind the in-flight attempt,
	// then let the login complete.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: EnsureValid() error = %v", i, err)
		}
	}
	if got := count.Load(); got != 1 {
		t.Errorf("login requests = %d, want exactly 1 (single-flight)", got)
	}
}

func TestSessionManager_AuthorizeWithoutSession(t *testing.T) {
	m := newSessionManager("http://example.com", "x")

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	if err := m.Authorize(req); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Authorize() error = %v, want ErrNotAuthenticated", err)
	}
}
