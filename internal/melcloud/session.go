package melcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// contextKeyHeader carries the session token on authenticated requests.
const contextKeyHeader = "X-MitsContextKey"

// Logger is the logging interface used by this package.
// Satisfied by logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Credentials are the MELCloud account credentials.
type Credentials struct {
	Email    string
	Password string
}

// session is the authenticated state. Owned exclusively by
// SessionManager; callers only ever see it through Authorize.
type session struct {
	contextKey string
	expiresAt  time.Time
}

// loginAttempt is a single in-flight login shared by concurrent callers.
type loginAttempt struct {
	done chan struct{}
	err  error
}

// SessionManager owns the authenticated MELCloud session.
//
// Re-authentication is single-flight: when several goroutines observe an
// invalid session at once, exactly one login request goes out and all of
// them receive its outcome.
//
// Thread Safety: all methods are safe for concurrent use.
type SessionManager struct {
	httpClient *http.Client
	baseURL    string
	appVersion string
	language   int
	creds      Credentials

	mu      sync.Mutex
	current *session
	pending *loginAttempt

	logger Logger
}

// SessionConfig holds the settings needed to construct a SessionManager.
type SessionConfig struct {
	BaseURL    string
	AppVersion string
	Language   int
	Timeout    time.Duration
}

// NewSessionManager creates a session manager. No network activity
// happens until Login or EnsureValid is called.
func NewSessionManager(cfg SessionConfig, creds Credentials) *SessionManager {
	return &SessionManager{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		appVersion: cfg.AppVersion,
		language:   cfg.Language,
		creds:      creds,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the session manager.
func (m *SessionManager) SetLogger(logger Logger) {
	m.logger = logger
}

// IsAuthenticated reports whether a session is currently held.
func (m *SessionManager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// ExpiryEstimate returns the estimated expiry time of the current
// session, or false if no session is held. The estimate comes from the
// LoginMinutes hint in the login response; the server may still expire
// the session earlier, which surfaces as ErrSessionExpired on a request.
func (m *SessionManager) ExpiryEstimate() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return time.Time{}, false
	}
	return m.current.expiresAt, true
}

// Login authenticates with MELCloud unconditionally, replacing any
// cached session. Most callers should use EnsureValid instead.
//
// Invalid credentials return ErrAuthFailed and are not retried here.
// Transport failures are wrapped in ErrAPI and left to the caller's
// retry policy.
func (m *SessionManager) Login(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	return m.EnsureValid(ctx)
}

// EnsureValid guarantees an authenticated session, logging in if the
// cached session is absent or has been invalidated.
//
// Concurrent callers observing an invalid session await the single
// in-flight login attempt rather than each triggering their own.
func (m *SessionManager) EnsureValid(ctx context.Context) error {
	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		return nil
	}
	if p := m.pending; p != nil {
		m.mu.Unlock()
		select {
		case <-p.done:
			return p.err
		case <-ctx.Done():
			return fmt.Errorf("awaiting login: %w", ctx.Err())
		}
	}
	p := &loginAttempt{done: make(chan struct{})}
	m.pending = p
	m.mu.Unlock()

	sess, err := m.login(ctx)

	m.mu.Lock()
	m.pending = nil
	if err == nil {
		m.current = sess
	}
	m.mu.Unlock()

	p.err = err
	close(p.done)
	return err
}

// Invalidate discards the cached session. The next EnsureValid call
// re-authenticates. Called by the control dispatcher and the sync loop
// when a request comes back with ErrSessionExpired.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

// Authorize attaches the session's context key to an outbound request.
// Returns ErrNotAuthenticated if no session is held.
func (m *SessionManager) Authorize(req *http.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ErrNotAuthenticated
	}
	req.Header.Set(contextKeyHeader, m.current.contextKey)
	return nil
}

// loginResponse is the wire shape of the ClientLogin response.
type loginResponse struct {
	ErrorID      *int `json:"ErrorId"`
	ErrorMessage any  `json:"ErrorMessage"`
	LoginData    struct {
		ContextKey string `json:"ContextKey"`
	} `json:"LoginData"`
	LoginMinutes int `json:"LoginMinutes"`
}

// login performs the ClientLogin request. It never touches m.current;
// the caller commits the result under the mutex.
func (m *SessionManager) login(ctx context.Context) (*session, error) {
	body := map[string]any{
		"Email":           m.creds.Email,
		"Password":        m.creds.Password,
		"Language":        m.language,
		"AppVersion":      m.appVersion,
		"Persist":         true,
		"CaptchaResponse": nil,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding login request: %w", ErrAPI, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.baseURL+"/Login/ClientLogin", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: building login request: %w", ErrAPI, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: login: %w", ErrAPI, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrAuthFailed
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: login returned status %d", ErrAPI, resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("%w: decoding login response: %w", ErrAPI, err)
	}

	// MELCloud reports bad credentials as an in-band error on a 200.
	if lr.ErrorID != nil {
		m.logger.Warn("login rejected", "error_id", *lr.ErrorID)
		return nil, ErrAuthFailed
	}
	if lr.LoginData.ContextKey == "" {
		return nil, fmt.Errorf("%w: login response missing context key", ErrAPI)
	}

	expiry := time.Now().Add(time.Duration(lr.LoginMinutes) * time.Minute)
	m.logger.Info("melcloud session established", "expires_at_estimate", expiry)

	return &session{
		contextKey: lr.LoginData.ContextKey,
		expiresAt:  expiry,
	}, nil
}
