// Package auth manages the authenticated session: sign-in against the
// backend's auth endpoint, token refresh, persistence and state-change
// notification.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/comunihub/marketplace-client/pkg/logger"
)

// Session is an authenticated backend session.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
}

// Expired reports whether the access token is past (or within a minute of)
// its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt.Add(-time.Minute))
}

// Claims are the access-token claims the client cares about.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Listener observes auth state changes. A nil session means signed out.
type Listener func(*Session)

// Manager owns the current session.
type Manager struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	store      Store
	logger     *logger.Logger

	mu        sync.RWMutex
	session   *Session
	listeners []Listener
}

// NewManager creates a session manager persisting through store.
func NewManager(baseURL, anonKey string, store Store, log *logger.Logger) *Manager {
	return &Manager{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		store:      store,
		logger:     log,
	}
}

// Restore loads a persisted session, refreshing it when expired. Returns
// ErrNoSession when nothing was persisted.
func (m *Manager) Restore(ctx context.Context) error {
	session, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	m.setSession(session)
	if session.Expired(time.Now()) {
		return m.Refresh(ctx)
	}
	return nil
}

// SignUp registers a new account.
func (m *Manager) SignUp(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	var session Session
	if err := m.post(ctx, "/auth/v1/signup", body, &session); err != nil {
		return fmt.Errorf("sign-up failed: %w", err)
	}
	// The backend may require email confirmation before issuing tokens.
	if session.AccessToken == "" {
		return nil
	}
	return m.adopt(ctx, &session)
}

// SignIn authenticates with the password grant and persists the session.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	var session Session
	if err := m.post(ctx, "/auth/v1/token?grant_type=password", body, &session); err != nil {
		return nil, fmt.Errorf("sign-in failed: %w", err)
	}
	if err := m.adopt(ctx, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Refresh exchanges the refresh token for a new session.
func (m *Manager) Refresh(ctx context.Context) error {
	current := m.Session()
	if current == nil {
		return ErrNoSession
	}
	body := map[string]string{"refresh_token": current.RefreshToken}
	var session Session
	if err := m.post(ctx, "/auth/v1/token?grant_type=refresh_token", body, &session); err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}
	return m.adopt(ctx, &session)
}

// ResetPasswordForEmail asks the backend to send a recovery email. It does
// not change the local auth state; the user completes the flow through the
// link in the email.
func (m *Manager) ResetPasswordForEmail(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	if err := m.post(ctx, "/auth/v1/recover", body, nil); err != nil {
		return fmt.Errorf("password recovery failed: %w", err)
	}
	return nil
}

// UpdatePassword sets a new password for the signed-in user.
func (m *Manager) UpdatePassword(ctx context.Context, newPassword string) error {
	session := m.Session()
	if session == nil {
		return ErrNoSession
	}
	body := map[string]string{"password": newPassword}
	if err := m.do(ctx, http.MethodPut, "/auth/v1/user", session.AccessToken, body, nil); err != nil {
		return fmt.Errorf("password update failed: %w", err)
	}
	return nil
}

// SignOut drops the session and clears persistence.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear persisted session", zap.Error(err))
	}
	m.setSession(nil)
	return nil
}

// Session returns the current session, or nil when signed out.
func (m *Manager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// UserID returns the authenticated user's id, or "" when signed out.
func (m *Manager) UserID() string {
	if s := m.Session(); s != nil {
		return s.UserID
	}
	return ""
}

// AccessToken returns the current bearer token, or "" when signed out. It
// satisfies backend.TokenSource.
func (m *Manager) AccessToken() string {
	if s := m.Session(); s != nil {
		return s.AccessToken
	}
	return ""
}

// OnChange registers a listener for auth state changes.
func (m *Manager) OnChange(fn Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// adopt fills derived session fields, persists and publishes the session.
func (m *Manager) adopt(ctx context.Context, session *Session) error {
	userID, err := subjectOf(session.AccessToken)
	if err != nil {
		return fmt.Errorf("cannot read access token claims: %w", err)
	}
	session.UserID = userID
	if session.ExpiresAt.IsZero() && session.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().Add(time.Duration(session.ExpiresIn) * time.Second)
	}
	if err := m.store.Save(ctx, session); err != nil {
		m.logger.Warn("failed to persist session", zap.Error(err))
	}
	m.setSession(session)
	return nil
}

func (m *Manager) setSession(session *Session) {
	m.mu.Lock()
	m.session = session
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(session)
	}
}

func (m *Manager) post(ctx context.Context, path string, body, dest any) error {
	return m.do(ctx, http.MethodPost, path, "", body, dest)
}

// do issues an auth endpoint request. token, when non-empty, is sent as the
// bearer authorization; a nil dest skips decoding the response body.
func (m *Manager) do(ctx context.Context, method, path, token string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("apikey", m.anonKey)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message          string `json:"msg"`
			ErrorDescription string `json:"error_description"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, &apiErr)
		message := apiErr.Message
		if message == "" {
			message = apiErr.ErrorDescription
		}
		return fmt.Errorf("auth endpoint returned status %d: %s", resp.StatusCode, message)
	}

	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// subjectOf extracts the user id from the token without verifying the
// signature; verification is the backend's job, the client only needs the
// subject claim.
func subjectOf(token string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("access token has no subject")
	}
	return claims.Subject, nil
}
