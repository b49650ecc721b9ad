package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lothbrok303/lazabot-ubu/pkg/crypto"
	"github.com/Lothbrok303/lazabot-ubu/pkg/httpclient"
	"github.com/Lothbrok303/lazabot-ubu/pkg/log"
	"github.com/Lothbrok303/lazabot-ubu/pkg/metrics"
)

var (
	// ErrNotFound is returned when no session file exists for an id.
	ErrNotFound = errors.New("session not found")
	// ErrLoginFailed is returned on a non-2xx login response.
	ErrLoginFailed = errors.New("login failed")
)

const fileExt = ".bin"

// Manager owns the sessions directory and the endpoints used to mint and
// validate sessions.
type Manager struct {
	dir         string
	envelope    *crypto.Envelope
	client      *httpclient.Client
	loginURL    string
	validateURL string
	userAgent   string
}

// NewManager creates a manager rooted at dir, creating it if needed.
func NewManager(dir string, envelope *crypto.Envelope, loginURL, validateURL string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create sessions dir: %w", err)
	}

	client, err := httpclient.New("")
	if err != nil {
		return nil, err
	}

	return &Manager{
		dir:         dir,
		envelope:    envelope,
		client:      client,
		loginURL:    loginURL,
		validateURL: validateURL,
	}, nil
}

// WithUserAgent sets the user agent used by validation clients.
func (m *Manager) WithUserAgent(ua string) *Manager {
	m.userAgent = ua
	return m
}

// Login authenticates against the login endpoint and returns a fresh valid
// session holding the cookies the retailer handed back.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*Session, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	resp, err := m.client.Do(ctx, http.MethodPost, m.loginURL, headers, body, nil)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: status %d", ErrLoginFailed, resp.Status)
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:          uuid.NewString(),
		Credentials: creds,
		Cookies:     m.collectCookies(resp),
		CreatedAt:   now,
		LastUsedAt:  now,
		Valid:       true,
	}

	log.WithSessionID(sess.ID).Info().
		Str("username", creds.Username).
		Int("cookies", len(sess.Cookies)).
		Msg("session created")

	return sess, nil
}

// collectCookies merges cookies from the client's jar and the response's
// Set-Cookie headers.
func (m *Manager) collectCookies(resp *httpclient.Response) map[string]string {
	cookies := make(map[string]string)

	if u, err := url.Parse(m.loginURL); err == nil {
		for _, c := range m.client.Jar().Cookies(u) {
			cookies[c.Name] = c.Value
		}
	}

	header := http.Response{Header: resp.Headers}
	for _, c := range header.Cookies() {
		cookies[c.Name] = c.Value
	}

	return cookies
}

// Persist seals the session and writes it to <dir>/<id>.bin atomically.
func (m *Manager) Persist(sess *Session) error {
	plaintext, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	sealed, err := m.envelope.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("failed to seal session: %w", err)
	}

	final := m.path(sess.ID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

// Restore reads and opens a persisted session.
func (m *Manager) Restore(sessionID string) (*Session, error) {
	sealed, err := os.ReadFile(m.path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	plaintext, err := m.envelope.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to open session %s: %w", sessionID, err)
	}

	var sess Session
	if err := json.Unmarshal(plaintext, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &sess, nil
}

// Validate performs a lightweight authenticated GET with the session's
// cookies and updates the session's valid bit and last-used stamp. A
// transport error marks the session invalid without failing.
func (m *Manager) Validate(ctx context.Context, sess *Session) bool {
	jar, err := cookiejar.New(nil)
	if err != nil {
		sess.Valid = false
		return false
	}

	u, err := url.Parse(m.validateURL)
	if err != nil {
		sess.Valid = false
		return false
	}

	var cookies []*http.Cookie
	for name, value := range sess.Cookies {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	jar.SetCookies(u, cookies)

	client, err := httpclient.NewWithJar(m.userAgent, jar)
	if err != nil {
		sess.Valid = false
		return false
	}
	client.WithRetryConfig(httpclient.RetryConfig{MaxRetries: 0, BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 1.0})

	resp, err := client.Do(ctx, http.MethodGet, m.validateURL, nil, nil, nil)
	sess.Touch()
	if err != nil {
		log.WithSessionID(sess.ID).Debug().Err(err).Msg("session validation request failed")
		sess.Valid = false
		return false
	}

	sess.Valid = resp.IsSuccess()
	return sess.Valid
}

// List returns the ids of all persisted sessions, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions dir: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(ids)

	metrics.SessionsActive.Set(float64(len(ids)))
	return ids, nil
}

// Delete removes a persisted session. A missing file is not an error.
func (m *Manager) Delete(sessionID string) error {
	err := os.Remove(m.path(sessionID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// CleanupExpired deletes sessions whose last use is older than maxAge, and
// sessions that no longer restore cleanly. Returns the number deleted.
func (m *Manager) CleanupExpired(maxAge time.Duration) (int, error) {
	ids, err := m.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	logger := log.WithComponent("session")
	deleted := 0

	for _, id := range ids {
		sess, err := m.Restore(id)
		if err != nil {
			logger.Warn().Str("session_id", id).Err(err).Msg("removing unreadable session")
		} else if !sess.LastUsedAt.Before(cutoff) {
			continue
		}

		if err := m.Delete(id); err != nil {
			return deleted, err
		}
		deleted++
	}

	if deleted > 0 {
		logger.Info().Int("deleted", deleted).Msg("expired sessions removed")
	}
	return deleted, nil
}

func (m *Manager) path(sessionID string) string {
	return filepath.Join(m.dir, sessionID+fileExt)
}
