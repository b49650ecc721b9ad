// Package session creates, seals, and restores authenticated retailer
// sessions. Session files live one-per-id under a sessions directory,
// encrypted with the process-wide envelope.
package session

import (
	"time"
)

// Credentials identify an account at login time.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Session is an authenticated browsing context: the cookies that prove the
// login plus bookkeeping around their use.
type Session struct {
	ID          string            `json:"id"`
	Credentials Credentials       `json:"credentials"`
	Cookies     map[string]string `json:"cookies"`
	CreatedAt   time.Time         `json:"created_at"`
	LastUsedAt  time.Time         `json:"last_used_at"`
	Valid       bool              `json:"valid"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// Touch stamps the session as just used.
func (s *Session) Touch() {
	s.LastUsedAt = time.Now().UTC()
}

// Invalidate marks the session unusable.
func (s *Session) Invalidate() {
	s.Valid = false
}
