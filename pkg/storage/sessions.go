package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionRecord is the persistence-layer view of a session. Cookies are an
// opaque ciphertext blob sealed by the caller.
type SessionRecord struct {
	SessionID  string
	AccountID  string
	Status     string
	Cookies    []byte
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// InsertSession records a new session.
func (s *Store) InsertSession(rec *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowRFC3339()
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, account_id, status, cookies, last_used_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.AccountID, rec.Status, rec.Cookies, formatOptional(rec.LastUsedAt), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", rec.SessionID, err)
	}
	return nil
}

// GetSession returns the record for a session-id, or nil when absent.
func (s *Store) GetSession(sessionID string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT session_id, account_id, status, cookies, last_used_at, created_at, updated_at
		 FROM sessions WHERE session_id = ?`, sessionID)
	return scanSession(row)
}

// UpdateSessionStatus changes a session's status and stamps last-used.
func (s *Store) UpdateSessionStatus(sessionID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowRFC3339()
	res, err := s.db.Exec(
		`UPDATE sessions SET status = ?, last_used_at = ?, updated_at = ? WHERE session_id = ?`,
		status, now, now, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", sessionID, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}

// DeleteSession removes a session record. Missing records are not an error.
func (s *Store) DeleteSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// ListSessionsByAccount returns all session records for an account.
func (s *Store) ListSessionsByAccount(accountID string) ([]*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT session_id, account_id, status, cookies, last_used_at, created_at, updated_at
		 FROM sessions WHERE account_id = ? ORDER BY created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var (
		rec      SessionRecord
		cookies  []byte
		lastUsed sql.NullString
		created  string
		updated  string
	)
	err := row.Scan(&rec.SessionID, &rec.AccountID, &rec.Status, &cookies, &lastUsed, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rec.Cookies = cookies
	rec.LastUsedAt = optionalTime(lastUsed)
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return &rec, nil
}
