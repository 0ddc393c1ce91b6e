package store

import (
	"database/sql"
	"time"
)

// Session statuses.
const (
	SessionConnected    = "CONNECTED"
	SessionDisconnected = "DISCONNECTED"
)

// Session is one linked WhatsApp account and its durable state.
type Session struct {
	SessionID          string
	Status             string
	PhoneNumber        string
	CredentialSnapshot []byte
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SessionStore handles session document operations.
type SessionStore struct {
	store *Store
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(s *Store) *SessionStore {
	return &SessionStore{store: s}
}

// Create inserts a new disconnected session.
func (s *SessionStore) Create(sessionID string) error {
	now := time.Now().Unix()
	_, err := s.store.Exec(`
		INSERT INTO wa_sessions (session_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		sessionID, SessionDisconnected, now, now,
	)
	return err
}

// Get retrieves a session by id. Returns sql.ErrNoRows if missing.
func (s *SessionStore) Get(sessionID string) (*Session, error) {
	row := s.store.QueryRow(`
		SELECT session_id, status, phone_number, credential_snapshot, created_at, updated_at
		FROM wa_sessions WHERE session_id = ?`, sessionID)
	return scanSession(row)
}

// List returns all sessions without credential snapshots.
func (s *SessionStore) List() ([]*Session, error) {
	rows, err := s.store.Query(`
		SELECT session_id, status, phone_number, created_at, updated_at
		FROM wa_sessions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		var phone sql.NullString
		var created, updated int64
		if err := rows.Scan(&sess.SessionID, &sess.Status, &phone, &created, &updated); err != nil {
			return nil, err
		}
		sess.PhoneNumber = phone.String
		sess.CreatedAt = time.Unix(created, 0)
		sess.UpdatedAt = time.Unix(updated, 0)
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// ListIDsByStatus returns the ids of sessions in the given status.
func (s *SessionStore) ListIDsByStatus(status string) ([]string, error) {
	rows, err := s.store.Query(`SELECT session_id FROM wa_sessions WHERE status = ?`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetStatus updates a session's status.
func (s *SessionStore) SetStatus(sessionID, status string) error {
	_, err := s.store.Exec(`
		UPDATE wa_sessions SET status = ?, updated_at = ? WHERE session_id = ?`,
		status, time.Now().Unix(), sessionID,
	)
	return err
}

// SetConnected marks a session as connected with its resolved phone number.
func (s *SessionStore) SetConnected(sessionID, phoneNumber string) error {
	_, err := s.store.Exec(`
		UPDATE wa_sessions SET status = ?, phone_number = ?, updated_at = ? WHERE session_id = ?`,
		SessionConnected, nullString(phoneNumber), time.Now().Unix(), sessionID,
	)
	return err
}

// SaveSnapshot stores the credential snapshot blob, replacing any prior one.
// The row is created if the session does not exist yet.
func (s *SessionStore) SaveSnapshot(sessionID string, snapshot []byte) error {
	now := time.Now().Unix()
	_, err := s.store.Exec(`
		INSERT INTO wa_sessions (session_id, status, credential_snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			credential_snapshot = excluded.credential_snapshot,
			updated_at = excluded.updated_at`,
		sessionID, SessionDisconnected, snapshot, now, now,
	)
	return err
}

// Snapshot retrieves the credential snapshot blob, nil if none stored.
func (s *SessionStore) Snapshot(sessionID string) ([]byte, error) {
	var snapshot []byte
	err := s.store.QueryRow(`
		SELECT credential_snapshot FROM wa_sessions WHERE session_id = ?`, sessionID).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Delete removes a session document.
func (s *SessionStore) Delete(sessionID string) error {
	_, err := s.store.Exec(`DELETE FROM wa_sessions WHERE session_id = ?`, sessionID)
	return err
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var phone sql.NullString
	var created, updated int64
	err := row.Scan(&sess.SessionID, &sess.Status, &phone, &sess.CredentialSnapshot, &created, &updated)
	if err != nil {
		return nil, err
	}
	sess.PhoneNumber = phone.String
	sess.CreatedAt = time.Unix(created, 0)
	sess.UpdatedAt = time.Unix(updated, 0)
	return &sess, nil
}
