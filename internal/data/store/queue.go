package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Queued message statuses.
const (
	QueueStatusQueued  = "queued"
	QueueStatusSending = "sending"
	QueueStatusSent    = "sent"
	QueueStatusFailed  = "failed"
)

// QueuedMessage is a pending outbound delivery obligation.
type QueuedMessage struct {
	ID            string
	SessionID     string
	ChatID        string
	Content       string
	MediaURL      string
	MediaType     string
	Attempts      int
	MaxAttempts   int
	Status        string
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
}

// QueueStore handles the durable outbound queue.
type QueueStore struct {
	store *Store
}

// NewQueueStore creates a new QueueStore.
func NewQueueStore(s *Store) *QueueStore {
	return &QueueStore{store: s}
}

// Enqueue inserts a new queued row. A missing id, max attempts or next
// attempt time are filled with defaults.
func (s *QueueStore) Enqueue(q *QueuedMessage) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = 5
	}
	if q.NextAttemptAt.IsZero() {
		q.NextAttemptAt = time.Now()
	}
	q.Status = QueueStatusQueued
	q.Attempts = 0
	q.CreatedAt = time.Now()

	_, err := s.store.Exec(`
		INSERT INTO wa_queued_messages
			(id, session_id, chat_id, content, media_url, media_type, attempts, max_attempts, status, next_attempt_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.SessionID, q.ChatID, nullString(q.Content), nullString(q.MediaURL), nullString(q.MediaType),
		q.Attempts, q.MaxAttempts, q.Status, q.NextAttemptAt.Unix(), nullString(q.LastError), q.CreatedAt.Unix(),
	)
	return err
}

// Due returns up to limit queued rows due at now, ordered by next attempt
// time ascending.
func (s *QueueStore) Due(now time.Time, limit int) ([]*QueuedMessage, error) {
	rows, err := s.store.Query(`
		SELECT id, session_id, chat_id, content, media_url, media_type, attempts, max_attempts, status, next_attempt_at, last_error, created_at
		FROM wa_queued_messages
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC LIMIT ?`,
		QueueStatusQueued, now.Unix(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQueued(rows)
}

// Get retrieves a queued row by id.
func (s *QueueStore) Get(id string) (*QueuedMessage, error) {
	rows, err := s.store.Query(`
		SELECT id, session_id, chat_id, content, media_url, media_type, attempts, max_attempts, status, next_attempt_at, last_error, created_at
		FROM wa_queued_messages WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, err := collectQueued(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, sql.ErrNoRows
	}
	return items[0], nil
}

// List returns the most recent queued rows, optionally filtered by status.
func (s *QueueStore) List(status string, limit int) ([]*QueuedMessage, error) {
	if limit < 1 {
		limit = 50
	}
	query := `
		SELECT id, session_id, chat_id, content, media_url, media_type, attempts, max_attempts, status, next_attempt_at, last_error, created_at
		FROM wa_queued_messages`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.store.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQueued(rows)
}

// MarkSending flips a row to the sending state.
func (s *QueueStore) MarkSending(id string) error {
	_, err := s.store.Exec(`UPDATE wa_queued_messages SET status = ? WHERE id = ?`, QueueStatusSending, id)
	return err
}

// MarkSent flips a row to the terminal sent state.
func (s *QueueStore) MarkSent(id string) error {
	_, err := s.store.Exec(`UPDATE wa_queued_messages SET status = ? WHERE id = ?`, QueueStatusSent, id)
	return err
}

// MarkFailed records a terminal failure.
func (s *QueueStore) MarkFailed(id string, attempts int, lastError string) error {
	_, err := s.store.Exec(`
		UPDATE wa_queued_messages SET status = ?, attempts = ?, last_error = ? WHERE id = ?`,
		QueueStatusFailed, attempts, nullString(lastError), id,
	)
	return err
}

// Requeue records a failed attempt and schedules the next one.
func (s *QueueStore) Requeue(id string, attempts int, lastError string, nextAttemptAt time.Time) error {
	_, err := s.store.Exec(`
		UPDATE wa_queued_messages SET status = ?, attempts = ?, last_error = ?, next_attempt_at = ? WHERE id = ?`,
		QueueStatusQueued, attempts, nullString(lastError), nextAttemptAt.Unix(), id,
	)
	return err
}

// Rearm resets a failed row for a fresh round of attempts. Rows in other
// states are left untouched; the returned flag reports whether anything
// changed.
func (s *QueueStore) Rearm(id string) (bool, error) {
	res, err := s.store.Exec(`
		UPDATE wa_queued_messages
		SET status = ?, attempts = 0, last_error = NULL, next_attempt_at = ?
		WHERE id = ? AND status = ?`,
		QueueStatusQueued, time.Now().Unix(), id, QueueStatusFailed,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func collectQueued(rows *sql.Rows) ([]*QueuedMessage, error) {
	var items []*QueuedMessage
	for rows.Next() {
		var q QueuedMessage
		var content, mediaURL, mediaType, lastError sql.NullString
		var nextAt, created int64
		err := rows.Scan(&q.ID, &q.SessionID, &q.ChatID, &content, &mediaURL, &mediaType,
			&q.Attempts, &q.MaxAttempts, &q.Status, &nextAt, &lastError, &created)
		if err != nil {
			return nil, err
		}
		q.Content = content.String
		q.MediaURL = mediaURL.String
		q.MediaType = mediaType.String
		q.LastError = lastError.String
		q.NextAttemptAt = time.Unix(nextAt, 0)
		q.CreatedAt = time.Unix(created, 0)
		items = append(items, &q)
	}
	return items, rows.Err()
}
