package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ScheduledMessage is a one-shot future delivery instruction.
type ScheduledMessage struct {
	ID        string
	SessionID string
	ChatID    string
	Message   string
	Schedule  time.Time
	Sent      bool
	CreatedAt time.Time
}

// ScheduledStore handles scheduled message operations.
type ScheduledStore struct {
	store *Store
}

// NewScheduledStore creates a new ScheduledStore.
func NewScheduledStore(s *Store) *ScheduledStore {
	return &ScheduledStore{store: s}
}

// Create inserts a new scheduled message.
func (s *ScheduledStore) Create(m *ScheduledMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now()
	_, err := s.store.Exec(`
		INSERT INTO wa_scheduled_messages (id, session_id, chat_id, message, schedule, sent, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		m.ID, m.SessionID, m.ChatID, m.Message, m.Schedule.Unix(), m.CreatedAt.Unix(),
	)
	return err
}

// Due returns unsent messages whose schedule has passed.
func (s *ScheduledStore) Due(now time.Time) ([]*ScheduledMessage, error) {
	rows, err := s.store.Query(`
		SELECT id, session_id, chat_id, message, schedule, sent, created_at
		FROM wa_scheduled_messages
		WHERE sent = 0 AND schedule <= ?
		ORDER BY schedule ASC`, now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScheduled(rows)
}

// List returns all scheduled messages, newest schedule first.
func (s *ScheduledStore) List() ([]*ScheduledMessage, error) {
	rows, err := s.store.Query(`
		SELECT id, session_id, chat_id, message, schedule, sent, created_at
		FROM wa_scheduled_messages ORDER BY schedule DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScheduled(rows)
}

// Get retrieves one scheduled message.
func (s *ScheduledStore) Get(id string) (*ScheduledMessage, error) {
	rows, err := s.store.Query(`
		SELECT id, session_id, chat_id, message, schedule, sent, created_at
		FROM wa_scheduled_messages WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, err := collectScheduled(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, sql.ErrNoRows
	}
	return items[0], nil
}

// MarkSent flips a message to sent. Once set it is never re-dispatched.
func (s *ScheduledStore) MarkSent(id string) error {
	_, err := s.store.Exec(`UPDATE wa_scheduled_messages SET sent = 1 WHERE id = ?`, id)
	return err
}

// Update rewrites an unsent message's destination, body and schedule.
func (s *ScheduledStore) Update(m *ScheduledMessage) error {
	_, err := s.store.Exec(`
		UPDATE wa_scheduled_messages SET chat_id = ?, message = ?, schedule = ? WHERE id = ? AND sent = 0`,
		m.ChatID, m.Message, m.Schedule.Unix(), m.ID,
	)
	return err
}

// Delete removes a scheduled message.
func (s *ScheduledStore) Delete(id string) error {
	_, err := s.store.Exec(`DELETE FROM wa_scheduled_messages WHERE id = ?`, id)
	return err
}

func collectScheduled(rows *sql.Rows) ([]*ScheduledMessage, error) {
	var items []*ScheduledMessage
	for rows.Next() {
		var m ScheduledMessage
		var sent int
		var schedule, created int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.ChatID, &m.Message, &schedule, &sent, &created); err != nil {
			return nil, err
		}
		m.Sent = intToBool(sent)
		m.Schedule = time.Unix(schedule, 0)
		m.CreatedAt = time.Unix(created, 0)
		items = append(items, &m)
	}
	return items, rows.Err()
}
