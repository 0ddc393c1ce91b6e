package store

import (
	"database/sql"
	"time"
)

// Message is one entry of a chat's message history.
type Message struct {
	SessionID string
	MessageID string
	ChatID    string
	FromMe    bool
	Content   string
	MediaURL  string
	Type      string
	Status    string
	Timestamp time.Time
}

// MessageStore handles message history operations.
type MessageStore struct {
	store *Store
}

// NewMessageStore creates a new MessageStore.
func NewMessageStore(s *Store) *MessageStore {
	return &MessageStore{store: s}
}

// Upsert stores a message keyed by (session id, message id). Redelivered
// events overwrite the prior row instead of duplicating it.
func (s *MessageStore) Upsert(m *Message) error {
	if m.Type == "" {
		m.Type = "text"
	}
	if m.Status == "" {
		m.Status = "sent"
	}
	_, err := s.store.Exec(`
		INSERT INTO wa_messages (session_id, message_id, chat_id, from_me, content, media_url, type, status, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, message_id) DO UPDATE SET
			chat_id   = excluded.chat_id,
			from_me   = excluded.from_me,
			content   = excluded.content,
			media_url = excluded.media_url,
			type      = excluded.type,
			status    = excluded.status,
			timestamp = excluded.timestamp`,
		m.SessionID, m.MessageID, m.ChatID, boolToInt(m.FromMe),
		nullString(m.Content), nullString(m.MediaURL), m.Type, m.Status, m.Timestamp.Unix(),
	)
	return err
}

// ListByChat returns one page of a chat's history, newest first.
func (s *MessageStore) ListByChat(chatID string, page, limit int) ([]*Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	rows, err := s.store.Query(`
		SELECT session_id, message_id, chat_id, from_me, content, media_url, type, status, timestamp
		FROM wa_messages WHERE chat_id = ?
		ORDER BY timestamp DESC LIMIT ? OFFSET ?`,
		chatID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ChatSummary is one conversation of a session, derived from its stored
// message history.
type ChatSummary struct {
	ChatID       string
	Messages     int
	LastActivity time.Time
}

// ListChats returns the session's conversations, most recently active
// first.
func (s *MessageStore) ListChats(sessionID string) ([]*ChatSummary, error) {
	rows, err := s.store.Query(`
		SELECT chat_id, COUNT(*), MAX(timestamp)
		FROM wa_messages WHERE session_id = ?
		GROUP BY chat_id ORDER BY MAX(timestamp) DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*ChatSummary
	for rows.Next() {
		var c ChatSummary
		var last int64
		if err := rows.Scan(&c.ChatID, &c.Messages, &last); err != nil {
			return nil, err
		}
		c.LastActivity = time.Unix(last, 0)
		chats = append(chats, &c)
	}
	return chats, rows.Err()
}

// CountByChat returns the total number of stored messages for a chat.
func (s *MessageStore) CountByChat(chatID string) (int, error) {
	var count int
	err := s.store.QueryRow(`SELECT COUNT(*) FROM wa_messages WHERE chat_id = ?`, chatID).Scan(&count)
	return count, err
}

func scanMessage(rows *sql.Rows) (*Message, error) {
	var m Message
	var fromMe int
	var content, mediaURL sql.NullString
	var ts int64
	err := rows.Scan(&m.SessionID, &m.MessageID, &m.ChatID, &fromMe, &content, &mediaURL, &m.Type, &m.Status, &ts)
	if err != nil {
		return nil, err
	}
	m.FromMe = intToBool(fromMe)
	m.Content = content.String
	m.MediaURL = mediaURL.String
	m.Timestamp = time.Unix(ts, 0)
	return &m, nil
}
