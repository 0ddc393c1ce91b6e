// Package delivery decides how outbound messages reach the network: an
// immediate attempt through the live connection when one is open, a durable
// queue with bounded retries otherwise, and the periodic sweep advancing
// queued and scheduled messages.
package delivery

import (
	"context"
	"errors"
	"time"
)

// Outbound is one outbound message payload. Content carries the text (or
// the caption when MediaURL is set); MediaType names the media kind
// (image, video, audio, document).
type Outbound struct {
	Content   string
	MediaURL  string
	MediaType string
}

// Receipt is the transport's acknowledgment of a delivered message.
type Receipt struct {
	MessageID string
	Timestamp time.Time
}

// Conn is the slice of a live session connection the delivery path needs.
type Conn interface {
	IsConnected() bool
	Send(ctx context.Context, chatID string, out Outbound) (*Receipt, error)
}

// Registry resolves session ids to live connections.
type Registry interface {
	Lookup(sessionID string) (Conn, bool)
}

// ErrNotConnected reports that no open connection exists for the session.
var ErrNotConnected = errors.New("session not connected")

// directSend attempts delivery through the live connection, failing fast
// when the session has no open connection.
func directSend(ctx context.Context, reg Registry, sessionID, chatID string, out Outbound) (*Receipt, error) {
	conn, ok := reg.Lookup(sessionID)
	if !ok || !conn.IsConnected() {
		return nil, ErrNotConnected
	}
	return conn.Send(ctx, chatID, out)
}
