package session

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
)

// CloseClass describes how a connection ended.
type CloseClass int

const (
	// CloseRecoverable ends the connection but warrants an automatic
	// reconnect after the fixed delay.
	CloseRecoverable CloseClass = iota
	// CloseTerminal ends the connection without reconnecting; the session
	// document survives.
	CloseTerminal
	// CloseLoggedOut ends the session entirely: document and credentials
	// are purged.
	CloseLoggedOut
)

// ClassifyClose maps a transport close event to its class and a reason
// label. Non-close events return ok=false.
func ClassifyClose(evt interface{}) (class CloseClass, reason string, ok bool) {
	switch e := evt.(type) {
	case *events.LoggedOut:
		return CloseLoggedOut, "logged_out", true
	case *events.TemporaryBan:
		return CloseTerminal, "temporary_ban", true
	case *events.ClientOutdated:
		return CloseTerminal, "client_outdated", true
	case *events.StreamReplaced:
		// Another client took over the stream; reconnecting would flap.
		return CloseTerminal, "stream_replaced", true
	case *events.StreamError:
		return CloseRecoverable, "stream_error:" + e.Code, true
	case *events.Disconnected:
		return CloseRecoverable, "disconnected", true
	case *events.ConnectFailure:
		return CloseRecoverable, "connect_failure", true
	default:
		return 0, "", false
	}
}

// handleEvent is the single consumer of one session's transport events.
func (m *Manager) handleEvent(sessionID string, h *Handle, evt interface{}) {
	if class, reason, isClose := ClassifyClose(evt); isClose {
		m.handleClose(sessionID, h, class, reason)
		return
	}

	switch e := evt.(type) {
	case *events.Connected:
		m.onConnected(sessionID, h)
	case *events.PairSuccess:
		m.log.Infof("Session %s paired as %s", sessionID, e.ID)
		m.persistCredentials(sessionID, h)
	case *events.AppStateSyncComplete:
		// Key material changes during app state sync; refresh the snapshot.
		m.persistCredentials(sessionID, h)
	case *events.KeepAliveTimeout:
		m.log.Warnf("Keep alive timeout for %s (last success %s)", sessionID, e.LastSuccess)
	case *events.KeepAliveRestored:
		m.log.Infof("Keep alive restored for %s", sessionID)
	case *events.Message:
		m.onMessage(sessionID, h, e)
	}
}

func (m *Manager) onConnected(sessionID string, h *Handle) {
	m.registry.ReleaseConnectLock(sessionID)
	m.registry.ClearPairCode(sessionID)
	m.persistCredentials(sessionID, h)

	phone := h.PhoneNumber()
	if err := m.sessions.SetConnected(sessionID, phone); err != nil {
		m.log.Errorf("Failed to mark session %s connected: %v", sessionID, err)
	}

	m.log.Infof("Connection opened for session %s (%s)", sessionID, phone)
	m.bus.Publish("connection_open", map[string]interface{}{
		"sessionId":   sessionID,
		"phoneNumber": phone,
	})
	m.webhooks.Dispatch("connection_open", sessionID, map[string]interface{}{"phoneNumber": phone})
}

func (m *Manager) handleClose(sessionID string, h *Handle, class CloseClass, reason string) {
	if !m.registry.DropHandle(sessionID, h) {
		// The registry entry belongs to a newer connection (or is already
		// gone); this close comes from a superseded transport.
		h.Close()
		m.log.Debugf("Ignoring close from replaced connection for %s (%s)", sessionID, reason)
		return
	}
	m.registry.ReleaseConnectLock(sessionID)
	h.Close()

	m.log.Infof("Connection closed for %s (reason %s)", sessionID, reason)
	m.bus.Publish("connection_closed", map[string]interface{}{
		"sessionId": sessionID,
		"reason":    reason,
	})
	m.webhooks.Dispatch("connection_close", sessionID, map[string]interface{}{"reason": reason})

	switch class {
	case CloseLoggedOut:
		if err := m.bridge.Purge(sessionID); err != nil {
			m.log.Errorf("Failed to purge credentials for %s: %v", sessionID, err)
		}
		if err := m.sessions.Delete(sessionID); err != nil {
			m.log.Errorf("Failed to delete logged-out session %s: %v", sessionID, err)
		}
		m.registry.ClearPairCode(sessionID)
		m.bus.Publish("session_logged_out", map[string]interface{}{"sessionId": sessionID})

	case CloseTerminal:
		if err := m.sessions.SetStatus(sessionID, store.SessionDisconnected); err != nil {
			m.log.Errorf("Failed to mark session %s disconnected: %v", sessionID, err)
		}

	case CloseRecoverable:
		if err := m.sessions.SetStatus(sessionID, store.SessionDisconnected); err != nil {
			m.log.Errorf("Failed to mark session %s disconnected: %v", sessionID, err)
		}
		m.log.Infof("Scheduling reconnect for %s in %s", sessionID, m.reconnectDelay)
		time.AfterFunc(m.reconnectDelay, func() {
			if err := m.Connect(context.Background(), sessionID); err != nil {
				m.log.Errorf("Reconnect attempt failed for %s: %v", sessionID, err)
			}
		})
	}
}

func (m *Manager) onMessage(sessionID string, h *Handle, e *events.Message) {
	content := ExtractText(e.Message)
	msgType := ClassifyMessage(e.Message)

	msg := &store.Message{
		SessionID: sessionID,
		MessageID: e.Info.ID,
		ChatID:    e.Info.Chat.String(),
		FromMe:    e.Info.IsFromMe,
		Content:   content,
		Type:      msgType,
		Status:    "sent",
		Timestamp: e.Info.Timestamp,
	}
	if err := m.messages.Upsert(msg); err != nil {
		m.log.Errorf("Failed to save message %s: %v", e.Info.ID, err)
	}

	payload := map[string]interface{}{
		"id":        msg.MessageID,
		"chatId":    msg.ChatID,
		"fromMe":    msg.FromMe,
		"content":   msg.Content,
		"timestamp": msg.Timestamp.Unix(),
		"type":      msg.Type,
	}

	if e.Info.IsFromMe {
		m.bus.Publish("message_sent", map[string]interface{}{
			"sessionId": sessionID,
			"message":   payload,
		})
		return
	}

	m.bus.Publish("message_received", map[string]interface{}{
		"sessionId": sessionID,
		"message":   payload,
	})
	m.webhooks.Dispatch("message_received", sessionID, payload)

	if reply, matched := m.evaluator.Evaluate(content); matched {
		// Auto-replies go straight through the receiving connection, not
		// the delivery queue.
		_, err := h.Client.SendMessage(context.Background(), e.Info.Chat,
			&waE2E.Message{Conversation: proto.String(reply)})
		if err != nil {
			m.log.Errorf("Auto-reply to %s failed: %v", e.Info.Chat, err)
		}
	}
}

func (m *Manager) persistCredentials(sessionID string, h *Handle) {
	if err := m.bridge.Persist(sessionID, h); err != nil {
		m.log.Errorf("Failed to persist credentials for %s: %v", sessionID, err)
	}
}
