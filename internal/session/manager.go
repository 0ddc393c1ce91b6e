package session

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/autoreply"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/notify"
)

// Manager drives the connection lifecycle of every session.
type Manager struct {
	registry  *Registry
	bridge    *CredentialBridge
	sessions  *store.SessionStore
	messages  *store.MessageStore
	evaluator *autoreply.Evaluator
	bus       *notify.Bus
	webhooks  *notify.WebhookDispatcher

	reconnectDelay time.Duration
	log            waLog.Logger
}

// NewManager creates a new Manager.
func NewManager(registry *Registry, bridge *CredentialBridge, sessions *store.SessionStore,
	messages *store.MessageStore, evaluator *autoreply.Evaluator, bus *notify.Bus,
	webhooks *notify.WebhookDispatcher, reconnectDelay time.Duration, log waLog.Logger) *Manager {
	return &Manager{
		registry:       registry,
		bridge:         bridge,
		sessions:       sessions,
		messages:       messages,
		evaluator:      evaluator,
		bus:            bus,
		webhooks:       webhooks,
		reconnectDelay: reconnectDelay,
		log:            log.Sub("Session"),
	}
}

// Registry returns the handle registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Connect establishes the transport connection for a session. A second
// call while an attempt is in flight is a no-op. The connect lock is
// released on the resulting Connected or close event, or here on any
// initialization failure.
func (m *Manager) Connect(ctx context.Context, sessionID string) error {
	if !m.registry.AcquireConnectLock(sessionID) {
		m.log.Infof("Connection attempt already in progress for %s, skipping", sessionID)
		return nil
	}

	m.log.Infof("Creating connection for session %s", sessionID)

	// One live transport per session: tear down any prior handle before
	// the new one comes up. Its close event will find the registry entry
	// gone and leave the new handle alone.
	if old := m.registry.Remove(sessionID); old != nil {
		if old.Client != nil {
			old.Client.Disconnect()
		}
		old.Close()
	}

	h, err := m.bridge.LoadState(ctx, sessionID)
	if err != nil {
		m.registry.ReleaseConnectLock(sessionID)
		return fmt.Errorf("failed to load auth state for %s: %w", sessionID, err)
	}

	client := whatsmeow.NewClient(h.Device, m.log.Sub("WA/"+sessionID))
	// Reconnection is this manager's job: it must re-enter the connect
	// lock, which the transport's built-in retry would bypass.
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true
	h.Client = client

	if displaced := m.registry.Put(sessionID, h); displaced != nil {
		displaced.Close()
	}
	client.AddEventHandler(func(evt interface{}) {
		m.handleEvent(sessionID, h, evt)
	})

	if !h.IsLoggedIn() {
		// The QR channel must be requested before Connect.
		qrChan, err := client.GetQRChannel(context.Background())
		if err != nil {
			m.abortConnect(sessionID, h)
			return fmt.Errorf("failed to open QR channel for %s: %w", sessionID, err)
		}
		go m.watchQR(sessionID, qrChan)
	}

	if err := client.Connect(); err != nil {
		m.abortConnect(sessionID, h)
		return fmt.Errorf("failed to connect session %s: %w", sessionID, err)
	}
	return nil
}

// abortConnect unwinds a failed initialization: lock released, handle
// dropped, no retry.
func (m *Manager) abortConnect(sessionID string, h *Handle) {
	m.registry.ReleaseConnectLock(sessionID)
	m.registry.Remove(sessionID)
	h.Close()
}

// Logout ends the session permanently: remote logout (best effort), local
// teardown, credential purge and session document removal.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	if h := m.registry.Remove(sessionID); h != nil {
		if h.Client != nil {
			if err := h.Client.Logout(ctx); err != nil {
				m.log.Warnf("Remote logout for %s failed: %v", sessionID, err)
				h.Client.Disconnect()
			}
		}
		h.Close()
	}
	m.registry.ReleaseConnectLock(sessionID)
	m.registry.ClearPairCode(sessionID)

	if err := m.bridge.Purge(sessionID); err != nil {
		m.log.Warnf("Failed to purge credentials for %s: %v", sessionID, err)
	}
	if err := m.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}

	m.bus.Publish("session_logged_out", map[string]interface{}{"sessionId": sessionID})
	return nil
}

// Restore replays sessions that were connected before the last shutdown
// through the standard connect path, each subject to the connect lock.
func (m *Manager) Restore(ctx context.Context) {
	ids, err := m.sessions.ListIDsByStatus(store.SessionConnected)
	if err != nil {
		m.log.Errorf("Failed to list sessions for restore: %v", err)
		return
	}

	for _, id := range ids {
		m.log.Infof("Restoring session %s", id)
		go func(sessionID string) {
			if err := m.Connect(ctx, sessionID); err != nil {
				m.log.Errorf("Failed to restore session %s: %v", sessionID, err)
			}
		}(id)
	}
}

// Shutdown disconnects all live handles, snapshotting credentials first.
func (m *Manager) Shutdown() {
	for _, id := range m.registry.ActiveIDs() {
		h := m.registry.Remove(id)
		if h == nil {
			continue
		}
		if err := m.bridge.Persist(id, h); err != nil {
			m.log.Warnf("Failed to snapshot credentials for %s on shutdown: %v", id, err)
		}
		if h.Client != nil {
			h.Client.Disconnect()
		}
		h.Close()
	}
}

// PairCode returns the latest cached pairing code for a session.
func (m *Manager) PairCode(sessionID string) string {
	return m.registry.PairCode(sessionID)
}

// Status reports whether a session currently holds an open connection.
func (m *Manager) Status(sessionID string) (connected bool, status string) {
	h, ok := m.registry.Get(sessionID)
	if !ok || !h.IsConnected() {
		return false, store.SessionDisconnected
	}
	return true, store.SessionConnected
}

// watchQR forwards pairing codes from the QR channel into the registry
// cache and the notification bus.
func (m *Manager) watchQR(sessionID string, qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			m.registry.SetPairCode(sessionID, item.Code)
			m.bus.Publish("qr_update", map[string]interface{}{
				"sessionId": sessionID,
				"qr":        item.Code,
			})
			m.webhooks.Dispatch("qr_generated", sessionID, map[string]interface{}{"qr": item.Code})
		case "success":
			m.log.Infof("Session %s paired successfully", sessionID)
			m.registry.ClearPairCode(sessionID)
		case "timeout":
			m.log.Warnf("QR pairing timed out for %s", sessionID)
			m.registry.ClearPairCode(sessionID)
			m.bus.Publish("qr_timeout", map[string]interface{}{"sessionId": sessionID})
		case "error":
			m.log.Errorf("QR channel error for %s: %v", sessionID, item.Error)
		}
	}
}
