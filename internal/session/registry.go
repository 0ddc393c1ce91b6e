// Package session owns the connection lifecycle of every linked WhatsApp
// account: the handle registry with its per-session connect lock, the
// credential bridge between whatsmeow's device store and the durable
// session documents, and the state machine reacting to transport events.
package session

import (
	"sync"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/delivery"
)

// Registry tracks live connection handles and serializes connection
// attempts per session id.
type Registry struct {
	mu         sync.Mutex
	handles    map[string]*Handle
	connecting map[string]struct{}
	pairCodes  map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handles:    make(map[string]*Handle),
		connecting: make(map[string]struct{}),
		pairCodes:  make(map[string]string),
	}
}

// AcquireConnectLock marks a connection attempt in flight for the session.
// It returns false when an attempt is already running, in which case the
// caller must back off without side effects.
func (r *Registry) AcquireConnectLock(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.connecting[sessionID]; busy {
		return false
	}
	r.connecting[sessionID] = struct{}{}
	return true
}

// ReleaseConnectLock clears the in-flight marker. Idempotent.
func (r *Registry) ReleaseConnectLock(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connecting, sessionID)
}

// Put registers the handle for a session and returns the handle it
// displaced, if any. The caller owns the displaced handle and must dispose
// of it; its credential cache stays open otherwise.
func (r *Registry) Put(sessionID string, h *Handle) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.handles[sessionID]
	r.handles[sessionID] = h
	if prev == h {
		return nil
	}
	return prev
}

// Get returns the live handle for a session.
func (r *Registry) Get(sessionID string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[sessionID]
	return h, ok
}

// Remove deletes and returns the handle for a session, if any.
func (r *Registry) Remove(sessionID string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.handles[sessionID]
	delete(r.handles, sessionID)
	return h
}

// DropHandle removes the session's registry entry only when it still is h,
// reporting whether it did. A close event arriving from a connection that
// was already replaced must not evict the replacement.
func (r *Registry) DropHandle(sessionID string, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles[sessionID] != h {
		return false
	}
	delete(r.handles, sessionID)
	return true
}

// Lookup exposes the handle as a delivery connection.
func (r *Registry) Lookup(sessionID string) (delivery.Conn, bool) {
	h, ok := r.Get(sessionID)
	if !ok {
		return nil, false
	}
	return h, true
}

// ActiveIDs returns the ids of all sessions holding a handle.
func (r *Registry) ActiveIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	return ids
}

// SetPairCode caches the latest pairing code for a session, replacing any
// prior value.
func (r *Registry) SetPairCode(sessionID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairCodes[sessionID] = code
}

// PairCode returns the cached pairing code for a session, empty if none.
func (r *Registry) PairCode(sessionID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pairCodes[sessionID]
}

// ClearPairCode drops the cached pairing code once pairing completes.
func (r *Registry) ClearPairCode(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pairCodes, sessionID)
}

var _ delivery.Registry = (*Registry)(nil)
