package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
)

// CredentialBridge shadows the transport's per-session credential cache
// into the durable session document. whatsmeow persists keys and identity
// into its own sqlite store; that store lives in a disposable cache file
// here, restored from the Session row before connecting and snapshotted
// back on every credential update.
type CredentialBridge struct {
	sessions *store.SessionStore
	cacheDir string
	log      waLog.Logger
}

// NewCredentialBridge creates a new CredentialBridge writing cache files
// under cacheDir.
func NewCredentialBridge(sessions *store.SessionStore, cacheDir string, log waLog.Logger) *CredentialBridge {
	return &CredentialBridge{
		sessions: sessions,
		cacheDir: cacheDir,
		log:      log.Sub("Creds"),
	}
}

// LoadState prepares the transport auth state for a session: the durable
// snapshot, when one exists and no cache file is present, is replayed into
// the cache before the device container opens. A session with no snapshot
// starts with a fresh, unpaired device.
func (b *CredentialBridge) LoadState(ctx context.Context, sessionID string) (*Handle, error) {
	cachePath, err := b.cachePath(sessionID)
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(cachePath); os.IsNotExist(statErr) {
		snapshot, err := b.sessions.Snapshot(sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to read credential snapshot: %w", err)
		}
		if len(snapshot) > 0 {
			if err := os.WriteFile(cachePath, snapshot, 0600); err != nil {
				return nil, fmt.Errorf("failed to restore credential cache: %w", err)
			}
			b.log.Infof("Restored credentials for %s from durable snapshot (%d bytes)", sessionID, len(snapshot))
		}
	}

	db, err := sql.Open("sqlite3", cachePath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open credential cache: %w", err)
	}

	container := sqlstore.NewWithDB(db, "sqlite3", b.log.Sub("Container"))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to upgrade credential schema: %w", err)
	}

	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	h := &Handle{SessionID: sessionID, cacheDB: db}
	if len(devices) > 0 {
		h.Device = devices[0]
	} else {
		h.Device = container.NewDevice()
	}
	return h, nil
}

// Persist assembles the full cache into a snapshot and writes it to the
// Session row, replacing any prior snapshot. Snapshots with no paired
// device are skipped so a teardown-time empty cache never clobbers valid
// credentials.
func (b *CredentialBridge) Persist(sessionID string, h *Handle) error {
	if h.Device == nil || h.Device.ID == nil {
		b.log.Debugf("Skipping snapshot for %s: no paired device yet", sessionID)
		return nil
	}

	snapshot, err := b.snapshotCache(sessionID, h)
	if err != nil {
		return fmt.Errorf("failed to snapshot credential cache: %w", err)
	}
	if len(snapshot) == 0 {
		b.log.Debugf("Skipping empty snapshot for %s", sessionID)
		return nil
	}

	if err := b.sessions.SaveSnapshot(sessionID, snapshot); err != nil {
		return fmt.Errorf("failed to save credential snapshot: %w", err)
	}
	b.log.Infof("Saved credential snapshot for %s (%d bytes)", sessionID, len(snapshot))
	return nil
}

// Purge removes the local credential cache file for a logged-out session.
// The durable snapshot goes away with the Session row.
func (b *CredentialBridge) Purge(sessionID string) error {
	cachePath, err := b.cachePath(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(cachePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential cache: %w", err)
	}
	return nil
}

// snapshotCache produces a consistent copy of the cache database via
// VACUUM INTO and returns its bytes.
func (b *CredentialBridge) snapshotCache(sessionID string, h *Handle) ([]byte, error) {
	if h.cacheDB == nil {
		return nil, fmt.Errorf("credential cache not open")
	}

	tmpPath, err := b.cachePath(sessionID)
	if err != nil {
		return nil, err
	}
	tmpPath += ".snapshot"
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if _, err := h.cacheDB.Exec(fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(tmpPath, "'", "''"))); err != nil {
		return nil, err
	}
	defer os.Remove(tmpPath)

	return os.ReadFile(tmpPath)
}

func (b *CredentialBridge) cachePath(sessionID string) (string, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || strings.Contains(sessionID, "..") {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(b.cacheDir, sessionID+".db"), nil
}
