package session

import (
	"context"
	"io"
	"testing"

	wstore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/infra/logger"
)

func testBridge(t *testing.T) (*CredentialBridge, *store.SessionStore) {
	t.Helper()
	log := logger.NewWithWriter("test", "ERROR", io.Discard)
	s, err := store.NewInMemory(log)
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	sessions := store.NewSessionStore(s)
	return NewCredentialBridge(sessions, t.TempDir(), log), sessions
}

func TestCredentialBridgeRejectsUnsafeIDs(t *testing.T) {
	bridge, _ := testBridge(t)

	for _, id := range []string{"", "../escape", "a/b", `a\b`, "x..y"} {
		if _, err := bridge.LoadState(context.Background(), id); err == nil {
			t.Errorf("LoadState(%q) accepted an unsafe session id", id)
		}
	}
}

func TestPersistSkipsUnpairedDevice(t *testing.T) {
	bridge, sessions := testBridge(t)

	// A handle whose device never paired must not overwrite a durable
	// snapshot with empty credentials.
	if err := sessions.SaveSnapshot("s1", []byte("valid-creds")); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	h := &Handle{SessionID: "s1", Device: &wstore.Device{}}
	if err := bridge.Persist("s1", h); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	snapshot, err := sessions.Snapshot("s1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if string(snapshot) != "valid-creds" {
		t.Errorf("unpaired persist clobbered snapshot: %q", snapshot)
	}
}

func TestPurgeMissingCacheIsNoop(t *testing.T) {
	bridge, _ := testBridge(t)
	if err := bridge.Purge("never-loaded"); err != nil {
		t.Errorf("Purge of a missing cache file: %v", err)
	}
}

func TestParseChatJID(t *testing.T) {
	tests := []struct {
		name    string
		chatID  string
		want    string
		wantErr bool
	}{
		{"bare number", "6281234567890", "6281234567890@" + types.DefaultUserServer, false},
		{"full user jid", "628123@s.whatsapp.net", "628123@s.whatsapp.net", false},
		{"group jid", "12036304@g.us", "12036304@g.us", false},
		{"empty", "", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			jid, err := ParseChatJID(tc.chatID)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseChatJID: %v", err)
			}
			if jid.String() != tc.want {
				t.Errorf("jid = %q, want %q", jid.String(), tc.want)
			}
		})
	}
}
