package store

import (
	"bytes"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/infra/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewInMemory(logger.NewWithWriter("test", "ERROR", io.Discard))
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	sessions := NewSessionStore(newTestStore(t))

	if err := sessions.Create("s1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	sess, err := sessions.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.Status != SessionDisconnected {
		t.Errorf("new session status = %q, want %q", sess.Status, SessionDisconnected)
	}

	if err := sessions.SetConnected("s1", "6281234567890"); err != nil {
		t.Fatalf("SetConnected: %v", err)
	}
	sess, _ = sessions.Get("s1")
	if sess.Status != SessionConnected || sess.PhoneNumber != "6281234567890" {
		t.Errorf("after SetConnected: status=%q phone=%q", sess.Status, sess.PhoneNumber)
	}

	ids, err := sessions.ListIDsByStatus(SessionConnected)
	if err != nil {
		t.Fatalf("ListIDsByStatus: %v", err)
	}
	if len(ids) != 1 || ids[0] != "s1" {
		t.Errorf("connected ids = %v, want [s1]", ids)
	}

	if err := sessions.Delete("s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := sessions.Get("s1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Get after delete: err = %v, want sql.ErrNoRows", err)
	}
}

func TestSessionSnapshotRoundTrip(t *testing.T) {
	sessions := NewSessionStore(newTestStore(t))

	// SaveSnapshot creates the row when missing.
	blob := []byte{0x53, 0x51, 0x4c, 0x69, 0x74, 0x65, 0x00, 0x01}
	if err := sessions.SaveSnapshot("s1", blob); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := sessions.Snapshot("s1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Errorf("snapshot round trip mismatch: got %x", got)
	}

	// Replacing a snapshot keeps exactly one.
	blob2 := append(blob, 0xff)
	if err := sessions.SaveSnapshot("s1", blob2); err != nil {
		t.Fatalf("SaveSnapshot replace: %v", err)
	}
	got, _ = sessions.Snapshot("s1")
	if !bytes.Equal(got, blob2) {
		t.Errorf("replaced snapshot mismatch: got %x", got)
	}

	// Unknown session yields nil, not an error.
	got, err = sessions.Snapshot("nope")
	if err != nil || got != nil {
		t.Errorf("Snapshot(unknown) = %x, %v; want nil, nil", got, err)
	}
}

func TestQueueDueOrderingAndLimit(t *testing.T) {
	queue := NewQueueStore(newTestStore(t))
	now := time.Now()

	times := []time.Time{now.Add(-time.Minute), now.Add(-3 * time.Minute), now.Add(-2 * time.Minute), now.Add(time.Hour)}
	var ids []string
	for i, at := range times {
		q := &QueuedMessage{SessionID: "s1", ChatID: "c", Content: "m", NextAttemptAt: at}
		if err := queue.Enqueue(q); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
		ids = append(ids, q.ID)
	}

	due, err := queue.Due(now, 20)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("due count = %d, want 3", len(due))
	}
	// Oldest next_attempt_at first.
	want := []string{ids[1], ids[2], ids[0]}
	for i, q := range due {
		if q.ID != want[i] {
			t.Errorf("due[%d] = %s, want %s", i, q.ID, want[i])
		}
	}

	capped, err := queue.Due(now, 2)
	if err != nil {
		t.Fatalf("Due capped: %v", err)
	}
	if len(capped) != 2 {
		t.Errorf("capped due count = %d, want 2", len(capped))
	}
}

func TestQueueRetryTransitions(t *testing.T) {
	queue := NewQueueStore(newTestStore(t))

	q := &QueuedMessage{SessionID: "s1", ChatID: "c", Content: "m"}
	if err := queue.Enqueue(q); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	next := time.Now().Add(time.Minute)
	if err := queue.Requeue(q.ID, 2, "send failed", next); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	row, err := queue.Get(q.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.Status != QueueStatusQueued || row.Attempts != 2 || row.LastError != "send failed" {
		t.Errorf("after Requeue: %+v", row)
	}
	if row.NextAttemptAt.Unix() != next.Unix() {
		t.Errorf("nextAttemptAt = %v, want %v", row.NextAttemptAt, next)
	}

	if err := queue.MarkFailed(q.ID, 5, "gave up"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	row, _ = queue.Get(q.ID)
	if row.Status != QueueStatusFailed || row.Attempts != 5 {
		t.Errorf("after MarkFailed: %+v", row)
	}

	// Rearm resets a failed row for a fresh cycle.
	changed, err := queue.Rearm(q.ID)
	if err != nil {
		t.Fatalf("Rearm: %v", err)
	}
	if !changed {
		t.Fatal("Rearm should change a failed row")
	}
	row, _ = queue.Get(q.ID)
	if row.Status != QueueStatusQueued || row.Attempts != 0 || row.LastError != "" {
		t.Errorf("after Rearm: %+v", row)
	}

	// Rearming a non-failed row is a no-op.
	changed, err = queue.Rearm(q.ID)
	if err != nil {
		t.Fatalf("Rearm again: %v", err)
	}
	if changed {
		t.Error("Rearm must not touch a queued row")
	}
}

func TestMessageUpsertIdempotent(t *testing.T) {
	messages := NewMessageStore(newTestStore(t))

	m := &Message{
		SessionID: "s1",
		MessageID: "MSG1",
		ChatID:    "123@s.whatsapp.net",
		Content:   "first",
		Timestamp: time.Now(),
	}
	if err := messages.Upsert(m); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	// Redelivery of the same event overwrites instead of duplicating.
	m.Content = "second"
	if err := messages.Upsert(m); err != nil {
		t.Fatalf("Upsert redelivery: %v", err)
	}

	count, err := messages.CountByChat("123@s.whatsapp.net")
	if err != nil {
		t.Fatalf("CountByChat: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	page, err := messages.ListByChat("123@s.whatsapp.net", 1, 10)
	if err != nil {
		t.Fatalf("ListByChat: %v", err)
	}
	if len(page) != 1 || page[0].Content != "second" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestMessagePagination(t *testing.T) {
	messages := NewMessageStore(newTestStore(t))
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		m := &Message{
			SessionID: "s1",
			MessageID: string(rune('A' + i)),
			ChatID:    "c1",
			Content:   "m",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := messages.Upsert(m); err != nil {
			t.Fatalf("Upsert %d: %v", i, err)
		}
	}

	first, err := messages.ListByChat("c1", 1, 2)
	if err != nil {
		t.Fatalf("ListByChat page 1: %v", err)
	}
	if len(first) != 2 || first[0].MessageID != "E" || first[1].MessageID != "D" {
		t.Fatalf("page 1 = %+v, want newest first", first)
	}

	third, err := messages.ListByChat("c1", 3, 2)
	if err != nil {
		t.Fatalf("ListByChat page 3: %v", err)
	}
	if len(third) != 1 || third[0].MessageID != "A" {
		t.Fatalf("page 3 = %+v, want oldest message", third)
	}
}

func TestScheduledUpdateGuard(t *testing.T) {
	scheduled := NewScheduledStore(newTestStore(t))

	m := &ScheduledMessage{SessionID: "s1", ChatID: "c", Message: "hi", Schedule: time.Now().Add(time.Hour)}
	if err := scheduled.Create(m); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := scheduled.MarkSent(m.ID); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	// Updates after dispatch must not resurrect the message.
	m.Message = "changed"
	if err := scheduled.Update(m); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := scheduled.Get(m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Message != "hi" {
		t.Errorf("sent message was modified: %q", got.Message)
	}
}

func TestTemplateUniqueName(t *testing.T) {
	templates := NewTemplateStore(newTestStore(t))

	if err := templates.Create(&Template{Name: "greeting", Content: "hello"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := templates.Create(&Template{Name: "greeting", Content: "other"}); err == nil {
		t.Fatal("duplicate template name must be rejected")
	}
}

func TestTemplateGetByName(t *testing.T) {
	templates := NewTemplateStore(newTestStore(t))

	created := &Template{Name: "welcome", Content: "Hello {{name}}"}
	if err := templates.Create(created); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := templates.GetByName("welcome")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if got.ID != created.ID || got.Content != created.Content {
		t.Errorf("got = %+v, want %+v", got, created)
	}

	if _, err := templates.GetByName("missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetByName(missing) = %v, want sql.ErrNoRows", err)
	}
}

func TestListChatsGroupsBySession(t *testing.T) {
	messages := NewMessageStore(newTestStore(t))

	base := time.Now().Truncate(time.Second)
	rows := []*Message{
		{SessionID: "s1", MessageID: "m1", ChatID: "a@s.whatsapp.net", Content: "old", Type: "text", Status: "delivered", Timestamp: base.Add(-time.Hour)},
		{SessionID: "s1", MessageID: "m2", ChatID: "a@s.whatsapp.net", Content: "new", Type: "text", Status: "delivered", Timestamp: base},
		{SessionID: "s1", MessageID: "m3", ChatID: "b@s.whatsapp.net", Content: "side", Type: "text", Status: "delivered", Timestamp: base.Add(-time.Minute)},
		{SessionID: "s2", MessageID: "m4", ChatID: "c@s.whatsapp.net", Content: "foreign", Type: "text", Status: "delivered", Timestamp: base},
	}
	for _, m := range rows {
		if err := messages.Upsert(m); err != nil {
			t.Fatalf("Upsert %s: %v", m.MessageID, err)
		}
	}

	chats, err := messages.ListChats("s1")
	if err != nil {
		t.Fatalf("ListChats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("chats = %+v", chats)
	}
	if chats[0].ChatID != "a@s.whatsapp.net" || chats[0].Messages != 2 {
		t.Errorf("first chat = %+v", chats[0])
	}
	if !chats[0].LastActivity.Equal(base) {
		t.Errorf("last activity = %v, want %v", chats[0].LastActivity, base)
	}
	if chats[1].ChatID != "b@s.whatsapp.net" || chats[1].Messages != 1 {
		t.Errorf("second chat = %+v", chats[1])
	}
}

func TestConfigDefaultAndRotate(t *testing.T) {
	config := NewConfigStore(newTestStore(t))

	cfg, err := config.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(cfg.APIKey) < 10 {
		t.Errorf("default api key too short: %q", cfg.APIKey)
	}
	if cfg.RateLimit != 1000 {
		t.Errorf("default rate limit = %d, want 1000", cfg.RateLimit)
	}

	cfg.AutoReplyEnabled = true
	cfg.AutoReplyRules = []AutoReplyRule{{Keyword: "price", Response: "see catalog", Enabled: true}}
	if err := config.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := config.Get()
	if err != nil {
		t.Fatalf("Get after Save: %v", err)
	}
	if !reloaded.AutoReplyEnabled || len(reloaded.AutoReplyRules) != 1 {
		t.Errorf("rules did not round trip: %+v", reloaded)
	}
	if reloaded.AutoReplyRules[0].Keyword != "price" {
		t.Errorf("rule keyword = %q", reloaded.AutoReplyRules[0].Keyword)
	}

	oldKey := reloaded.APIKey
	newKey, err := config.RotateKey()
	if err != nil {
		t.Fatalf("RotateKey: %v", err)
	}
	if newKey == oldKey {
		t.Error("rotated key matches old key")
	}
	reloaded, _ = config.Get()
	if reloaded.APIKey != newKey {
		t.Errorf("stored key = %q, want %q", reloaded.APIKey, newKey)
	}
	// Rotation must not clobber the rest of the document.
	if !reloaded.AutoReplyEnabled {
		t.Error("rotation dropped auto-reply settings")
	}
}
