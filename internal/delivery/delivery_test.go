package delivery

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/infra/logger"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/notify"
)

type fakeConn struct {
	connected bool
	sendErr   error
	sent      []Outbound
}

func (f *fakeConn) IsConnected() bool { return f.connected }

func (f *fakeConn) Send(_ context.Context, chatID string, out Outbound) (*Receipt, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, out)
	return &Receipt{MessageID: "MSG1", Timestamp: time.Now()}, nil
}

type fakeRegistry struct {
	conns map[string]Conn
}

func (f *fakeRegistry) Lookup(sessionID string) (Conn, bool) {
	c, ok := f.conns[sessionID]
	return c, ok
}

func testDeps(t *testing.T) (*store.QueueStore, *store.ScheduledStore, *notify.Bus, *logger.Logger) {
	t.Helper()
	log := logger.NewWithWriter("test", "ERROR", io.Discard)
	s, err := store.NewInMemory(log)
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return store.NewQueueStore(s), store.NewScheduledStore(s), notify.NewBus(log), log
}

func TestBackoff(t *testing.T) {
	base := 30 * time.Second
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
		{5, 480 * time.Second},
	}
	for _, tc := range tests {
		if got := Backoff(base, tc.attempts); got != tc.want {
			t.Errorf("Backoff(%v, %d) = %v, want %v", base, tc.attempts, got, tc.want)
		}
	}
}

func TestSendImmediateWhenConnected(t *testing.T) {
	queue, _, bus, log := testDeps(t)
	conn := &fakeConn{connected: true}
	reg := &fakeRegistry{conns: map[string]Conn{"s1": conn}}
	coord := NewCoordinator(reg, queue, bus, 5, log)

	result, err := coord.Send(context.Background(), "s1", "123@s.whatsapp.net", Outbound{Content: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Queued {
		t.Fatal("expected immediate delivery, got queued")
	}
	if result.Receipt == nil || result.Receipt.MessageID != "MSG1" {
		t.Fatalf("unexpected receipt: %+v", result.Receipt)
	}
	if len(conn.sent) != 1 || conn.sent[0].Content != "hello" {
		t.Fatalf("unexpected sent payloads: %+v", conn.sent)
	}
}

func TestSendQueuesWhenNotConnected(t *testing.T) {
	queue, _, bus, log := testDeps(t)
	reg := &fakeRegistry{conns: map[string]Conn{}}
	coord := NewCoordinator(reg, queue, bus, 5, log)

	result, err := coord.Send(context.Background(), "s1", "123@s.whatsapp.net", Outbound{Content: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !result.Queued || result.QueuedID == "" {
		t.Fatalf("expected queued result, got %+v", result)
	}

	row, err := queue.Get(result.QueuedID)
	if err != nil {
		t.Fatalf("Get queued row: %v", err)
	}
	if row.Status != store.QueueStatusQueued {
		t.Errorf("status = %q, want %q", row.Status, store.QueueStatusQueued)
	}
	if row.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", row.Attempts)
	}
	if row.MaxAttempts != 5 {
		t.Errorf("maxAttempts = %d, want 5", row.MaxAttempts)
	}
}

func TestSendQueuesOnTransportError(t *testing.T) {
	queue, _, bus, log := testDeps(t)
	conn := &fakeConn{connected: true, sendErr: errors.New("boom")}
	reg := &fakeRegistry{conns: map[string]Conn{"s1": conn}}
	coord := NewCoordinator(reg, queue, bus, 5, log)

	result, err := coord.Send(context.Background(), "s1", "123@s.whatsapp.net", Outbound{Content: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !result.Queued {
		t.Fatal("expected queued result on transport error")
	}
	if result.Reason != "boom" {
		t.Errorf("reason = %q, want %q", result.Reason, "boom")
	}
}

func TestSendValidatesInput(t *testing.T) {
	queue, _, bus, log := testDeps(t)
	coord := NewCoordinator(&fakeRegistry{}, queue, bus, 5, log)

	tests := []struct {
		name      string
		sessionID string
		chatID    string
		out       Outbound
	}{
		{"missing session", "", "123", Outbound{Content: "hi"}},
		{"missing chat", "s1", "", Outbound{Content: "hi"}},
		{"empty payload", "s1", "123", Outbound{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := coord.Send(context.Background(), tc.sessionID, tc.chatID, tc.out); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSweepDeliversQueued(t *testing.T) {
	queue, scheduled, bus, log := testDeps(t)
	conn := &fakeConn{connected: true}
	reg := &fakeRegistry{conns: map[string]Conn{"s1": conn}}
	sched := NewScheduler(reg, queue, scheduled, bus, time.Minute, 20, 30*time.Second, log)

	q := &store.QueuedMessage{SessionID: "s1", ChatID: "123@s.whatsapp.net", Content: "queued text"}
	if err := queue.Enqueue(q); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	sched.Sweep(context.Background(), time.Now().Add(time.Second))

	row, err := queue.Get(q.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.Status != store.QueueStatusSent {
		t.Errorf("status = %q, want %q", row.Status, store.QueueStatusSent)
	}
	if len(conn.sent) != 1 {
		t.Fatalf("expected one delivery, got %d", len(conn.sent))
	}
}

func TestSweepRetriesWithBackoffUntilFailed(t *testing.T) {
	queue, scheduled, bus, log := testDeps(t)
	reg := &fakeRegistry{conns: map[string]Conn{}}
	base := 30 * time.Second
	sched := NewScheduler(reg, queue, scheduled, bus, time.Minute, 20, base, log)

	q := &store.QueuedMessage{SessionID: "s1", ChatID: "123@s.whatsapp.net", Content: "x", MaxAttempts: 3}
	if err := queue.Enqueue(q); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	now := time.Now().Add(time.Second)

	// First attempt fails and reschedules 30s out.
	sched.Sweep(context.Background(), now)
	row, _ := queue.Get(q.ID)
	if row.Status != store.QueueStatusQueued || row.Attempts != 1 {
		t.Fatalf("after first sweep: status=%q attempts=%d", row.Status, row.Attempts)
	}
	if row.LastError == "" {
		t.Error("expected lastError to be recorded")
	}

	// Not due again before the backoff elapses.
	sched.Sweep(context.Background(), now.Add(10*time.Second))
	row, _ = queue.Get(q.ID)
	if row.Attempts != 1 {
		t.Fatalf("premature retry: attempts=%d", row.Attempts)
	}

	// Second attempt doubles the delay.
	now = now.Add(Backoff(base, 1) + time.Second)
	sched.Sweep(context.Background(), now)
	row, _ = queue.Get(q.ID)
	if row.Status != store.QueueStatusQueued || row.Attempts != 2 {
		t.Fatalf("after second sweep: status=%q attempts=%d", row.Status, row.Attempts)
	}

	// Third attempt exhausts the budget.
	now = now.Add(Backoff(base, 2) + time.Second)
	sched.Sweep(context.Background(), now)
	row, _ = queue.Get(q.ID)
	if row.Status != store.QueueStatusFailed {
		t.Fatalf("after final sweep: status=%q, want %q", row.Status, store.QueueStatusFailed)
	}
	if row.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", row.Attempts)
	}
}

func TestSweepBatchLimit(t *testing.T) {
	queue, scheduled, bus, log := testDeps(t)
	conn := &fakeConn{connected: true}
	reg := &fakeRegistry{conns: map[string]Conn{"s1": conn}}
	sched := NewScheduler(reg, queue, scheduled, bus, time.Minute, 2, 30*time.Second, log)

	for i := 0; i < 3; i++ {
		q := &store.QueuedMessage{SessionID: "s1", ChatID: "123@s.whatsapp.net", Content: "m"}
		if err := queue.Enqueue(q); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	sched.Sweep(context.Background(), time.Now().Add(time.Second))

	remaining, err := queue.List(store.QueueStatusQueued, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 message left after capped sweep, got %d", len(remaining))
	}
	if len(conn.sent) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(conn.sent))
	}
}

func TestSweepScheduledMessages(t *testing.T) {
	queue, scheduled, bus, log := testDeps(t)
	conn := &fakeConn{connected: true}
	reg := &fakeRegistry{conns: map[string]Conn{"s1": conn}}
	sched := NewScheduler(reg, queue, scheduled, bus, time.Minute, 20, 30*time.Second, log)

	due := &store.ScheduledMessage{SessionID: "s1", ChatID: "123@s.whatsapp.net", Message: "ping", Schedule: time.Now().Add(-time.Minute)}
	future := &store.ScheduledMessage{SessionID: "s1", ChatID: "123@s.whatsapp.net", Message: "later", Schedule: time.Now().Add(time.Hour)}
	for _, m := range []*store.ScheduledMessage{due, future} {
		if err := scheduled.Create(m); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	sched.Sweep(context.Background(), time.Now())

	got, err := scheduled.Get(due.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Sent {
		t.Error("due message should be marked sent")
	}
	got, err = scheduled.Get(future.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Sent {
		t.Error("future message should stay unsent")
	}
	if len(conn.sent) != 1 {
		t.Fatalf("expected one delivery, got %d", len(conn.sent))
	}
}

func TestSweepScheduledFailureLeavesUnsent(t *testing.T) {
	queue, scheduled, bus, log := testDeps(t)
	reg := &fakeRegistry{conns: map[string]Conn{}}
	sched := NewScheduler(reg, queue, scheduled, bus, time.Minute, 20, 30*time.Second, log)

	m := &store.ScheduledMessage{SessionID: "s1", ChatID: "123@s.whatsapp.net", Message: "ping", Schedule: time.Now().Add(-time.Minute)}
	if err := scheduled.Create(m); err != nil {
		t.Fatalf("Create: %v", err)
	}

	sched.Sweep(context.Background(), time.Now())

	got, err := scheduled.Get(m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Sent {
		t.Error("failed dispatch must leave the message unsent for the next tick")
	}
}
