package notify

import (
	"io"
	"testing"
	"time"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/infra/logger"
)

func testBus() *Bus {
	return NewBus(logger.NewWithWriter("test", "ERROR", io.Discard))
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := testBus()

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish("connection_open", map[string]interface{}{"sessionId": "s1"})

	select {
	case evt := <-ch:
		if evt.Name != "connection_open" {
			t.Errorf("event name = %q", evt.Name)
		}
		payload, ok := evt.Payload.(map[string]interface{})
		if !ok || payload["sessionId"] != "s1" {
			t.Errorf("unexpected payload: %+v", evt.Payload)
		}
		if evt.Timestamp.IsZero() {
			t.Error("event timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := testBus()

	_, cancel := bus.Subscribe()
	defer cancel()

	// The subscriber never reads; publishing far past the buffer must
	// drop events instead of blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			bus.Publish("tick", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := testBus()

	_, cancel := bus.Subscribe()
	if got := bus.SubscriberCount(); got != 1 {
		t.Fatalf("subscriber count = %d, want 1", got)
	}

	cancel()
	if got := bus.SubscriberCount(); got != 0 {
		t.Fatalf("subscriber count after cancel = %d, want 0", got)
	}

	// Cancelling twice must not panic.
	cancel()

	// Publishing with no subscribers is a no-op.
	bus.Publish("noop", nil)
}
