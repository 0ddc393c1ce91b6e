package delivery

import (
	"context"
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/notify"
)

// Result reports the outcome of a send request: either a transport receipt
// or the id of the queued row that will carry the delivery obligation.
type Result struct {
	Queued   bool
	QueuedID string
	Receipt  *Receipt
	// Reason holds the immediate-send failure that caused queueing, if any.
	Reason string
}

// Coordinator applies the immediate-first, queue-as-fallback send policy.
type Coordinator struct {
	registry    Registry
	queue       *store.QueueStore
	bus         *notify.Bus
	maxAttempts int
	log         waLog.Logger
}

// NewCoordinator creates a new Coordinator.
func NewCoordinator(registry Registry, queue *store.QueueStore, bus *notify.Bus, maxAttempts int, log waLog.Logger) *Coordinator {
	return &Coordinator{
		registry:    registry,
		queue:       queue,
		bus:         bus,
		maxAttempts: maxAttempts,
		log:         log.Sub("Coordinator"),
	}
}

// Send attempts immediate delivery and falls back to the durable queue. An
// unavailable connection is never an error: the message is queued and a
// queued Result returned.
func (c *Coordinator) Send(ctx context.Context, sessionID, chatID string, out Outbound) (*Result, error) {
	if sessionID == "" || chatID == "" {
		return nil, fmt.Errorf("sessionId and chatId are required")
	}
	if out.Content == "" && out.MediaURL == "" {
		return nil, fmt.Errorf("message content or media is required")
	}

	receipt, err := directSend(ctx, c.registry, sessionID, chatID, out)
	if err == ErrNotConnected {
		return c.enqueue(sessionID, chatID, out, "")
	}
	if err != nil {
		c.log.Warnf("Immediate send to %s failed, queueing: %v", chatID, err)
		return c.enqueue(sessionID, chatID, out, err.Error())
	}

	return &Result{Receipt: receipt}, nil
}

// Enqueue creates a queued row directly, bypassing the immediate attempt.
func (c *Coordinator) Enqueue(sessionID, chatID string, out Outbound) (*Result, error) {
	return c.enqueue(sessionID, chatID, out, "")
}

func (c *Coordinator) enqueue(sessionID, chatID string, out Outbound, reason string) (*Result, error) {
	q := &store.QueuedMessage{
		SessionID:   sessionID,
		ChatID:      chatID,
		Content:     out.Content,
		MediaURL:    out.MediaURL,
		MediaType:   out.MediaType,
		MaxAttempts: c.maxAttempts,
		LastError:   reason,
	}
	if err := c.queue.Enqueue(q); err != nil {
		return nil, fmt.Errorf("failed to enqueue message: %w", err)
	}

	c.log.Infof("Queued message %s for %s (session %s)", q.ID, chatID, sessionID)
	c.bus.Publish("message_queued", map[string]interface{}{
		"queuedId":  q.ID,
		"sessionId": sessionID,
		"chatId":    chatID,
		"error":     reason,
	})
	return &Result{Queued: true, QueuedID: q.ID, Reason: reason}, nil
}
