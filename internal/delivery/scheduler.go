package delivery

import (
	"context"
	"math"
	"sync"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/notify"
)

// Scheduler runs the periodic sweep dispatching due scheduled messages and
// advancing queued messages through their retry cycle.
type Scheduler struct {
	registry  Registry
	queue     *store.QueueStore
	scheduled *store.ScheduledStore
	bus       *notify.Bus
	log       waLog.Logger

	interval    time.Duration
	batchSize   int
	backoffBase time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new Scheduler.
func NewScheduler(registry Registry, queue *store.QueueStore, scheduled *store.ScheduledStore,
	bus *notify.Bus, interval time.Duration, batchSize int, backoffBase time.Duration, log waLog.Logger) *Scheduler {
	return &Scheduler{
		registry:    registry,
		queue:       queue,
		scheduled:   scheduled,
		bus:         bus,
		interval:    interval,
		batchSize:   batchSize,
		backoffBase: backoffBase,
		log:         log.Sub("Scheduler"),
	}
}

// Start launches the sweep loop.
func (s *Scheduler) Start() {
	if s.cancel != nil {
		s.log.Warnf("Scheduler already running")
		return
	}
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx, time.Now())
			}
		}
	}()
	s.log.Infof("Delivery scheduler started (interval %s)", s.interval)
}

// Stop halts the sweep loop and waits for the current sweep to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
		s.cancel = nil
		s.log.Infof("Delivery scheduler stopped")
	}
}

// Sweep runs both passes once. Failures on one record never abort the rest
// of the batch.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) {
	s.sweepScheduled(ctx, now)
	s.sweepQueue(ctx, now)
}

// sweepScheduled dispatches due scheduled messages. A failed dispatch is
// logged and left unsent for the next tick.
func (s *Scheduler) sweepScheduled(ctx context.Context, now time.Time) {
	due, err := s.scheduled.Due(now)
	if err != nil {
		s.log.Errorf("Failed to load due scheduled messages: %v", err)
		return
	}

	for _, msg := range due {
		_, err := directSend(ctx, s.registry, msg.SessionID, msg.ChatID, Outbound{Content: msg.Message})
		if err != nil {
			s.log.Warnf("Scheduled message %s to %s failed: %v", msg.ID, msg.ChatID, err)
			continue
		}
		if err := s.scheduled.MarkSent(msg.ID); err != nil {
			s.log.Errorf("Failed to mark scheduled message %s sent: %v", msg.ID, err)
			continue
		}
		s.bus.Publish("scheduled_message_sent", map[string]interface{}{
			"scheduledId": msg.ID,
			"sessionId":   msg.SessionID,
			"chatId":      msg.ChatID,
		})
	}
}

// sweepQueue advances up to batchSize due queued messages through one
// retry attempt each.
func (s *Scheduler) sweepQueue(ctx context.Context, now time.Time) {
	due, err := s.queue.Due(now, s.batchSize)
	if err != nil {
		s.log.Errorf("Failed to load due queued messages: %v", err)
		return
	}

	for _, q := range due {
		if err := s.attempt(ctx, q, now); err != nil {
			s.log.Errorf("Error processing queued message %s: %v", q.ID, err)
		}
	}
}

func (s *Scheduler) attempt(ctx context.Context, q *store.QueuedMessage, now time.Time) error {
	if err := s.queue.MarkSending(q.ID); err != nil {
		return err
	}

	out := Outbound{Content: q.Content, MediaURL: q.MediaURL, MediaType: q.MediaType}
	_, sendErr := directSend(ctx, s.registry, q.SessionID, q.ChatID, out)
	if sendErr == nil {
		if err := s.queue.MarkSent(q.ID); err != nil {
			return err
		}
		s.bus.Publish("queued_message_sent", map[string]interface{}{
			"queuedId":  q.ID,
			"sessionId": q.SessionID,
			"chatId":    q.ChatID,
		})
		return nil
	}

	attempts := q.Attempts + 1
	if attempts >= q.MaxAttempts {
		if err := s.queue.MarkFailed(q.ID, attempts, sendErr.Error()); err != nil {
			return err
		}
	} else {
		next := now.Add(Backoff(s.backoffBase, attempts))
		if err := s.queue.Requeue(q.ID, attempts, sendErr.Error(), next); err != nil {
			return err
		}
	}
	s.bus.Publish("queued_message_failed_attempt", map[string]interface{}{
		"queuedId":  q.ID,
		"sessionId": q.SessionID,
		"attempts":  attempts,
		"lastError": sendErr.Error(),
	})
	return nil
}

// Backoff returns the delay before the next attempt: base * 2^(attempts-1).
func Backoff(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(float64(base) * math.Pow(2, float64(attempts-1)))
}
