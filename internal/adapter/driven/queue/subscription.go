package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ezysend/dispatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Subscription = (*Subscription)(nil)

// Subscription is one consumer group's view of a topic: a goroutine per
// partition, each delivering messages in order and advancing the group
// offset only on acknowledgement. Pause and Resume gate all partitions of
// this subscription without affecting publishers or other groups.
type Subscription struct {
	broker  *Broker
	topic   string
	group   string
	handler driven.Handler
	owner   string
	log     *slog.Logger

	mu          sync.Mutex
	pausedUntil time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Pause stops delivery of further messages for d, after which delivery
// resumes automatically. The message currently in a handler is unaffected.
func (s *Subscription) Pause(d time.Duration) {
	if d <= 0 {
		return
	}

	until := time.Now().Add(d)

	s.mu.Lock()
	if until.After(s.pausedUntil) {
		s.pausedUntil = until
	}
	s.mu.Unlock()

	s.log.Info("subscription paused", "until", until.UTC().Format(time.RFC3339))
}

// Resume lifts a pause before its deadline.
func (s *Subscription) Resume() {
	s.mu.Lock()
	s.pausedUntil = time.Time{}
	s.mu.Unlock()
}

// Close drains in-flight handlers, releases partition leases, and stops
// delivery.
func (s *Subscription) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.broker.releaseLeases(ctx, s.topic, s.group, s.owner); err != nil {
		return err
	}

	s.log.Info("subscription closed")
	return nil
}

// pauseRemaining returns how long the subscription is still paused for, or
// zero when delivery may proceed.
func (s *Subscription) pauseRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pausedUntil.IsZero() {
		return 0
	}

	return time.Until(s.pausedUntil)
}

// run is the consume loop for a single partition. Messages are handled one
// at a time; a handler error leaves the offset untouched so the bus
// redelivers the same message on the next iteration.
func (s *Subscription) run(ctx context.Context, part int) {
	defer s.wg.Done()

	log := s.log.With("partition", part)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if d := s.pauseRemaining(); d > 0 {
			if !s.wait(ctx, min(d, s.broker.pollInterval)) {
				return
			}
			continue
		}

		held, err := s.broker.acquireLease(ctx, s.topic, s.group, part, s.owner)
		if err != nil {
			log.Error("lease acquisition failed", "error", err)
			if !s.wait(ctx, s.broker.pollInterval) {
				return
			}
			continue
		}
		if !held {
			// Another consumer in the group owns this partition.
			if !s.wait(ctx, leaseTTL/3) {
				return
			}
			continue
		}

		msg, err := s.broker.nextMessage(ctx, s.topic, s.group, part)
		if err != nil {
			log.Error("read next message failed", "error", err)
			if !s.wait(ctx, s.broker.pollInterval) {
				return
			}
			continue
		}
		if msg == nil {
			if !s.wait(ctx, s.broker.pollInterval) {
				return
			}
			continue
		}

		if err := s.handler(ctx, *msg, s); err != nil {
			log.Warn("message handling failed, will redeliver", "offset", msg.Offset, "error", err)
			if !s.wait(ctx, s.broker.pollInterval) {
				return
			}
			continue
		}

		if err := s.broker.commitOffset(ctx, s.topic, s.group, part, msg.Offset+1); err != nil {
			log.Error("offset commit failed", "offset", msg.Offset, "error", err)
		}
	}
}

// wait sleeps for d, returning false when the subscription is stopping.
func (s *Subscription) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
