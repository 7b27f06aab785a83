package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/ezysend/dispatch/internal/domain/model"
	"github.com/ezysend/dispatch/internal/domain/port/driven"
)

// DispatchService is the consumer-side worker. It subscribes to every
// channel topic, drives each dispatch message to a terminal outcome through
// the delivery provider, and records that outcome atomically.
//
// Policy: transient provider errors are retried up to the bounded budget
// with exponential spacing; permanent errors are terminal immediately; a
// rate-limit signal never consumes a retry attempt — it pauses the whole
// channel for the provider-declared interval and relies on bus redelivery.
type DispatchService struct {
	broker   driven.Broker
	logs     driven.AuditLogStore
	outcomes driven.OutcomeStore
	provider driven.Provider
	group    string
	retryMax int
	delay    time.Duration
	log      *slog.Logger

	subs []driven.Subscription
}

// NewDispatchService creates a DispatchService. retryMax is the total
// attempt budget per message (minimum 1); delay is the initial backoff
// interval between attempts.
func NewDispatchService(
	broker driven.Broker,
	logs driven.AuditLogStore,
	outcomes driven.OutcomeStore,
	provider driven.Provider,
	group string,
	retryMax int,
	delay time.Duration,
	log *slog.Logger,
) *DispatchService {
	if retryMax < 1 {
		retryMax = 1
	}

	return &DispatchService{
		broker:   broker,
		logs:     logs,
		outcomes: outcomes,
		provider: provider,
		group:    group,
		retryMax: retryMax,
		delay:    delay,
		log:      log,
	}
}

// Start subscribes to all channel topics. It returns once the subscriptions
// are running; message processing continues until Close.
func (s *DispatchService) Start(ctx context.Context) error {
	for _, ch := range []model.Channel{model.ChannelEmail, model.ChannelSMS} {
		sub, err := s.broker.Subscribe(ctx, ch.Topic(), s.group, s.handle)
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", ch.Topic(), err)
		}
		s.subs = append(s.subs, sub)
	}

	s.log.Info("dispatch worker started", "group", s.group, "retry_max", s.retryMax)
	return nil
}

// Close drains in-flight messages and stops all subscriptions.
func (s *DispatchService) Close() error {
	var firstErr error
	for _, sub := range s.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// handle processes one queued dispatch message. Returning nil acknowledges
// the message; returning an error triggers bus redelivery.
func (s *DispatchService) handle(ctx context.Context, m driven.Message, consumer driven.Consumer) error {
	var msg model.DispatchMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		// A poison message can never resolve anything; drop it rather than
		// block the partition forever.
		s.log.Error("dropping undecodable dispatch message",
			"topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
		return nil
	}

	entry, err := s.logs.GetByID(ctx, msg.LogID)
	if err != nil {
		return fmt.Errorf("load log entry %s: %w", msg.LogID, err)
	}
	if entry == nil {
		s.log.Error("dispatch message references unknown log entry", "log_id", msg.LogID)
		return nil
	}
	if entry.Resolved() {
		// Redelivery of an already-resolved dispatch, e.g. after a crash
		// between outcome commit and offset commit. Must not send again.
		s.log.Info("log entry already resolved, skipping", "log_id", msg.LogID)
		return nil
	}

	result, sendErr := s.attempt(ctx, msg)

	var rateLimited *driven.RateLimitedError
	if errors.As(sendErr, &rateLimited) {
		consumer.Pause(rateLimited.RetryAfter)
		s.log.Warn("provider rate limited, pausing channel",
			"topic", m.Topic, "retry_after", rateLimited.RetryAfter, "log_id", msg.LogID)
		return sendErr
	}

	// A canceled context means shutdown interrupted the attempt, not that the
	// provider failed. The entry must stay unresolved so the message is
	// redelivered after restart; the retry budget was never exhausted. The
	// cancellation surfaces either directly from the retry loop or wrapped in
	// a transient error from an aborted HTTP send.
	if errors.Is(sendErr, context.Canceled) || errors.Is(sendErr, context.DeadlineExceeded) {
		s.log.Info("attempt interrupted by shutdown, leaving unresolved", "log_id", msg.LogID)
		return sendErr
	}

	// The outcome write must land even when shutdown cancels the message
	// context mid-flight; the subscription waits for us before releasing
	// the partition.
	persistCtx := context.WithoutCancel(ctx)

	if sendErr == nil {
		record := buildDeliveryRecord(msg, result)
		status := result.StatusCode
		if status == 0 {
			status = http.StatusOK
		}

		if err := s.outcomes.ResolveSuccess(persistCtx, msg.LogID, record, status); err != nil {
			if errors.Is(err, driven.ErrAlreadyResolved) {
				return nil
			}
			return fmt.Errorf("resolve success for %s: %w", msg.LogID, err)
		}

		s.log.Info("notification delivered",
			"channel", string(msg.Channel), "log_id", msg.LogID, "delivery_id", record.ID)
		return nil
	}

	status, detail := classifyFailure(sendErr)
	if err := s.outcomes.ResolveFailure(persistCtx, msg.LogID, status, detail); err != nil {
		if errors.Is(err, driven.ErrAlreadyResolved) {
			return nil
		}
		return fmt.Errorf("resolve failure for %s: %w", msg.LogID, err)
	}

	s.log.Warn("notification failed",
		"channel", string(msg.Channel), "log_id", msg.LogID, "status", status, "detail", detail)
	return nil
}

// attempt invokes the provider with the bounded retry budget. Rate-limit and
// permanent errors abort the loop immediately; only transient errors consume
// attempts.
func (s *DispatchService) attempt(ctx context.Context, msg model.DispatchMessage) (*driven.Result, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(s.delay),
				backoff.WithMaxElapsedTime(0),
			),
			uint64(s.retryMax-1),
		),
		ctx,
	)

	var result *driven.Result
	operation := func() error {
		res, err := s.send(ctx, msg)
		if err != nil {
			var rateLimited *driven.RateLimitedError
			var permanent *driven.PermanentError
			if errors.As(err, &rateLimited) || errors.As(err, &permanent) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *DispatchService) send(ctx context.Context, msg model.DispatchMessage) (*driven.Result, error) {
	switch {
	case msg.Channel == model.ChannelEmail && msg.Email != nil:
		return s.provider.SendEmail(ctx, *msg.Email)
	case msg.Channel == model.ChannelSMS && msg.SMS != nil:
		return s.provider.SendSMS(ctx, *msg.SMS)
	default:
		return nil, &driven.PermanentError{
			Status: http.StatusBadRequest,
			Err:    fmt.Errorf("dispatch message has no payload for channel %q", msg.Channel),
		}
	}
}

// buildDeliveryRecord assembles the immutable delivery record for a
// confirmed send.
func buildDeliveryRecord(msg model.DispatchMessage, result *driven.Result) model.DeliveryRecord {
	record := model.DeliveryRecord{
		ID:        uuid.NewString(),
		AccountID: msg.AccountID,
		Channel:   msg.Channel,
		CreatedAt: time.Now().UTC(),
	}

	if msg.Email != nil {
		record.Sender = msg.Email.From
		record.Recipients = msg.Email.To
		record.Subject = msg.Email.Subject
	}
	if msg.SMS != nil {
		record.PhoneNumber = msg.SMS.PhoneNumber
		record.Message = msg.SMS.Message
	}

	if metadata, err := json.Marshal(result); err == nil {
		record.ProviderMetadata = metadata
	}

	return record
}

// classifyFailure maps a terminal send error to the status and detail
// recorded on the resolved-failure log entry.
func classifyFailure(err error) (int, string) {
	var permanent *driven.PermanentError
	if errors.As(err, &permanent) {
		status := permanent.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		return status, permanent.Error()
	}

	// Exhausted transient retries.
	return http.StatusBadGateway, err.Error()
}
