package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ezysend/dispatch/internal/domain/model"
	"github.com/ezysend/dispatch/internal/domain/port/driven"
)

// IngestService is the request gateway. It validates, authenticates, records
// an unresolved audit log entry, and publishes a dispatch message, in that
// order, with each failure short-circuiting before any further side effect.
// A returned id acknowledges acceptance only, never delivery.
type IngestService struct {
	auth   *AuthService
	logs   driven.AuditLogStore
	broker driven.Broker
	log    *slog.Logger
}

// NewIngestService creates an IngestService with all required dependencies.
func NewIngestService(auth *AuthService, logs driven.AuditLogStore, broker driven.Broker, log *slog.Logger) *IngestService {
	return &IngestService{
		auth:   auth,
		logs:   logs,
		broker: broker,
		log:    log,
	}
}

// SendEmail accepts an email notification request and returns the id of its
// audit log entry.
func (s *IngestService) SendEmail(ctx context.Context, presentedKey string, p model.EmailPayload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	msg := model.DispatchMessage{Channel: model.ChannelEmail, Email: &p}
	return s.accept(ctx, presentedKey, "/api/v1/email/send", p, msg)
}

// SendSMS accepts an SMS notification request and returns the id of its
// audit log entry.
func (s *IngestService) SendSMS(ctx context.Context, presentedKey string, p model.SMSPayload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	msg := model.DispatchMessage{Channel: model.ChannelSMS, SMS: &p}
	return s.accept(ctx, presentedKey, "/api/v1/sms/send", p, msg)
}

// accept runs the authenticated tail of ingestion. The audit log entry is
// durably written before the publish, so an accepted request is always
// resolvable even if the process dies in between; the worst case is a log
// entry that stays unresolved, never a delivery without a log.
func (s *IngestService) accept(ctx context.Context, presentedKey, endpoint string, payload any, msg model.DispatchMessage) (string, error) {
	ident, err := s.auth.Authenticate(ctx, presentedKey)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request payload: %w", err)
	}

	entry := model.AuditLogEntry{
		ID:           uuid.NewString(),
		AccountID:    ident.AccountID,
		CredentialID: ident.CredentialID,
		Method:       "POST",
		Endpoint:     endpoint,
		RequestBody:  body,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.logs.Create(ctx, entry); err != nil {
		return "", fmt.Errorf("create audit log entry: %w", err)
	}

	msg.AccountID = ident.AccountID
	msg.CredentialID = ident.CredentialID
	msg.LogID = entry.ID

	value, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal dispatch message: %w", err)
	}

	// Keyed by account so one account's notifications stay ordered.
	if err := s.broker.Publish(ctx, msg.Channel.Topic(), ident.AccountID, value); err != nil {
		return "", fmt.Errorf("publish dispatch message: %w", err)
	}

	s.log.Info("request accepted",
		"channel", string(msg.Channel),
		"account_id", ident.AccountID,
		"log_id", entry.ID,
	)

	return entry.ID, nil
}
