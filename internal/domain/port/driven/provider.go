package driven

import (
	"context"
	"fmt"
	"time"

	"github.com/ezysend/dispatch/internal/domain/model"
)

// Result is a confirmed provider send.
type Result struct {
	MessageID  string `json:"message_id"`
	StatusCode int    `json:"status_code"`
}

// Provider is the delivery capability. The worker depends only on the
// three-way error classification below, never on a specific provider's wire
// format.
type Provider interface {
	SendEmail(ctx context.Context, p model.EmailPayload) (*Result, error)
	SendSMS(ctx context.Context, p model.SMSPayload) (*Result, error)
}

// RateLimitedError reports a provider throttle. It is never terminal and
// never consumes a retry attempt: the worker pauses the whole channel for
// RetryAfter and relies on bus redelivery.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("provider rate limited, retry after %s", e.RetryAfter)
}

// TransientError wraps a retryable provider failure (network errors,
// 5xx-class responses).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient provider error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a non-retryable provider failure (validation,
// 4xx-class responses). The worker records it immediately without retrying.
type PermanentError struct {
	Status int
	Err    error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent provider error (status %d): %s", e.Status, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }
