// Package provider implements the delivery provider capability over a
// generic HTTP JSON contract. The worker only ever sees the three-way error
// classification from the driven port; everything about the upstream wire
// format stays inside this package.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ezysend/dispatch/internal/domain/model"
	"github.com/ezysend/dispatch/internal/domain/port/driven"
)

// defaultRetryAfter is used when a throttling response omits or mangles the
// Retry-After header.
const defaultRetryAfter = 30 * time.Second

// Compile-time interface satisfaction check.
var _ driven.Provider = (*Client)(nil)

// Client posts notification payloads to the configured provider endpoints.
type Client struct {
	httpClient *http.Client
	emailURL   string
	smsURL     string
	token      string
}

// NewClient creates a provider client. token, when non-empty, is sent as a
// bearer token on every request.
func NewClient(emailURL, smsURL, token string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		emailURL:   emailURL,
		smsURL:     smsURL,
		token:      token,
	}
}

// SendEmail submits an email payload for delivery.
func (c *Client) SendEmail(ctx context.Context, p model.EmailPayload) (*driven.Result, error) {
	return c.post(ctx, c.emailURL, p)
}

// SendSMS submits an SMS payload for delivery.
func (c *Client) SendSMS(ctx context.Context, p model.SMSPayload) (*driven.Result, error) {
	return c.post(ctx, c.smsURL, p)
}

// providerResponse is the success body shape we expect from the provider.
// An empty or unparseable body on a 2xx response still counts as success.
type providerResponse struct {
	MessageID string `json:"message_id"`
}

func (c *Client) post(ctx context.Context, url string, payload any) (*driven.Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal provider payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures are retryable by definition.
		return nil, &driven.TransientError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed providerResponse
		if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil {
			_ = json.Unmarshal(data, &parsed)
		}
		return &driven.Result{MessageID: parsed.MessageID, StatusCode: resp.StatusCode}, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &driven.RateLimitedError{RetryAfter: retryAfter(resp)}

	case resp.StatusCode >= 500:
		return nil, &driven.TransientError{Err: fmt.Errorf("provider returned status %d", resp.StatusCode)}

	default:
		return nil, &driven.PermanentError{
			Status: resp.StatusCode,
			Err:    errors.New("provider rejected the payload"),
		}
	}
}

// retryAfter parses the Retry-After header as delay seconds.
func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return defaultRetryAfter
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return defaultRetryAfter
	}

	return time.Duration(seconds) * time.Second
}
