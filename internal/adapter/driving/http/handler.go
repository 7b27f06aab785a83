// Package httphandler is the HTTP driving adapter for the ingestion
// boundary. The synchronous response communicates acceptance or rejection
// only, never delivery outcome.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/ezysend/dispatch/internal/application"
	"github.com/ezysend/dispatch/internal/domain/model"
	"github.com/ezysend/dispatch/internal/domain/port/driven"
)

// maxBodyBytes caps inbound request bodies. Notification payloads are small;
// anything bigger is abuse.
const maxBodyBytes = 1 << 20

// apiKeyHeader carries the caller's opaque API key.
const apiKeyHeader = "X-Api-Key"

// Handler serves the ingestion REST API.
type Handler struct {
	ingest *application.IngestService
	logger *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(ingest *application.IngestService, logger *slog.Logger) *Handler {
	return &Handler{
		ingest: ingest,
		logger: logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging, rate-limit, body-limit, and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger, limiter *rate.Limiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/email/send", h.SendEmail)
	mux.HandleFunc("POST /api/v1/sms/send", h.SendSMS)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = rateLimitMiddleware(limiter, wrapped)
	wrapped = bodyLimitMiddleware(maxBodyBytes, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// SendEmail accepts an email notification request for asynchronous delivery.
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get(apiKeyHeader)
	if apiKey == "" {
		writeError(w, http.StatusBadRequest, "missing "+apiKeyHeader+" header")
		return
	}

	var payload model.EmailPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := h.ingest.SendEmail(r.Context(), apiKey, payload)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, AcceptedResponse{ID: id, Status: "accepted"})
}

// SendSMS accepts an SMS notification request for asynchronous delivery.
func (h *Handler) SendSMS(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get(apiKeyHeader)
	if apiKey == "" {
		writeError(w, http.StatusBadRequest, "missing "+apiKeyHeader+" header")
		return
	}

	var payload model.SMSPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := h.ingest.SendSMS(r.Context(), apiKey, payload)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, AcceptedResponse{ID: id, Status: "accepted"})
}

// Health reports service liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// writeIngestError maps gateway errors to HTTP responses. Each
// authentication failure is a distinct, user-visible reason.
func (h *Handler) writeIngestError(w http.ResponseWriter, err error) {
	var validation *model.ValidationError

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, driven.ErrCredentialNotFound):
		writeError(w, http.StatusUnauthorized, "invalid API key")
	case errors.Is(err, driven.ErrCredentialInactive):
		writeError(w, http.StatusForbidden, "API key is inactive")
	case errors.Is(err, driven.ErrCredentialExpired):
		writeError(w, http.StatusForbidden, "API key has expired")
	default:
		h.logger.Error("ingestion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
