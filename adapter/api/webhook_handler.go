package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/akazakov/tollgate/internal/subscription/application"
	"github.com/akazakov/tollgate/pkg/observability"
)

// SignatureHeader carries the HMAC of the webhook body.
const SignatureHeader = "X-Webhook-Signature"

// maxWebhookBody bounds how much of a notification body is read.
const maxWebhookBody = 1 << 20

// WebhookHandler receives payment processor notifications.
type WebhookHandler struct {
	ingress *application.Ingress
	logger  *slog.Logger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(ingress *application.Ingress, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{ingress: ingress, logger: logger}
}

// HandleNotification processes one processor notification. The processor
// retries anything that is not a 2xx, so only persistence failures return
// 500; signature and format problems are final and answered 401/400.
func (h *WebhookHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	result, err := h.ingress.Process(r.Context(), body, r.Header.Get(SignatureHeader))
	switch {
	case errors.Is(err, application.ErrBadSignature):
		writeError(w, http.StatusUnauthorized, "signature mismatch")
		return
	case errors.Is(err, application.ErrMalformedEvent):
		writeError(w, http.StatusBadRequest, "malformed event")
		return
	case err != nil:
		h.logger.Error("webhook processing failed",
			observability.RequestIDKey, observability.RequestIDFromContext(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "event not processed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"outcome":   result.Outcome,
		"duplicate": result.Duplicate,
	})
}
