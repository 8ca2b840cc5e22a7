package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/akazakov/tollgate/internal/payment/processor"
	"github.com/akazakov/tollgate/internal/promo"
	"github.com/akazakov/tollgate/internal/subscription/domain"
	"github.com/akazakov/tollgate/pkg/observability"
)

// PaymentCreator is the processor call the handler needs; tests substitute a
// fake for the real client.
type PaymentCreator interface {
	CreatePayment(ctx context.Context, params processor.CreatePaymentParams) (*processor.Payment, error)
}

// PaymentHandler creates payment links for users who want to subscribe.
type PaymentHandler struct {
	processor PaymentCreator
	payments  domain.PaymentRepository
	users     domain.UserRepository
	evaluator *promo.Evaluator
	linkTTL   time.Duration
	botURL    string
	logger    *slog.Logger
	now       func() time.Time
}

// NewPaymentHandler creates the payment handler. botURL is where the return
// page sends the payer after checkout; empty disables the redirect.
func NewPaymentHandler(
	proc PaymentCreator,
	payments domain.PaymentRepository,
	users domain.UserRepository,
	evaluator *promo.Evaluator,
	linkTTL time.Duration,
	botURL string,
	logger *slog.Logger,
) *PaymentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{
		processor: proc,
		payments:  payments,
		users:     users,
		evaluator: evaluator,
		linkTTL:   linkTTL,
		botURL:    botURL,
		logger:    logger,
		now:       time.Now,
	}
}

type createPaymentRequest struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

type createPaymentResponse struct {
	PaymentID       string `json:"payment_id"`
	ConfirmationURL string `json:"confirmation_url"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Reused          bool   `json:"reused"`
}

// CreatePaymentLink registers a payment with the processor and returns the
// confirmation URL. A recent still-pending payment for the same user is
// reused, so an impatient double tap does not create two charges.
func (h *PaymentHandler) CreatePaymentLink(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	ctx := observability.WithUserID(r.Context(), req.UserID)
	now := h.now().UTC()

	user, err := domain.NewUser(req.UserID, req.Username, req.Email)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user")
		return
	}
	if err := h.users.EnsureExists(ctx, user); err != nil {
		h.logger.Error("failed to ensure user", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "payment not created")
		return
	}

	pending, err := h.payments.LatestPendingByUser(ctx, req.UserID, now.Add(-h.linkTTL))
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		h.logger.Error("failed to check pending payments", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "payment not created")
		return
	}
	if pending != nil && pending.ConfirmationURL != "" {
		writeJSON(w, http.StatusOK, createPaymentResponse{
			PaymentID:       pending.PaymentID,
			ConfirmationURL: pending.ConfirmationURL,
			Amount:          pending.Amount,
			Currency:        pending.Currency,
			Reused:          true,
		})
		return
	}

	terms := h.evaluator.Terms(now)
	created, err := h.processor.CreatePayment(ctx, processor.CreatePaymentParams{
		Value:       terms.Price,
		Currency:    terms.Currency,
		Description: "Channel subscription",
		UserID:      req.UserID,
		Email:       req.Email,
	})
	if err != nil {
		h.logger.Error("processor rejected payment creation", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusBadGateway, "payment processor unavailable")
		return
	}

	confirmationURL := ""
	if created.Confirmation != nil {
		confirmationURL = created.Confirmation.ConfirmationURL
	}

	record := domain.NewPayment(created.ID, req.UserID, terms.Price, terms.Currency, confirmationURL)
	if err := h.payments.Save(ctx, record); err != nil {
		h.logger.Error("failed to store payment", "payment_id", created.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "payment not created")
		return
	}

	h.logger.Info("payment link created",
		"payment_id", created.ID,
		"user_id", req.UserID,
		"amount", terms.Price,
		"bonus_applied", terms.BonusApplied,
	)

	writeJSON(w, http.StatusCreated, createPaymentResponse{
		PaymentID:       created.ID,
		ConfirmationURL: confirmationURL,
		Amount:          terms.Price,
		Currency:        terms.Currency,
	})
}

// HandleReturn is where the processor redirects the payer after checkout.
// The real confirmation arrives on the webhook; this page sends the payer
// back to the bot chat, where the invite link will be delivered.
func (h *PaymentHandler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	if h.botURL != "" {
		http.Redirect(w, r, h.botURL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "processing",
		"message": "Payment received. Your invite link will arrive in the bot chat shortly.",
	})
}
