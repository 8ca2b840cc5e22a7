package application

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/akazakov/tollgate/internal/ledger"
	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
)

// Processor event types accepted on the webhook.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentCanceled  = "payment.canceled"
	EventRefundSucceeded  = "refund.succeeded"
)

// Ingress errors. The transport layer maps these to HTTP statuses.
var (
	ErrBadSignature   = errors.New("webhook signature mismatch")
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// Envelope is the raw notification as delivered by the payment processor.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type envelopePayload struct {
	PaymentID string `json:"payment_id"`
	RefundID  string `json:"refund_id"`
	UserID    int64  `json:"user_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

// Result describes how an event was handled.
type Result struct {
	Outcome   string
	Duplicate bool
}

// Ingress is the single entry point for processor notifications. It verifies
// the signature, consults the processed-event ledger, and applies the event
// inside one transaction: duplicate deliveries replay the recorded outcome
// without touching state.
type Ingress struct {
	uow     sharedPersistence.UnitOfWork
	ledger  ledger.Repository
	service *Service
	secret  []byte
	logger  *slog.Logger
}

// NewIngress creates the webhook ingress.
func NewIngress(
	uow sharedPersistence.UnitOfWork,
	ledgerRepo ledger.Repository,
	service *Service,
	secret []byte,
	logger *slog.Logger,
) *Ingress {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingress{
		uow:     uow,
		ledger:  ledgerRepo,
		service: service,
		secret:  secret,
		logger:  logger,
	}
}

// Sign computes the expected signature for an envelope. Exposed so tests and
// tooling can produce valid requests.
func Sign(secret []byte, eventID, eventType string, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(eventID))
	mac.Write([]byte("."))
	mac.Write([]byte(eventType))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Process handles one webhook delivery.
func (i *Ingress) Process(ctx context.Context, body []byte, signature string) (Result, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return Result{}, fmt.Errorf("%w: missing event_id or event_type", ErrMalformedEvent)
	}

	expected := Sign(i.secret, env.EventID, env.EventType, env.Payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		i.logger.Warn("webhook signature rejected", "event_id", env.EventID)
		return Result{}, ErrBadSignature
	}

	ev, err := parseEvent(env)
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = sharedPersistence.Transact(ctx, i.uow, func(txCtx context.Context) error {
		isNew, prior, err := i.ledger.RecordIfNew(txCtx, env.EventID, env.EventType)
		if err != nil {
			return fmt.Errorf("failed to consult ledger: %w", err)
		}
		if !isNew {
			result = Result{Outcome: prior.Outcome, Duplicate: true}
			i.logger.Info("duplicate event ignored",
				"event_id", env.EventID,
				"event_type", env.EventType,
				"prior_outcome", prior.Outcome,
			)
			return nil
		}

		outcome, err := i.dispatch(txCtx, ev)
		if err != nil {
			return err
		}
		if err := i.ledger.SetOutcome(txCtx, env.EventID, outcome); err != nil {
			return fmt.Errorf("failed to record outcome: %w", err)
		}
		result = Result{Outcome: outcome}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func (i *Ingress) dispatch(ctx context.Context, ev PaymentEvent) (string, error) {
	switch ev.EventType {
	case EventPaymentSucceeded:
		return i.service.HandlePaymentSucceeded(ctx, ev)
	case EventPaymentCanceled:
		return i.service.HandlePaymentCanceled(ctx, ev)
	case EventRefundSucceeded:
		return i.service.HandleRefundSucceeded(ctx, ev)
	default:
		// Recorded but not applied, so a repeat of the same unknown event
		// is still a duplicate.
		i.logger.Warn("unrecognized event type recorded",
			"event_id", ev.EventID,
			"event_type", ev.EventType,
		)
		return ledger.OutcomeIgnored, nil
	}
}

func parseEvent(env Envelope) (PaymentEvent, error) {
	var p envelopePayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return PaymentEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
	}

	paymentID := p.PaymentID
	if env.EventType == EventRefundSucceeded && paymentID == "" {
		paymentID = p.RefundID
	}
	switch env.EventType {
	case EventPaymentSucceeded, EventPaymentCanceled, EventRefundSucceeded:
		if paymentID == "" {
			return PaymentEvent{}, fmt.Errorf("%w: missing payment_id", ErrMalformedEvent)
		}
	}

	return PaymentEvent{
		EventID:   env.EventID,
		EventType: env.EventType,
		PaymentID: paymentID,
		UserID:    p.UserID,
		Amount:    p.Amount,
		Currency:  p.Currency,
	}, nil
}
