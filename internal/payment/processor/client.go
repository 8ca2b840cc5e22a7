// Package processor is the HTTP client for the payment provider's API.
// Calls go through a circuit breaker so a provider outage fails fast instead
// of tying up webhook and bot handlers.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.yookassa.ru/v3"

// ClientConfig configures the processor client.
type ClientConfig struct {
	BaseURL   string
	ShopID    string
	SecretKey string
	ReturnURL string

	// ReceiptEmail is the fallback customer email for fiscal receipts.
	ReceiptEmail string

	Timeout time.Duration
}

// Client calls the payment provider.
type Client struct {
	config  ClientConfig
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker[*Payment]
	logger  *slog.Logger
}

// NewClient creates a processor client.
func NewClient(config ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "payment-processor",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &Client{
		config:  config,
		httpc:   &http.Client{Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker[*Payment](settings),
		logger:  logger,
	}
}

// CreatePaymentParams are the caller-facing inputs to CreatePayment.
type CreatePaymentParams struct {
	Value       string
	Currency    string
	Description string
	UserID      int64
	Email       string
}

// CreatePayment registers a capture-on-success payment and returns it with
// the confirmation URL the payer must visit. The Idempotence-Key header makes
// a retried call return the original payment instead of charging twice.
func (c *Client) CreatePayment(ctx context.Context, params CreatePaymentParams) (*Payment, error) {
	email := params.Email
	if email == "" {
		email = c.config.ReceiptEmail
	}

	req := CreatePaymentRequest{
		Amount:  Amount{Value: params.Value, Currency: params.Currency},
		Capture: true,
		Confirmation: Confirmation{
			Type:      "redirect",
			ReturnURL: c.config.ReturnURL,
		},
		Description: params.Description,
		Metadata: map[string]string{
			"telegram_user_id": fmt.Sprintf("%d", params.UserID),
		},
	}
	if email != "" {
		req.Receipt = &Receipt{
			Customer: ReceiptCustomer{Email: email},
			Items: []ReceiptItem{{
				Description: params.Description,
				Quantity:    "1",
				Amount:      req.Amount,
				VATCode:     1,
			}},
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment request: %w", err)
	}

	return c.breaker.Execute(func() (*Payment, error) {
		return c.do(ctx, http.MethodPost, "/payments", body, uuid.NewString())
	})
}

// GetPayment fetches a payment's current state.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	return c.breaker.Execute(func() (*Payment, error) {
		return c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, "")
	})
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotenceKey string) (*Payment, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.config.ShopID, c.config.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotenceKey != "" {
		req.Header.Set("Idempotence-Key", idempotenceKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("processor request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read processor response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Description == "" {
			apiErr.Description = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		c.logger.Warn("processor call rejected",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"code", apiErr.Code,
		)
		return nil, apiErr
	}

	var payment Payment
	if err := json.Unmarshal(data, &payment); err != nil {
		return nil, fmt.Errorf("failed to decode processor response: %w", err)
	}
	return &payment, nil
}
