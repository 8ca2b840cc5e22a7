package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := NewClient(ClientConfig{
		BaseURL:      srv.URL,
		ShopID:       "shop-1",
		SecretKey:    "secret-1",
		ReturnURL:    "https://t.me/testbot",
		ReceiptEmail: "receipts@example.com",
	}, nil)
	return client, srv
}

func TestCreatePayment(t *testing.T) {
	var captured struct {
		method         string
		path           string
		idempotenceKey string
		user, pass     string
		body           CreatePaymentRequest
	}

	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.idempotenceKey = r.Header.Get("Idempotence-Key")
		captured.user, captured.pass, _ = r.BasicAuth()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.body))

		json.NewEncoder(w).Encode(Payment{
			ID:     "pay-1",
			Status: StatusPending,
			Amount: Amount{Value: "2990.00", Currency: "RUB"},
			Confirmation: &Confirmation{
				Type:            "redirect",
				ConfirmationURL: "https://pay.example/confirm/pay-1",
			},
		})
	}))
	defer srv.Close()

	payment, err := client.CreatePayment(context.Background(), CreatePaymentParams{
		Value:       "2990.00",
		Currency:    "RUB",
		Description: "Channel subscription, 30 days",
		UserID:      42,
	})
	require.NoError(t, err)

	assert.Equal(t, "pay-1", payment.ID)
	assert.Equal(t, StatusPending, payment.Status)
	assert.Equal(t, "https://pay.example/confirm/pay-1", payment.Confirmation.ConfirmationURL)

	assert.Equal(t, http.MethodPost, captured.method)
	assert.Equal(t, "/payments", captured.path)
	assert.NotEmpty(t, captured.idempotenceKey)
	assert.Equal(t, "shop-1", captured.user)
	assert.Equal(t, "secret-1", captured.pass)

	assert.True(t, captured.body.Capture)
	assert.Equal(t, "redirect", captured.body.Confirmation.Type)
	assert.Equal(t, "https://t.me/testbot", captured.body.Confirmation.ReturnURL)
	assert.Equal(t, "42", captured.body.Metadata["telegram_user_id"])
	require.NotNil(t, captured.body.Receipt)
	assert.Equal(t, "receipts@example.com", captured.body.Receipt.Customer.Email)
	require.Len(t, captured.body.Receipt.Items, 1)
	assert.Equal(t, "2990.00", captured.body.Receipt.Items[0].Amount.Value)
}

func TestGetPayment(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/payments/pay-1", r.URL.Path)
		json.NewEncoder(w).Encode(Payment{ID: "pay-1", Status: StatusSucceeded, Paid: true})
	}))
	defer srv.Close()

	payment, err := client.GetPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, payment.Status)
	assert.True(t, payment.Paid)
}

func TestAPIError(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"code":        "invalid_request",
			"description": "amount is too small",
		})
	}))
	defer srv.Close()

	_, err := client.GetPayment(context.Background(), "pay-1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_request", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "amount is too small")
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := client.GetPayment(ctx, "pay-1")
		require.Error(t, err)
	}

	// The breaker is open now; the request never reaches the server.
	_, err := client.GetPayment(ctx, "pay-1")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
