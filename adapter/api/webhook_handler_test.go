package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/akazakov/tollgate/internal/ledger"
	"github.com/akazakov/tollgate/internal/payment/processor"
	"github.com/akazakov/tollgate/internal/promo"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/database"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/migrations"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	"github.com/akazakov/tollgate/internal/subscription/application"
	subPersistence "github.com/akazakov/tollgate/internal/subscription/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("webhook-secret")

type fakeProcessor struct {
	created int
	err     error
}

func (f *fakeProcessor) CreatePayment(_ context.Context, params processor.CreatePaymentParams) (*processor.Payment, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created++
	return &processor.Payment{
		ID:     "pay-new",
		Status: processor.StatusPending,
		Amount: processor.Amount{Value: params.Value, Currency: params.Currency},
		Confirmation: &processor.Confirmation{
			Type:            "redirect",
			ConfirmationURL: "https://pay.example/confirm/pay-new",
		},
	}, nil
}

func newTestServer(t *testing.T) (*Server, *fakeProcessor) {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.RunSQLiteMigrations(ctx, db))

	evaluator := promo.NewEvaluator(promo.EvaluatorConfig{
		PriceRegular:   "2990.00",
		PriceBonus:     "1.00",
		Currency:       "RUB",
		PlanDuration:   720 * time.Hour,
		BonusExtension: 168 * time.Hour,
	})

	subs := subPersistence.NewSQLiteSubscriptionRepository(db)
	users := subPersistence.NewSQLiteUserRepository(db)
	payments := subPersistence.NewSQLitePaymentRepository(db)

	service := application.NewService(subs, users, payments, outbox.NewSQLiteRepository(db), evaluator, nil)
	ingress := application.NewIngress(
		sharedPersistence.NewSQLiteUnitOfWork(db),
		ledger.NewSQLiteRepository(db),
		service, testSecret, nil,
	)

	proc := &fakeProcessor{}
	payment := NewPaymentHandler(proc, payments, users, evaluator, 10*time.Minute, "https://t.me/tollgate_bot", nil)

	return NewServer(DefaultServerConfig(), NewWebhookHandler(ingress, nil), payment, nil), proc
}

func signedRequest(t *testing.T, eventID, eventType string, payload map[string]any) *http.Request {
	t.Helper()
	payloadJSON, err := json.Marshal(payload)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{
		"event_id":   eventID,
		"event_type": eventType,
		"payload":    json.RawMessage(payloadJSON),
	})
	require.NoError(t, err)

	var env application.Envelope
	require.NoError(t, json.Unmarshal(body, &env))

	req := httptest.NewRequest(http.MethodPost, "/webhook/payments", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, application.Sign(testSecret, eventID, eventType, env.Payload))
	return req
}

func TestWebhook_Success(t *testing.T) {
	srv, _ := newTestServer(t)

	req := signedRequest(t, "evt-1", "payment.succeeded", map[string]any{
		"payment_id": "pay-1",
		"user_id":    42,
		"amount":     "2990.00",
		"currency":   "RUB",
	})
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ledger.OutcomeApplied, resp["outcome"])
	assert.Equal(t, false, resp["duplicate"])
}

func TestWebhook_DuplicateStillOK(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := map[string]any{"payment_id": "pay-1", "user_id": 42}
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, signedRequest(t, "evt-1", "payment.succeeded", payload))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, signedRequest(t, "evt-1", "payment.succeeded", payload))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["duplicate"])
}

func TestWebhook_BadSignature(t *testing.T) {
	srv, _ := newTestServer(t)

	body := []byte(`{"event_id":"evt-1","event_type":"payment.succeeded","payload":{"payment_id":"pay-1","user_id":42}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/payments", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, "bogus")

	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_Malformed(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/payments", bytes.NewReader([]byte(`{`)))
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePaymentLink(t *testing.T) {
	srv, proc := newTestServer(t)

	body := []byte(`{"user_id": 42, "email": "payer@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp createPaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pay-new", resp.PaymentID)
	assert.Equal(t, "https://pay.example/confirm/pay-new", resp.ConfirmationURL)
	assert.False(t, resp.Reused)
	assert.Equal(t, 1, proc.created)

	// A second tap within the link TTL reuses the pending payment.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Reused)
	assert.Equal(t, 1, proc.created)
}

func TestCreatePaymentLink_MissingUser(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReturnRedirectsToBot(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/return", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://t.me/tollgate_bot", rec.Header().Get("Location"))
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
