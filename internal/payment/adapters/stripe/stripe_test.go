package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{SecretKey: "sk_test_123", WebhookSecret: "whsec_test", APIBase: server.URL})
}

func TestCreateChargeSendsFormAndIdempotencyKey(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.Equal(t, "charge:TXN-1", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "8500", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "ada@example.com", r.PostForm.Get("receipt_email"))
		assert.Equal(t, "TXN-1", r.PostForm.Get("metadata[transaction_id]"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "pi_123",
			"client_secret": "pi_123_secret",
			"status":        "requires_payment_method",
		})
	})

	charge, err := adapter.CreateCharge(context.Background(), paymentdomain.ChargeRequest{
		Amount:        8500,
		Currency:      "USD",
		Description:   "Distributed Systems",
		ReceiptEmail:  "ada@example.com",
		TransactionID: "TXN-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", charge.Reference)
	assert.Equal(t, "pi_123_secret", charge.ClientSecret)
}

func TestCreateChargeMapsAPIError(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"Your card was declined."}}`))
	})

	_, err := adapter.CreateCharge(context.Background(), paymentdomain.ChargeRequest{Amount: 100, Currency: "USD", TransactionID: "TXN-2"})
	require.Error(t, err)
	ge, ok := paymentdomain.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, "create_charge", ge.Op)
	assert.Contains(t, err.Error(), "Your card was declined.")
}

func TestChargeStatusMapping(t *testing.T) {
	tests := []struct {
		status string
		want   paymentdomain.ChargeStatus
	}{
		{"succeeded", paymentdomain.ChargeSucceeded},
		{"canceled", paymentdomain.ChargeFailed},
		{"requires_payment_method", paymentdomain.ChargeFailed},
		{"processing", paymentdomain.ChargeProcessing},
		{"requires_action", paymentdomain.ChargePending},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/payment_intents/pi_9", r.URL.Path)
				_ = json.NewEncoder(w).Encode(map[string]any{"id": "pi_9", "status": tt.status, "latest_charge": "ch_9"})
			})
			result, err := adapter.ChargeStatus(context.Background(), paymentdomain.StatusQuery{Reference: "pi_9"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)
			assert.Equal(t, "ch_9", result.TransactionRef)
		})
	}
}

func TestChargeStatusRequiresReference(t *testing.T) {
	adapter := New(Config{SecretKey: "sk"})
	_, err := adapter.ChargeStatus(context.Background(), paymentdomain.StatusQuery{})
	assert.ErrorIs(t, err, paymentdomain.ErrReferenceRequired)
}

func TestRefund(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_1", r.PostForm.Get("payment_intent"))
		assert.Equal(t, "refund:pi_1", r.Header.Get("Idempotency-Key"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "re_1", "status": "succeeded"})
	})
	require.NoError(t, adapter.Refund(context.Background(), paymentdomain.RefundRequest{Reference: "pi_1", Reason: "requested_by_customer"}))
}

func TestCancelCharge(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents/pi_7/cancel", r.URL.Path)
		assert.Equal(t, "cancel:pi_7", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "abandoned", r.PostForm.Get("cancellation_reason"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "pi_7", "status": "canceled"})
	})

	require.NoError(t, adapter.CancelCharge(context.Background(), "pi_7"))
}

func TestCancelChargeAlreadyCanceled(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"This PaymentIntent's status is canceled."}}`))
			return
		}
		assert.Equal(t, "/v1/payment_intents/pi_7", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "pi_7", "status": "canceled"})
	})

	require.NoError(t, adapter.CancelCharge(context.Background(), "pi_7"))
}

func TestCancelChargeCapturedIntent(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"This PaymentIntent's status is succeeded."}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "pi_7", "status": "succeeded"})
	})

	err := adapter.CancelCharge(context.Background(), "pi_7")
	ge, ok := paymentdomain.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, "cancel_charge", ge.Op)

	assert.ErrorIs(t, adapter.CancelCharge(context.Background(), " "), paymentdomain.ErrReferenceRequired)
}

func TestMissingSecretKeyIsGatewayError(t *testing.T) {
	adapter := New(Config{})
	_, err := adapter.CreateCharge(context.Background(), paymentdomain.ChargeRequest{Amount: 100, Currency: "USD"})
	_, ok := paymentdomain.AsGatewayError(err)
	assert.True(t, ok)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"payment_intent.succeeded","data":{"object":{}}}`)
	now := time.Unix(1_780_000_000, 0)
	adapter := New(Config{WebhookSecret: secret, Now: func() time.Time { return now }})

	header := http.Header{}
	header.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, now.Unix()))
	require.NoError(t, adapter.Verify(context.Background(), payload, header))

	header.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, now.Unix()))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, header), paymentdomain.ErrInvalidSignature)

	header.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, now.Add(-10*time.Minute).Unix()))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, header), paymentdomain.ErrInvalidSignature)

	header.Del("Stripe-Signature")
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, header), paymentdomain.ErrInvalidSignature)
}

func TestParse(t *testing.T) {
	adapter := New(Config{})
	payload, err := json.Marshal(map[string]any{
		"id":      "evt_1",
		"type":    "payment_intent.succeeded",
		"created": 1_780_000_000,
		"data": map[string]any{"object": map[string]any{
			"id":       "pi_1",
			"amount":   8500,
			"currency": "usd",
		}},
	})
	require.NoError(t, err)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventTypePaymentSucceeded, event.Type)
	assert.Equal(t, "pi_1", event.GatewayReference)
	assert.Equal(t, "USD", event.Currency)
	assert.Equal(t, int64(8500), event.Amount)

	_, err = adapter.Parse(context.Background(), []byte(`{"id":"evt_2","type":"charge.dispute.created","data":{"object":{}}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)

	_, err = adapter.Parse(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signed := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}
