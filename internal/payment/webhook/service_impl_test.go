package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/learnpay/internal/payment/adapters"
	"github.com/smallbiznis/learnpay/internal/payment/adapters/bkash"
	"github.com/smallbiznis/learnpay/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const webhookSecret = "whsec_test"

var now = time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

func newWebhookService() *Service {
	registry := adapters.NewRegistry(
		stripe.New(stripe.Config{
			SecretKey:     "sk_test",
			WebhookSecret: webhookSecret,
			Now:           func() time.Time { return now },
		}),
		bkash.New(bkash.Config{Mode: bkash.ModeSandbox}),
	)
	return NewService(Params{Log: zap.NewNop(), Adapters: registry}).(*Service)
}

func signedHeaders(payload []byte, at time.Time, secret string) http.Header {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return headers
}

func TestIngestRejectsUnknownProviders(t *testing.T) {
	svc := newWebhookService()
	ctx := context.Background()

	assert.ErrorIs(t, svc.IngestWebhook(ctx, "paypal", []byte(`{}`), http.Header{}), paymentdomain.ErrProviderNotFound)
	assert.ErrorIs(t, svc.IngestWebhook(ctx, "bkash", []byte(`{}`), http.Header{}), paymentdomain.ErrProviderNotFound)
	assert.ErrorIs(t, svc.IngestWebhook(ctx, " ", []byte(`{}`), http.Header{}), paymentdomain.ErrProviderNotFound)
}

func TestIngestRejectsBadPayloadAndSignature(t *testing.T) {
	svc := newWebhookService()
	ctx := context.Background()

	assert.ErrorIs(t, svc.IngestWebhook(ctx, "stripe", []byte(`not-json`), http.Header{}), paymentdomain.ErrInvalidPayload)

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	assert.ErrorIs(t, svc.IngestWebhook(ctx, "stripe", payload, signedHeaders(payload, now, "whsec_wrong")), paymentdomain.ErrInvalidSignature)
	assert.ErrorIs(t, svc.IngestWebhook(ctx, "stripe", payload, signedHeaders(payload, now.Add(-time.Hour), webhookSecret)), paymentdomain.ErrInvalidSignature)
}

func TestIngestAcknowledgesIgnoredEvents(t *testing.T) {
	svc := newWebhookService()
	payload := []byte(`{"id":"evt_2","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	assert.NoError(t, svc.IngestWebhook(context.Background(), "STRIPE", payload, signedHeaders(payload, now, webhookSecret)))
}
