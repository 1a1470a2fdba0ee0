package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
)

const (
	kind                   = "stripe"
	defaultAPIBase         = "https://api.stripe.com"
	defaultSignatureMaxAge = 5 * time.Minute
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	APIBase       string
	HTTPClient    *http.Client
	Now           func() time.Time
}

// Adapter talks to the PaymentIntents API over plain HTTP.
type Adapter struct {
	secretKey     string
	webhookSecret string
	apiBase       string
	client        *http.Client
	now           func() time.Time
}

func New(cfg Config) *Adapter {
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 12 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Adapter{
		secretKey:     strings.TrimSpace(cfg.SecretKey),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		apiBase:       apiBase,
		client:        client,
		now:           now,
	}
}

func (a *Adapter) Kind() string {
	return kind
}

type paymentIntent struct {
	ID               string `json:"id"`
	ClientSecret     string `json:"client_secret"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	LatestCharge     string `json:"latest_charge"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (a *Adapter) CreateCharge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.Charge, error) {
	if req.Amount <= 0 {
		return paymentdomain.Charge{}, paymentdomain.NewGatewayError(kind, "create_charge", errors.New("amount must be positive"))
	}
	values := url.Values{}
	values.Set("amount", strconv.FormatInt(req.Amount, 10))
	values.Set("currency", strings.ToLower(req.Currency))
	values.Set("automatic_payment_methods[enabled]", "true")
	if req.Description != "" {
		values.Set("description", req.Description)
	}
	if req.ReceiptEmail != "" {
		values.Set("receipt_email", req.ReceiptEmail)
	}
	if req.TransactionID != "" {
		values.Set("metadata[transaction_id]", req.TransactionID)
	}

	var intent paymentIntent
	if err := a.do(ctx, http.MethodPost, "/v1/payment_intents", values, "charge:"+req.TransactionID, &intent); err != nil {
		return paymentdomain.Charge{}, paymentdomain.NewGatewayError(kind, "create_charge", err)
	}
	return paymentdomain.Charge{
		Reference:    intent.ID,
		ClientSecret: intent.ClientSecret,
		RawStatus:    intent.Status,
	}, nil
}

func (a *Adapter) ChargeStatus(ctx context.Context, q paymentdomain.StatusQuery) (paymentdomain.ChargeResult, error) {
	reference := strings.TrimSpace(q.Reference)
	if reference == "" {
		reference = strings.TrimSpace(q.ClientReference)
	}
	if reference == "" {
		return paymentdomain.ChargeResult{}, paymentdomain.ErrReferenceRequired
	}

	var intent paymentIntent
	if err := a.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(reference), nil, "", &intent); err != nil {
		return paymentdomain.ChargeResult{}, paymentdomain.NewGatewayError(kind, "charge_status", err)
	}

	result := paymentdomain.ChargeResult{
		RawStatus:      intent.Status,
		TransactionRef: intent.LatestCharge,
	}
	switch intent.Status {
	case "succeeded":
		result.Status = paymentdomain.ChargeSucceeded
	case "canceled", "requires_payment_method":
		result.Status = paymentdomain.ChargeFailed
		result.Reason = "Stripe payment " + intent.Status
		if intent.LastPaymentError != nil && intent.LastPaymentError.Message != "" {
			result.Reason = intent.LastPaymentError.Message
		}
	case "processing":
		result.Status = paymentdomain.ChargeProcessing
	default:
		result.Status = paymentdomain.ChargePending
	}
	return result, nil
}

func (a *Adapter) Refund(ctx context.Context, req paymentdomain.RefundRequest) error {
	if strings.TrimSpace(req.Reference) == "" {
		return paymentdomain.NewGatewayError(kind, "refund", errors.New("missing payment intent"))
	}
	values := url.Values{}
	values.Set("payment_intent", req.Reference)
	if req.Reason != "" {
		values.Set("metadata[reason]", req.Reason)
	}
	if req.TransactionID != "" {
		values.Set("metadata[transaction_id]", req.TransactionID)
	}

	var out refund
	if err := a.do(ctx, http.MethodPost, "/v1/refunds", values, "refund:"+req.Reference, &out); err != nil {
		return paymentdomain.NewGatewayError(kind, "refund", err)
	}
	if out.Status == "failed" || out.Status == "canceled" {
		return paymentdomain.NewGatewayError(kind, "refund", errors.Errorf("refund %s is %s", out.ID, out.Status))
	}
	return nil
}

func (a *Adapter) CancelCharge(ctx context.Context, reference string) error {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return paymentdomain.ErrReferenceRequired
	}
	path := "/v1/payment_intents/" + url.PathEscape(reference)

	values := url.Values{}
	values.Set("cancellation_reason", "abandoned")
	var intent paymentIntent
	err := a.do(ctx, http.MethodPost, path+"/cancel", values, "cancel:"+reference, &intent)
	if err == nil {
		return nil
	}

	// Stripe refuses to cancel twice; a canceled intent is the outcome we want.
	var current paymentIntent
	if getErr := a.do(ctx, http.MethodGet, path, nil, "", &current); getErr == nil && current.Status == "canceled" {
		return nil
	}
	return paymentdomain.NewGatewayError(kind, "cancel_charge", err)
}

func (a *Adapter) do(ctx context.Context, method, path string, values url.Values, idempotencyKey string, out any) error {
	if a.secretKey == "" {
		return paymentdomain.ErrInvalidConfig
	}

	var body io.Reader
	if values != nil {
		body = strings.NewReader(values.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, a.apiBase+path, body)
	if err != nil {
		return errors.Wrap(err, "stripe: build request")
	}
	req.Header.Set("Authorization", "Bearer "+a.secretKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" && method == http.MethodPost {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "stripe: %s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err != nil || strings.TrimSpace(stripeErr.Error.Message) == "" {
			return errors.Errorf("stripe: request failed with status %d", resp.StatusCode)
		}
		return errors.Errorf("stripe: %s (status %d)", strings.TrimSpace(stripeErr.Error.Message), resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "stripe: decode response")
	}
	return nil
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return paymentdomain.ErrInvalidConfig
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	if age := a.now().Sub(time.Unix(unix, 0)); age > defaultSignatureMaxAge || age < -defaultSignatureMaxAge {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.GatewayEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var eventType string
	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		eventType = paymentdomain.EventTypePaymentSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		eventType = paymentdomain.EventTypePaymentFailed
	case "payment_intent.processing":
		eventType = paymentdomain.EventTypePaymentProcessing
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	var intent paymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	occurredAt := time.Now().UTC()
	if event.Created > 0 {
		occurredAt = time.Unix(event.Created, 0).UTC()
	}
	return &paymentdomain.GatewayEvent{
		Provider:         kind,
		ProviderEventID:  event.ID,
		Type:             eventType,
		GatewayReference: intent.ID,
		Amount:           intent.Amount,
		Currency:         strings.ToUpper(strings.TrimSpace(intent.Currency)),
		OccurredAt:       occurredAt,
		RawPayload:       payload,
	}, nil
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}
