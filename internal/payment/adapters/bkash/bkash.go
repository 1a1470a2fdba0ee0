package bkash

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
)

const (
	kind = "bkash"

	ModeSandbox = "sandbox"
	ModeLive    = "live"

	statusOK = "0000"
)

type Config struct {
	Mode        string
	APIBase     string
	AppKey      string
	AppSecret   string
	Username    string
	Password    string
	CallbackURL string
	HTTPClient  *http.Client
}

// Adapter drives the tokenized checkout API. In sandbox mode no request
// leaves the process and a customer supplied trxID confirms the payment.
type Adapter struct {
	cfg    Config
	client *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func New(cfg Config) *Adapter {
	cfg.APIBase = strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if cfg.Mode != ModeLive {
		cfg.Mode = ModeSandbox
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Kind() string {
	return kind
}

func (a *Adapter) Sandbox() bool {
	return a.cfg.Mode == ModeSandbox
}

type baseResponse struct {
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
}

type grantResponse struct {
	baseResponse
	IDToken   string `json:"id_token"`
	ExpiresIn int64  `json:"expires_in"`
}

type createResponse struct {
	baseResponse
	PaymentID         string `json:"paymentID"`
	BkashURL          string `json:"bkashURL"`
	TransactionStatus string `json:"transactionStatus"`
}

type statusResponse struct {
	baseResponse
	PaymentID         string `json:"paymentID"`
	TrxID             string `json:"trxID"`
	TransactionStatus string `json:"transactionStatus"`
}

type refundResponse struct {
	baseResponse
	RefundTrxID       string `json:"refundTrxID"`
	TransactionStatus string `json:"transactionStatus"`
}

func (a *Adapter) CreateCharge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.Charge, error) {
	if !strings.EqualFold(req.Currency, "BDT") {
		return paymentdomain.Charge{}, paymentdomain.NewGatewayError(kind, "create_charge", errors.Errorf("unsupported currency %q", req.Currency))
	}
	if a.Sandbox() {
		return paymentdomain.Charge{Reference: "SBX-" + req.TransactionID, RawStatus: "Initiated"}, nil
	}

	body := map[string]string{
		"mode":                  "0011",
		"payerReference":        req.TransactionID,
		"callbackURL":           a.cfg.CallbackURL,
		"amount":                formatAmount(req.Amount),
		"currency":              "BDT",
		"intent":                "sale",
		"merchantInvoiceNumber": req.TransactionID,
	}
	var out createResponse
	if err := a.call(ctx, "/tokenized/checkout/create", body, &out); err != nil {
		return paymentdomain.Charge{}, paymentdomain.NewGatewayError(kind, "create_charge", err)
	}
	return paymentdomain.Charge{
		Reference:   out.PaymentID,
		RedirectURL: out.BkashURL,
		RawStatus:   out.TransactionStatus,
	}, nil
}

func (a *Adapter) ChargeStatus(ctx context.Context, q paymentdomain.StatusQuery) (paymentdomain.ChargeResult, error) {
	clientRef := strings.TrimSpace(q.ClientReference)
	if a.Sandbox() {
		if clientRef == "" {
			return paymentdomain.ChargeResult{Status: paymentdomain.ChargePending, RawStatus: "Initiated"}, nil
		}
		return paymentdomain.ChargeResult{
			Status:         paymentdomain.ChargeSucceeded,
			RawStatus:      "Completed",
			TransactionRef: clientRef,
		}, nil
	}

	if strings.TrimSpace(q.Reference) == "" {
		return paymentdomain.ChargeResult{}, paymentdomain.ErrReferenceRequired
	}
	var out statusResponse
	if err := a.call(ctx, "/tokenized/checkout/payment/status", map[string]string{"paymentID": q.Reference}, &out); err != nil {
		return paymentdomain.ChargeResult{}, paymentdomain.NewGatewayError(kind, "charge_status", err)
	}
	if clientRef != "" && out.TrxID != "" && !strings.EqualFold(clientRef, out.TrxID) {
		return paymentdomain.ChargeResult{}, paymentdomain.ErrReferenceMismatch
	}

	result := paymentdomain.ChargeResult{RawStatus: out.TransactionStatus, TransactionRef: out.TrxID}
	switch out.TransactionStatus {
	case "Completed":
		result.Status = paymentdomain.ChargeSucceeded
	case "Failed", "Cancelled", "Expired", "Declined":
		result.Status = paymentdomain.ChargeFailed
		result.Reason = "bKash payment " + strings.ToLower(out.TransactionStatus)
	default:
		result.Status = paymentdomain.ChargePending
	}
	return result, nil
}

func (a *Adapter) Refund(ctx context.Context, req paymentdomain.RefundRequest) error {
	if a.Sandbox() {
		return nil
	}
	if req.Reference == "" || req.TransactionRef == "" {
		return paymentdomain.NewGatewayError(kind, "refund", errors.New("payment id and trxID are required"))
	}
	reason := req.Reason
	if reason == "" {
		reason = "refund"
	}
	body := map[string]string{
		"paymentID": req.Reference,
		"trxID":     req.TransactionRef,
		"amount":    formatAmount(req.Amount),
		"sku":       req.TransactionID,
		"reason":    reason,
	}
	var out refundResponse
	if err := a.call(ctx, "/tokenized/checkout/payment/refund", body, &out); err != nil {
		return paymentdomain.NewGatewayError(kind, "refund", err)
	}
	if out.TransactionStatus != "" && out.TransactionStatus != "Completed" {
		return paymentdomain.NewGatewayError(kind, "refund", errors.Errorf("refund is %s", out.TransactionStatus))
	}
	return nil
}

func (a *Adapter) call(ctx context.Context, path string, body any, out interface{ status() baseResponse }) error {
	token, err := a.idToken(ctx)
	if err != nil {
		return err
	}
	headers := http.Header{}
	headers.Set("Authorization", token)
	headers.Set("X-App-Key", a.cfg.AppKey)
	if err := a.post(ctx, path, headers, body, out); err != nil {
		return err
	}
	if st := out.status(); st.StatusCode != "" && st.StatusCode != statusOK {
		return errors.Errorf("bkash: %s (%s)", st.StatusMessage, st.StatusCode)
	}
	return nil
}

func (r baseResponse) status() baseResponse { return r }

// idToken grants and caches the checkout token until shortly before expiry.
func (a *Adapter) idToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.tokenExpiry) {
		return a.token, nil
	}
	if a.cfg.APIBase == "" || a.cfg.AppKey == "" || a.cfg.AppSecret == "" {
		return "", paymentdomain.ErrInvalidConfig
	}

	headers := http.Header{}
	headers.Set("username", a.cfg.Username)
	headers.Set("password", a.cfg.Password)
	var out grantResponse
	err := a.post(ctx, "/tokenized/checkout/token/grant", headers, map[string]string{
		"app_key":    a.cfg.AppKey,
		"app_secret": a.cfg.AppSecret,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.IDToken == "" {
		return "", errors.Errorf("bkash: token grant failed: %s", out.StatusMessage)
	}

	ttl := time.Duration(out.ExpiresIn) * time.Second
	if ttl <= time.Minute {
		ttl = 2 * time.Minute
	}
	a.token = out.IDToken
	a.tokenExpiry = time.Now().Add(ttl - time.Minute)
	return a.token, nil
}

func (a *Adapter) post(ctx context.Context, path string, headers http.Header, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "bkash: encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIBase+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "bkash: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "bkash: POST %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("bkash: POST %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "bkash: decode response")
	}
	return nil
}

// formatAmount renders paisa as taka with two decimals.
func formatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
