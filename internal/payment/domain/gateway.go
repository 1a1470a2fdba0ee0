package domain

import (
	"context"
	"net/http"
)

// ChargeStatus is a gateway's authoritative view of a charge.
type ChargeStatus string

const (
	ChargeSucceeded  ChargeStatus = "succeeded"
	ChargeFailed     ChargeStatus = "failed"
	ChargePending    ChargeStatus = "pending"
	ChargeProcessing ChargeStatus = "processing"
)

type ChargeRequest struct {
	// Amount is in the minor unit of Currency.
	Amount        int64
	Currency      string
	Description   string
	ReceiptEmail  string
	TransactionID string
}

type Charge struct {
	Reference    string
	ClientSecret string
	// RedirectURL is set by gateways that complete checkout on their own page.
	RedirectURL string
	RawStatus   string
}

type StatusQuery struct {
	// Reference is the handle returned by CreateCharge.
	Reference string
	// ClientReference is what the customer or callback reported, e.g. a trxID.
	ClientReference string
}

type ChargeResult struct {
	Status         ChargeStatus
	RawStatus      string
	TransactionRef string
	Reason         string
}

type RefundRequest struct {
	Reference      string
	TransactionRef string
	Amount         int64
	Currency       string
	Reason         string
	TransactionID  string
}

// Gateway is the charge capability of one external provider.
type Gateway interface {
	Kind() string
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
	ChargeStatus(ctx context.Context, q StatusQuery) (ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) error
}

// ChargeCanceller voids a charge that was created but never paid, so the
// customer can no longer complete it. Cancelling an already cancelled charge
// succeeds.
type ChargeCanceller interface {
	CancelCharge(ctx context.Context, reference string) error
}

// WebhookVerifier authenticates and parses provider callbacks.
type WebhookVerifier interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*GatewayEvent, error)
}
