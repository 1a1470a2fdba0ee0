package domain

import (
	"encoding/json"
	"errors"

	"github.com/smallbiznis/learnpay/internal/pricing"
	"gorm.io/datatypes"
)

// MethodDetails holds what only one payment method knows. The set of
// implementations is closed.
type MethodDetails interface {
	Method() Method
	isMethodDetails()
}

type StripeDetails struct {
	IntentStatus string              `json:"intentStatus,omitempty"`
	ReceiptEmail string              `json:"receiptEmail,omitempty"`
	Conversion   *pricing.Conversion `json:"conversion,omitempty"`
}

type BkashDetails struct {
	PaymentID     string              `json:"paymentId,omitempty"`
	TrxID         string              `json:"trxId,omitempty"`
	PayerNumber   string              `json:"payerNumber,omitempty"`
	CheckoutURL   string              `json:"checkoutUrl,omitempty"`
	GatewayStatus string              `json:"gatewayStatus,omitempty"`
	Conversion    *pricing.Conversion `json:"conversion,omitempty"`
}

// VisaBDDetails covers local cards charged in taka through Stripe.
type VisaBDDetails struct {
	IntentStatus string              `json:"intentStatus,omitempty"`
	Conversion   *pricing.Conversion `json:"conversion,omitempty"`
}

type FreeDetails struct {
	Reason string `json:"reason"`
}

const (
	FreeReasonCourse         = "free_course"
	FreeReasonCouponDiscount = "coupon_full_discount"
)

func (StripeDetails) Method() Method { return MethodStripe }
func (BkashDetails) Method() Method  { return MethodBkash }
func (VisaBDDetails) Method() Method { return MethodVisaBD }
func (FreeDetails) Method() Method   { return MethodFree }

func (StripeDetails) isMethodDetails() {}
func (BkashDetails) isMethodDetails()  {}
func (VisaBDDetails) isMethodDetails() {}
func (FreeDetails) isMethodDetails()   {}

var ErrInvalidDetails = errors.New("invalid_payment_details")

type detailsEnvelope struct {
	Kind Method          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeDetails stores details as {"kind": ..., "data": ...}.
func EncodeDetails(d MethodDetails) (datatypes.JSON, error) {
	if d == nil {
		return datatypes.JSON("{}"), nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(detailsEnvelope{Kind: d.Method(), Data: data})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}

// DecodeDetails is the inverse of EncodeDetails. An empty object yields nil.
func DecodeDetails(raw []byte) (MethodDetails, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var env detailsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrInvalidDetails
	}
	if env.Kind == "" {
		return nil, nil
	}

	var (
		out MethodDetails
		err error
	)
	switch env.Kind {
	case MethodStripe:
		var d StripeDetails
		err = json.Unmarshal(env.Data, &d)
		out = d
	case MethodBkash:
		var d BkashDetails
		err = json.Unmarshal(env.Data, &d)
		out = d
	case MethodVisaBD:
		var d VisaBDDetails
		err = json.Unmarshal(env.Data, &d)
		out = d
	case MethodFree:
		var d FreeDetails
		err = json.Unmarshal(env.Data, &d)
		out = d
	default:
		return nil, ErrInvalidDetails
	}
	if err != nil {
		return nil, ErrInvalidDetails
	}
	return out, nil
}

// ConversionOf returns the currency conversion recorded on details, if any.
func ConversionOf(d MethodDetails) *pricing.Conversion {
	switch v := d.(type) {
	case StripeDetails:
		return v.Conversion
	case BkashDetails:
		return v.Conversion
	case VisaBDDetails:
		return v.Conversion
	default:
		return nil
	}
}
