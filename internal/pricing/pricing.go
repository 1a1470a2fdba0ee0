// Package pricing turns a course price and an optional coupon discount into
// the amount charged, converting to taka for local payment rails.
package pricing

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	CurrencyUSD = "USD"
	CurrencyBDT = "BDT"
)

var ErrUnsupportedCurrency = errors.New("unsupported_currency")

// Methods that always settle in taka.
var bdtSettledMethods = map[string]struct{}{
	"bkash":   {},
	"visa_bd": {},
}

// RateProvider supplies the USD to BDT rate in effect.
type RateProvider interface {
	USDToBDT() decimal.Decimal
}

type QuoteInput struct {
	PriceMinor int64
	Currency   string
	IsFree     bool
	Method     string
	// RequestedCurrency is optional; only BDT changes the outcome.
	RequestedCurrency string
	// DiscountMinor is in the course currency, already bounded by the coupon rules.
	DiscountMinor int64
}

// Conversion records how a charged amount was derived from the list price.
type Conversion struct {
	FromCurrency     string `json:"fromCurrency"`
	ToCurrency       string `json:"toCurrency"`
	Rate             string `json:"rate"`
	OriginalAmount   int64  `json:"originalAmount"`
	OriginalDiscount int64  `json:"originalDiscount"`
	OriginalFinal    int64  `json:"originalFinal"`
}

// Quote amounts are minor units of Currency. Final == Amount - Discount.
type Quote struct {
	Amount     int64
	Discount   int64
	Final      int64
	Currency   string
	Free       bool
	Conversion *Conversion
}

type Calculator struct {
	rates RateProvider
}

func NewCalculator(rates RateProvider) *Calculator {
	return &Calculator{rates: rates}
}

// FreeQuote waives the whole list price; Amount keeps the price for the record.
func FreeQuote(priceMinor int64, currency string) Quote {
	if priceMinor < 0 {
		priceMinor = 0
	}
	return Quote{
		Amount:   priceMinor,
		Discount: priceMinor,
		Currency: normalizeCurrency(currency),
		Free:     true,
	}
}

func (c *Calculator) Quote(in QuoteInput) (Quote, error) {
	courseCurrency := normalizeCurrency(in.Currency)
	if !supported(courseCurrency) {
		return Quote{}, ErrUnsupportedCurrency
	}
	requested := normalizeCurrency(in.RequestedCurrency)
	if requested != "" && !supported(requested) {
		return Quote{}, ErrUnsupportedCurrency
	}

	if in.IsFree || in.PriceMinor <= 0 {
		return FreeQuote(in.PriceMinor, courseCurrency), nil
	}

	discount := in.DiscountMinor
	if discount < 0 {
		discount = 0
	}
	if discount > in.PriceMinor {
		discount = in.PriceMinor
	}

	q := Quote{
		Amount:   in.PriceMinor,
		Discount: discount,
		Final:    in.PriceMinor - discount,
		Currency: courseCurrency,
	}
	if q.Final == 0 {
		q.Free = true
		return q, nil
	}

	target := TargetCurrency(courseCurrency, in.Method, requested)
	if target == courseCurrency {
		return q, nil
	}

	rate := c.rates.USDToBDT()
	converted := Quote{
		Amount:   convert(q.Amount, rate),
		Discount: convert(q.Discount, rate),
		Currency: target,
		Conversion: &Conversion{
			FromCurrency:     courseCurrency,
			ToCurrency:       target,
			Rate:             rate.String(),
			OriginalAmount:   q.Amount,
			OriginalDiscount: q.Discount,
			OriginalFinal:    q.Final,
		},
	}
	converted.Final = converted.Amount - converted.Discount
	return converted, nil
}

// TargetCurrency picks the settlement currency. Only USD priced courses are
// ever converted.
func TargetCurrency(courseCurrency, method, requested string) string {
	courseCurrency = normalizeCurrency(courseCurrency)
	if courseCurrency != CurrencyUSD {
		return courseCurrency
	}
	if _, ok := bdtSettledMethods[strings.ToLower(strings.TrimSpace(method))]; ok {
		return CurrencyBDT
	}
	if normalizeCurrency(requested) == CurrencyBDT {
		return CurrencyBDT
	}
	return courseCurrency
}

func convert(minor int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(minor).Mul(rate).Round(0).IntPart()
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

func supported(c string) bool {
	return c == CurrencyUSD || c == CurrencyBDT
}
