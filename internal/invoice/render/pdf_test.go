package render

import (
	"bytes"
	"context"
	"testing"
	"time"

	invoicedomain "github.com/smallbiznis/learnpay/internal/invoice/domain"
	"github.com/stretchr/testify/require"
)

func TestRenderPDF(t *testing.T) {
	paid := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	code := "SAVE20"
	inv := &invoicedomain.Invoice{
		ID:            1,
		InvoiceNumber: "INV-202604-ABCDEFGHJK",
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		CourseName:    "Distributed Systems",
		Subtotal:      10000,
		Discount:      1500,
		CouponCode:    &code,
		Total:         8500,
		Currency:      "USD",
		PaymentMethod: "stripe",
		TransactionID: "TXN-01J0000000000000000000000",
		IsPaid:        true,
		PaidAt:        &paid,
		IssuedAt:      paid,
	}

	out, err := NewPDFRenderer(Options{}).RenderPDF(context.Background(), inv)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderPDFNilInvoice(t *testing.T) {
	_, err := NewPDFRenderer(Options{}).RenderPDF(context.Background(), nil)
	require.Error(t, err)
}
