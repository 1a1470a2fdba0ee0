package render

import (
	"context"
	"errors"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	invoicedomain "github.com/smallbiznis/learnpay/internal/invoice/domain"
	"github.com/smallbiznis/learnpay/internal/invoice/format"
)

// Renderer turns an invoice snapshot into a printable document.
type Renderer interface {
	RenderPDF(ctx context.Context, inv *invoicedomain.Invoice) ([]byte, error)
}

type Options struct {
	SellerName  string
	SellerEmail string
}

type PDFRenderer struct {
	opts Options
}

func NewPDFRenderer(opts Options) *PDFRenderer {
	if opts.SellerName == "" {
		opts.SellerName = "LearnPay"
	}
	return &PDFRenderer{opts: opts}
}

func (r *PDFRenderer) RenderPDF(ctx context.Context, inv *invoicedomain.Invoice) ([]byte, error) {
	if inv == nil {
		return nil, errors.New("invoice is nil")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Invoice number: "+inv.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+format.FormatDate(&inv.IssuedAt), props.Text{Top: 4}),
			text.New("Paid on: "+format.FormatDate(inv.PaidAt), props.Text{Top: 8}),
			text.New("Transaction: "+inv.TransactionID, props.Text{Top: 12}),
		),
		col.New(6),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New(r.opts.SellerName, props.Text{Style: fontstyle.Bold}),
			text.New(r.opts.SellerEmail, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(inv.CustomerName, props.Text{Top: 5}),
			text.New(inv.CustomerEmail, props.Text{Top: 9}),
			text.New(inv.CustomerPhone, props.Text{Top: 13}),
		),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Method", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(12,
		text.NewCol(8, inv.CourseName, props.Text{Size: 9}),
		text.NewCol(2, inv.PaymentMethod, props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, format.FormatMoney(inv.Subtotal, inv.Currency), props.Text{Size: 9, Align: align.Right}),
	)

	discountLabel := "Discount"
	if inv.CouponCode != nil && *inv.CouponCode != "" {
		discountLabel = "Discount (" + *inv.CouponCode + ")"
	}
	totals := []struct {
		label  string
		amount int64
		bold   bool
	}{
		{"Subtotal", inv.Subtotal, false},
		{discountLabel, -inv.Discount, false},
		{"Tax", inv.Tax, false},
		{"Total", inv.Total, true},
	}
	for _, row := range totals {
		style := fontstyle.Normal
		if row.bold {
			style = fontstyle.Bold
		}
		m.AddRow(8,
			col.New(6),
			text.NewCol(3, row.label, props.Text{Size: 9, Style: style}),
			text.NewCol(3, format.FormatMoney(row.amount, inv.Currency), props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}

	status := "UNPAID"
	if inv.IsPaid {
		status = "PAID"
	}
	m.AddRow(12, text.NewCol(12, status, props.Text{Size: 12, Style: fontstyle.Bold, Top: 4}))
	if inv.Notes != "" {
		m.AddRow(10, text.NewCol(12, inv.Notes, props.Text{Size: 8}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
