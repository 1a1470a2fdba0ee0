package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultInvoiceNumberTemplate = "INV-{YYYY}{MM}-{RAND}"

// FormatInvoiceNumber expands date tokens and the {RAND} suffix.
func FormatInvoiceNumber(template string, issuedAt time.Time, suffix string) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if strings.Contains(template, "{RAND}") && strings.TrimSpace(suffix) == "" {
		return "", fmt.Errorf("invoice number suffix is empty")
	}

	issuedAt = issuedAt.UTC()
	out := template
	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", issuedAt.Format("02"))
	out = strings.ReplaceAll(out, "{RAND}", strings.ToUpper(suffix))

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	return out, nil
}

// FormatMoney renders minor units as "USD 85.00".
func FormatMoney(amount int64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	return currency + " " + decimal.New(amount, -2).StringFixed(2)
}

func FormatDate(value *time.Time) string {
	if value == nil || value.IsZero() {
		return "-"
	}
	return value.UTC().Format("2006-01-02")
}
