package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	issued := time.Date(2026, 2, 14, 23, 30, 0, 0, time.UTC)

	got, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, issued, "01hzy3k9qm")
	require.NoError(t, err)
	assert.Equal(t, "INV-202602-01HZY3K9QM", got)

	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, issued, "")
	assert.Error(t, err)

	_, err = FormatInvoiceNumber("INV-{SEQ}", issued, "X")
	assert.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "USD 85.00", FormatMoney(8500, "usd"))
	assert.Equal(t, "BDT 1234.05", FormatMoney(123405, "BDT"))
	assert.Equal(t, "USD 0.00", FormatMoney(0, ""))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "-", FormatDate(nil))
	ts := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-01-05", FormatDate(&ts))
}
