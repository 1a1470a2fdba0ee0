package service

import (
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	transactionIDPrefix = "TXN-"
	maxTransactionIDTry = 5
)

// newTransactionID returns TXN- followed by a ULID: a millisecond timestamp
// and 80 random bits, so ids sort by creation time.
func newTransactionID(now time.Time) string {
	return transactionIDPrefix + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}
