package accounting

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Document number prefixes per record type
const (
	PrefixJournalEntry = "JE"
	PrefixReceipt      = "RC"
)

const numberSuffixBytes = 3

// GenerateDocumentNumber builds a human-readable document number from a type
// prefix, the document date and a random hex suffix, e.g. "JE-20260825-4F3A9C".
// Collisions are possible; callers retry with a fresh number on a unique
// constraint violation.
func GenerateDocumentNumber(prefix string, date time.Time) string {
	suffix := make([]byte, numberSuffixBytes)
	// rand.Read on crypto/rand never fails on supported platforms
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%s-%s-%X", prefix, date.Format("20060102"), suffix)
}

// VoucherNumberPrefix returns the document prefix for a voucher type
func VoucherNumberPrefix(t VoucherType) string {
	return string(t)
}
