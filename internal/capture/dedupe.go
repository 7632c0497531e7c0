package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

const maxDedupeDescription = 80

// NormalizeDescription lower-cases, collapses whitespace and truncates to 80 runes.
func NormalizeDescription(desc *string) string {
	if desc == nil {
		return ""
	}
	s := strings.Join(strings.Fields(strings.ToLower(*desc)), " ")
	if r := []rune(s); len(r) > maxDedupeDescription {
		s = string(r[:maxDedupeDescription])
	}
	return s
}

// DedupeKey is a stable hash identifying a logical transaction submission.
func DedupeKey(ownerID string, typ domain.TransactionType, amountMinor int64, currency string, date time.Time, desc *string) string {
	parts := []string{
		ownerID,
		string(typ),
		strconv.FormatInt(amountMinor, 10),
		currency,
		domain.Day(date).Format(domain.DayLayout),
		NormalizeDescription(desc),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
