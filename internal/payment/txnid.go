package payment

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	transactionPrefix = "TXN_"
	userPrefix        = "USER_"
)

var orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidOrderID reports whether id only uses characters the provider accepts in a transaction id.
func ValidOrderID(id string) bool {
	return orderIDPattern.MatchString(id)
}

// FormatTransactionID builds TXN_<orderID>_<unix millis>.
func FormatTransactionID(orderID string, at time.Time) string {
	return transactionPrefix + orderID + "_" + strconv.FormatInt(at.UnixMilli(), 10)
}

// MerchantUserID builds the per-order merchant user id sent to the provider.
func MerchantUserID(orderID string) string {
	return userPrefix + orderID
}

// ParseTransactionID extracts the order id from TXN_<orderID>_<digits>.
// The split happens at the last underscore, so order ids may themselves contain underscores.
func ParseTransactionID(txnID string) (string, error) {
	rest, ok := strings.CutPrefix(txnID, transactionPrefix)
	if !ok {
		return "", ErrInvalidTransactionID
	}
	idx := strings.LastIndexByte(rest, '_')
	if idx <= 0 {
		return "", ErrInvalidTransactionID
	}
	orderID, stamp := rest[:idx], rest[idx+1:]
	if stamp == "" || !allDigits(stamp) {
		return "", ErrInvalidTransactionID
	}
	return orderID, nil
}

// ValidTransactionID reports whether txnID is safe to place in a provider path.
func ValidTransactionID(txnID string) bool {
	return orderIDPattern.MatchString(txnID)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
