package payment

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const (
	// KeyIndexSuffix marks which merchant salt index produced a checksum.
	KeyIndexSuffix = "###1"
	// PayPath is the provider path for opening a pay-page transaction.
	PayPath = "/pg/v1/pay"
	// StatusPathPrefix is the provider status path; webhooks are signed against it as-is.
	StatusPathPrefix = "/pg/v1/status"
)

// StatusPath returns the status-check path for a merchant transaction.
func StatusPath(merchantID, transactionID string) string {
	return StatusPathPrefix + "/" + merchantID + "/" + transactionID
}

// Sign computes hex(sha256(payload + path + secret)) followed by the key index suffix.
// An empty secret is rejected.
func Sign(payload, path, secret string) (string, error) {
	if secret == "" {
		return "", ErrNotConfigured
	}
	return checksum(payload, path, secret), nil
}

// Verify reports whether received is the checksum of payload and path under secret.
func Verify(received, payload, path, secret string) bool {
	if secret == "" || received == "" {
		return false
	}
	expected := checksum(payload, path, secret)
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(received)), []byte(expected)) == 1
}

func checksum(payload, path, secret string) string {
	h := sha256.New()
	h.Write([]byte(payload))
	h.Write([]byte(path))
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil)) + KeyIndexSuffix
}
