// Package session implements cookie sessions of the form "<sessionId>.<secret>".
//
// Only the SHA-256 of the secret is persisted. Resolving a token never fails:
// every problem (missing, malformed, unknown, expired, tampered) yields an
// anonymous caller, and routes that need a user enforce that separately.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	tokenSeparator = "."
	secretLength   = 32
)

// FormatToken builds the cookie value.
func FormatToken(id, secret string) string {
	return id + tokenSeparator + secret
}

// ParseToken splits a cookie value into id and secret. It fails unless the
// value has exactly two non-empty dot-separated parts.
func ParseToken(raw string) (id, secret string, ok bool) {
	parts := strings.Split(raw, tokenSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// HashSecret returns the lowercase hex SHA-256 of secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEqual compares a and b without early exit on the first
// differing byte. Only a length mismatch returns early.
func ConstantTimeEqual(a, b []byte) bool {
	equal, _ := compareBytes(a, b)
	return equal
}

// compareBytes also reports how many byte pairs were inspected.
func compareBytes(a, b []byte) (bool, int) {
	if len(a) != len(b) {
		return false, 0
	}
	var diff byte
	inspected := 0
	for i := range a {
		diff |= a[i] ^ b[i]
		inspected++
	}
	return diff == 0, inspected
}
