package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashIdentifier returns the first 16 hex chars of SHA-256(identifier).
func HashIdentifier(identifier string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(identifier))))
	return hex.EncodeToString(sum[:])[:16]
}

// KeyFor builds the storage key for an identifier under rule. Raw
// identifiers never reach storage.
func KeyFor(rule Rule, identifier string) string {
	if rule.Endpoint == "" || strings.TrimSpace(identifier) == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(rule.Endpoint + "|" + string(rule.Kind) + "|" + HashIdentifier(identifier)))
	return hex.EncodeToString(sum[:])
}
