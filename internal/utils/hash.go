package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString returns the sha256 hex digest of s. Log lines and metrics
// reference subjects by this digest rather than the raw person_id.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
