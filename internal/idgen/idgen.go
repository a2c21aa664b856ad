// Package idgen provides cryptographically random identifiers.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// Hex returns a random hex string covering numBytes of entropy.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// WithPrefix returns prefix + 24 hex chars, the ID shape used across
// the API ("an_", "wh_", "evt_").
func WithPrefix(prefix string) string {
	return prefix + Hex(12)
}
