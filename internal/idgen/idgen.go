// Package idgen generates random identifiers for webhook subscriptions,
// event deliveries, and signing secrets.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// WithPrefix returns prefix followed by 24 hex characters, e.g.
// "wh_3f2a..." or "evt_9b1c...". Used for externally visible IDs where
// the prefix tells the caller what kind of object they hold.
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("idgen: crypto/rand unavailable: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// Hex returns numBytes of randomness hex-encoded. Used for webhook
// signing secrets, where length matters more than readability.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("idgen: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}
