// Package idgen generates cryptographically random identifiers.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// New returns a UUID-shaped random ID (16 random bytes, dashed hex).
func New() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}

// Hex returns numBytes random bytes as a lowercase hex string.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
