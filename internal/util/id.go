package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random hex string, used for message and request ids.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
