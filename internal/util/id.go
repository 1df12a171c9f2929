package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewToken returns 32 random bytes hex-encoded, for one-time email links.
func NewToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
