package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewID returns an opaque, cryptographically random identifier (256 bits,
// hex-encoded). Used for session ids, refresh ids, and temporary passwords.
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
