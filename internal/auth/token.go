package auth

import (
	"crypto/rand"
	"encoding/hex"
)

const verificationTokenBytes = 32

// NewVerificationToken returns a random hex token suitable for emailed
// links. Store only its HashPassword hash.
func NewVerificationToken() (string, error) {
	b := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
