package internal

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const (
	sessionIDSize = 16
	csrfTokenSize = 32
)

// NewSessionID returns a fresh 128-bit session identifier encoded as
// unpadded base64url.
func NewSessionID() (string, error) {
	var raw [sessionIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidSessionID reports whether s decodes to a well-formed session id.
// Malformed ids are rejected before any Redis round-trip.
func ValidSessionID(s string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	return len(raw) == sessionIDSize
}

// NewCSRFToken returns a fresh 256-bit token encoded as lowercase hex.
func NewCSRFToken() (string, error) {
	var raw [csrfTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// NewSecret fills and returns n random bytes.
func NewSecret(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("secret size must be positive")
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	return raw, nil
}
