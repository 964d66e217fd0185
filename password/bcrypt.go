package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const minPassBytes = 8

// Config holds bcrypt tuning parameters.
type Config struct {
	Cost int
}

// Bcrypt hashes and verifies passwords with the configured cost.
type Bcrypt struct {
	config Config
}

// NewBcrypt validates cfg and returns a hasher.
func NewBcrypt(cfg Config) (*Bcrypt, error) {
	if cfg.Cost < bcrypt.MinCost || cfg.Cost > bcrypt.MaxCost {
		return nil, errors.New("bcrypt cost outside supported range")
	}
	return &Bcrypt{config: cfg}, nil
}

// Hash returns the bcrypt hash of password at the configured cost.
func (b *Bcrypt) Hash(password string) (string, error) {
	// Raw string bytes exactly as provided, no Unicode normalization.
	if len(password) < minPassBytes {
		return "", errors.New("password must be at least 8 bytes")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.config.Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password matches encodedHash. A mismatch is
// (false, nil); only a malformed hash yields an error.
func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}

// NeedsRehash reports whether encodedHash was produced with a cost below
// the configured one.
func (b *Bcrypt) NeedsRehash(encodedHash string) bool {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false
	}
	return cost < b.config.Cost
}
