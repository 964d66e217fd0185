package foliogate

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// Backup codes are short one-time recovery codes in "1234-5678" form.
// Only bcrypt hashes are persisted; the plaintext batch is shown to the
// user exactly once, at generation time.

const backupCodeHalfRange = 10000

func generateBackupCodes(count int) ([]string, error) {
	codes := make([]string, 0, count)
	max := big.NewInt(backupCodeHalfRange)

	for i := 0; i < count; i++ {
		left, err := rand.Int(rand.Reader, max)
		if err != nil {
			return nil, err
		}
		right, err := rand.Int(rand.Reader, max)
		if err != nil {
			return nil, err
		}
		codes = append(codes, fmt.Sprintf("%04d-%04d", left.Int64(), right.Int64()))
	}

	return codes, nil
}

func hashBackupCodes(codes []string, cost int) ([]string, error) {
	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		h, err := bcrypt.GenerateFromPassword([]byte(code), cost)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, string(h))
	}
	return hashes, nil
}

// matchBackupCode returns the index of the stored hash matching code, or
// -1. Every hash is compared even after a hit so the call cost does not
// leak the match position.
func matchBackupCode(hashes []string, code string) int {
	matched := -1
	for i, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(code)) == nil && matched < 0 {
			matched = i
		}
	}
	return matched
}

// removeBackupCode returns a copy of hashes with index i dropped.
func removeBackupCode(hashes []string, i int) []string {
	out := make([]string, 0, len(hashes)-1)
	out = append(out, hashes[:i]...)
	out = append(out, hashes[i+1:]...)
	return out
}
