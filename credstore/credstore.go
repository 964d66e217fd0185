package credstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no credential matches the lookup.
var ErrNotFound = errors.New("credential not found")

// TwoFactorSettings holds the TOTP state of a protected account. The
// secret is the unpadded base32 form handed to authenticator apps;
// BackupCodeHashes holds bcrypt hashes of the unused recovery codes.
type TwoFactorSettings struct {
	Secret           string
	BackupCodeHashes []string
	EnabledAt        time.Time
}

// Credential is one account record. TwoFactor is nil when two-factor
// authentication is disabled.
type Credential struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	TwoFactor    *TwoFactorSettings
}

// Store is the persistence boundary the Engine depends on.
//
// ReplaceBackupCodesIf is the consume-once primitive: it writes next
// only when the stored hash set still equals prev, so two concurrent
// redemptions of the same code cannot both succeed.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	FindByID(ctx context.Context, id int64) (*Credential, error)
	UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error
	EnableTwoFactor(ctx context.Context, id int64, secret string, backupCodeHashes []string) error
	DisableTwoFactor(ctx context.Context, id int64) error
	ReplaceBackupCodes(ctx context.Context, id int64, backupCodeHashes []string) error
	ReplaceBackupCodesIf(ctx context.Context, id int64, prev, next []string) (bool, error)
}
