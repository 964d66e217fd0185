package credstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id                       INTEGER PRIMARY KEY AUTOINCREMENT,
	username                 TEXT NOT NULL UNIQUE,
	email                    TEXT NOT NULL UNIQUE,
	password_hash            TEXT NOT NULL,
	two_factor_enabled       INTEGER NOT NULL DEFAULT 0,
	two_factor_secret        TEXT NOT NULL DEFAULT '',
	two_factor_backup_codes  TEXT NOT NULL DEFAULT '',
	two_factor_enabled_at    INTEGER NOT NULL DEFAULT 0,
	created_at               INTEGER NOT NULL
);
`

// SQLiteStore implements Store over a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite prepares the schema on db and returns the store. The caller
// owns the *sql.DB lifecycle.
func NewSQLite(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Create inserts a new account and returns its id. Used by the site's
// provisioning CLI and by tests; the Engine itself never creates accounts.
func (s *SQLiteStore) Create(ctx context.Context, username, email, passwordHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		username, normalizeEmail(email), passwordHash, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const credentialColumns = `id, username, email, password_hash,
	two_factor_enabled, two_factor_secret, two_factor_backup_codes, two_factor_enabled_at, created_at`

// FindByEmail looks up a credential by its normalized email.
func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM users WHERE email = ?`, normalizeEmail(email))
	return scanCredential(row)
}

// FindByID looks up a credential by id.
func (s *SQLiteStore) FindByID(ctx context.Context, id int64) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM users WHERE id = ?`, id)
	return scanCredential(row)
}

// UpdatePasswordHash replaces the stored password hash.
func (s *SQLiteStore) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	return s.execOne(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
}

// EnableTwoFactor persists the shared secret and the backup code hash
// batch and flips the account to protected.
func (s *SQLiteStore) EnableTwoFactor(ctx context.Context, id int64, secret string, backupCodeHashes []string) error {
	encoded, err := encodeHashes(backupCodeHashes)
	if err != nil {
		return err
	}
	return s.execOne(ctx,
		`UPDATE users SET two_factor_enabled = 1, two_factor_secret = ?,
		 two_factor_backup_codes = ?, two_factor_enabled_at = ? WHERE id = ?`,
		secret, encoded, time.Now().Unix(), id)
}

// DisableTwoFactor clears all two-factor state for the account.
func (s *SQLiteStore) DisableTwoFactor(ctx context.Context, id int64) error {
	return s.execOne(ctx,
		`UPDATE users SET two_factor_enabled = 0, two_factor_secret = '',
		 two_factor_backup_codes = '', two_factor_enabled_at = 0 WHERE id = ?`, id)
}

// ReplaceBackupCodes unconditionally overwrites the stored hash batch.
func (s *SQLiteStore) ReplaceBackupCodes(ctx context.Context, id int64, backupCodeHashes []string) error {
	encoded, err := encodeHashes(backupCodeHashes)
	if err != nil {
		return err
	}
	return s.execOne(ctx,
		`UPDATE users SET two_factor_backup_codes = ? WHERE id = ? AND two_factor_enabled = 1`,
		encoded, id)
}

// ReplaceBackupCodesIf writes next only if the stored batch still equals
// prev. The guard rides on the serialized column value, so a concurrent
// consume of the same code loses the race and reports false.
func (s *SQLiteStore) ReplaceBackupCodesIf(ctx context.Context, id int64, prev, next []string) (bool, error) {
	prevEncoded, err := encodeHashes(prev)
	if err != nil {
		return false, err
	}
	nextEncoded, err := encodeHashes(next)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET two_factor_backup_codes = ?
		 WHERE id = ? AND two_factor_enabled = 1 AND two_factor_backup_codes = ?`,
		nextEncoded, id, prevEncoded)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCredential(row *sql.Row) (*Credential, error) {
	var (
		cred      Credential
		enabled   int
		secret    string
		codes     string
		enabledAt int64
		createdAt int64
	)
	err := row.Scan(&cred.ID, &cred.Username, &cred.Email, &cred.PasswordHash,
		&enabled, &secret, &codes, &enabledAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	cred.CreatedAt = time.Unix(createdAt, 0)

	// A disabled account surfaces no two-factor state, whatever the
	// columns still hold.
	if enabled != 0 && secret != "" {
		hashes, err := decodeHashes(codes)
		if err != nil {
			return nil, err
		}
		cred.TwoFactor = &TwoFactorSettings{
			Secret:           secret,
			BackupCodeHashes: hashes,
			EnabledAt:        time.Unix(enabledAt, 0),
		}
	}
	return &cred, nil
}

func encodeHashes(hashes []string) (string, error) {
	if hashes == nil {
		hashes = []string{}
	}
	data, err := json.Marshal(hashes)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeHashes(encoded string) ([]string, error) {
	if encoded == "" {
		return nil, nil
	}
	var hashes []string
	if err := json.Unmarshal([]byte(encoded), &hashes); err != nil {
		return nil, err
	}
	return hashes, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
