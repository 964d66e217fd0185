package foliogate

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config carries every tunable of the Engine. Zero values are filled from
// defaultConfig by [New]; Build validates the final shape and refuses to
// construct an Engine from an inconsistent Config.
type Config struct {
	TOTP           TOTPConfig
	BackupCodes    BackupCodesConfig
	Password       PasswordConfig
	Login          LoginConfig
	Session        SessionConfig
	RememberDevice RememberDeviceConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
}

// TOTPConfig controls code generation and verification.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int    // seconds per time step
	Skew      int    // accepted steps either side of now
	Algorithm string // "SHA1" (default), "SHA256", "SHA512"
}

// BackupCodesConfig controls the one-time recovery code batch.
type BackupCodesConfig struct {
	Count         int
	WarnThreshold int // remaining count at or below which a warning is raised
}

// PasswordConfig controls credential hashing.
type PasswordConfig struct {
	Cost           int
	UpgradeOnLogin bool
}

// LoginConfig controls the login throttles and the anti-enumeration delay.
type LoginConfig struct {
	MaxAttemptsPerIP     int
	IPWindow             time.Duration
	MaxAttemptsPerEmail  int
	EmailWindow          time.Duration
	FailureDelay         time.Duration
	ChallengeTTL         time.Duration
	MaxChallengeAttempts int
	RateLimitPrefix      string
}

// SessionConfig controls the server-side session lifecycle.
type SessionConfig struct {
	RedisPrefix      string
	IdleTimeout      time.Duration
	AbsoluteLifetime time.Duration // 0 disables the absolute cap
}

// RememberDeviceConfig controls signed trusted-browser tokens that skip
// the second factor. Disabled unless a signing secret is provided.
type RememberDeviceConfig struct {
	Enabled bool
	TTL     time.Duration
	Secret  []byte
}

// AuditConfig controls the async security event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Issuer:    "Portfolio",
			Digits:    6,
			Period:    30,
			Skew:      1,
			Algorithm: "SHA1",
		},
		BackupCodes: BackupCodesConfig{
			Count:         10,
			WarnThreshold: 3,
		},
		Password: PasswordConfig{
			Cost:           bcrypt.DefaultCost,
			UpgradeOnLogin: true,
		},
		Login: LoginConfig{
			MaxAttemptsPerIP:     5,
			IPWindow:             15 * time.Minute,
			MaxAttemptsPerEmail:  3,
			EmailWindow:          30 * time.Minute,
			FailureDelay:         2 * time.Second,
			ChallengeTTL:         5 * time.Minute,
			MaxChallengeAttempts: 5,
			RateLimitPrefix:      "fg:rl",
		},
		Session: SessionConfig{
			RedisPrefix:      "fg:sess",
			IdleTimeout:      time.Hour,
			AbsoluteLifetime: 0,
		},
		RememberDevice: RememberDeviceConfig{
			Enabled: false,
			TTL:     30 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the Config for values that would silently weaken the
// security posture at runtime. It is called once by Build.
func (c Config) Validate() error {
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP.Issuer must be set")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("TOTP.Digits must be between 6 and 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP.Period must be positive")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP.Skew must be between 0 and 2")
	}
	if _, err := hmacFunc(c.TOTP.Algorithm); err != nil {
		return err
	}

	if c.BackupCodes.Count <= 0 {
		return errors.New("BackupCodes.Count must be positive")
	}
	if c.BackupCodes.WarnThreshold < 0 || c.BackupCodes.WarnThreshold >= c.BackupCodes.Count {
		return errors.New("BackupCodes.WarnThreshold must be below BackupCodes.Count")
	}

	if c.Password.Cost < bcrypt.MinCost || c.Password.Cost > bcrypt.MaxCost {
		return errors.New("Password.Cost outside bcrypt range")
	}

	if c.Login.MaxAttemptsPerIP <= 0 || c.Login.MaxAttemptsPerEmail <= 0 {
		return errors.New("Login attempt limits must be positive")
	}
	if c.Login.IPWindow <= 0 || c.Login.EmailWindow <= 0 {
		return errors.New("Login throttle windows must be positive")
	}
	if c.Login.FailureDelay < 0 {
		return errors.New("Login.FailureDelay must not be negative")
	}
	if c.Login.ChallengeTTL <= 0 {
		return errors.New("Login.ChallengeTTL must be positive")
	}
	if c.Login.MaxChallengeAttempts <= 0 {
		return errors.New("Login.MaxChallengeAttempts must be positive")
	}
	if c.Login.RateLimitPrefix == "" {
		return errors.New("Login.RateLimitPrefix must be set")
	}

	if c.Session.RedisPrefix == "" {
		return errors.New("Session.RedisPrefix must be set")
	}
	if c.Session.IdleTimeout <= 0 {
		return errors.New("Session.IdleTimeout must be positive")
	}
	if c.Session.AbsoluteLifetime < 0 {
		return errors.New("Session.AbsoluteLifetime must not be negative")
	}
	if c.Session.AbsoluteLifetime > 0 && c.Session.AbsoluteLifetime < c.Session.IdleTimeout {
		return errors.New("Session.AbsoluteLifetime must not undercut Session.IdleTimeout")
	}

	if c.RememberDevice.Enabled {
		if len(c.RememberDevice.Secret) < 32 {
			return errors.New("RememberDevice.Secret must be at least 32 bytes")
		}
		if c.RememberDevice.TTL <= 0 {
			return errors.New("RememberDevice.TTL must be positive")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be positive")
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.RememberDevice.Secret = cloneBytes(cfg.RememberDevice.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
