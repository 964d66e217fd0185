package foliogate

import (
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := defaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty issuer", func(c *Config) { c.TOTP.Issuer = "" }},
		{"digits too small", func(c *Config) { c.TOTP.Digits = 5 }},
		{"digits too large", func(c *Config) { c.TOTP.Digits = 9 }},
		{"zero period", func(c *Config) { c.TOTP.Period = 0 }},
		{"negative skew", func(c *Config) { c.TOTP.Skew = -1 }},
		{"wide skew", func(c *Config) { c.TOTP.Skew = 3 }},
		{"unknown algorithm", func(c *Config) { c.TOTP.Algorithm = "MD5" }},
		{"zero backup codes", func(c *Config) { c.BackupCodes.Count = 0 }},
		{"warn threshold at count", func(c *Config) { c.BackupCodes.WarnThreshold = c.BackupCodes.Count }},
		{"bcrypt cost too low", func(c *Config) { c.Password.Cost = 3 }},
		{"bcrypt cost too high", func(c *Config) { c.Password.Cost = 32 }},
		{"zero ip limit", func(c *Config) { c.Login.MaxAttemptsPerIP = 0 }},
		{"zero email limit", func(c *Config) { c.Login.MaxAttemptsPerEmail = 0 }},
		{"zero ip window", func(c *Config) { c.Login.IPWindow = 0 }},
		{"negative failure delay", func(c *Config) { c.Login.FailureDelay = -time.Second }},
		{"zero challenge ttl", func(c *Config) { c.Login.ChallengeTTL = 0 }},
		{"zero challenge attempts", func(c *Config) { c.Login.MaxChallengeAttempts = 0 }},
		{"empty rate limit prefix", func(c *Config) { c.Login.RateLimitPrefix = "" }},
		{"empty session prefix", func(c *Config) { c.Session.RedisPrefix = "" }},
		{"zero idle timeout", func(c *Config) { c.Session.IdleTimeout = 0 }},
		{"absolute below idle", func(c *Config) {
			c.Session.IdleTimeout = time.Hour
			c.Session.AbsoluteLifetime = 30 * time.Minute
		}},
		{"remember device short secret", func(c *Config) {
			c.RememberDevice.Enabled = true
			c.RememberDevice.Secret = []byte("short")
		}},
		{"remember device zero ttl", func(c *Config) {
			c.RememberDevice.Enabled = true
			c.RememberDevice.Secret = []byte("0123456789abcdef0123456789abcdef")
			c.RememberDevice.TTL = 0
		}},
		{"audit zero buffer", func(c *Config) { c.Audit.BufferSize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestCloneConfigCopiesSecret(t *testing.T) {
	cfg := defaultConfig()
	cfg.RememberDevice.Secret = []byte("0123456789abcdef0123456789abcdef")

	cloned := cloneConfig(cfg)
	cloned.RememberDevice.Secret[0] = 'X'

	if cfg.RememberDevice.Secret[0] == 'X' {
		t.Fatal("clone shares the secret slice")
	}
}

func TestBuilderRejectsMissingDependencies(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("builder without redis must fail")
	}
}
