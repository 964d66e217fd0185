package foliogate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEnrollmentFlowEnablesTwoFactor(t *testing.T) {
	env := newTestEngine(t, nil)

	info, err := env.engine.BeginTOTPEnrollment(context.Background(), env.userID)
	if err != nil {
		t.Fatalf("BeginTOTPEnrollment failed: %v", err)
	}
	if info.SecretBase32 == "" || !strings.HasPrefix(info.ProvisionURI, "otpauth://totp/") {
		t.Fatalf("incomplete enrollment info: %+v", info)
	}

	// Nothing persisted until possession is proven.
	cred, err := env.store.FindByID(context.Background(), env.userID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if cred.TwoFactor != nil {
		t.Fatal("two-factor must stay disabled before confirmation")
	}

	codes, err := env.engine.ConfirmTOTPEnrollment(context.Background(), env.userID, codeForSecret(t, env, info.SecretBase32))
	if err != nil {
		t.Fatalf("ConfirmTOTPEnrollment failed: %v", err)
	}
	if len(codes) != env.engine.config.BackupCodes.Count {
		t.Fatalf("expected %d backup codes, got %d", env.engine.config.BackupCodes.Count, len(codes))
	}

	cred, err = env.store.FindByID(context.Background(), env.userID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if cred.TwoFactor == nil || cred.TwoFactor.Secret != info.SecretBase32 {
		t.Fatalf("expected persisted two-factor state, got %+v", cred.TwoFactor)
	}
	if len(cred.TwoFactor.BackupCodeHashes) != len(codes) {
		t.Fatal("expected one stored hash per backup code")
	}
}

func TestEnrollmentWrongCodeDoesNotEnable(t *testing.T) {
	env := newTestEngine(t, nil)

	info, err := env.engine.BeginTOTPEnrollment(context.Background(), env.userID)
	if err != nil {
		t.Fatalf("BeginTOTPEnrollment failed: %v", err)
	}

	_, err = env.engine.ConfirmTOTPEnrollment(context.Background(), env.userID, wrongTOTPCode(t, env, info.SecretBase32))
	if !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("expected ErrTwoFactorCodeInvalid, got %v", err)
	}

	cred, err := env.store.FindByID(context.Background(), env.userID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if cred.TwoFactor != nil {
		t.Fatal("wrong code must not enable two-factor")
	}
}

func TestEnrollmentSlotExpires(t *testing.T) {
	env := newTestEngine(t, nil)

	info, err := env.engine.BeginTOTPEnrollment(context.Background(), env.userID)
	if err != nil {
		t.Fatalf("BeginTOTPEnrollment failed: %v", err)
	}

	env.redis.FastForward(11 * time.Minute)

	_, err = env.engine.ConfirmTOTPEnrollment(context.Background(), env.userID, codeForSecret(t, env, info.SecretBase32))
	if !errors.Is(err, ErrEnrollmentNotFound) {
		t.Fatalf("expected ErrEnrollmentNotFound after slot expiry, got %v", err)
	}
}

func TestTwoFactorLoginWithTOTP(t *testing.T) {
	env := newTestEngine(t, nil)
	secret, _ := enrollTOTP(t, env)

	challengeID := beginTwoFactorLogin(t, env, "203.0.113.10")

	result, err := env.engine.VerifyLoginTOTP(loginCtx("203.0.113.10"), challengeID, codeForSecret(t, env, secret), false)
	if err != nil {
		t.Fatalf("VerifyLoginTOTP failed: %v", err)
	}
	if result.Session == nil || !result.Session.Authenticated {
		t.Fatalf("expected authenticated session, got %+v", result.Session)
	}
	if result.RememberToken != "" {
		t.Fatal("remember token issued without being requested")
	}

	// The challenge is consumed; replaying the same code must fail.
	_, err = env.engine.VerifyLoginTOTP(loginCtx("203.0.113.10"), challengeID, codeForSecret(t, env, secret), false)
	if !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid on replay, got %v", err)
	}
}

func TestTwoFactorWrongCodesBurnChallenge(t *testing.T) {
	env := newTestEngine(t, nil)
	secret, _ := enrollTOTP(t, env)
	badCode := wrongTOTPCode(t, env, secret)

	challengeID := beginTwoFactorLogin(t, env, "203.0.113.10")

	for i := 0; i < 4; i++ {
		_, err := env.engine.VerifyLoginTOTP(loginCtx("203.0.113.10"), challengeID, badCode, false)
		if !errors.Is(err, ErrTwoFactorCodeInvalid) {
			t.Fatalf("guess %d: expected ErrTwoFactorCodeInvalid, got %v", i, err)
		}
	}

	// Fifth wrong guess spends the budget and destroys the challenge.
	_, err := env.engine.VerifyLoginTOTP(loginCtx("203.0.113.10"), challengeID, badCode, false)
	if !errors.Is(err, ErrChallengeAttemptsExceeded) {
		t.Fatalf("expected ErrChallengeAttemptsExceeded, got %v", err)
	}

	_, err = env.engine.VerifyLoginTOTP(loginCtx("203.0.113.10"), challengeID, badCode, false)
	if !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid after burn, got %v", err)
	}
}

func TestTwoFactorChallengeExpires(t *testing.T) {
	env := newTestEngine(t, nil)
	secret, _ := enrollTOTP(t, env)

	challengeID := beginTwoFactorLogin(t, env, "203.0.113.10")

	env.redis.FastForward(6 * time.Minute)
	env.clock.Advance(6 * time.Minute)

	_, err := env.engine.VerifyLoginTOTP(loginCtx("203.0.113.10"), challengeID, codeForSecret(t, env, secret), false)
	if err == nil {
		t.Fatal("expected expired challenge to be rejected")
	}
	if !errors.Is(err, ErrChallengeInvalid) && !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected challenge invalid/expired, got %v", err)
	}
}

func TestTwoFactorLoginWithBackupCode(t *testing.T) {
	env := newTestEngine(t, nil)
	_, codes := enrollTOTP(t, env)

	challengeID := beginTwoFactorLogin(t, env, "203.0.113.10")

	result, err := env.engine.VerifyLoginBackupCode(loginCtx("203.0.113.10"), challengeID, codes[0], false)
	if err != nil {
		t.Fatalf("VerifyLoginBackupCode failed: %v", err)
	}
	if result.Session == nil || !result.Session.Authenticated {
		t.Fatal("expected authenticated session")
	}
	if result.BackupCodesRemaining != len(codes)-1 {
		t.Fatalf("expected %d codes remaining, got %d", len(codes)-1, result.BackupCodesRemaining)
	}
	if result.BackupCodesLow {
		t.Fatal("nine remaining codes should not warn")
	}

	// The code is spent: a second login round rejects it.
	challengeID = beginTwoFactorLogin(t, env, "203.0.113.11")
	_, err = env.engine.VerifyLoginBackupCode(loginCtx("203.0.113.11"), challengeID, codes[0], false)
	if !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("expected spent code to be rejected, got %v", err)
	}
}

func TestBackupCodeSingleSpendUnderConcurrency(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.Login.MaxAttemptsPerIP = 50
		cfg.Login.MaxAttemptsPerEmail = 50
	})
	_, codes := enrollTOTP(t, env)

	// One pending challenge per racer; every racer redeems the same code.
	const racers = 8
	challenges := make([]string, racers)
	ips := make([]string, racers)
	for i := range challenges {
		ips[i] = fmt.Sprintf("203.0.113.%d", 60+i)
		challenges[i] = beginTwoFactorLogin(t, env, ips[i])
	}

	var successes atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(challengeID, ip string) {
			defer wg.Done()
			_, err := env.engine.VerifyLoginBackupCode(loginCtx(ip), challengeID, codes[0], false)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrTwoFactorCodeInvalid):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(challenges[i], ips[i])
	}
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Fatalf("%d redemptions of the same code succeeded, want exactly 1", got)
	}

	cred, err := env.store.FindByID(context.Background(), env.userID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	want := env.engine.config.BackupCodes.Count - 1
	if got := len(cred.TwoFactor.BackupCodeHashes); got != want {
		t.Fatalf("stored batch has %d hashes, want %d", got, want)
	}
}

func TestBackupCodeLowWarning(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.BackupCodes.Count = 4
		cfg.BackupCodes.WarnThreshold = 3
	})
	_, codes := enrollTOTP(t, env)

	challengeID := beginTwoFactorLogin(t, env, "203.0.113.10")
	result, err := env.engine.VerifyLoginBackupCode(loginCtx("203.0.113.10"), challengeID, codes[0], false)
	if err != nil {
		t.Fatalf("VerifyLoginBackupCode failed: %v", err)
	}
	if result.BackupCodesRemaining != 3 || !result.BackupCodesLow {
		t.Fatalf("expected low-codes warning at 3 remaining, got %+v", result)
	}
}

func TestDisableTOTPRequiresPassword(t *testing.T) {
	env := newTestEngine(t, nil)
	enrollTOTP(t, env)

	err := env.engine.DisableTOTP(context.Background(), env.userID, "not-the-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	cred, _ := env.store.FindByID(context.Background(), env.userID)
	if cred.TwoFactor == nil {
		t.Fatal("two-factor must survive a denied disable")
	}

	if err := env.engine.DisableTOTP(context.Background(), env.userID, testPassword); err != nil {
		t.Fatalf("DisableTOTP failed: %v", err)
	}
	cred, _ = env.store.FindByID(context.Background(), env.userID)
	if cred.TwoFactor != nil {
		t.Fatal("two-factor must be cleared after disable")
	}

	// Login no longer parks in a challenge.
	result, err := env.engine.Login(loginCtx("203.0.113.10"), LoginRequest{Email: testEmail, Password: testPassword})
	if err != nil {
		t.Fatalf("Login after disable failed: %v", err)
	}
	if result.TwoFactorRequired {
		t.Fatal("challenge issued after two-factor was disabled")
	}
}

func TestRegenerateBackupCodesInvalidatesOldBatch(t *testing.T) {
	env := newTestEngine(t, nil)
	secret, oldCodes := enrollTOTP(t, env)

	if _, err := env.engine.RegenerateBackupCodes(context.Background(), env.userID, wrongTOTPCode(t, env, secret)); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("expected regeneration to demand a valid code, got %v", err)
	}

	newCodes, err := env.engine.RegenerateBackupCodes(context.Background(), env.userID, codeForSecret(t, env, secret))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if len(newCodes) != env.engine.config.BackupCodes.Count {
		t.Fatalf("expected a full fresh batch, got %d", len(newCodes))
	}

	challengeID := beginTwoFactorLogin(t, env, "203.0.113.10")
	if _, err := env.engine.VerifyLoginBackupCode(loginCtx("203.0.113.10"), challengeID, oldCodes[0], false); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("old batch must be dead after regeneration, got %v", err)
	}

	challengeID = beginTwoFactorLogin(t, env, "203.0.113.11")
	if _, err := env.engine.VerifyLoginBackupCode(loginCtx("203.0.113.11"), challengeID, newCodes[0], false); err != nil {
		t.Fatalf("new batch must work, got %v", err)
	}
}

func TestRememberDeviceDisabledLeavesChallengeIntact(t *testing.T) {
	env := newTestEngine(t, nil)
	secret, _ := enrollTOTP(t, env)

	challengeID := beginTwoFactorLogin(t, env, "203.0.113.10")

	_, err := env.engine.VerifyLoginTOTP(loginCtx("203.0.113.10"), challengeID, codeForSecret(t, env, secret), true)
	if !errors.Is(err, ErrRememberDeviceDisabled) {
		t.Fatalf("expected ErrRememberDeviceDisabled, got %v", err)
	}

	// The refusal must neither consume the challenge nor mint a session;
	// the same challenge completes normally afterwards.
	result, err := env.engine.VerifyLoginTOTP(loginCtx("203.0.113.10"), challengeID, codeForSecret(t, env, secret), false)
	if err != nil {
		t.Fatalf("challenge must survive the refusal, got %v", err)
	}
	if result.Session == nil || !result.Session.Authenticated {
		t.Fatal("expected authenticated session")
	}
}

func TestRememberDeviceSkipsSecondFactor(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.RememberDevice.Enabled = true
		cfg.RememberDevice.Secret = []byte("0123456789abcdef0123456789abcdef")
	})
	secret, _ := enrollTOTP(t, env)

	challengeID := beginTwoFactorLogin(t, env, "203.0.113.10")
	result, err := env.engine.VerifyLoginTOTP(loginCtx("203.0.113.10"), challengeID, codeForSecret(t, env, secret), true)
	if err != nil {
		t.Fatalf("VerifyLoginTOTP failed: %v", err)
	}
	if result.RememberToken == "" {
		t.Fatal("expected a remember-device token")
	}

	// Next login with the token bypasses the challenge entirely.
	login, err := env.engine.Login(loginCtx("203.0.113.10"), LoginRequest{
		Email:         testEmail,
		Password:      testPassword,
		RememberToken: result.RememberToken,
	})
	if err != nil {
		t.Fatalf("Login with remember token failed: %v", err)
	}
	if login.TwoFactorRequired {
		t.Fatal("trusted browser must skip the second factor")
	}
	if login.Session == nil || !login.Session.Authenticated {
		t.Fatal("expected authenticated session")
	}

	// A garbage token falls back to the normal challenge, silently.
	fallback, err := env.engine.Login(loginCtx("203.0.113.10"), LoginRequest{
		Email:         testEmail,
		Password:      testPassword,
		RememberToken: "not-a-token",
	})
	if err != nil {
		t.Fatalf("Login with bad remember token failed: %v", err)
	}
	if !fallback.TwoFactorRequired {
		t.Fatal("invalid token must not skip the second factor")
	}
}
