package foliogate

import (
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/beranw/foliogate/audit"
	"github.com/beranw/foliogate/credstore"
	"github.com/beranw/foliogate/session"
)

// TwoFactorResult is the outcome of a completed second factor.
type TwoFactorResult struct {
	Session       *session.Session
	RememberToken string // set when the caller asked to trust this browser

	// Backup code bookkeeping, populated by VerifyLoginBackupCode.
	BackupCodesRemaining int
	BackupCodesLow       bool
}

// EnrollmentInfo is what the settings page renders during enrollment.
type EnrollmentInfo struct {
	SecretBase32 string
	ProvisionURI string
	QRCodeURL    string
}

// VerifyLoginTOTP completes a pending login challenge with an
// authenticator code. A correct code consumes the challenge exactly once;
// wrong codes burn attempts until the challenge is destroyed.
func (e *Engine) VerifyLoginTOTP(ctx context.Context, challengeID, code string, rememberDevice bool) (*TwoFactorResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	challenge, err := e.pending.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	cred, secret, err := e.loadTwoFactorCredential(ctx, challenge.UserID)
	if err != nil {
		_, _ = e.pending.Delete(ctx, challengeID)
		return nil, err
	}

	ok, _, err := e.totp.VerifyCode(secret, code, e.clock())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.failChallenge(ctx, challengeID, challenge.Email, "wrong totp code")
	}

	return e.completeChallenge(ctx, challengeID, cred, rememberDevice, "totp")
}

// VerifyLoginBackupCode completes a pending login challenge with a
// one-time recovery code. The matched code is consumed atomically; when
// two requests race on the same code, one wins and the other reads as an
// invalid code.
func (e *Engine) VerifyLoginBackupCode(ctx context.Context, challengeID, code string, rememberDevice bool) (*TwoFactorResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	challenge, err := e.pending.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	cred, _, err := e.loadTwoFactorCredential(ctx, challenge.UserID)
	if err != nil {
		_, _ = e.pending.Delete(ctx, challengeID)
		return nil, err
	}

	hashes := cred.TwoFactor.BackupCodeHashes
	idx := matchBackupCode(hashes, code)
	if idx < 0 {
		return nil, e.failChallenge(ctx, challengeID, challenge.Email, "wrong backup code")
	}

	next := removeBackupCode(hashes, idx)
	swapped, err := e.credentials.ReplaceBackupCodesIf(ctx, cred.ID, hashes, next)
	if err != nil {
		return nil, err
	}
	if !swapped {
		// Lost the consume race; the code is spent.
		return nil, e.failChallenge(ctx, challengeID, challenge.Email, "backup code already consumed")
	}

	result, err := e.completeChallenge(ctx, challengeID, cred, rememberDevice, "backup_code")
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricBackupCodeUsed)
	result.BackupCodesRemaining = len(next)
	result.BackupCodesLow = len(next) <= e.config.BackupCodes.WarnThreshold
	if result.BackupCodesLow {
		e.emitAudit(ctx, audit.LevelWarning, "backup_codes_low", cred.Email, true, "",
			map[string]string{"remaining": strconv.Itoa(len(next))})
	}
	return result, nil
}

// BeginTOTPEnrollment provisions a candidate secret for the account and
// parks it in a short-lived slot. Nothing is persisted until the user
// proves possession through ConfirmTOTPEnrollment.
func (e *Engine) BeginTOTPEnrollment(ctx context.Context, userID int64) (*EnrollmentInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	cred, err := e.findCredential(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred.TwoFactor != nil {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	_, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := e.enroll.SaveSecret(ctx, userID, secretBase32); err != nil {
		return nil, err
	}

	e.metricInc(MetricEnrollmentStarted)
	e.emitAudit(ctx, audit.LevelInfo, "two_factor_enrollment_started", cred.Email, true, "", nil)

	return &EnrollmentInfo{
		SecretBase32: secretBase32,
		ProvisionURI: e.totp.ProvisionURI(secretBase32, cred.Email),
		QRCodeURL:    e.totp.QRCodeURL(secretBase32, cred.Email),
	}, nil
}

// ConfirmTOTPEnrollment verifies a code against the parked secret and,
// on success, enables two-factor and returns the plaintext backup code
// batch. The batch is shown exactly once; only hashes are stored.
func (e *Engine) ConfirmTOTPEnrollment(ctx context.Context, userID int64, code string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	cred, err := e.findCredential(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred.TwoFactor != nil {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	secretBase32, err := e.enroll.GetSecret(ctx, userID)
	if err != nil {
		return nil, err
	}
	secret, err := decodeTOTPSecret(secretBase32)
	if err != nil {
		return nil, err
	}

	ok, _, err := e.totp.VerifyCode(secret, code, e.clock())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, audit.LevelWarning, "two_factor_enrollment_failed", cred.Email, false, "wrong totp code", nil)
		return nil, ErrTwoFactorCodeInvalid
	}

	codes, hashes, err := e.newBackupCodeBatch()
	if err != nil {
		return nil, err
	}
	if err := e.credentials.EnableTwoFactor(ctx, userID, secretBase32, hashes); err != nil {
		return nil, err
	}
	if err := e.enroll.DeleteSecret(ctx, userID); err != nil {
		log.Printf("foliogate: deleting enrollment slot failed for user %d: %v", userID, err)
	}

	e.metricInc(MetricEnrollmentCompleted)
	e.emitAudit(ctx, audit.LevelInfo, "two_factor_enabled", cred.Email, true, "", nil)
	return codes, nil
}

// DisableTOTP tears down two-factor for the account. Password re-entry
// is required so a hijacked session alone cannot strip the protection.
func (e *Engine) DisableTOTP(ctx context.Context, userID int64, currentPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	cred, err := e.findCredential(ctx, userID)
	if err != nil {
		return err
	}
	if cred.TwoFactor == nil {
		return ErrTwoFactorNotEnabled
	}

	ok, err := e.passwordHash.Verify(currentPassword, cred.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.emitAudit(ctx, audit.LevelWarning, "two_factor_disable_denied", cred.Email, false, "wrong password", nil)
		e.failureDelay(ctx)
		return ErrInvalidCredentials
	}

	if err := e.credentials.DisableTwoFactor(ctx, userID); err != nil {
		return err
	}

	e.metricInc(MetricTwoFactorDisabled)
	e.emitAudit(ctx, audit.LevelWarning, "two_factor_disabled", cred.Email, true, "", nil)
	return nil
}

// RegenerateBackupCodes replaces the stored batch with a fresh one. A
// valid current TOTP code is required, and every previously unused code
// stops working.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID int64, totpCode string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	cred, secret, err := e.loadTwoFactorCredential(ctx, userID)
	if err != nil {
		return nil, err
	}

	ok, _, err := e.totp.VerifyCode(secret, totpCode, e.clock())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, audit.LevelWarning, "backup_codes_regenerate_denied", cred.Email, false, "wrong totp code", nil)
		return nil, ErrTwoFactorCodeInvalid
	}

	codes, hashes, err := e.newBackupCodeBatch()
	if err != nil {
		return nil, err
	}
	if err := e.credentials.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}

	e.metricInc(MetricBackupCodesRegenerated)
	e.emitAudit(ctx, audit.LevelInfo, "backup_codes_regenerated", cred.Email, true, "", nil)
	return codes, nil
}

func (e *Engine) newBackupCodeBatch() (codes, hashes []string, err error) {
	codes, err = generateBackupCodes(e.config.BackupCodes.Count)
	if err != nil {
		return nil, nil, err
	}
	hashes, err = hashBackupCodes(codes, e.config.Password.Cost)
	if err != nil {
		return nil, nil, err
	}
	return codes, hashes, nil
}

func (e *Engine) findCredential(ctx context.Context, userID int64) (*credstore.Credential, error) {
	cred, err := e.credentials.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return cred, nil
}

func (e *Engine) loadTwoFactorCredential(ctx context.Context, userID int64) (*credstore.Credential, []byte, error) {
	cred, err := e.findCredential(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if cred.TwoFactor == nil {
		return nil, nil, ErrTwoFactorNotEnabled
	}
	secret, err := decodeTOTPSecret(cred.TwoFactor.Secret)
	if err != nil {
		return nil, nil, err
	}
	return cred, secret, nil
}

func (e *Engine) failChallenge(ctx context.Context, challengeID, email, reason string) error {
	e.metricInc(MetricTwoFactorFailure)

	exceeded, err := e.pending.RecordFailure(ctx, challengeID, e.config.Login.MaxChallengeAttempts)
	if err != nil {
		e.emitAudit(ctx, audit.LevelWarning, "two_factor_failed", email, false, reason, nil)
		return err
	}
	if exceeded {
		e.emitAudit(ctx, audit.LevelAlert, "two_factor_attempts_exceeded", email, false, reason, nil)
		return ErrChallengeAttemptsExceeded
	}

	e.emitAudit(ctx, audit.LevelWarning, "two_factor_failed", email, false, reason, nil)
	return ErrTwoFactorCodeInvalid
}

func (e *Engine) completeChallenge(ctx context.Context, challengeID string, cred *credstore.Credential, rememberDevice bool, factor string) (*TwoFactorResult, error) {
	// Refuse before touching the challenge: a remember-device request
	// against a disabled engine must not consume the marker or mint a
	// session.
	if rememberDevice && e.remember == nil {
		return nil, ErrRememberDeviceDisabled
	}

	// Single delete is the replay gate: only the request that removes
	// the marker may mint a session.
	existed, err := e.pending.Delete(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !existed {
		e.metricInc(MetricChallengeReplay)
		e.emitAudit(ctx, audit.LevelAlert, "two_factor_replay", cred.Email, false, "challenge already consumed", nil)
		return nil, ErrChallengeInvalid
	}

	sess, err := e.sessions.Login(ctx, priorSessionIDFromContext(ctx), session.Identity{
		UserID: cred.ID,
		Email:  cred.Email,
	})
	if err != nil {
		return nil, err
	}

	e.clearLoginLimits(ctx, clientIPFromContext(ctx), cred.Email)

	result := &TwoFactorResult{Session: sess}
	if rememberDevice {
		token, err := e.remember.Issue(cred.ID, e.clock())
		if err != nil {
			return nil, err
		}
		result.RememberToken = token
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, audit.LevelInfo, "two_factor_success", cred.Email, true, "",
		map[string]string{"factor": factor})
	return result, nil
}
