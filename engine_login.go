package foliogate

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/beranw/foliogate/audit"
	"github.com/beranw/foliogate/credstore"
	"github.com/beranw/foliogate/session"
)

// LoginRequest carries the submitted login form. Honeypot is the hidden
// field no human fills in; RememberToken is the trusted-browser cookie
// value, if the browser sent one.
type LoginRequest struct {
	Email         string
	Password      string
	Honeypot      string
	RememberToken string
}

// LoginResult is the outcome of a password check that did not error.
// Either TwoFactorRequired is set and ChallengeID names the pending
// challenge, or Session holds the fresh authenticated session.
type LoginResult struct {
	TwoFactorRequired bool
	ChallengeID       string
	Session           *session.Session
}

// Login runs the first factor. The error surface is deliberately coarse:
// unknown emails, wrong passwords, and honeypot hits all return
// [ErrInvalidCredentials] after the same fixed delay, and only the audit
// stream records which it was.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if ip != "" {
		if !e.allowAttempt(ctx, loginIPKey(ip), e.config.Login.MaxAttemptsPerIP, e.config.Login.IPWindow) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, audit.LevelWarning, "login_blocked", ip, false, "ip attempt budget spent", nil)
			return nil, ErrLoginRateLimited
		}
	}

	if req.Honeypot != "" {
		e.metricInc(MetricHoneypotTriggered)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, audit.LevelAlert, "honeypot_triggered", email, false, "hidden field submitted", nil)
		e.failureDelay(ctx)
		return nil, ErrInvalidCredentials
	}

	if email == "" || req.Password == "" {
		e.emitAudit(ctx, audit.LevelInfo, "login_missing_fields", email, false, "", nil)
		return nil, ErrMissingFields
	}

	if !e.allowAttempt(ctx, loginEmailKey(email), e.config.Login.MaxAttemptsPerEmail, e.config.Login.EmailWindow) {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, audit.LevelWarning, "login_blocked", email, false, "email attempt budget spent", nil)
		return nil, ErrLoginRateLimited
	}

	cred, err := e.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			return nil, e.failLogin(ctx, email, "unknown email")
		}
		return nil, err
	}

	ok, err := e.passwordHash.Verify(req.Password, cred.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.failLogin(ctx, email, "wrong password")
	}

	e.maybeUpgradeHash(ctx, cred, req.Password)

	if cred.TwoFactor != nil {
		if uid, trusted := e.verifyRememberToken(req.RememberToken); trusted && uid == cred.ID {
			e.metricInc(MetricRememberDeviceUsed)
			e.emitAudit(ctx, audit.LevelInfo, "remember_device_accepted", email, true, "", nil)
			return e.finishLogin(ctx, cred)
		}

		challengeID := uuid.NewString()
		record := &pendingChallenge{
			UserID:    cred.ID,
			Email:     cred.Email,
			ExpiresAt: e.clock().Add(e.config.Login.ChallengeTTL).Unix(),
		}
		if err := e.pending.Save(ctx, challengeID, record, e.config.Login.ChallengeTTL); err != nil {
			return nil, err
		}

		e.metricInc(MetricTwoFactorRequired)
		e.emitAudit(ctx, audit.LevelInfo, "login_two_factor_pending", email, true, "", nil)
		return &LoginResult{TwoFactorRequired: true, ChallengeID: challengeID}, nil
	}

	return e.finishLogin(ctx, cred)
}

// Logout destroys the session and audits the event. Safe to call with an
// unknown or already dead session id.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.sessions.Logout(ctx, sessionID); err != nil {
		return err
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, audit.LevelInfo, "logout", "", true, "", nil)
	return nil
}

func (e *Engine) failLogin(ctx context.Context, email, reason string) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, audit.LevelWarning, "login_failed", email, false, reason, nil)
	e.failureDelay(ctx)
	return ErrInvalidCredentials
}

func (e *Engine) finishLogin(ctx context.Context, cred *credstore.Credential) (*LoginResult, error) {
	sess, err := e.sessions.Login(ctx, priorSessionIDFromContext(ctx), session.Identity{
		UserID: cred.ID,
		Email:  cred.Email,
	})
	if err != nil {
		return nil, err
	}

	e.clearLoginLimits(ctx, clientIPFromContext(ctx), cred.Email)

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, audit.LevelInfo, "login_success", cred.Email, true, "", nil)
	return &LoginResult{Session: sess}, nil
}

// maybeUpgradeHash re-hashes the password when the stored cost lags the
// configured one. Best effort: a write failure leaves the old hash valid.
func (e *Engine) maybeUpgradeHash(ctx context.Context, cred *credstore.Credential, plaintext string) {
	if !e.config.Password.UpgradeOnLogin || !e.passwordHash.NeedsRehash(cred.PasswordHash) {
		return
	}
	rehashed, err := e.passwordHash.Hash(plaintext)
	if err != nil {
		return
	}
	if err := e.credentials.UpdatePasswordHash(ctx, cred.ID, rehashed); err != nil {
		log.Printf("foliogate: password hash upgrade failed for user %d: %v", cred.ID, err)
	}
}

func (e *Engine) verifyRememberToken(token string) (int64, bool) {
	if token == "" || e.remember == nil {
		return 0, false
	}
	uid, err := e.remember.Verify(token)
	if err != nil {
		return 0, false
	}
	return uid, true
}
