package foliogate

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/beranw/foliogate/audit"
	"github.com/beranw/foliogate/credstore"
	"github.com/beranw/foliogate/jwt"
	"github.com/beranw/foliogate/password"
	"github.com/beranw/foliogate/rate"
	"github.com/beranw/foliogate/session"
)

// Engine is the authentication core. Construct it once through
// [Builder.Build]; all methods are safe for concurrent use afterwards.
type Engine struct {
	config Config

	credentials credstore.Store
	sessions    *session.Manager
	limiter     *rate.Limiter
	pending     *pendingChallengeStore
	enroll      *enrollmentStore
	remember    *jwt.Manager // nil when remember-device is disabled

	totp         *totpManager
	passwordHash *password.Bcrypt

	auditLog *audit.Dispatcher
	metrics  *Metrics
	clock    func() time.Time
}

// Sessions exposes the session manager for HTTP middleware.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Limiter exposes the rate limiter so the site can throttle non-auth
// surfaces (contact form, feed endpoints) with the same counters.
func (e *Engine) Limiter() *rate.Limiter {
	return e.limiter
}

// Metrics returns a snapshot of the in-process counters.
func (e *Engine) Metrics() map[string]uint64 {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded under load.
func (e *Engine) AuditDropped() uint64 {
	return e.auditLog.Dropped()
}

// Close drains the audit dispatcher. Call it on shutdown.
func (e *Engine) Close() {
	e.auditLog.Close()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, level audit.Level, kind, identifier string, success bool, errMsg string, meta map[string]string) {
	e.auditLog.Emit(ctx, audit.Event{
		ID:         uuid.NewString(),
		Timestamp:  e.clock(),
		Level:      level,
		Kind:       kind,
		Identifier: identifier,
		IP:         clientIPFromContext(ctx),
		UserAgent:  userAgentFromContext(ctx),
		Success:    success,
		Error:      errMsg,
		Metadata:   meta,
	})
}

// failureDelay holds the response for the configured fixed interval so a
// wrong password, an unknown email, and a honeypot hit all take the same
// wall time. Respects ctx cancellation.
func (e *Engine) failureDelay(ctx context.Context) {
	if e.config.Login.FailureDelay <= 0 {
		return
	}
	timer := time.NewTimer(e.config.Login.FailureDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// allowAttempt consults the limiter and fails open when the backend is
// down: an unreachable Redis must degrade to "no throttle", not to a
// sitewide login outage. The degradation is logged and audited.
func (e *Engine) allowAttempt(ctx context.Context, key string, max int, window time.Duration) bool {
	allowed, err := e.limiter.Attempt(ctx, key, max, window)
	if err != nil {
		log.Printf("foliogate: rate limiter unavailable, allowing attempt: %v", err)
		e.metricInc(MetricLimiterUnavailable)
		e.emitAudit(ctx, audit.LevelWarning, "rate_limiter_unavailable", key, false, err.Error(), nil)
		return true
	}
	return allowed
}

func (e *Engine) clearLoginLimits(ctx context.Context, ip, email string) {
	keys := make([]string, 0, 2)
	if ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	if email != "" {
		keys = append(keys, loginEmailKey(email))
	}
	if err := e.limiter.Clear(ctx, keys...); err != nil {
		log.Printf("foliogate: clearing login limits failed: %v", err)
	}
}

func loginIPKey(ip string) string {
	return "login:ip:" + ip
}

func loginEmailKey(email string) string {
	return "login:email:" + email
}
