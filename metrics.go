package foliogate

import "sync/atomic"

// MetricID indexes one in-process security counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts fully authenticated logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts credential failures, honeypot hits included.
	MetricLoginFailure
	// MetricLoginRateLimited counts logins blocked by the IP or email throttle.
	MetricLoginRateLimited
	// MetricHoneypotTriggered counts bot submissions caught by the hidden field.
	MetricHoneypotTriggered
	// MetricTwoFactorRequired counts logins parked in a pending challenge.
	MetricTwoFactorRequired
	// MetricTwoFactorSuccess counts completed second factors, TOTP or backup code.
	MetricTwoFactorSuccess
	// MetricTwoFactorFailure counts wrong codes against a live challenge.
	MetricTwoFactorFailure
	// MetricChallengeReplay counts attempts to consume an already spent challenge.
	MetricChallengeReplay
	// MetricBackupCodeUsed counts successfully redeemed backup codes.
	MetricBackupCodeUsed
	// MetricBackupCodesRegenerated counts batch regenerations.
	MetricBackupCodesRegenerated
	// MetricEnrollmentStarted counts provisioned enrollment secrets.
	MetricEnrollmentStarted
	// MetricEnrollmentCompleted counts confirmed enrollments.
	MetricEnrollmentCompleted
	// MetricTwoFactorDisabled counts two-factor teardowns.
	MetricTwoFactorDisabled
	// MetricRememberDeviceUsed counts second factors skipped by a trusted-browser token.
	MetricRememberDeviceUsed
	// MetricSessionCreated counts authenticated sessions issued.
	MetricSessionCreated
	// MetricLogout counts explicit logouts.
	MetricLogout
	// MetricLimiterUnavailable counts throttle decisions taken fail-open.
	MetricLimiterUnavailable
	metricIDCount
)

func (id MetricID) String() string {
	names := [...]string{
		"login_success",
		"login_failure",
		"login_rate_limited",
		"honeypot_triggered",
		"two_factor_required",
		"two_factor_success",
		"two_factor_failure",
		"challenge_replay",
		"backup_code_used",
		"backup_codes_regenerated",
		"enrollment_started",
		"enrollment_completed",
		"two_factor_disabled",
		"remember_device_used",
		"session_created",
		"logout",
		"limiter_unavailable",
	}
	if int(id) < len(names) {
		return names[id]
	}
	return "unknown"
}

const cacheLineSize = 64

// paddedCounter keeps hot counters on separate cache lines.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of atomic counters. A nil or disabled Metrics
// makes Inc a no-op.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// NewMetrics creates the counter set.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc bumps the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Get returns the current value for id.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || !m.enabled || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter into a name-keyed map for display.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, metricIDCount)
	if m == nil || !m.enabled {
		return out
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		out[id.String()] = atomic.LoadUint64(&m.counters[id].value)
	}
	return out
}
