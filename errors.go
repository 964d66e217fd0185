package foliogate

import "errors"

var (
	// ErrMissingFields is returned when the login form omits the email or password.
	ErrMissingFields = errors.New("missing fields")
	// ErrInvalidCredentials is returned for every credential failure, including
	// unknown emails and tripped honeypots. Callers must not narrow it.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned when the per-IP or per-email attempt budget is spent.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrUserNotFound is returned when a user id does not resolve to a credential.
	ErrUserNotFound = errors.New("user not found")
	// ErrChallengeInvalid is returned when a two-factor challenge id is unknown or already consumed.
	ErrChallengeInvalid = errors.New("two-factor challenge invalid")
	// ErrChallengeExpired is returned when a two-factor challenge outlived its TTL.
	ErrChallengeExpired = errors.New("two-factor challenge expired")
	// ErrChallengeAttemptsExceeded is returned when a challenge burns through its attempt budget.
	ErrChallengeAttemptsExceeded = errors.New("two-factor challenge attempts exceeded")
	// ErrChallengeUnavailable is returned when the challenge backend cannot be reached.
	ErrChallengeUnavailable = errors.New("two-factor challenge backend unavailable")
	// ErrTwoFactorCodeInvalid is returned when a TOTP code fails verification.
	ErrTwoFactorCodeInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorNotEnabled is returned when a two-factor operation targets an account without it.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrTwoFactorAlreadyEnabled is returned when enrollment starts on an already protected account.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrEnrollmentNotFound is returned when no pending enrollment secret exists for the user.
	ErrEnrollmentNotFound = errors.New("two-factor enrollment not found")
	// ErrRememberDeviceDisabled is returned when remember-device is used without configuration.
	ErrRememberDeviceDisabled = errors.New("remember device disabled")
	// ErrEngineNotReady is returned when an Engine method runs before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)
