package jwt

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenInvalid is returned for every verification failure: bad
// signature, expired, malformed, or wrong claim shape.
var ErrTokenInvalid = errors.New("invalid token")

const issuerName = "foliogate"

// Config holds the signing parameters. Clock may be nil, in which case
// time.Now is used for expiry checks.
type Config struct {
	TTL    time.Duration
	Secret []byte
	Clock  func() time.Time
}

// Claims is the remember-device claim set.
type Claims struct {
	jwt.RegisteredClaims
}

// Manager signs and verifies remember-device tokens.
type Manager struct {
	config Config
	method jwt.SigningMethod
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("signing secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Manager{
		config: cfg,
		method: jwt.SigningMethodHS256,
	}, nil
}

// Issue returns a signed token asserting that the browser holding it
// completed a second factor for userID.
func (m *Manager) Issue(userID int64, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		},
	}

	token := jwt.NewWithClaims(m.method, claims)
	return token.SignedString(m.config.Secret)
}

// Verify checks the token and returns the user id it was issued for.
func (m *Manager) Verify(tokenString string) (int64, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return m.config.Secret, nil },
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Clock),
	)
	if err != nil || !token.Valid {
		return 0, ErrTokenInvalid
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrTokenInvalid
	}
	return userID, nil
}
