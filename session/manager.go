package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/beranw/foliogate/internal"
)

// ErrExpired is returned when a session exceeded its idle timeout or
// absolute lifetime. The record is destroyed before the error returns.
var ErrExpired = errors.New("session expired")

// ErrCSRFMismatch is returned when a presented CSRF token does not match
// the session's token.
var ErrCSRFMismatch = errors.New("csrf token mismatch")

// Config carries the session lifecycle tunables.
type Config struct {
	IdleTimeout      time.Duration
	AbsoluteLifetime time.Duration // 0 disables the absolute cap
}

// Manager drives the session lifecycle on top of a Store.
type Manager struct {
	store  *Store
	config Config
	clock  func() time.Time
}

// NewManager creates a session Manager. clock may be nil, in which case
// time.Now is used.
func NewManager(store *Store, cfg Config, clock func() time.Time) *Manager {
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		store:  store,
		config: cfg,
		clock:  clock,
	}
}

// Login destroys the session the browser presented before authentication
// (priorID may be empty) and creates a fresh authenticated session with
// a new id and CSRF token.
func (m *Manager) Login(ctx context.Context, priorID string, identity Identity) (*Session, error) {
	if priorID != "" {
		if err := m.store.Delete(ctx, priorID); err != nil {
			return nil, err
		}
	}

	id, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	csrf, err := internal.NewCSRFToken()
	if err != nil {
		return nil, err
	}

	now := m.clock()
	sess := &Session{
		ID:            id,
		UserID:        identity.UserID,
		Email:         identity.Email,
		Authenticated: true,
		CSRFToken:     csrf,
		LoginAt:       now,
		LastActivity:  now,
		CreatedAt:     now,
	}

	if err := m.store.Save(ctx, sess, m.config.IdleTimeout); err != nil {
		return nil, err
	}
	return sess, nil
}

// Current loads the session for id, enforces the idle timeout and
// absolute lifetime, and refreshes the last-activity stamp. An expired
// session is destroyed and reported as ErrExpired.
func (m *Manager) Current(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	if now.Sub(sess.LastActivity) > m.config.IdleTimeout {
		_ = m.store.Delete(ctx, id)
		return nil, ErrExpired
	}
	if m.config.AbsoluteLifetime > 0 && now.Sub(sess.LoginAt) > m.config.AbsoluteLifetime {
		_ = m.store.Delete(ctx, id)
		return nil, ErrExpired
	}

	sess.LastActivity = now
	if err := m.store.Save(ctx, sess, m.config.IdleTimeout); err != nil {
		return nil, err
	}
	return sess, nil
}

// IsAuthenticated reports whether id maps to a live authenticated
// session without refreshing its activity stamp.
func (m *Manager) IsAuthenticated(ctx context.Context, id string) bool {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return false
	}
	now := m.clock()
	if now.Sub(sess.LastActivity) > m.config.IdleTimeout {
		return false
	}
	return sess.Authenticated
}

// Logout destroys the session for id. Idempotent.
func (m *Manager) Logout(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// VerifyCSRF compares token against the session's CSRF token in constant
// time. The token is issued at login and never rotated within a session,
// which keeps multi-tab forms working.
func (m *Manager) VerifyCSRF(ctx context.Context, id, token string) error {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(sess.CSRFToken), []byte(token)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}
