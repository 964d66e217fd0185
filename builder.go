package foliogate

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beranw/foliogate/audit"
	"github.com/beranw/foliogate/credstore"
	"github.com/beranw/foliogate/jwt"
	"github.com/beranw/foliogate/password"
	"github.com/beranw/foliogate/rate"
	"github.com/beranw/foliogate/session"
)

// Builder assembles an Engine. Configure it during startup, call Build
// once, then discard it.
type Builder struct {
	config      Config
	redis       redis.UniversalClient
	credentials credstore.Store
	auditSink   audit.Sink
	clock       func() time.Time

	built bool
}

// New returns a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole Config.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, throttles, and
// pending challenges.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentials sets the durable credential store.
func (b *Builder) WithCredentials(store credstore.Store) *Builder {
	b.credentials = store
	return b
}

// WithAuditSink sets the destination for security events. Without one,
// events are dispatched to a no-op sink.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source. Tests use it to step TOTP windows
// and session timeouts.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the Engine. Every
// misconfiguration is a construction error; nothing is deferred to
// request time.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	engine := &Engine{
		config:      cfg,
		credentials: b.credentials,
		clock:       clock,
	}

	engine.sessions = session.NewManager(
		session.NewStore(b.redis, cfg.Session.RedisPrefix),
		session.Config{
			IdleTimeout:      cfg.Session.IdleTimeout,
			AbsoluteLifetime: cfg.Session.AbsoluteLifetime,
		},
		clock,
	)
	engine.limiter = rate.New(b.redis, cfg.Login.RateLimitPrefix)
	engine.pending = newPendingChallengeStore(b.redis, clock)
	engine.enroll = newEnrollmentStore(b.redis)
	engine.auditLog = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.totp = newTOTPManager(cfg.TOTP)

	ph, err := password.NewBcrypt(password.Config{Cost: cfg.Password.Cost})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	if cfg.RememberDevice.Enabled {
		rm, err := jwt.NewManager(jwt.Config{
			TTL:    cfg.RememberDevice.TTL,
			Secret: cfg.RememberDevice.Secret,
			Clock:  clock,
		})
		if err != nil {
			return nil, err
		}
		engine.remember = rm
	}

	b.built = true

	return engine, nil
}
