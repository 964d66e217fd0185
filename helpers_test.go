package foliogate

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/beranw/foliogate/credstore"
	"github.com/beranw/foliogate/password"
)

const (
	testEmail    = "owner@example.com"
	testPassword = "correct-horse-battery"
)

// testClock is a mutable time source shared between the test and the engine.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine *Engine
	redis  *miniredis.Miniredis
	store  *credstore.SQLiteStore
	clock  *testClock
	userID int64
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Password.Cost = bcrypt.MinCost
	cfg.Login.FailureDelay = 0
	return cfg
}

var testDBSeq int

func newTestEngine(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	testDBSeq++
	db, err := sql.Open("sqlite", fmt.Sprintf("file:foliogate-test-%d?mode=memory&cache=shared", testDBSeq))
	if err != nil {
		t.Fatalf("opening sqlite failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := credstore.NewSQLite(db)
	if err != nil {
		t.Fatalf("creating credential store failed: %v", err)
	}

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	hasher, err := password.NewBcrypt(password.Config{Cost: cfg.Password.Cost})
	if err != nil {
		t.Fatalf("creating hasher failed: %v", err)
	}
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hashing test password failed: %v", err)
	}
	userID, err := store.Create(context.Background(), "owner", testEmail, hash)
	if err != nil {
		t.Fatalf("seeding test user failed: %v", err)
	}

	clock := newTestClock()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(redisClient).
		WithCredentials(store).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine: engine,
		redis:  mr,
		store:  store,
		clock:  clock,
		userID: userID,
	}
}

func loginCtx(ip string) context.Context {
	ctx := WithClientIP(context.Background(), ip)
	return WithUserAgent(ctx, "test-agent")
}

// codeForSecret computes the current TOTP code the way an authenticator
// app would, against the env clock.
func codeForSecret(t *testing.T, env *testEnv, secretBase32 string) string {
	t.Helper()

	secret, err := decodeTOTPSecret(secretBase32)
	if err != nil {
		t.Fatalf("decoding secret failed: %v", err)
	}
	cfg := env.engine.config.TOTP
	counter := env.clock.Now().Unix() / int64(cfg.Period)
	code, err := hotpCode(secret, counter, cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("computing code failed: %v", err)
	}
	return code
}

// wrongTOTPCode returns a well-formed code guaranteed not to verify at
// the current clock, whatever the skew window accepts.
func wrongTOTPCode(t *testing.T, env *testEnv, secretBase32 string) string {
	t.Helper()

	secret, err := decodeTOTPSecret(secretBase32)
	if err != nil {
		t.Fatalf("decoding secret failed: %v", err)
	}
	for _, candidate := range []string{"000000", "000001", "000002", "000003"} {
		ok, _, err := env.engine.totp.VerifyCode(secret, candidate, env.clock.Now())
		if err != nil {
			t.Fatalf("VerifyCode failed: %v", err)
		}
		if !ok {
			return candidate
		}
	}
	t.Fatal("no non-matching candidate found")
	return ""
}

// enrollTOTP walks the full enrollment flow and returns the shared
// secret and the plaintext backup codes.
func enrollTOTP(t *testing.T, env *testEnv) (string, []string) {
	t.Helper()

	info, err := env.engine.BeginTOTPEnrollment(context.Background(), env.userID)
	if err != nil {
		t.Fatalf("BeginTOTPEnrollment failed: %v", err)
	}
	codes, err := env.engine.ConfirmTOTPEnrollment(context.Background(), env.userID, codeForSecret(t, env, info.SecretBase32))
	if err != nil {
		t.Fatalf("ConfirmTOTPEnrollment failed: %v", err)
	}
	return info.SecretBase32, codes
}

// beginTwoFactorLogin runs the password step for the seeded user and
// returns the pending challenge id.
func beginTwoFactorLogin(t *testing.T, env *testEnv, ip string) string {
	t.Helper()

	result, err := env.engine.Login(loginCtx(ip), LoginRequest{Email: testEmail, Password: testPassword})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.TwoFactorRequired || result.ChallengeID == "" {
		t.Fatalf("expected a pending two-factor challenge, got %+v", result)
	}
	return result.ChallengeID
}
