package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beranw/foliogate/internal"
)

// ErrNotFound is returned when no session exists for the given id.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps every backend failure returned by the store.
var ErrRedisUnavailable = errors.New("session backend unavailable")

// Store persists sessions in Redis under prefix:id keys.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(id string) string {
	return s.prefix + ":" + id
}

// Save writes sess under ttl. The TTL is the idle timeout; Manager
// re-saves on each authenticated request to slide it.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads the session for id. Malformed ids short-circuit to
// ErrNotFound without touching Redis.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	if !internal.ValidSessionID(id) {
		return nil, ErrNotFound
	}

	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess := &Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		// A corrupt blob is unrecoverable; drop it.
		_, _ = s.redis.Del(ctx, s.key(id)).Result()
		return nil, ErrNotFound
	}
	sess.ID = id
	return sess, nil
}

// Delete removes the session for id. Deleting a missing session is not
// an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if !internal.ValidSessionID(id) {
		return nil
	}
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
