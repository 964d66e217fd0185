package foliogate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pending two-factor challenges are the AWAITING_2FA state: the password
// was right, the session does not exist yet. The marker lives in Redis
// under its own TTL and dies with the challenge, whether consumed,
// expired, or burned by too many wrong codes.

const (
	pendingKeyPrefix = "fg:mfa"
	enrollKeyPrefix  = "fg:enroll"

	enrollmentTTL = 10 * time.Minute
)

type pendingChallenge struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	ExpiresAt int64  `json:"expires_at"`
	Attempts  int    `json:"attempts"`
}

type pendingChallengeStore struct {
	redis redis.UniversalClient
	clock func() time.Time
}

func newPendingChallengeStore(redisClient redis.UniversalClient, clock func() time.Time) *pendingChallengeStore {
	if clock == nil {
		clock = time.Now
	}
	return &pendingChallengeStore{redis: redisClient, clock: clock}
}

func (s *pendingChallengeStore) key(challengeID string) string {
	return pendingKeyPrefix + ":" + challengeID
}

func (s *pendingChallengeStore) Save(ctx context.Context, challengeID string, record *pendingChallenge, ttl time.Duration) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return nil
}

func (s *pendingChallengeStore) Get(ctx context.Context, challengeID string) (*pendingChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	record := &pendingChallenge{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, ErrChallengeInvalid
	}
	if s.clock().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(challengeID)).Result()
		return nil, ErrChallengeExpired
	}
	return record, nil
}

// Delete removes the marker and reports whether it still existed. The
// caller treats false as a replay: some other request consumed the
// challenge first.
func (s *pendingChallengeStore) Delete(ctx context.Context, challengeID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(challengeID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return n > 0, nil
}

// RecordFailure bumps the attempt counter under WATCH and reports whether
// the budget is now spent. A burned challenge is deleted inside the same
// transaction, so the count can never be talked past with parallel guesses.
func (s *pendingChallengeStore) RecordFailure(ctx context.Context, challengeID string, maxAttempts int) (bool, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record := &pendingChallenge{}
			if err := json.Unmarshal(data, record); err != nil {
				return ErrChallengeInvalid
			}
			if s.clock().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeExpired
			}

			record.Attempts++
			if record.Attempts >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			ttl := time.Unix(record.ExpiresAt, 0).Sub(s.clock())
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeExpired
			}

			updated, err := json.Marshal(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, ErrChallengeInvalid
			}
			if errors.Is(err, ErrChallengeExpired) || errors.Is(err, ErrChallengeInvalid) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
		}
		return exceeded, nil
	}

	return false, ErrChallengeInvalid
}

// enrollmentStore holds the candidate TOTP secret between provisioning
// and the confirmation code. The secret is never persisted to the
// credential store until the user proves possession.
type enrollmentStore struct {
	redis redis.UniversalClient
}

func newEnrollmentStore(redisClient redis.UniversalClient) *enrollmentStore {
	return &enrollmentStore{redis: redisClient}
}

func (s *enrollmentStore) key(userID int64) string {
	return fmt.Sprintf("%s:%d", enrollKeyPrefix, userID)
}

func (s *enrollmentStore) SaveSecret(ctx context.Context, userID int64, secretBase32 string) error {
	if err := s.redis.Set(ctx, s.key(userID), secretBase32, enrollmentTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return nil
}

func (s *enrollmentStore) GetSecret(ctx context.Context, userID int64) (string, error) {
	secret, err := s.redis.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrEnrollmentNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return secret, nil
}

func (s *enrollmentStore) DeleteSecret(ctx context.Context, userID int64) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return nil
}
