package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	activationKeyPrefix     = "register:"
	activationUsedKeyPrefix = "register_used:"
	activationLockPrefix    = "register_lock:"
)

// ErrActivationNotFound means the token is unknown or its TTL ran out.
var ErrActivationNotFound = errors.New("activation token not found")

// PendingUser is a registration waiting for its activation link to be opened.
type PendingUser struct {
	Email        string `json:"email"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// RedisActivationStore keeps pending registrations under register:<token>.
type RedisActivationStore struct {
	rdb *redis.Client
}

func NewRedisActivationStore(rdb *redis.Client) *RedisActivationStore {
	return &RedisActivationStore{rdb: rdb}
}

func (s *RedisActivationStore) Save(ctx context.Context, token string, pending PendingUser, ttl time.Duration) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, activationKeyPrefix+token, data, ttl).Err()
}

func (s *RedisActivationStore) Load(ctx context.Context, token string) (*PendingUser, error) {
	val, err := s.rdb.Get(ctx, activationKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrActivationNotFound
		}
		return nil, err
	}
	var pending PendingUser
	if err := json.Unmarshal(val, &pending); err != nil {
		return nil, err
	}
	return &pending, nil
}

// Consume deletes the pending entry and remembers the token as used for ttl.
func (s *RedisActivationStore) Consume(ctx context.Context, token string, ttl time.Duration) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, activationKeyPrefix+token)
	pipe.Set(ctx, activationUsedKeyPrefix+token, "1", ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisActivationStore) WasUsed(ctx context.Context, token string) bool {
	used, err := s.rdb.Get(ctx, activationUsedKeyPrefix+token).Result()
	return err == nil && used == "1"
}

// Lock serialises activation of one token across instances.
func (s *RedisActivationStore) Lock(ctx context.Context, token string) (func(), error) {
	lock := NewRedisLock(s.rdb, activationLockPrefix+token, 10*time.Second)
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	return func() { _ = lock.Unlock(context.Background()) }, nil
}
