package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares one client session between processes, e.g. workers
// acting on behalf of the same service account.
type RedisStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisStore stores the session under lend:client_session:<name>. A zero
// ttl keeps it until cleared.
func NewRedisStore(rdb *redis.Client, name string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, key: fmt.Sprintf("lend:client_session:%s", name), ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context) (Tokens, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Tokens{}, ErrNoTokens
	}
	if err != nil {
		return Tokens{}, err
	}
	var t Tokens
	if err := json.Unmarshal(b, &t); err != nil {
		return Tokens{}, err
	}
	return t, nil
}

func (s *RedisStore) Set(ctx context.Context, t Tokens) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key, b, s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}
