package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func key(id string) string         { return fmt.Sprintf("lend:sess:%s", id) }
func hashKey(hash string) string   { return fmt.Sprintf("lend:sess_hash:%s", hash) }
func userSetKey(uid string) string { return fmt.Sprintf("lend:user_sessions:%s", uid) }
func revokedKey(jti string) string { return fmt.Sprintf("lend:revoked:%s", jti) }

// RedisRepo keeps sessions as JSON values that expire with the refresh
// token, indexed by token hash and by user.
type RedisRepo struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisRepo(rdb *redis.Client) *RedisRepo {
	return &RedisRepo{rdb: rdb, now: time.Now}
}

func (r *RedisRepo) Create(ctx context.Context, s *Session) error {
	now := r.now()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.LastUsedAt = now

	ttl := s.ttl(now)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", s.ID)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, key(s.ID), b, ttl)
	pipe.Set(ctx, hashKey(s.RefreshTokenHash), s.ID, ttl)
	pipe.SAdd(ctx, userSetKey(s.UserID), s.ID)
	// The index lives as long as the longest session in it.
	pipe.ExpireGT(ctx, userSetKey(s.UserID), ttl)
	pipe.ExpireNX(ctx, userSetKey(s.UserID), ttl)
	_, err = pipe.Exec(ctx)
	return classify(err)
}

func (r *RedisRepo) Get(ctx context.Context, id string) (Session, error) {
	b, err := r.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		return Session{}, classify(err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *RedisRepo) Consume(ctx context.Context, tokenHash string) (Session, error) {
	id, err := r.rdb.GetDel(ctx, hashKey(tokenHash)).Result()
	if err != nil {
		return Session{}, classify(err)
	}
	s, err := r.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key(id))
	pipe.SRem(ctx, userSetKey(s.UserID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return Session{}, classify(err)
	}
	return s, nil
}

func (r *RedisRepo) ListByUserID(ctx context.Context, userID string) ([]Session, error) {
	ids, err := r.rdb.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, classify(err)
	}

	out := []Session{}
	var stale []interface{}
	for _, id := range ids {
		s, err := r.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(stale) > 0 {
		_ = r.rdb.SRem(ctx, userSetKey(userID), stale...).Err()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *RedisRepo) Delete(ctx context.Context, id string) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key(id))
	pipe.Del(ctx, hashKey(s.RefreshTokenHash))
	pipe.SRem(ctx, userSetKey(s.UserID), id)
	_, err = pipe.Exec(ctx)
	return classify(err)
}

// BlacklistRedisRepo marks revoked access tokens until they would have
// expired anyway.
type BlacklistRedisRepo struct {
	rdb *redis.Client
}

func NewBlacklistRedisRepo(rdb *redis.Client) *BlacklistRedisRepo {
	return &BlacklistRedisRepo{rdb: rdb}
}

func (r *BlacklistRedisRepo) AddToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return classify(r.rdb.Set(ctx, revokedKey(jti), "1", ttl).Err())
}

func (r *BlacklistRedisRepo) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, classify(err)
	}
	return n > 0, nil
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrNotFound
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
