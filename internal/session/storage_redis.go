package session

import (
	"context"
	"fmt"
	"time"

	"partner-portal/internal/rbac"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "portal:session:"

// RedisStorage keeps one hash per device scope. Token and role are written in a
// single MULTI/EXEC so readers never observe one without the other.
type RedisStorage struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStorage(rdb *redis.Client, ttl time.Duration) *RedisStorage {
	return &RedisStorage{rdb: rdb, ttl: ttl}
}

func redisKey(scope string) string { return redisKeyPrefix + scope }

func (r *RedisStorage) Load(ctx context.Context, scope string) (Session, error) {
	vals, err := r.rdb.HGetAll(ctx, redisKey(scope)).Result()
	if err != nil {
		return Session{}, fmt.Errorf("session: redis load: %w", err)
	}
	if len(vals) == 0 {
		return Session{}, ErrNotFound
	}
	s := Session{Token: vals["token"], Role: rbac.Role(vals["role"])}
	if !s.Complete() {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *RedisStorage) Save(ctx context.Context, scope string, s Session) error {
	if !s.Complete() {
		return ErrIncompleteSession
	}
	key := redisKey(scope)
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, "token", s.Token, "role", s.Role.String())
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis save: %w", err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, scope string) error {
	if err := r.rdb.Del(ctx, redisKey(scope)).Err(); err != nil {
		return fmt.Errorf("session: redis delete: %w", err)
	}
	return nil
}
