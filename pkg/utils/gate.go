package utils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Gate admits at most limit concurrent holders per key. It backs the
// duplicate-submission check on login and enrollment.
type Gate interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

var errGateKey = errors.New("gate: key is required")

var gateAcquireScript = redis.NewScript(`
-- KEYS[1] = counter key
-- ARGV[1] = limit
-- ARGV[2] = ttl_ms
local current = redis.call('INCR', KEYS[1])
if current == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return 1
`)

var gateReleaseScript = redis.NewScript(`
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// RedisGate shares the cap across portal replicas. The key TTL releases slots
// of a crashed holder.
type RedisGate struct {
	rdb    *redis.Client
	prefix string
	limit  int
	ttl    time.Duration
}

func NewRedisGate(rdb *redis.Client, prefix string, limit int, ttl time.Duration) *RedisGate {
	if limit <= 0 {
		limit = 1
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisGate{rdb: rdb, prefix: prefix, limit: limit, ttl: ttl}
}

func (g *RedisGate) Acquire(ctx context.Context, key string) (func(), bool, error) {
	if key == "" {
		return nil, false, errGateKey
	}
	full := g.prefix + key
	res, err := gateAcquireScript.Run(ctx, g.rdb, []string{full}, g.limit, g.ttl.Milliseconds()).Int()
	if err != nil {
		return nil, false, err
	}
	if res != 1 {
		return func() {}, false, nil
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			_ = gateReleaseScript.Run(context.WithoutCancel(ctx), g.rdb, []string{full}).Err()
		})
	}
	return release, true, nil
}

// LocalGate is the single-process Gate used when Redis is not configured.
type LocalGate struct {
	mu    sync.Mutex
	limit int
	held  map[string]int
}

func NewLocalGate(limit int) *LocalGate {
	if limit <= 0 {
		limit = 1
	}
	return &LocalGate{limit: limit, held: map[string]int{}}
}

func (g *LocalGate) Acquire(_ context.Context, key string) (func(), bool, error) {
	if key == "" {
		return nil, false, errGateKey
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] >= g.limit {
		return func() {}, false, nil
	}
	g.held[key]++
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.held[key] <= 1 {
				delete(g.held, key)
				return
			}
			g.held[key]--
		})
	}, true, nil
}
