package utils

import (
	"context"
	"crypto/tls"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestOpenRedis_AuthAndDB(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")
	ctx := context.Background()

	_, err := OpenRedis(ctx, RedisConfig{Addr: mr.Addr(), Password: "hunter2"})
	if err == nil {
		t.Fatalf("expected wrong password to fail the ping")
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Fatalf("password leaked into error: %v", err)
	}

	rdb, err := OpenRedis(ctx, RedisConfig{Addr: mr.Addr(), Password: "s3cret", DB: 3})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rdb.Close()
	if err := rdb.Set(ctx, "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := mr.DB(3).Get("k"); got != "v" {
		t.Fatalf("expected key in db 3, got %q", got)
	}
	if mr.Exists("k") {
		t.Fatalf("key should not land in db 0")
	}
}

func TestRedisOptions(t *testing.T) {
	if _, err := (RedisConfig{}).options(); err == nil {
		t.Fatalf("expected error for missing addr")
	}
	if _, err := (RedisConfig{Addr: "cache:6379", DB: -1}).options(); err == nil {
		t.Fatalf("expected error for negative db")
	}

	opts, err := RedisConfig{Addr: "cache.internal:6380", TLS: true}.withDefaults().options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tls.VersionTLS12 || opts.TLSConfig.ServerName != "cache.internal" {
		t.Fatalf("unexpected tls config %+v", opts.TLSConfig)
	}
	if opts.PoolSize != 20 {
		t.Fatalf("expected default pool size, got %d", opts.PoolSize)
	}

	opts, _ = RedisConfig{Addr: "cache:6379"}.options()
	if opts.TLSConfig != nil {
		t.Fatalf("plain config should not dial tls")
	}
}

func TestOpenRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := OpenRedis(context.Background(), RedisConfig{Addr: addr}); err == nil {
		t.Fatalf("expected ping failure for closed server")
	}
}
