package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := Config{App: AppConfig{Env: "local", Port: 8080}}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Storage.Driver != StorageMemory {
		t.Fatalf("expected memory storage default, got %q", c.Storage.Driver)
	}
	if c.API.LoginTimeout != 15*time.Second {
		t.Fatalf("expected 15s login timeout, got %s", c.API.LoginTimeout)
	}
	if c.Guard.LoginPath != "/" {
		t.Fatalf("expected login path /, got %q", c.Guard.LoginPath)
	}
	if len(c.Guard.PublicRoutes) != 3 {
		t.Fatalf("expected default public routes, got %v", c.Guard.PublicRoutes)
	}
	if c.Login.EnrollTTL != 10*time.Minute {
		t.Fatalf("expected 10m enroll ttl, got %s", c.Login.EnrollTTL)
	}
}

func TestValidate_ProductionRejectsMemoryStorage(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "production", Port: 8080},
		API:     APIConfig{BaseURL: "https://api.example.com"},
		Storage: StorageConfig{Driver: StorageMemory},
	}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error for memory storage in production")
	}
	if !strings.Contains(err.Error(), "PORTAL_STORAGE") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "production", Port: 8080},
		API:     APIConfig{BaseURL: "https://api.example.com"},
		Storage: StorageConfig{Driver: StoragePostgres},
		DB:      DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "portal", SSLMode: ""},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_ProductionForcesSecureCookies(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "production", Port: 8080},
		API:     APIConfig{BaseURL: "https://api.example.com"},
		Storage: StorageConfig{Driver: StorageRedis},
		Redis:   RedisConfig{Host: "localhost", Port: 6379},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !c.Session.CookieSecure {
		t.Fatalf("expected secure cookies in production")
	}
	if !c.Redis.TLS || !c.RedisOptions().TLS {
		t.Fatalf("expected redis tls in production")
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "moon", Port: 0},
		API:     APIConfig{BaseURL: "not a url"},
		Storage: StorageConfig{Driver: "etcd"},
	}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "APP_PORT", "PORTAL_API_BASE", "PORTAL_STORAGE"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err.Error())
		}
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("PORTAL_API_BASE", "http://backend:8000/")
	t.Setenv("PORTAL_STORAGE", "redis")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_PASSWORD", "pw")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("PORTAL_PUBLIC_ROUTES", "/, /login ,/enroll,/help")
	t.Setenv("PORTAL_SESSION_TTL", "2h")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.API.BaseURL != "http://backend:8000" {
		t.Fatalf("expected trailing slash trimmed, got %q", c.API.BaseURL)
	}
	if c.RedisAddr() != "cache:6380" {
		t.Fatalf("unexpected redis addr %q", c.RedisAddr())
	}
	if ro := c.RedisOptions(); ro.Password != "pw" || ro.DB != 2 || ro.TLS {
		t.Fatalf("unexpected redis options %+v", ro)
	}
	if c.HTTPAddr() != ":9090" {
		t.Fatalf("unexpected http addr %q", c.HTTPAddr())
	}
	if len(c.Guard.PublicRoutes) != 4 || c.Guard.PublicRoutes[3] != "/help" {
		t.Fatalf("unexpected public routes %v", c.Guard.PublicRoutes)
	}
	if c.Session.TTL != 2*time.Hour {
		t.Fatalf("unexpected session ttl %s", c.Session.TTL)
	}
}

func TestValidate_RejectsNegativeRedisDB(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "dev", Port: 8080},
		Storage: StorageConfig{Driver: StorageRedis},
		Redis:   RedisConfig{Host: "cache", Port: 6379, DB: -1},
	}
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "REDIS_DB") {
		t.Fatalf("expected REDIS_DB error, got %v", err)
	}
}

func TestLoad_RejectsMalformedRedisDB(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("PORTAL_STORAGE", "redis")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("REDIS_DB", "zero")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REDIS_DB") {
		t.Fatalf("expected REDIS_DB parse error, got %v", err)
	}
}

func TestPostgresDSN_QuotesPassword(t *testing.T) {
	c := Config{DB: DBConfig{Host: "db", Port: 5432, User: "u", Password: "p w", Name: "portal", SSLMode: "disable"}}
	want := "host=db port=5432 user=u password='p w' dbname=portal sslmode=disable application_name=partner-portal"
	if got := c.PostgresDSN(); got != want {
		t.Fatalf("unexpected dsn %q", got)
	}
}
