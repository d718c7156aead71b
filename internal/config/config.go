package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"partner-portal/pkg/utils"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the portal process.
// Values come from env, optionally seeded from a local .env file.
// No handler should read raw environment variables.
type Config struct {
	App     AppConfig
	API     APIConfig
	Storage StorageConfig
	DB      DBConfig
	Redis   RedisConfig
	Session SessionConfig
	Guard   GuardConfig
	Login   LoginConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// APIConfig points at the external backend the portal fronts.
type APIConfig struct {
	BaseURL      string
	Timeout      time.Duration
	LoginTimeout time.Duration
}

// StorageDriver selects the durable session storage.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"
	StorageRedis    StorageDriver = "redis"
	StoragePostgres StorageDriver = "postgres"
)

type StorageConfig struct {
	Driver StorageDriver
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// TLS is forced on in production.
	TLS bool
}

type SessionConfig struct {
	TTL          time.Duration
	CookieSecure bool
	CookieDomain string
}

type GuardConfig struct {
	PublicRoutes []string
	LoginPath    string
}

type LoginConfig struct {
	// Rate is the sustained number of login/enrollment submissions per second per client IP.
	Rate      float64
	Burst     int
	EnrollTTL time.Duration
}

func Load() (Config, error) {
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PORTAL_API_BASE")), "/")
	c.API.Timeout = mustDuration("PORTAL_API_TIMEOUT")
	c.API.LoginTimeout = mustDuration("PORTAL_LOGIN_TIMEOUT")

	c.Storage.Driver = StorageDriver(strings.ToLower(strings.TrimSpace(os.Getenv("PORTAL_STORAGE"))))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	if c.Storage.Driver == StoragePostgres {
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Storage.Driver == StorageRedis {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("REDIS_DB must be an integer, got %q", v))
		}
		c.Redis.DB = n
	}
	c.Redis.TLS = optBool("REDIS_TLS")

	c.Session.TTL = mustDuration("PORTAL_SESSION_TTL")
	c.Session.CookieSecure = optBool("PORTAL_COOKIE_SECURE")
	c.Session.CookieDomain = strings.TrimSpace(os.Getenv("PORTAL_COOKIE_DOMAIN"))

	c.Guard.PublicRoutes = splitList(os.Getenv("PORTAL_PUBLIC_ROUTES"))
	c.Guard.LoginPath = strings.TrimSpace(os.Getenv("PORTAL_LOGIN_PATH"))

	if v := strings.TrimSpace(os.Getenv("PORTAL_LOGIN_RATE")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("PORTAL_LOGIN_RATE must be a number, got %q", v))
		}
		c.Login.Rate = f
	}
	if v := strings.TrimSpace(os.Getenv("PORTAL_LOGIN_BURST")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("PORTAL_LOGIN_BURST must be an integer, got %q", v))
		}
		c.Login.Burst = n
	}
	c.Login.EnrollTTL = mustDuration("PORTAL_ENROLL_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate applies defaults in place and reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.API.BaseURL == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("PORTAL_API_BASE is required in production"))
		} else {
			c.API.BaseURL = "http://127.0.0.1:8000"
		}
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("PORTAL_API_BASE must be an absolute URL, got %q", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.LoginTimeout <= 0 {
		// Authentication must not hang the user behind the transport default.
		c.API.LoginTimeout = 15 * time.Second
	}

	switch c.Storage.Driver {
	case "":
		if c.IsProduction() {
			errs = append(errs, errors.New("PORTAL_STORAGE is required in production"))
		} else {
			c.Storage.Driver = StorageMemory
		}
	case StorageMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("PORTAL_STORAGE=memory is not allowed in production"))
		}
	case StorageRedis:
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required for redis storage"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
		if c.Redis.DB < 0 {
			errs = append(errs, fmt.Errorf("REDIS_DB must not be negative, got %d", c.Redis.DB))
		}
		if c.IsProduction() {
			c.Redis.TLS = true
		}
	case StoragePostgres:
		errs = append(errs, c.validateDB()...)
	default:
		errs = append(errs, fmt.Errorf("PORTAL_STORAGE must be one of memory, redis, postgres, got %q", c.Storage.Driver))
	}

	if c.Session.TTL <= 0 {
		c.Session.TTL = 12 * time.Hour
	}
	if c.IsProduction() {
		c.Session.CookieSecure = true
	}

	if len(c.Guard.PublicRoutes) == 0 {
		c.Guard.PublicRoutes = []string{"/", "/login", "/enroll"}
	}
	for _, p := range c.Guard.PublicRoutes {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("PORTAL_PUBLIC_ROUTES entries must start with /, got %q", p))
		}
	}
	if c.Guard.LoginPath == "" {
		c.Guard.LoginPath = "/"
	}

	if c.Login.Rate <= 0 {
		c.Login.Rate = 1
	}
	if c.Login.Burst <= 0 {
		c.Login.Burst = 5
	}
	if c.Login.EnrollTTL <= 0 {
		c.Login.EnrollTTL = 10 * time.Minute
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required for postgres storage"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required for postgres storage"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required for postgres storage"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return utils.PostgresDSN{
		Host:            c.DB.Host,
		Port:            c.DB.Port,
		User:            c.DB.User,
		Password:        c.DB.Password,
		Name:            c.DB.Name,
		SSLMode:         c.DB.SSLMode,
		ApplicationName: "partner-portal",
	}.String()
}

func (c Config) RedisAddr() string {
	return net.JoinHostPort(c.Redis.Host, strconv.Itoa(c.Redis.Port))
}

// RedisOptions is the connection setup for redis storage.
func (c Config) RedisOptions() utils.RedisConfig {
	return utils.RedisConfig{
		Addr:     c.RedisAddr(),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
	}
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func optBool(key string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && b
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
