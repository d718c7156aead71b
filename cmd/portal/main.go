package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"partner-portal/internal/account"
	"partner-portal/internal/config"
	"partner-portal/internal/gateway"
	"partner-portal/internal/httpapi"
	"partner-portal/internal/metrics"
	"partner-portal/internal/mfa"
	"partner-portal/internal/session"
	"partner-portal/pkg/logger"
	"partner-portal/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// gateTTL outlives the longest login call, so a crashed holder's slot is released.
const gateTTL = 30 * time.Second

const sweepInterval = 10 * time.Minute

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	m := metrics.New()

	storage, gate, closeStorage, err := openStorage(rootCtx, cfg, log)
	if err != nil {
		log.Error("session storage init failed", "driver", cfg.Storage.Driver, "err", err)
		os.Exit(1)
	}
	defer closeStorage()

	// Every page fans out to the same backend host; keep enough idle connections for it.
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
	}
	backend := gateway.NewClient(cfg.API.BaseURL,
		gateway.WithHTTPClient(&http.Client{Transport: transport}),
		gateway.WithTimeout(cfg.API.Timeout),
		gateway.WithLogger(log),
		gateway.WithMetrics(m),
	)
	enrollments := mfa.NewRegistry(cfg.Login.EnrollTTL)
	limiter := httpapi.NewLimiter(cfg.Login.Rate, cfg.Login.Burst)

	h := httpapi.Handlers{
		Accounts:    account.NewService(backend, account.WithLogger(log), account.WithMetrics(m), account.WithLoginTimeout(cfg.API.LoginTimeout)),
		Storage:     storage,
		Enrollments: enrollments,
		Gate:        gate,
		Limiter:     limiter,
		Metrics:     m,
		Cookies:     session.CookieOptions{Secure: cfg.Session.CookieSecure, Domain: cfg.Session.CookieDomain},
		SessionTTL:  cfg.Session.TTL,
		LoginPath:   cfg.Guard.LoginPath,
	}
	r := newRouter(log, h, m, routerConfig{PublicRoutes: cfg.Guard.PublicRoutes, LoginPath: cfg.Guard.LoginPath})

	go enrollments.Run(rootCtx, time.Minute)
	go pruneLimiter(rootCtx, limiter, time.Minute)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("portal listening", "addr", srv.Addr, "env", cfg.App.Env, "backend", cfg.API.BaseURL, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// openStorage selects the durable session storage and the submission gate that goes with it.
// Postgres rows are swept in the background until ctx is done.
func openStorage(ctx context.Context, cfg config.Config, log *slog.Logger) (session.Storage, utils.Gate, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageRedis:
		rdb, err := utils.OpenRedis(ctx, cfg.RedisOptions())
		if err != nil {
			return nil, nil, nil, err
		}
		gate := utils.NewRedisGate(rdb, "portal:gate:", 1, gateTTL)
		return session.NewRedisStorage(rdb, cfg.Session.TTL), gate, func() { _ = rdb.Close() }, nil
	case config.StoragePostgres:
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, nil, nil, err
		}
		pg := session.NewPostgresStorage(db, cfg.Session.TTL)
		if err := pg.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		go pg.Run(ctx, sweepInterval, log)
		return pg, utils.NewLocalGate(1), closeDB(db), nil
	default:
		return session.NewMemoryStorage(), utils.NewLocalGate(1), func() {}, nil
	}
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

func pruneLimiter(ctx context.Context, l *httpapi.Limiter, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Prune()
		}
	}
}
