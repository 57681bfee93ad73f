package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"netmon-auth/internal/config"
	"netmon-auth/internal/database"
	"netmon-auth/internal/handler"
	"netmon-auth/internal/metrics"
	"netmon-auth/internal/middleware"
	"netmon-auth/internal/password"
	"netmon-auth/internal/repository"
	"netmon-auth/internal/router"
	"netmon-auth/internal/service"
	"netmon-auth/internal/token"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

// New connects storage, applies migrations, bootstraps the admin account and
// assembles the HTTP server.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	slog.Info("connecting to database", "driver", cfg.DBDriver)
	db, err := database.New(ctx, database.Options{
		Driver:          cfg.DBDriver,
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &App{db: db, cleanupFuncs: []func(){db.Close}}

	if err := db.EnsureSchema(ctx); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	accounts, err := repository.NewAccountRepository(db)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	slog.Info("database ready")

	tokens, err := token.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	hasher := password.NewHasher(cfg.BcryptCost)
	accountService := service.NewAccountService(accounts, hasher, tokens)

	if _, err := accountService.EnsureAdmin(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to bootstrap admin account: %w", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	m.RegisterDB(db.SQL, cfg.DBDriver)

	clientIPs := middleware.NewClientIPResolver(cfg.TrustedProxies)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.LoginRateLimitRPM).
		WithObserver(m).
		WithClientIPResolver(clientIPs)
	if cfg.RedisURL != "" {
		client, err := newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.cleanup()
			return nil, err
		}
		a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = client.Close() })
		rateLimitMiddleware.WithSharedLoginLimiter(
			middleware.NewRedisLimiter(client, cfg.LoginRateLimitRPM, time.Minute, "netmon:ratelimit"))
	}

	appRouter := router.New(
		cfg,
		m,
		clientIPs,
		middleware.NewAuthMiddleware(accountService),
		rateLimitMiddleware,
		handler.NewAuthHandler(accountService, m),
		handler.NewUserHandler(accountService, m),
		handler.NewAdminHandler(accountService, m),
		handler.NewHealthHandler(db),
	)

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// Login limiting falls back to the in-process budget until Redis answers.
		slog.Warn("redis unreachable at startup", "addr", opts.Addr, "error", err)
	} else {
		slog.Info("shared login rate limiter enabled", "addr", opts.Addr)
	}

	return client, nil
}

// Handler exposes the routed handler, mainly for in-process tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	return a.Shutdown()
}

// Shutdown drains in-flight requests, then releases the pool and clients.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := a.server.Shutdown(ctx)
	a.cleanup()
	if err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}
