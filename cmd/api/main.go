// Command api serves the lending HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"lendingapi/internal/auth"
	"lendingapi/internal/book"
	"lendingapi/internal/borrow"
	"lendingapi/internal/config"
	"lendingapi/internal/httpx"
	"lendingapi/internal/platform/openlibrary"
	"lendingapi/internal/session"
	"lendingapi/internal/user"
)

func main() {
	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := openDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()
	logger.Info("database connection OK", "dsn", config.RedactDSN(cfg.DatabaseDSN))

	checks := map[string]pinger{"db": dbPool}

	var (
		sessionRepo   session.Repository
		blacklistRepo session.BlacklistRepository
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}
		sessionRepo = session.NewRedisRepo(rdb)
		blacklistRepo = session.NewBlacklistRedisRepo(rdb)
		checks["redis"] = redisPinger{rdb}
		logger.Info("redis connection OK", "addr", cfg.RedisAddr)
	} else {
		mem := session.NewMemoryRepo()
		sessionRepo, blacklistRepo = mem, mem
		logger.Warn("REDIS_ADDR not set, sessions are kept in memory")
	}

	sessionService := session.NewService(sessionRepo, blacklistRepo)
	userService := user.NewService(user.NewPostgresRepo(dbPool, cfg.DBTimeout), cfg.AdminEmails)
	authService := auth.NewService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, userService, sessionService, logger)
	metadata := openlibrary.NewClient(cfg.OpenLibraryUA, 5, 2)
	bookService := book.NewService(book.NewPostgresRepo(dbPool, cfg.DBTimeout), metadata, logger)
	borrowService := borrow.NewService(borrow.NewPostgresRepo(dbPool, cfg.DBTimeout), cfg.LoanPeriod, logger)

	rateLimiter := httpx.NewRateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer rateLimiter.Stop()

	handler := newRouter(routerDeps{
		logger:      logger,
		guards:      httpx.NewGuards(cfg.JWTSecret, sessionService),
		rateLimiter: rateLimiter,
		corsOrigins: cfg.CORSOrigins,
		maxBody:     cfg.MaxBodyBytes,
		hsts:        cfg.EnableHSTS,
		checks:      checks,
		routes: []registrar{
			auth.NewHTTPHandler(authService),
			user.NewHTTPHandler(userService),
			session.NewHTTPHandler(sessionService),
			book.NewHTTPHandler(bookService),
			borrow.NewHTTPHandler(borrowService),
		},
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
