package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/gatekeep/gatekeep-go/internal/config"
	"github.com/gatekeep/gatekeep-go/internal/crypto"
	"github.com/gatekeep/gatekeep-go/internal/handler"
	"github.com/gatekeep/gatekeep-go/internal/repository"
	"github.com/gatekeep/gatekeep-go/internal/service"
	"github.com/gatekeep/gatekeep-go/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsLocal() {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	userRepo, closeRepo, err := openUserRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	denylist, closeDenylist, err := openDenylist(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDenylist()

	tokens, err := crypto.NewTokenIssuer(crypto.TokenConfig{
		Secret:   cfg.JWTSecret,
		TTL:      cfg.SessionTTL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	cookies := session.NewCookieManager(session.CookieConfig{
		Name:   cfg.CookieName,
		Secure: cfg.CookieSecure,
	})
	if !cookies.Secure() {
		logger.Warn("session cookie is not marked Secure; only acceptable for local development", "env", cfg.Env)
	}

	authService, err := service.NewAuthService(userRepo, crypto.NewHasher(cfg.BcryptCost), tokens, denylist, logger)
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}
	authHandler := handler.NewAuthHandler(authService, cookies, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewRouter(handler.RouterConfig{Logger: logger, Production: cfg.IsProduction()}, authHandler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env, "database", cfg.DatabaseDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openUserRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (repository.UserRepository, func(), error) {
	switch cfg.DatabaseDriver {
	case repository.DriverMemory:
		logger.Warn("using in-memory user store; accounts are lost on restart")
		return repository.NewMemoryUserRepository(), func() {}, nil

	case repository.DriverPostgres:
		pool, err := repository.NewPostgresPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		if cfg.DatabaseMigrate {
			db := stdlib.OpenDBFromPool(pool)
			err := repository.Migrate(ctx, repository.DriverPostgres, db)
			db.Close()
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return repository.NewPostgresUserRepository(pool), pool.Close, nil

	default:
		db, err := repository.NewDB(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		if cfg.DatabaseMigrate {
			if err := repository.Migrate(ctx, repository.DriverMySQL, db); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		return repository.NewMySQLUserRepository(db), closeDB(db, logger), nil
	}
}

func closeDB(db *sql.DB, logger *slog.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing database", "error", err)
		}
	}
}

func openDenylist(ctx context.Context, cfg config.Config, logger *slog.Logger) (session.Denylist, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("token denylist disabled; logout only clears the session cookie")
		return session.NopDenylist{}, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return session.NewRedisDenylist(client), func() { client.Close() }, nil
}
