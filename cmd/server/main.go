package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/grove/internal/adapter/httpserver"
	"github.com/pscheid92/grove/internal/adapter/metrics"
	"github.com/pscheid92/grove/internal/adapter/postgres"
	"github.com/pscheid92/grove/internal/adapter/redis"
	"github.com/pscheid92/grove/internal/app"
	"github.com/pscheid92/grove/internal/broadcast"
	"github.com/pscheid92/grove/internal/platform/config"
	"github.com/pscheid92/grove/internal/platform/logging"
	"github.com/pscheid92/grove/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	connectTimeout    = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
	redisBreakerDelay = 10 * time.Second
)

type appMetrics struct {
	hub     *metrics.HubMetrics
	bus     *metrics.BusMetrics
	http    *metrics.HTTPMetrics
	redis   *metrics.RedisMetrics
	breaker *metrics.BreakerMetrics
	db      *metrics.DBMetrics
	handler http.Handler
}

func setupMetrics() appMetrics {
	reg := metrics.NewRegistry()
	return appMetrics{
		hub:     metrics.NewHubMetrics(reg),
		bus:     metrics.NewBusMetrics(reg),
		http:    metrics.NewHTTPMetrics(reg),
		redis:   metrics.NewRedisMetrics(reg),
		breaker: metrics.NewBreakerMetrics(reg),
		db:      metrics.NewDBMetrics(reg),
		handler: metrics.Handler(reg),
	}
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func startupPolicy(dependency string) retry.Policy {
	p := retry.Startup
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Connection attempt failed, retrying", "dependency", dependency, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return p
}

func setupDB(ctx context.Context, cfg *config.Config, m appMetrics) (*pgxpool.Pool, error) {
	return retry.Do(ctx, startupPolicy("postgres"), func(ctx context.Context) (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		return postgres.Connect(ctx, cfg.DatabaseURL, m.db)
	})
}

func setupRedis(ctx context.Context, cfg *config.Config, m appMetrics) (*goredis.Client, error) {
	hooks := []goredis.Hook{
		redis.NewMetricsHook(m.redis),
		redis.NewCircuitBreakerHook(redisBreakerDelay, m.breaker),
	}
	return retry.Do(ctx, startupPolicy("redis"), func(ctx context.Context) (*goredis.Client, error) {
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		return redis.NewClient(ctx, cfg.RedisURL, hooks...)
	})
}

func run(ctx context.Context, cfg *config.Config, clock clockwork.Clock) error {
	m := setupMetrics()

	pool, err := setupDB(ctx, cfg, m)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	redisClient, err := setupRedis(ctx, cfg, m)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	memberships := postgres.NewMembershipRepo(pool, postgres.DefaultBreakerSettings, m.breaker)

	hub := broadcast.NewHub(broadcast.Options{
		BufferSize:  cfg.SessionBufferSize,
		MaxSessions: cfg.MaxStreamSessions,
		Workers:     cfg.DeliveryWorkers,
		Clock:       clock,
		Metrics:     m.hub,
	})
	monitor := broadcast.NewMonitor(hub, clock, cfg.PruneInterval)
	notifier := app.NewNotifier(hub, memberships, cfg.LookupTimeout)
	listener := app.NewListener(redis.NewSubscriber(redisClient), cfg.EventTopic, memberships, notifier, m.bus)

	healthChecks := []httpserver.HealthCheck{
		{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		{Name: "postgres", Check: pool.Ping},
	}
	srv := httpserver.NewServer(cfg, hub, clock, healthChecks, m.http, m.handler)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return listener.Run(gctx)
	})

	g.Go(func() error {
		monitor.Run(gctx)
		return nil
	})

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")

		// Open streams hold their requests; end them before draining the server.
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "topic", cfg.EventTopic)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, clock); err != nil {
		slog.Error("Fatal error", "error", err)
		stop()
		os.Exit(1)
	}

	slog.Info("Shutdown complete")
}
