package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/navbat/internal/api/router"
	appconfig "github.com/clinicdesk/navbat/internal/config"
	"github.com/clinicdesk/navbat/internal/observability/metrics"
	"github.com/clinicdesk/navbat/internal/queue"
	"github.com/clinicdesk/navbat/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting navbat queue API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queueMetrics := metrics.NewQueueMetrics(nil)

	repo, cleanup := buildRepository(ctx, cfg, logger)
	defer cleanup()

	svc := queue.NewService(repo, cfg.AvgServiceTime, cfg.StatsWindow, queueMetrics, logger)
	handler := queue.NewHandler(svc, logger)

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		Queue:              handler,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	// Retention purge runs in-process; the endpoint stays for manual use.
	purger := queue.NewPurger(svc, cfg.RetentionDays, logger).WithInterval(cfg.PurgeInterval)
	go purger.Run(ctx)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildRepository picks the authoritative store: Postgres when
// DATABASE_URL is set, otherwise the in-memory store, with the shared
// Redis number allocator when Redis is reachable.
func buildRepository(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (queue.Repository, func()) {
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		if err := pool.Ping(ctx); err != nil {
			logger.Error("database not reachable", "error", err)
			os.Exit(1)
		}
		logger.Info("using postgres queue store")
		return queue.NewPostgresRepository(pool), pool.Close
	}

	if rdb := buildRedisClient(ctx, cfg, logger); rdb != nil {
		logger.Info("using in-memory queue store with redis number allocator")
		repo := queue.NewInMemoryRepositoryWithNumbers(queue.NewRedisNumberSource(rdb))
		return repo, func() { _ = rdb.Close() }
	}

	logger.Info("using in-memory queue store")
	return queue.NewInMemoryRepository(), func() {}
}

// buildRedisClient returns a verified Redis client or nil when disabled or
// unreachable.
func buildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, falling back to local numbering", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}
