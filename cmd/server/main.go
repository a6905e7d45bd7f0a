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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/qapulse/internal/adapter/classifier"
	"github.com/pscheid92/qapulse/internal/adapter/httpserver"
	"github.com/pscheid92/qapulse/internal/adapter/memory"
	"github.com/pscheid92/qapulse/internal/adapter/metrics"
	"github.com/pscheid92/qapulse/internal/adapter/postgres"
	"github.com/pscheid92/qapulse/internal/adapter/redis"
	"github.com/pscheid92/qapulse/internal/app"
	"github.com/pscheid92/qapulse/internal/broadcast"
	"github.com/pscheid92/qapulse/internal/domain"
	"github.com/pscheid92/qapulse/internal/platform/auth"
	"github.com/pscheid92/qapulse/internal/platform/config"
	"github.com/pscheid92/qapulse/internal/platform/logging"
	"github.com/pscheid92/qapulse/internal/platform/retry"
	"github.com/pscheid92/qapulse/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout   = 10 * time.Second
	connectTimeout    = 60 * time.Second
	sweepLockTTL      = 30 * time.Second
	dbConnectAttempts = 8
)

type repositories struct {
	questions domain.QuestionRepository
	answers   domain.AnswerRepository
	users     domain.UserRepository
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(ctx context.Context, cfg *config.Config, clock clockwork.Clock, reg prometheus.Registerer) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	tracer := postgres.NewMetricsTracer(clock, metrics.NewDatabaseMetrics(reg))
	policy := retry.Policy{
		MaxAttempts:    dbConnectAttempts,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Clock:          clock,
	}

	pool, err := postgres.ConnectWithRetry(ctx, cfg.DatabaseURL, tracer, policy)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

// setupStore picks PostgreSQL when DATABASE_URL is set and the in-memory store
// otherwise. The returned function releases the store.
func setupStore(ctx context.Context, cfg *config.Config, clock clockwork.Clock, reg prometheus.Registerer) (repositories, []httpserver.HealthCheck, func()) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store; data is lost on restart")
		repos, err := newMemoryRepositories(ctx, cfg, clock)
		if err != nil {
			slog.Error("Failed to seed admin", "error", err)
			os.Exit(1)
		}
		return repos, nil, func() {}
	}

	pool := setupDB(ctx, cfg, clock, reg)
	repos := repositories{
		questions: postgres.NewQuestionRepo(pool),
		answers:   postgres.NewAnswerRepo(pool),
		users:     postgres.NewUserRepo(pool),
	}
	checks := []httpserver.HealthCheck{{Name: "postgres", Check: pool.Ping}}
	return repos, checks, pool.Close
}

// newMemoryRepositories builds the in-memory store. seed-admin cannot reach
// it, so the admin from ADMIN_USERNAME/ADMIN_PASSWORD is created here.
func newMemoryRepositories(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (repositories, error) {
	store := memory.NewStore(clock)
	repos := repositories{
		questions: store.Questions(),
		answers:   store.Answers(),
		users:     store.Users(),
	}

	if !cfg.AdminBootstrapEnabled() {
		slog.Warn("ADMIN_USERNAME/ADMIN_PASSWORD not set, no admin account exists")
		return repos, nil
	}
	admin, err := app.SeedAdmin(ctx, store.Users(), cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		return repositories{}, err
	}
	slog.Info("Admin seeded in memory store", "user_id", admin.ID, "username", admin.Username)
	return repos, nil
}

func setupRedis(ctx context.Context, cfg *config.Config, breakerMetrics *metrics.CircuitBreakerMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, redis.NewCircuitBreakerHook(breakerMetrics))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func runGracefulShutdown(ctx context.Context, srv *httpserver.Server, enricher *app.Enricher, sweeper *app.Sweeper, registry *broadcast.Registry) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// In-flight enrichments still publish, so the registry stops last.
		if err := enricher.Wait(shutdownCtx); err != nil {
			slog.Warn("Enrichment tasks still running at shutdown", "error", err)
		}
		sweeper.Stop()
		registry.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "version", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	breakerMetrics := metrics.NewCircuitBreakerMetrics(reg)

	repos, healthChecks, closeStore := setupStore(ctx, cfg, clock, reg)
	defer closeStore()

	registry := broadcast.NewRegistry(clock, cfg.MaxWebSocketConnections, metrics.NewWebSocketMetrics(reg))

	// Pass nil interfaces explicitly to avoid typed nils.
	var publisher domain.EventPublisher = registry
	var sweepLock app.SweepLock
	if cfg.RedisURL != "" {
		redisClient := setupRedis(ctx, cfg, breakerMetrics)
		defer func() { _ = redisClient.Close() }()

		relay := redis.NewRelay(redisClient, registry, clock, metrics.NewRelayMetrics(reg))
		go func() {
			if err := relay.Start(ctx); err != nil {
				slog.Error("Event relay stopped, events reach local viewers only", "error", err)
			}
		}()
		publisher = relay
		sweepLock = redis.NewSweepLock(redisClient, instanceID(), sweepLockTTL)
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	var sentimentClassifier domain.Classifier
	var suggester domain.Suggester
	if cfg.ClassifierEnabled() {
		client := classifier.New(classifier.Config{
			BaseURL: cfg.ClassifierBaseURL,
			APIKey:  cfg.ClassifierAPIKey,
			Model:   cfg.ClassifierModel,
			Timeout: cfg.ClassifierTimeout,
		}, clock, metrics.NewClassifierMetrics(reg), breakerMetrics)
		sentimentClassifier = client
		suggester = client
	} else {
		slog.Warn("CLASSIFIER_API_KEY not set, sentiment settles to Neutral and suggestions use the fallback")
	}

	enricher := app.NewEnricher(repos.questions, sentimentClassifier, publisher, cfg.ClassifierTimeout, clock, metrics.NewEnrichmentMetrics(reg))
	sweeper := app.NewSweeper(repos.questions, publisher, sweepLock, cfg.SweepStaleAfter, clock)
	go sweeper.Start(ctx)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL, clock)
	appSvc := app.NewService(repos.questions, repos.answers, repos.users, publisher, enricher, suggester, tokens)

	srv := httpserver.NewServer(cfg, appSvc, registry, reg, healthChecks, clock)

	done := runGracefulShutdown(ctx, srv, enricher, sweeper, registry)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
