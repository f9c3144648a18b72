package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/admin"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/auth"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/config"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/event"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/gateway"
	handler "github.com/utafrali/EcommerceGo/taxonomy/internal/handler/http"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/lookup"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/lookup/memory"
	redislookup "github.com/utafrali/EcommerceGo/taxonomy/internal/lookup/redis"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/session"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/source"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/source/httpsource"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/source/postgres"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/store"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/database"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/health"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/httpclient"
	pkgkafka "github.com/utafrali/EcommerceGo/taxonomy/pkg/kafka"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/middleware"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/tracing"
)

const (
	warmConcurrency   = 4
	limiterVisitorTTL = 3 * time.Minute
	readMaxAge        = time.Minute
	idempotencyTTL    = 24 * time.Hour
	shutdownTimeout   = 10 * time.Second
)

// App wires together all dependencies and runs the taxonomy service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	instanceID string

	gateway  *gateway.Gateway
	sessions *session.Registry
	limiter  *middleware.RateLimiter

	pool     *pgxpool.Pool
	redis    *redis.Client
	producer *pkgkafka.Producer
	consumer *pkgkafka.Consumer
	dlq      *pkgkafka.DLQProducer

	stopTracing func(context.Context) error
	httpServer  *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	return newApp(cfg, logger, prometheus.DefaultRegisterer)
}

func newApp(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{
		cfg:        cfg,
		logger:     logger,
		instanceID: instanceID(),
	}
	defer func() {
		if err != nil {
			_ = a.release()
			if a.stopTracing != nil {
				_ = a.stopTracing(context.Background())
			}
		}
	}()

	a.stopTracing, err = tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	healthHandler := health.NewHandler()

	// Category source.
	var src source.Source
	switch cfg.CategorySource {
	case config.SourcePostgres:
		pgCfg := cfg.Postgres()
		a.pool, err = database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err = database.RunMigrations(ctx, a.pool, postgres.Migrations(), logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		if err = database.RegisterPoolMetrics(reg, a.pool, "taxonomy"); err != nil {
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)

		pool := a.pool
		healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
		src = postgres.New(a.pool)
	default:
		client := httpclient.NewCircuitBreakerClient(httpclient.New(cfg.HTTPClient()), cfg.CircuitBreaker(), logger)
		healthHandler.RegisterCritical("category-service", func(context.Context) error {
			if client.State() == gobreaker.StateOpen {
				return httpclient.ErrCircuitOpen
			}
			return nil
		})
		src = httpsource.New(cfg.CategoryServiceURL, client)
		logger.Info("category service client initialized",
			slog.String("url", cfg.CategoryServiceURL),
			slog.Duration("timeout", cfg.FetchTimeout()),
		)
	}

	// Lookup cache.
	var lookups lookup.Cache
	switch cfg.LookupCache {
	case config.CacheRedis:
		a.redis, err = database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))

		rdb := a.redis
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		lookups = redislookup.New(a.redis, cfg.LookupTTL())
	default:
		lookups = memory.New(cfg.LookupTTL())
	}

	// Build the dependency graph.
	st := store.New()
	if err = gateway.RegisterStoreMetrics(reg, st); err != nil {
		return nil, fmt.Errorf("register store metrics: %w", err)
	}
	a.gateway = gateway.New(src, st, lookups, gateway.Config{FetchTimeout: cfg.FetchTimeout()}, logger)

	a.sessions = session.NewRegistry(session.Config{
		IdleTTL:       cfg.SessionIdleTTL(),
		SweepInterval: time.Minute,
	}, logger)

	var publisher admin.Publisher
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, a.instanceID, logger)
	}
	adminService := admin.NewService(src, st, lookups, publisher, a.sessions, logger)

	if cfg.KafkaEnabled {
		var seen pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL)
		if a.redis != nil {
			seen = pkgkafka.NewRedisIdempotencyStore(a.redis, "taxonomy:event:"+a.instanceID+":", idempotencyTTL)
		}
		consumer := event.NewConsumer(adminService, a.instanceID, logger)
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		// Every instance keeps its own store, so each one joins its own group
		// and sees every change.
		a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID + "-" + a.instanceID,
			Topics:   event.Topics(),
			MinBytes: 1,
			MaxBytes: 10e6, // 10 MB
		}, pkgkafka.IdempotentHandler(seen, consumer.Handle, logger), logger).WithDLQ(a.dlq)

		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
		logger.Info("kafka initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("instance_id", a.instanceID),
		)
	}

	// Admin token validation.
	var validateToken middleware.TokenValidator
	if cfg.JWTSecret != "" {
		tokens, verr := auth.NewValidator(cfg.JWTSecret)
		if verr != nil {
			return nil, fmt.Errorf("init token validator: %w", verr)
		}
		validateToken = tokens.Validate
	} else {
		logger.Warn("JWT_SECRET is not set, admin API is disabled")
	}

	a.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, limiterVisitorTTL)

	cors := middleware.DefaultCORSConfig()
	cors.Environment = cfg.Environment
	cors.AllowedOrigins = cfg.CORSAllowedOrigins

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		CORS:              cors,
		RateLimiter:       a.limiter,
		ValidateToken:     validateToken,
		ReadMaxAge:        readMaxAge,
		RequestTimeout:    cfg.FetchTimeout() + 5*time.Second,
		PprofEnabled:      cfg.PprofEnabled,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
	},
		handler.NewTaxonomyHandler(a.gateway, adminService, logger),
		handler.NewSelectionHandler(a.sessions, logger),
		handler.NewFilterHandler(a.sessions, logger),
		healthHandler,
		logger,
	)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.FetchTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and background workers, blocking until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.WarmOnStart {
		a.warm(ctx)
	}

	errCh := make(chan error, 2)

	go a.sessions.Run(ctx)
	go a.limiter.Run(ctx)

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// warm prefetches the tree. A failure is logged and the tree is then filled
// on demand.
func (a *App) warm(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*a.cfg.FetchTimeout())
	defer cancel()

	start := time.Now()
	if err := a.gateway.Warm(ctx, warmConcurrency); err != nil {
		a.logger.Warn("taxonomy warm-up failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return
	}
	a.logger.Info("taxonomy warmed", slog.Duration("elapsed", time.Since(start)))
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.sessions.Close()

	if err := a.release(); err != nil {
		errs = append(errs, err)
	}

	if err := a.stopTracing(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release closes the connections opened by newApp. It is safe on a partly
// built App.
func (a *App) release() error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}

// instanceID names this process on the event bus so it can recognise its own
// events.
func instanceID() string {
	suffix := uuid.New().String()[:8]
	if host, err := os.Hostname(); err == nil && host != "" {
		return host + "-" + suffix
	}
	return suffix
}
