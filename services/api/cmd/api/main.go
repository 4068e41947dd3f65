package main

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

	"github.com/AfshinJalili/rentabili/libs/health"
	"github.com/AfshinJalili/rentabili/libs/httpmiddleware"
	"github.com/AfshinJalili/rentabili/libs/kafka"
	"github.com/AfshinJalili/rentabili/libs/logging"
	"github.com/AfshinJalili/rentabili/libs/metrics"
	"github.com/AfshinJalili/rentabili/libs/trace"
	"github.com/AfshinJalili/rentabili/services/api/internal/authn"
	"github.com/AfshinJalili/rentabili/services/api/internal/cache"
	"github.com/AfshinJalili/rentabili/services/api/internal/config"
	"github.com/AfshinJalili/rentabili/services/api/internal/events"
	"github.com/AfshinJalili/rentabili/services/api/internal/handlers"
	"github.com/AfshinJalili/rentabili/services/api/internal/rate"
	"github.com/AfshinJalili/rentabili/services/api/internal/security"
	"github.com/AfshinJalili/rentabili/services/api/internal/storage"
	"github.com/AfshinJalili/rentabili/services/api/internal/tokens"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	ready := health.NewManager(true)

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	ready.AddCheck("postgres", pool.Ping)

	if cfg.DB.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := storage.Migrate(ctx, pool)
		cancel()
		if err != nil {
			logger.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	store := storage.New(pool)

	redisClient := connectRedis(cfg, logger)
	if redisClient != nil {
		defer func() {
			_ = redisClient.Close()
		}()
		ready.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	generalLimiter := buildLimiter("general", cfg.RateLimit.General, redisClient, logger)
	authLimiter := buildLimiter("auth", cfg.RateLimit.Auth, redisClient, logger)

	var cacheStore cache.Store = cache.NewMemoryStore()
	if redisClient != nil {
		cacheStore = cache.NewRedisStore(redisClient)
	}

	emitter, closeEmitter := buildEmitter(cfg, registry, logger)
	defer func() {
		_ = closeEmitter()
	}()

	authenticator, err := buildAuthenticator(cfg, store)
	if err != nil {
		logger.Error("authenticator init failed", "error", err)
		os.Exit(1)
	}

	tokenService := tokens.NewService(store, tokens.Config{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})

	api := &handlers.Handler{
		Store:         store,
		Tokens:        tokenService,
		Authenticator: authenticator,
		Events:        emitter,
		Cache:         cache.NewMiddleware(cacheStore, cfg.Cache.Prefix, logger),
		Logger:        logger,
		Argon2:        security.Argon2Params(cfg.Argon2),
		Cookie: handlers.CookieConfig{
			Name:   cfg.Cookie.Name,
			Path:   cfg.Cookie.Path,
			Domain: cfg.Cookie.Domain,
			Secure: cfg.Cookie.Secure,
		},
		DashboardTTL: cfg.Cache.DashboardTTL,
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.App.HTTP.TrustedProxies); err != nil {
		logger.Error("invalid trusted proxies", "error", err)
		os.Exit(1)
	}
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	api.RegisterRoutes(router, handlers.Routes{
		General:     rate.Middleware("general", generalLimiter, logger, nil),
		Login:       rate.Middleware("auth", authLimiter, logger, nil),
		PublicUsers: cfg.Routes.PublicUsers,
	})

	addr := fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("api starting", "addr", addr, "auth_strategy", cfg.Auth.Strategy)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(server, ready, logger)
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// connectRedis returns nil when Redis is not configured or unreachable;
// callers fall back to in-process limiters and cache.
func connectRedis(cfg *config.Config, logger *slog.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		logger.Warn("redis not configured, using in-memory rate limiter and cache")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logger.Warn("redis unavailable, using in-memory rate limiter and cache", "addr", cfg.Redis.Addr, "error", err)
		return nil
	}
	return client
}

func buildLimiter(name string, w config.WindowConfig, client *redis.Client, logger *slog.Logger) rate.Limiter {
	memory := rate.NewMemory(w.Limit, w.Window)
	if client == nil {
		return memory
	}
	return rate.NewFallback(name, rate.NewRedisLimiter(client, w.Limit, w.Window, w.Prefix), memory, logger)
}

func buildEmitter(cfg *config.Config, registry *prometheus.Registry, logger *slog.Logger) (events.Emitter, func() error) {
	noop := func() error { return nil }
	if len(cfg.Kafka.Brokers) == 0 {
		return events.Noop{}, noop
	}

	producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, cfg.App.ServiceName, logger, kafka.NewProducerMetrics(registry))
	if err != nil {
		logger.Warn("kafka unavailable, auth events disabled", "error", err)
		return events.Noop{}, noop
	}
	return events.NewKafkaEmitter(producer, cfg.Kafka.Topic, logger), producer.Close
}

func buildAuthenticator(cfg *config.Config, store *storage.Store) (authn.Authenticator, error) {
	if cfg.Auth.Strategy != config.AuthStrategyStatic {
		return authn.NewPasswordAuthenticator(store), nil
	}

	account := cfg.Auth.Static
	id, err := uuid.Parse(account.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse static user id: %w", err)
	}

	// Refresh tokens reference users, so the static account needs a row.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.UpsertUser(ctx, id, account.Email, account.Name); err != nil {
		return nil, fmt.Errorf("upsert static user: %w", err)
	}
	return authn.NewStaticAuthenticator(id, account.Email, account.Name, account.Password), nil
}

func waitForShutdown(server *http.Server, ready *health.Manager, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ready.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutdown started")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		return
	}
	logger.Info("shutdown complete")
}
