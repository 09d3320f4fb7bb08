package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-florist/internal/app"
	"github.com/noah-isme/backend-florist/internal/auth"
	"github.com/noah-isme/backend-florist/internal/cart"
	"github.com/noah-isme/backend-florist/internal/config"
	"github.com/noah-isme/backend-florist/internal/health"
	"github.com/noah-isme/backend-florist/internal/inventory"
	"github.com/noah-isme/backend-florist/internal/obs"
	"github.com/noah-isme/backend-florist/internal/ratelimit"
	"github.com/noah-isme/backend-florist/internal/resilience"
)

const serviceName = "backend-florist"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsEnabled {
		resilience.RegisterMetrics(prometheus.DefaultRegisterer)
		obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	}

	tracing := cfg.TracingEnabled
	if tracing {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:    serviceName,
			ServiceVersion: version,
			Endpoint:       cfg.OTLPEndpoint,
			Exporter:       cfg.TracingExporter,
			SamplingRatio:  cfg.TracingSamplingRatio,
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracing = false
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var probes []health.Probe
	var db inventory.Querier
	if cfg.DatabaseURL != "" {
		pool := mustInitDatabase(startCtx, cfg, logger)
		defer pool.Close()
		db = pool
		probes = append(probes, health.Probe{
			Name:     "db",
			Timeout:  cfg.HealthDBTimeout,
			Check:    pool.Ping,
			Optional: cfg.InventorySource != config.InventorySourcePostgres,
		})
	}

	// Redis is optional: without it the lot cache is off and rate limiting
	// falls back to per-process memory.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = mustInitRedis(startCtx, cfg, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		probes = append(probes, health.Probe{
			Name:     "redis",
			Timeout:  cfg.HealthRedisTimeout,
			Check:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			Optional: true,
		})
	}

	var rdb redis.Cmdable
	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
	if redisClient != nil {
		rdb = redisClient
		limiter = ratelimit.RedisLimiter{Client: redisClient}
	}

	index, err := app.NewIndex(cfg, db, rdb, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise inventory index")
	}
	fee, err := app.FeePolicy(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid fee policy")
	}
	pricingSvc := cart.NewService(cart.ServiceConfig{
		Index:       index,
		Fee:         fee,
		Currency:    cfg.CurrencyCode,
		MaxLines:    cfg.PricingMaxLines,
		MaxQuantity: cfg.PricingMaxQuantity,
	})

	authMiddleware := auth.Middleware{}
	if cfg.JWTSecret != "" {
		verifier, err := auth.NewVerifier(auth.VerifierConfig{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise token verifier")
		}
		authMiddleware.Verifier = verifier
	}

	router := app.Router{
		Logger:             logger,
		Cart:               &cart.Handler{Svc: pricingSvc},
		Auth:               authMiddleware,
		RequirePricingAuth: cfg.PricingRequireAuth,
		Limiter:            limiter,
		RateWindow:         cfg.RateLimitWindow,
		RateMax:            cfg.RateLimitMax,
		Health:             health.Handler{Probes: probes},
		Tracing:            tracing,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		BodyLimit:          cfg.BodyLimitBytes,
		RequestTimeout:     cfg.RequestTimeout,
	}
	if cfg.MetricsEnabled {
		router.HTTPMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, cfg.MetricsBucketsMS, nil)
		router.MetricsHandler = promhttp.Handler()
	}
	if cfg.PprofEnabled {
		router.Pprof = protectPprof(middleware.Profiler(), cfg.PprofUser, cfg.PprofPass)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("inventory_source", cfg.InventorySource).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("shutdown started")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = serviceName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
