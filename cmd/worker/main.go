package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-florist/internal/config"
	"github.com/noah-isme/backend-florist/internal/inventory"
	"github.com/noah-isme/backend-florist/internal/lock"
	"github.com/noah-isme/backend-florist/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	if cfg.InventorySource != config.InventorySourcePostgres {
		logger.Fatal().Str("inventory_source", cfg.InventorySource).Msg("cache warming needs the postgres inventory source")
	}
	if cfg.RedisURL == "" {
		logger.Fatal().Msg("REDIS_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool := mustInitDatabase(startCtx, cfg, logger)
	defer pool.Close()
	redisClient := mustInitRedis(startCtx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	source := inventory.PostgresIndex{DB: pool}
	warmer := inventory.Warmer{
		Source:  source,
		Cache:   inventory.NewCachedIndex(source, redisClient, cfg.InventoryCacheTTL, ""),
		Locker:  lock.Locker{R: redisClient, RetryBackoff: 100 * time.Millisecond},
		LockTTL: cfg.WarmLockTTL,
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: max(cfg.WorkerConcurrency, 1),
		BaseContext: func() context.Context { return logger.WithContext(context.Background()) },
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
		Logger:   asynqLogger{logger},
		LogLevel: asynq.WarnLevel,
	})
	mux := asynq.NewServeMux()
	mux.Handle(inventory.TypeWarmCache, warmer)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger:   asynqLogger{logger},
		LogLevel: asynq.WarnLevel,
	})
	entryID, err := scheduler.Register(cfg.WarmInterval, inventory.NewWarmTask(cfg.WarmLockTTL), asynq.Unique(cfg.WarmLockTTL))
	if err != nil {
		logger.Fatal().Err(err).Str("interval", cfg.WarmInterval).Msg("register warm schedule")
	}

	if err := server.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	logger.Info().Str("entry_id", entryID).Str("interval", cfg.WarmInterval).Msg("worker starting")

	// Warm once at boot so the API does not start cold.
	if n, err := warmer.WarmOnce(logger.WithContext(ctx)); err != nil {
		logger.Error().Err(err).Msg("initial cache warm")
	} else {
		logger.Info().Int("products", n).Msg("initial cache warm")
	}

	<-ctx.Done()
	scheduler.Shutdown()
	server.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
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
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

// asynqLogger routes asynq's internal logs through zerolog.
type asynqLogger struct{ l zerolog.Logger }

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
