// Command worker runs the URL index-check worker pool: it drains the Redis
// job queue and processes each URL through claim, credit debit, external
// check, and atomic commit.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Zoot009/indexer-v2-backend/internal/check"
	"github.com/Zoot009/indexer-v2-backend/internal/config"
	"github.com/Zoot009/indexer-v2-backend/internal/events"
	"github.com/Zoot009/indexer-v2-backend/internal/observability"
	"github.com/Zoot009/indexer-v2-backend/internal/queue"
	"github.com/Zoot009/indexer-v2-backend/internal/repo"
	"github.com/Zoot009/indexer-v2-backend/internal/services"
	"github.com/Zoot009/indexer-v2-backend/internal/stats"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
	}

	bus := events.NewRedisBus(rdb)
	agg := stats.NewAggregator(bus)
	if err := agg.Rebuild(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("stats rebuild failed")
	}

	proc := &services.JobProcessor{
		DB:         db,
		Checker:    check.NewGoogleChecker(cfg.Check.Endpoint, cfg.Check.APIKey, cfg.Check.Timeout, cfg.Check.RPS, cfg.Check.Burst),
		Credits:    &services.CreditService{DB: db},
		Rules:      &services.DomainRuleService{},
		Completion: &services.CompletionService{DB: db},
		Stats:      agg,
		Bus:        bus,
		Log:        log.Logger,
	}

	pool := &queue.WorkerPool{
		Queue:       queue.NewRedisQueue(rdb, cfg.QueueName),
		Process:     proc.ProcessJob,
		Concurrency: cfg.Concurrency,
		PollTimeout: cfg.PollTimeout,
		Log:         log.Logger,
	}

	log.Info().
		Str("queue", cfg.QueueName).
		Int("concurrency", cfg.Concurrency).
		Str("version", version).
		Msg("worker starting")

	pool.Start(ctx)
	<-ctx.Done()

	log.Info().Msg("shutdown signal received, draining")
	pool.Stop()
	log.Info().Msg("worker exited")
}

// setupLogging configures the global zerolog logger from config.
func setupLogging(cfg config.Config) {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
