package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"video-pipeline/internal/app"
	"video-pipeline/internal/config"
	"video-pipeline/internal/logging"
	"video-pipeline/internal/ops"
	"video-pipeline/internal/queue"
	"video-pipeline/internal/retention"
	"video-pipeline/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath())
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.Log, cfg.Paths.Logs)

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build pipeline")
	}
	defer a.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Queue.Addr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Queue.Addr).Msg("redis")
	}
	q := queue.NewRedis(rdb, cfg.Queue.QueueKey, cfg.Queue.ProcessingKey)

	if cfg.Retention.Enabled {
		sched := retention.New(a.Store, a.Engine, cfg.Retention.MaxAge.Std(), cfg.Retention.Batch, log)
		if err := sched.Start(ctx, cfg.Retention.Cron); err != nil {
			log.Fatal().Err(err).Msg("retention schedule")
		}
		defer sched.Stop()
	}

	checks := map[string]ops.Check{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	if a.Pool != nil {
		checks["postgres"] = a.Pool.Ping
	}
	go func() {
		if err := ops.Serve(ctx, cfg.Worker.OpsAddr, ops.Router(checks, log), log); err != nil {
			log.Error().Err(err).Msg("ops server")
		}
	}()

	go worker.Reap(ctx, q, cfg.Worker.ReapEvery.Std(), cfg.Worker.StaleAfter.Std(), log.With().Str("component", "reaper").Logger())

	pool := worker.NewPool(q, worker.NewProcessor(a.Engine, log), cfg.Worker.Workers, cfg.Worker.ClaimWait.Std(), log)
	log.Info().
		Int("workers", cfg.Worker.Workers).
		Str("queue", cfg.Queue.QueueKey).
		Str("store", cfg.Store.Driver).
		Str("objects", cfg.Objects.Driver).
		Msg("worker started")
	pool.Run(ctx)
	log.Info().Msg("worker stopped")
}

// configPath honours CONFIG_PATH and otherwise uses ./config.yaml when present.
func configPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}
