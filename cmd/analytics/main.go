package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/linkforge/link-shortener/internal/clickhouse"
	"github.com/linkforge/link-shortener/internal/clicks"
	"github.com/linkforge/link-shortener/internal/config"
	"github.com/linkforge/link-shortener/internal/kafka"
	"github.com/linkforge/link-shortener/internal/lib/logger/sl"
	"github.com/linkforge/link-shortener/internal/lib/logger/slogpretty"
	dbstorage "github.com/linkforge/link-shortener/internal/storage"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoadAnalytics()
	log := setupLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting analytics",
		slog.String("env", cfg.Env),
		slog.String("group_id", cfg.Kafka.GroupID),
	)

	conn := clickhouse.NewClickhouseClient(ctx, log, cfg.Clickhouse)
	sink := clickhouse.NewSink(conn)

	storage := dbstorage.NewStorage(ctx, cfg.Storage, log)
	defer func() {
		if err := storage.DB.Close(); err != nil {
			log.Error("DB close error", sl.Err(err))
		}
	}()

	reader := kafka.NewReader(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.TopicClicks)
	defer reader.Close()

	dlqProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicDLQ)
	defer dlqProducer.Close()

	consumer := clicks.NewConsumer(reader, storage, sink, dlqProducer, cfg.Consumer, log)

	if err := consumer.Run(ctx); err != nil {
		log.Error("consumer failed", sl.Err(err))
	}

	log.Info("shutting down",
		slog.Int64("persisted", consumer.Persisted()),
		slog.Int64("unresolved", consumer.Unresolved()),
		slog.Int64("dead_lettered", consumer.DeadLettered()),
	)
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
