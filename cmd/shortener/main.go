package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/linkforge/link-shortener/internal/cache"
	"github.com/linkforge/link-shortener/internal/clicks"
	"github.com/linkforge/link-shortener/internal/config"
	"github.com/linkforge/link-shortener/internal/http-server/handlers/deletelink"
	"github.com/linkforge/link-shortener/internal/http-server/handlers/linkinfo"
	"github.com/linkforge/link-shortener/internal/http-server/handlers/redirect"
	"github.com/linkforge/link-shortener/internal/http-server/handlers/save"
	mwLogger "github.com/linkforge/link-shortener/internal/http-server/middleware/logger"
	"github.com/linkforge/link-shortener/internal/kafka"
	"github.com/linkforge/link-shortener/internal/lib/logger/sl"
	"github.com/linkforge/link-shortener/internal/lib/logger/slogpretty"
	"github.com/linkforge/link-shortener/internal/shortener"
	dbstorage "github.com/linkforge/link-shortener/internal/storage"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	ctx := context.Background()
	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	log.Info("starting shortener", slog.String("env", cfg.Env))

	storage := dbstorage.NewStorage(ctx, cfg.Storage, log)
	defer func() {
		if err := storage.DB.Close(); err != nil {
			log.Error("DB close error", sl.Err(err))
		}
	}()

	linkCache := cache.New(cfg.RedisStorage, log)
	defer linkCache.Close()

	clicksProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicClicks)
	defer clicksProducer.Close()

	dlqProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicDLQ)
	defer dlqProducer.Close()

	auditProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicLinks)
	defer auditProducer.Close()

	capture := clicks.NewCapture(log, clicksProducer, dlqProducer, cfg.Kafka.PublishTTL)
	service := shortener.New(log, storage, linkCache, cfg.Shortener)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mwLogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	router.Route("/api/workspaces/{workspace_id}/links", func(r chi.Router) {
		r.Post("/", save.New(log, service, auditProducer))
		r.Get("/{code}", linkinfo.New(log, service))
		r.Delete("/{code}", deletelink.New(log, service, auditProducer))
	})

	router.Get("/r/{workspace_id}/{code}", redirect.Redirect(log, service, capture))

	log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("failed to start server", sl.Err(err))
	}

	capture.Wait()
	log.Error("server stopped")
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
