package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/janhq/chat-stream-api/internal/config"
	"github.com/janhq/chat-stream-api/internal/domain/conversation"
	"github.com/janhq/chat-stream-api/internal/infrastructure/crontab"
	"github.com/janhq/chat-stream-api/internal/infrastructure/logger"
	"github.com/janhq/chat-stream-api/internal/infrastructure/observability"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver"
)

// @title Chat Stream API
// @version 1.0
// @description Streams assistant replies for stored conversations over Server Sent Events.
// @BasePath /
type Application struct {
	httpServer *httpserver.HttpServer
	crontab    *crontab.Crontab
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, cron *crontab.Crontab, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		crontab:    cron,
		log:        log,
	}
}

// Start runs the HTTP server and the session sweeper until ctx is cancelled
// or one of them fails.
func (a *Application) Start(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return a.httpServer.Run(egCtx)
	})
	eg.Go(func() error {
		return a.crontab.Run(egCtx)
	})
	return eg.Wait()
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.GetLogger()
		bootLog.Fatal().Err(err).Msg("load config")
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	storage, closeStorage, err := newStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize storage")
	}
	defer closeStorage()

	store := storeOf(storage)
	streamService := newStreamService(
		store,
		newGenerator(cfg, log),
		newRegistry(cfg),
		newEstimator(cfg, log),
		newStreamingConfig(cfg),
		log,
	)
	conversationService := conversation.NewService(store)

	httpServer := httpserver.New(cfg, log, newHandlerProvider(streamService, conversationService), readinessOf(storage))
	app := NewApplication(httpServer, newCrontab(streamService, cfg, log), log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
