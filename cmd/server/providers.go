package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"

	"github.com/janhq/chat-stream-api/internal/config"
	"github.com/janhq/chat-stream-api/internal/domain/conversation"
	domaininference "github.com/janhq/chat-stream-api/internal/domain/inference"
	"github.com/janhq/chat-stream-api/internal/domain/session"
	"github.com/janhq/chat-stream-api/internal/domain/streaming"
	"github.com/janhq/chat-stream-api/internal/domain/tokenbudget"
	"github.com/janhq/chat-stream-api/internal/infrastructure/crontab"
	"github.com/janhq/chat-stream-api/internal/infrastructure/database"
	"github.com/janhq/chat-stream-api/internal/infrastructure/inference"
	"github.com/janhq/chat-stream-api/internal/infrastructure/logger"
	"github.com/janhq/chat-stream-api/internal/infrastructure/metrics"
	"github.com/janhq/chat-stream-api/internal/infrastructure/repository/conversationrepo"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/handlers"
)

// storage bundles the store with the readiness probe of its backend.
type storage struct {
	store conversation.Store
	ready httpserver.ReadinessCheck
}

// newLogger also replaces the zerolog global used by the HTTP error helpers.
func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	log, err := logger.New(logger.Options{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Service:     cfg.ServiceName,
		Environment: cfg.Environment,
	})
	if err != nil {
		return zerolog.Logger{}, err
	}
	zlog.Logger = log
	return log, nil
}

// newStorage opens the configured storage backend. Pending placeholders left by
// a previous process are marked failed since their sessions died with it.
func newStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, func(), error) {
	if cfg.StorageBackend == config.StorageMemory {
		log.Warn().Msg("using in-memory storage, conversations are lost on restart")
		return &storage{store: conversationrepo.NewInMemoryRepository()}, func() {}, nil
	}

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := database.Close(db); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db, log); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	repo := conversationrepo.NewConversationGormRepository(db)
	failed, err := repo.FailPendingPlaceholders(ctx, time.Now())
	if err != nil {
		log.Warn().Err(err).Msg("could not fail orphaned placeholders")
	} else if failed > 0 {
		log.Info().Int64("count", failed).Msg("marked orphaned assistant placeholders failed")
	}

	return &storage{
		store: repo,
		ready: func(ctx context.Context) error { return database.Ping(ctx, db) },
	}, closeDB, nil
}

func storeOf(s *storage) conversation.Store { return s.store }

func readinessOf(s *storage) httpserver.ReadinessCheck { return s.ready }

func newGenerator(cfg *config.Config, log zerolog.Logger) domaininference.Generator {
	generation := cfg.Generation()
	log.Info().
		Str("model", generation.Model).
		Int("token_ceiling", generation.Ceiling).
		Float64("chars_per_token", generation.CharsPerToken).
		Msg("generation settings")

	return inference.NewCompletionClient(
		inference.NewRestyClient("inference", cfg.InferenceConnectTimeout, log),
		inference.Config{
			BaseURL:     cfg.InferenceBaseURL,
			APIKey:      cfg.InferenceAPIKey,
			Model:       generation.Model,
			ReadTimeout: cfg.InferenceReadTimeout,
		},
		log,
	)
}

// newRegistry builds the session registry and exports its per-state counts.
func newRegistry(cfg *config.Config) *session.Registry {
	registry := session.NewRegistry(session.WithPendingTTL(cfg.SessionPendingTTL))
	prometheus.MustRegister(metrics.NewSessionsCollector(func() map[string]int {
		counts := registry.Counts()
		out := make(map[string]int, len(counts))
		for state, n := range counts {
			out[string(state)] = n
		}
		return out
	}))
	return registry
}

func newEstimator(cfg *config.Config, log zerolog.Logger) *tokenbudget.Estimator {
	return tokenbudget.NewEstimator(cfg.Generation().CharsPerToken, log)
}

func newStreamingConfig(cfg *config.Config) streaming.Config {
	generation := cfg.Generation()
	return streaming.Config{
		HistoryMaxTurns:  cfg.HistoryMaxTurns,
		MessageMaxLength: cfg.MessageMaxLength,
		Limits: tokenbudget.Limits{
			Ceiling:      generation.Ceiling,
			SafetyBuffer: generation.SafetyBuffer,
			MinResponse:  generation.MinResponseTokens,
		},
		StopSequences:     generation.StopSequences,
		KeepAliveInterval: cfg.StreamKeepAliveInterval,
		PersistTimeout:    cfg.PersistTimeout,
		Model:             generation.Model,
	}
}

func newStreamService(
	store conversation.Store,
	generator domaininference.Generator,
	registry *session.Registry,
	estimator *tokenbudget.Estimator,
	streamCfg streaming.Config,
	log zerolog.Logger,
) *streaming.Service {
	return streaming.NewService(store, generator, registry, estimator, metrics.NewStreamRecorder(), streamCfg, log)
}

func newHandlerProvider(streamService *streaming.Service, conversationService *conversation.Service) *handlers.Provider {
	return handlers.NewProvider(streamService, conversationService)
}

func newCrontab(streamService *streaming.Service, cfg *config.Config, log zerolog.Logger) *crontab.Crontab {
	return crontab.NewCrontab(streamService, cfg.SessionSweepMinutes, log)
}
