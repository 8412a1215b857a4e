//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/janhq/chat-stream-api/internal/config"
	"github.com/janhq/chat-stream-api/internal/domain/conversation"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver"
)

var storageSet = wire.NewSet(
	newStorage,
	storeOf,
	readinessOf,
)

var streamingSet = wire.NewSet(
	newGenerator,
	newRegistry,
	newEstimator,
	newStreamingConfig,
	newStreamService,
	conversation.NewService,
)

// BuildApplication assembles the service the same way main does.
func BuildApplication(ctx context.Context) (*Application, func(), error) {
	wire.Build(
		config.Load,
		newLogger,
		storageSet,
		streamingSet,
		newHandlerProvider,
		httpserver.New,
		newCrontab,
		NewApplication,
	)
	return nil, nil, nil
}
