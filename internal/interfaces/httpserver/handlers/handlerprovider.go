package handlers

import (
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/handlers/conversationhandler"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/handlers/streamhandler"
)

// Provider wires all HTTP handlers for dependency injection.
type Provider struct {
	Stream       *streamhandler.StreamHandler
	Conversation *conversationhandler.ConversationHandler
}

func NewProvider(
	streamService streamhandler.StreamService,
	conversationService conversationhandler.ConversationService,
) *Provider {
	return &Provider{
		Stream:       streamhandler.NewStreamHandler(streamService),
		Conversation: conversationhandler.NewConversationHandler(conversationService),
	}
}
