package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/handlers"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/routes/v1/chat"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/routes/v1/conversation"
)

// V1Route attaches all v1 routes under the /v1 prefix.
type V1Route struct {
	stream       *chat.StreamRoute
	conversation *conversation.ConversationRoute
}

func NewV1Route(handlerProvider *handlers.Provider) *V1Route {
	return &V1Route{
		stream:       chat.NewStreamRoute(handlerProvider.Stream),
		conversation: conversation.NewConversationRoute(handlerProvider.Conversation),
	}
}

func (v1Route *V1Route) RegisterRouter(router gin.IRouter) {
	group := router.Group("/v1")
	v1Route.stream.RegisterRouter(group)
	v1Route.conversation.RegisterRouter(group)
}
