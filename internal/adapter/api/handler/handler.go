package handler

import (
	ws "cuidar/internal/infrastructure/websocket"
	"cuidar/internal/usecase"
)

var (
	chatHandler      *ChatHandler
	userHandler      *UserHandler
	healthHandler    *HealthHandler
	websocketHandler *WebSocketHandler
)

// Dependencies groups what the HTTP and websocket handlers are built from.
type Dependencies struct {
	ChatUseCase     *usecase.ChatUseCase
	ChatListUseCase *usecase.ChatListUseCase
	PresenceUseCase *usecase.PresenceUseCase
	UserUseCase     *usecase.UserUseCase
	WSManager       *ws.Manager
	Health          *HealthHandler
	AllowedOrigins  []string
}

func Setup(deps Dependencies) {
	chatHandler = NewChatHandler(deps.ChatUseCase)
	userHandler = NewUserHandler(deps.UserUseCase, deps.WSManager)
	healthHandler = deps.Health
	websocketHandler = NewWebSocketHandler(
		deps.WSManager,
		deps.ChatUseCase,
		deps.ChatListUseCase,
		deps.PresenceUseCase,
		deps.AllowedOrigins,
	)
}

func GetChatHandler() *ChatHandler {
	return chatHandler
}

func GetUserHandler() *UserHandler {
	return userHandler
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

func GetWebSocketHandler() *WebSocketHandler {
	return websocketHandler
}
