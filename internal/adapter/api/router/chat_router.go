package router

import (
	"github.com/labstack/echo/v4"

	"cuidar/internal/adapter/api/handler"
	"cuidar/internal/adapter/api/middleware"
)

// SetupChatRouter sets up the REST chat routes. Live chat runs over /ws.
func SetupChatRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	chatHandler := handler.GetChatHandler()

	chats := e.Group("/v1/chats")
	chats.Use(authMiddleware.Authenticate)

	chats.POST("/resolve", chatHandler.ResolveChat)
	chats.POST("/:id/messages", chatHandler.SendMessage)
}
