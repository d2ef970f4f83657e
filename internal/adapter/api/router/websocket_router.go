package router

import (
	"github.com/labstack/echo/v4"

	"cuidar/internal/adapter/api/handler"
	"cuidar/internal/adapter/api/middleware"
)

// SetupWebSocketRouter sets up the live gateway. Browsers cannot set headers
// on the upgrade request, so the token may also arrive as ?token=.
func SetupWebSocketRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	e.GET("/ws", handler.GetWebSocketHandler().HandleWebSocket, authMiddleware.Authenticate)
}
