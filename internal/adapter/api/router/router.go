package router

import (
	"github.com/labstack/echo/v4"

	"cuidar/internal/adapter/api/middleware"
)

func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	SetupHealthRouter(e)
	SetupChatRouter(e, authMiddleware)
	SetupUserRouter(e, authMiddleware)
	SetupWebSocketRouter(e, authMiddleware)
}
