package router

import (
	"github.com/labstack/echo/v4"

	"cuidar/internal/adapter/api/handler"
	"cuidar/internal/adapter/api/middleware"
)

func SetupUserRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	userHandler := handler.GetUserHandler()

	users := e.Group("/v1/users")
	users.Use(authMiddleware.Authenticate)

	users.GET("/me", userHandler.GetProfile)
	users.PUT("/me/push-token", userHandler.RegisterPushToken)
	users.PUT("/me/avatar", userHandler.UploadAvatar)
}
