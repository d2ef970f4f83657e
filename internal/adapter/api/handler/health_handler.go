package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// ConnectionChecker checks a dependency such as the Firebase auth client.
type ConnectionChecker interface {
	TestConnection(ctx context.Context) error
}

type HealthHandler struct {
	firebaseAuth ConnectionChecker
	redis        *redis.Client
}

func NewHealthHandler(firebaseAuth ConnectionChecker, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{
		firebaseAuth: firebaseAuth,
		redis:        redisClient,
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "Server is running",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// CheckDependencies reports the identity service and the presence channel.
// Presence being down degrades to the durable fallback, so it never fails the
// check on its own.
func (h *HealthHandler) CheckDependencies(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	result := map[string]string{"firebase": "ok", "presence": "ok"}

	if h.firebaseAuth != nil {
		if err := h.firebaseAuth.TestConnection(ctx); err != nil {
			status = http.StatusServiceUnavailable
			result["firebase"] = err.Error()
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			result["presence"] = "degraded: " + err.Error()
		}
	}
	return c.JSON(status, result)
}
