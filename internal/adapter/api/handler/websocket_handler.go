package handler

import (
	"net/http"
	"strings"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	ws "cuidar/internal/infrastructure/websocket"
	"cuidar/internal/usecase"
	"cuidar/pkg/errors"
	"cuidar/pkg/logger"
)

type WebSocketHandler struct {
	wsManager       *ws.Manager
	chatUseCase     *usecase.ChatUseCase
	chatListUseCase *usecase.ChatListUseCase
	presenceUseCase *usecase.PresenceUseCase
	upgrader        gorillaws.Upgrader
}

func NewWebSocketHandler(
	wsManager *ws.Manager,
	chatUseCase *usecase.ChatUseCase,
	chatListUseCase *usecase.ChatListUseCase,
	presenceUseCase *usecase.PresenceUseCase,
	allowedOrigins []string,
) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:       wsManager,
		chatUseCase:     chatUseCase,
		chatListUseCase: chatListUseCase,
		presenceUseCase: presenceUseCase,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Native mobile clients send no Origin.
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket upgrades an authenticated request into a live session. The
// session owns the user's presence for as long as the connection lives.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	userID, ok := c.Get("uid").(string)
	if !ok || userID == "" {
		return errors.Unauthorized("Authentication required", nil)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		logger.Warn("websocket upgrade for %s failed: %v", userID, err)
		return nil
	}

	client := ws.NewClient(userID, conn)
	h.wsManager.Register(client)

	session := newWSSession(h, client)
	session.start()

	go client.WritePump()
	go func() {
		defer func() {
			session.close()
			h.wsManager.Unregister(client)
		}()
		client.ReadPump(session.handle)
	}()

	return nil
}
