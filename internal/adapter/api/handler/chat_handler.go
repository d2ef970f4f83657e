package handler

import (
	"github.com/labstack/echo/v4"

	"cuidar/internal/usecase"
	"cuidar/pkg/response"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type resolveChatRequest struct {
	// Empty resolves the group room.
	OtherUserID string `json:"other_user_id" validate:"max=128"`
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

// ResolveChat returns the conversation id shared with another user.
func (h *ChatHandler) ResolveChat(c echo.Context) error {
	var req resolveChatRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	uid := c.Get("uid").(string)
	chat, err := h.chatUseCase.Resolve(uid, req.OtherUserID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, chat)
}

// SendMessage sends one message without an open websocket screen.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	uid := c.Get("uid").(string)
	message, err := h.chatUseCase.Send(c.Request().Context(), uid, usecase.SendInput{
		ConversationID: c.Param("id"),
		Text:           req.Text,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, message)
}
