package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	ws "cuidar/internal/infrastructure/websocket"
	"cuidar/internal/usecase"
	"cuidar/pkg/errors"
	"cuidar/pkg/logger"
	"cuidar/pkg/response"
)

const maxAvatarBytes = 5 << 20

type UserHandler struct {
	userUseCase *usecase.UserUseCase
	wsManager   *ws.Manager
}

func NewUserHandler(userUseCase *usecase.UserUseCase, wsManager *ws.Manager) *UserHandler {
	return &UserHandler{
		userUseCase: userUseCase,
		wsManager:   wsManager,
	}
}

type pushTokenRequest struct {
	Token string `json:"token" validate:"required,max=256"`
}

func (h *UserHandler) GetProfile(c echo.Context) error {
	uid := c.Get("uid").(string)

	profile, err := h.userUseCase.GetProfile(c.Request().Context(), uid)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, profile)
}

func (h *UserHandler) RegisterPushToken(c echo.Context) error {
	var req pushTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	uid := c.Get("uid").(string)
	if err := h.userUseCase.RegisterPushToken(c.Request().Context(), uid, req.Token); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{"registered": true})
}

// UploadAvatar takes a multipart "avatar" file.
func (h *UserHandler) UploadAvatar(c echo.Context) error {
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxAvatarBytes)

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		return response.Error(c, errors.BadRequest("avatar file is required", err))
	}
	file, err := fileHeader.Open()
	if err != nil {
		return response.Error(c, errors.BadRequest("could not read avatar file", err))
	}
	defer file.Close()

	uid := c.Get("uid").(string)
	contentType := fileHeader.Header.Get("Content-Type")
	url, err := h.userUseCase.UploadAvatar(c.Request().Context(), uid, contentType, file)
	if err != nil {
		return response.Error(c, err)
	}

	// Other devices of the same user refresh their own header.
	if h.wsManager != nil {
		n := h.wsManager.SendToUser(uid, ws.MessageTypeProfile, map[string]string{"avatar_url": url})
		logger.Debug("avatar update pushed to %d connections of %s", n, uid)
	}
	return response.Success(c, map[string]interface{}{"avatar_url": url})
}
