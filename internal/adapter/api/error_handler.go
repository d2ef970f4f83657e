package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	apperrors "cuidar/pkg/errors"
	"cuidar/pkg/response"
)

// NewHTTPErrorHandler renders application errors returned from handlers in
// the standard response envelope and leaves everything else to echo.
func NewHTTPErrorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			if rerr := response.Error(c, err); rerr != nil {
				e.Logger.Error(rerr)
			}
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
}
