package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// ErrorResponse is the body of every failed API response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// ErrorHandler renders apperr kinds and echo HTTP errors as short JSON
// messages. Anything else becomes a generic 500 and is logged with its cause.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := http.StatusInternalServerError, "internal server error"

		var httpErr *echo.HTTPError
		switch {
		case apperr.KindOf(err) != "":
			status = apperr.HTTPStatus(apperr.KindOf(err))
			msg = apperr.PublicMessage(err)
		case errors.As(err, &httpErr):
			status = httpErr.Code
			if s, ok := httpErr.Message.(string); ok {
				msg = s
			} else {
				msg = http.StatusText(status)
			}
		}

		rid, _ := c.Get("request_id").(string)
		if status >= 500 {
			logger.Error().Err(err).Str("request_id", rid).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorResponse{Error: msg, RequestID: rid})
		}
		if err != nil {
			logger.Error().Err(err).Str("request_id", rid).Msg("write error response")
		}
	}
}
