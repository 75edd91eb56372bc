package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/labstack/echo/v4"

	"github.com/memohai/chatgate/internal/apperr"
)

// Envelope is the body of every non-subscription response.
type Envelope struct {
	Status     string         `json:"status"`
	StatusCode int            `json:"statusCode"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TokenEnvelope is the body of the token endpoints.
type TokenEnvelope struct {
	Envelope
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// NewEnvelope builds an envelope for code.
func NewEnvelope(code int, message string, metadata map[string]any) Envelope {
	return Envelope{
		Status:     StatusName(code),
		StatusCode: code,
		Message:    message,
		Metadata:   metadata,
	}
}

// StatusName renders an HTTP status as an upper snake case name, e.g. NOT_FOUND.
func StatusName(code int) string {
	text := http.StatusText(code)
	if text == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(text))
}

// respond writes env with its own status code.
func respond(c echo.Context, env Envelope) error {
	return c.JSON(env.StatusCode, env)
}

// StatusOf maps an error to the envelope status code by its errdefs class.
func StatusOf(err error) int {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsAlreadyExists(err):
		return http.StatusConflict
	case errdefs.IsUnauthorized(err):
		return http.StatusUnauthorized
	case errdefs.IsPermissionDenied(err):
		return http.StatusForbidden
	case apperr.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errdefs.IsUnavailable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every handler error as an envelope whose HTTP status mirrors
// statusCode. Internal errors are logged and their details withheld.
func ErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := StatusOf(err)
		msg := err.Error()
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			if m, ok := httpErr.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
		}
		if code >= http.StatusInternalServerError && code != http.StatusBadGateway && code != http.StatusGatewayTimeout {
			log.Error("request failed",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Path()),
				slog.Any("error", err),
			)
			msg = http.StatusText(code)
		}
		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = respond(c, NewEnvelope(code, msg, nil))
		}
		if writeErr != nil {
			log.Error("write error response", slog.Any("error", writeErr))
		}
	}
}
