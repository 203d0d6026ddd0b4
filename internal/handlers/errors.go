package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/lesspay/internal/services"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorHandler renders every error returned by a handler as
// {"success": false, "error": {...}} with a status derived from its type.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := classifyError(err)
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   body,
		})
	}
}

func classifyError(err error) (int, errorBody) {
	var (
		validationErr *services.ValidationError
		notFoundErr   *services.NotFoundError
		authErr       *services.GatewayAuthError
		requestErr    *services.GatewayRequestError
		fiberErr      *fiber.Error
	)

	switch {
	case errors.As(err, &validationErr):
		return fiber.StatusBadRequest, errorBody{Code: "validation_error", Message: validationErr.Error()}
	case errors.As(err, &notFoundErr):
		return fiber.StatusNotFound, errorBody{Code: "not_found", Message: notFoundErr.Error()}
	case errors.As(err, &authErr):
		return fiber.StatusBadGateway, errorBody{Code: "gateway_auth_failed", Message: "payment gateway rejected the session"}
	case errors.As(err, &requestErr):
		if requestErr.Timeout() {
			return fiber.StatusGatewayTimeout, errorBody{Code: "gateway_timeout", Message: "payment gateway did not respond in time"}
		}
		return fiber.StatusBadGateway, errorBody{Code: "gateway_error", Message: "payment gateway request failed"}
	case errors.As(err, &fiberErr):
		return fiberErr.Code, errorBody{Code: statusCode(fiberErr.Code), Message: fiberErr.Message}
	default:
		return fiber.StatusInternalServerError, errorBody{Code: "internal_error", Message: "internal server error"}
	}
}

// statusCode turns 404 into "not_found".
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
