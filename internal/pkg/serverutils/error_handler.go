package serverutils

import (
	"errors"

	"github.com/MoneTicket/monetai/internal/domain"
	"github.com/MoneTicket/monetai/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders any error that escapes a handler as {"error": msg}.
// Domain errors keep their mapped status but never leak store details.
func ErrorHandler(log logger.ILogger) fiber.ErrorHandler {
	return func(ctx *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return ctx.Status(fe.Code).JSON(ErrorBody{Error: fe.Message})
		}

		status := domain.StatusCode(err)
		message := PublicMessage(err)
		if status >= fiber.StatusInternalServerError {
			log.Error("HTTP", "Request failed", map[string]interface{}{
				"method": ctx.Method(),
				"path":   ctx.Path(),
				"error":  err.Error(),
			})
		}
		return ctx.Status(status).JSON(ErrorBody{Error: message})
	}
}

// PublicMessage is the client facing text for a domain error.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, domain.ErrValidation):
		return "Invalid request"
	case errors.Is(err, domain.ErrNotFound):
		return "Not found"
	case errors.Is(err, domain.ErrNotConfigured):
		return "Chat history is unavailable"
	default:
		return "Internal server error"
	}
}
