package serverutils

import (
	"errors"

	"veritasai-be/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

// StatusCode maps an error kind to its HTTP status.
func StatusCode(err error) int {
	var fe *fiber.Error
	var ve *ValidationError
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &ve):
		return fiber.StatusBadRequest
	case apperr.IsNotFound(err):
		return fiber.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, apperr.ErrUnsupportedFormat),
		errors.Is(err, apperr.ErrNoUserMessage),
		errors.Is(err, apperr.ErrInvalidChatScope),
		errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, apperr.ErrUnknownProvider):
		return fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrFileTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, apperr.ErrDocumentNotReady):
		return fiber.StatusConflict
	case errors.Is(err, apperr.ErrExtraction):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrProviderUnavailable),
		errors.Is(err, apperr.ErrEmbeddingGenerationFailed):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, apperr.ErrCapabilityNotSupported):
		return fiber.StatusNotImplemented
	default:
		return fiber.StatusInternalServerError
	}
}

func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		code := StatusCode(err)
		msg := err.Error()
		if code == fiber.StatusInternalServerError {
			msg = "internal server error"
		}
		return ctx.Status(code).JSON(ErrorResponse(code, msg))
	}
}
