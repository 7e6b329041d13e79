package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/logger"
)

// StatusOf возвращает статус ответа с учётом ошибки, которую ещё не обработал ErrorHandler
func StatusOf(c fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return apperr.HTTPStatus(err)
}

// ErrorHandler переводит ошибки домена в JSON {"error", "code"}.
// Для частично записанной покупки добавляется "reconcile": true.
func ErrorHandler(fallback *zap.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error": fe.Message,
			})
		}

		code := apperr.CodeOf(err)
		status := apperr.HTTPStatus(err)
		body := fiber.Map{
			"error": apperr.UserMessage(err),
			"code":  code,
		}

		var partial *apperr.PartialCommitError
		if errors.As(err, &partial) {
			body["reconcile"] = true
			body["journalId"] = partial.JournalID
			body["compensated"] = partial.Compensated
		}

		var stock *apperr.StockError
		if errors.As(err, &stock) {
			body["available"] = stock.Available
			body["requested"] = stock.Requested
		}

		if status >= fiber.StatusInternalServerError {
			logger.FromContext(c.Context(), fallback).Error("Ошибка обработки запроса",
				zap.String("code", string(code)),
				zap.Error(err))
		}

		return c.Status(status).JSON(body)
	}
}
