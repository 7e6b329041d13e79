package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/agrobazaar-api/internal/session"
	"github.com/rajivgeraev/agrobazaar-api/internal/utils"
)

const sessionKey = "session"

// AuthMiddleware создаёт middleware для проверки JWT
func AuthMiddleware(jwtService *utils.JWTService) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Отсутствует заголовок авторизации",
			})
		}

		// Проверяем Bearer токен
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Неверный формат заголовка авторизации",
			})
		}

		sess, err := jwtService.ExtractSession(parts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Недействительный или просроченный токен",
			})
		}

		c.Locals(sessionKey, sess)

		return c.Next()
	}
}

// SessionFrom достаёт сессию, которую положил AuthMiddleware
func SessionFrom(c fiber.Ctx) (session.Session, bool) {
	sess, ok := c.Locals(sessionKey).(session.Session)
	return sess, ok
}

// RequireSession работает как SessionFrom, но без сессии возвращает 401
func RequireSession(c fiber.Ctx) (session.Session, error) {
	sess, ok := SessionFrom(c)
	if !ok {
		return session.Session{}, fiber.ErrUnauthorized
	}
	return sess, nil
}
