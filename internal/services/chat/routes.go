package chat

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/agrobazaar-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для лент переписки
func (s *ChatService) SetupRoutes(app *fiber.App) {
	auth := middleware.AuthMiddleware(s.jwtService)

	threads := app.Group("/api/threads", auth)
	threads.Post("/", s.OpenThread)
	threads.Get("/messages", s.GetMessages)
	threads.Post("/messages", s.SendMessage)

	views := app.Group("/api/views", auth)
	views.Get("/:id", s.GetView)
	views.Post("/:id/refresh", s.RefreshView)
	views.Delete("/:id", s.CloseView)

	app.Get("/api/conversations", s.GetConversations, auth)
}
