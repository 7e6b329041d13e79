package order

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/agrobazaar-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для заказов
func (s *OrderService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/orders", middleware.AuthMiddleware(s.jwtService))

	api.Post("/", s.BuyNow)
	api.Get("/", s.GetOrders)
	api.Get("/:id", s.GetOrder)
}
