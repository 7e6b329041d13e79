package trade

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/agrobazaar-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для предложений цены
func (s *TradeService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/proposals", middleware.AuthMiddleware(s.jwtService))

	api.Post("/", s.CreateProposal)
	api.Post("/:messageId/respond", s.RespondToProposal)
}
