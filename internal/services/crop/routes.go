package crop

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/agrobazaar-api/internal/middleware"
)

// SetupRoutes настраивает маршруты управления культурами
func (s *CropService) SetupRoutes(app *fiber.App) {
	auth := middleware.AuthMiddleware(s.jwtService)

	app.Post("/api/crops", s.CreateCrop, auth)
	app.Put("/api/crops/:id", s.UpdateCrop, auth)
	app.Delete("/api/crops/:id", s.DeleteCrop, auth)
}

// SetupPublicRoutes настраивает публичный каталог
func (s *CropService) SetupPublicRoutes(app *fiber.App) {
	app.Get("/api/crops", s.GetCrops)
	app.Get("/api/crops/:id", s.GetCrop)
}
