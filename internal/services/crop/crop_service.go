package crop

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/logger"
	"github.com/rajivgeraev/agrobazaar-api/internal/middleware"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/session"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
	"github.com/rajivgeraev/agrobazaar-api/internal/utils"
)

// CropService обслуживает каталог культур и управление своими культурами для фермера
type CropService struct {
	store      store.Store
	jwtService *utils.JWTService
	logger     *zap.Logger
}

// NewCropService создает новый экземпляр CropService
func NewCropService(s store.Store, jwtService *utils.JWTService, l *zap.Logger) *CropService {
	return &CropService{
		store:      s,
		jwtService: jwtService,
		logger:     logger.OrNop(l),
	}
}

// cropRequest содержит поля, которые фермер может задать сам
type cropRequest struct {
	CropName     string           `json:"cropName"`
	Category     string           `json:"category"`
	Quantity     models.FlexFloat `json:"quantity"`
	Unit         string           `json:"unit"`
	PricePerUnit models.FlexFloat `json:"pricePerUnit"`
	Description  string           `json:"description"`
	HarvestDate  string           `json:"harvestDate"`
	Image        string           `json:"image"`
}

func (r cropRequest) apply(c *models.Crop) {
	c.CropName = r.CropName
	c.Category = r.Category
	c.Quantity = float64(r.Quantity)
	c.Unit = r.Unit
	c.PricePerUnit = models.RoundMoney(float64(r.PricePerUnit))
	c.Description = r.Description
	c.HarvestDate = r.HarvestDate
	c.Image = r.Image
}

// GetCrops возвращает публичный список культур с фильтрами category, search, in_stock, farmer_id
func (s *CropService) GetCrops(c fiber.Ctx) error {
	filter := store.CropFilter{
		FarmerID: models.ID(c.Query("farmer_id")),
		Category: c.Query("category"),
		Search:   c.Query("search"),
	}
	if v := c.Query("in_stock"); v != "" {
		inStock, err := strconv.ParseBool(v)
		if err != nil {
			return apperr.Validation("in_stock", "ожидается true или false")
		}
		filter.InStock = inStock
	}

	crops, err := s.store.ListCrops(c.Context(), filter)
	if err != nil {
		return apperr.Store("чтение культур", err)
	}

	return c.JSON(fiber.Map{
		"crops": crops,
		"count": len(crops),
	})
}

// GetCrop возвращает культуру по ID
func (s *CropService) GetCrop(c fiber.Ctx) error {
	crop, err := s.getCrop(c.Context(), models.ID(c.Params("id")))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"crop": crop})
}

// CreateCrop выставляет новую культуру от имени фермера
func (s *CropService) CreateCrop(c fiber.Ctx) error {
	sess, err := requireFarmer(c, "добавление культуры")
	if err != nil {
		return err
	}

	var req cropRequest
	if err := c.Bind().Body(&req); err != nil {
		return apperr.Validation("body", "неверный формат данных")
	}

	crop := &models.Crop{FarmerID: sess.UserID, FarmerName: sess.Name}
	req.apply(crop)
	if err := crop.Validate(); err != nil {
		return err
	}

	if err := s.store.CreateCrop(c.Context(), crop); err != nil {
		return apperr.Store("создание культуры", err)
	}

	logger.FromContext(c.Context(), s.logger).Info("Добавлена культура",
		zap.String("crop_id", crop.ID.String()),
		zap.String("farmer_id", sess.UserID.String()))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"crop": crop})
}

// UpdateCrop правит культуру. Владелец и id не меняются.
func (s *CropService) UpdateCrop(c fiber.Ctx) error {
	sess, err := requireFarmer(c, "изменение культуры")
	if err != nil {
		return err
	}

	crop, err := s.ownCrop(c, sess)
	if err != nil {
		return err
	}

	var req cropRequest
	if err := c.Bind().Body(&req); err != nil {
		return apperr.Validation("body", "неверный формат данных")
	}
	req.apply(crop)
	if err := crop.Validate(); err != nil {
		return err
	}

	if err := s.store.UpdateCrop(c.Context(), crop); err != nil {
		return storeErr("изменение культуры", crop.ID, err)
	}
	return c.JSON(fiber.Map{"crop": crop})
}

// DeleteCrop снимает культуру с продажи
func (s *CropService) DeleteCrop(c fiber.Ctx) error {
	sess, err := requireFarmer(c, "удаление культуры")
	if err != nil {
		return err
	}

	crop, err := s.ownCrop(c, sess)
	if err != nil {
		return err
	}

	if err := s.store.DeleteCrop(c.Context(), crop.ID); err != nil {
		return storeErr("удаление культуры", crop.ID, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func requireFarmer(c fiber.Ctx, action string) (session.Session, error) {
	sess, err := middleware.RequireSession(c)
	if err != nil {
		return session.Session{}, err
	}
	if !sess.IsFarmer() {
		return session.Session{}, apperr.Forbidden(action, "доступно только фермерам")
	}
	return sess, nil
}

func (s *CropService) ownCrop(c fiber.Ctx, sess session.Session) (*models.Crop, error) {
	crop, err := s.getCrop(c.Context(), models.ID(c.Params("id")))
	if err != nil {
		return nil, err
	}
	if crop.FarmerID != sess.UserID {
		return nil, apperr.Forbidden("изменение культуры", "культура принадлежит другому фермеру")
	}
	return crop, nil
}

func (s *CropService) getCrop(ctx context.Context, id models.ID) (*models.Crop, error) {
	crop, err := s.store.GetCrop(ctx, id)
	if err != nil {
		return nil, storeErr("чтение культуры", id, err)
	}
	return crop, nil
}

func storeErr(op string, id models.ID, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("культура", id.String())
	}
	return apperr.Store(op, err)
}
