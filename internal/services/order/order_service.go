package order

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/inventory"
	"github.com/rajivgeraev/agrobazaar-api/internal/logger"
	"github.com/rajivgeraev/agrobazaar-api/internal/middleware"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/negotiation"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
	"github.com/rajivgeraev/agrobazaar-api/internal/utils"
)

// OrderService оформляет покупку по текущей цене и показывает заказы
type OrderService struct {
	store      store.Store
	purchaser  negotiation.Purchaser
	jwtService *utils.JWTService
	logger     *zap.Logger
}

// NewOrderService создает новый экземпляр OrderService
func NewOrderService(s store.Store, purchaser negotiation.Purchaser, jwtService *utils.JWTService, l *zap.Logger) *OrderService {
	return &OrderService{
		store:      s,
		purchaser:  purchaser,
		jwtService: jwtService,
		logger:     logger.OrNop(l),
	}
}

type buyRequest struct {
	CropID          models.ID `json:"cropId"`
	Quantity        float64   `json:"quantity"`
	DeliveryAddress string    `json:"deliveryAddress"`
	Phone           string    `json:"phone"`
}

// BuyNow оформляет прямую покупку по цене культуры. Количество только целое.
func (s *OrderService) BuyNow(c fiber.Ctx) error {
	sess, err := middleware.RequireSession(c)
	if err != nil {
		return err
	}
	if !sess.IsCustomer() {
		return apperr.Forbidden("покупка", "покупать могут только покупатели")
	}

	var req buyRequest
	if err := c.Bind().Body(&req); err != nil {
		return apperr.Validation("body", "неверный формат данных")
	}
	if req.CropID == "" {
		return apperr.Validation("cropId", "укажите культуру")
	}
	if req.Quantity <= 0 || req.Quantity != math.Trunc(req.Quantity) {
		return apperr.Validation("quantity", "количество должно быть целым положительным числом")
	}

	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		phone = s.profilePhone(c, sess.UserID)
	}

	order, err := s.purchaser.CommitPurchase(c.Context(), inventory.PurchaseRequest{
		CropID:          req.CropID,
		Quantity:        req.Quantity,
		Customer:        inventory.Customer{ID: sess.UserID, Name: sess.Name},
		DeliveryAddress: req.DeliveryAddress,
		Phone:           phone,
		Path:            inventory.PathDirect,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"order": order})
}

func (s *OrderService) profilePhone(c fiber.Ctx, userID models.ID) string {
	u, err := s.store.GetUser(c.Context(), userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.FromContext(c.Context(), s.logger).Warn("Не удалось прочитать профиль покупателя", zap.Error(err))
		}
		return ""
	}
	return u.Phone
}

// GetOrders: покупатель видит свои заказы, фермер входящие. Новые первыми.
func (s *OrderService) GetOrders(c fiber.Ctx) error {
	sess, err := middleware.RequireSession(c)
	if err != nil {
		return err
	}

	filter := store.OrderFilter{CustomerID: sess.UserID}
	if sess.IsFarmer() {
		filter = store.OrderFilter{FarmerID: sess.UserID}
	}

	orders, err := s.store.ListOrders(c.Context(), filter)
	if err != nil {
		return apperr.Store("чтение заказов", err)
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].OrderDate.After(orders[j].OrderDate)
	})

	return c.JSON(fiber.Map{
		"orders": orders,
		"count":  len(orders),
	})
}

// GetOrder отдаёт заказ его покупателю или фермеру
func (s *OrderService) GetOrder(c fiber.Ctx) error {
	sess, err := middleware.RequireSession(c)
	if err != nil {
		return err
	}

	id := models.ID(c.Params("id"))
	order, err := s.store.GetOrder(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("заказ", id.String())
		}
		return apperr.Store("чтение заказа", err)
	}
	if order.CustomerID != sess.UserID && order.FarmerID != sess.UserID {
		return apperr.Forbidden("просмотр заказа", "заказ принадлежит другому пользователю")
	}

	return c.JSON(fiber.Map{"order": order})
}
