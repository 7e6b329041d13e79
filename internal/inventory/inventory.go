// Package inventory списывает остаток культуры и создаёт заказ.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/logger"
	"github.com/rajivgeraev/agrobazaar-api/internal/metrics"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/reconcile"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
)

// Path откуда пришла покупка
type Path string

const (
	PathDirect   Path = "direct"
	PathProposal Path = "proposal"
)

// Customer покупатель, на которого оформляется заказ
type Customer struct {
	ID   models.ID
	Name string
}

type PurchaseRequest struct {
	CropID   models.ID
	Quantity float64
	// UnitPrice и Total берутся из предложения. Нулевые значения означают
	// текущую цену культуры и price × quantity.
	UnitPrice       float64
	Total           float64
	Customer        Customer
	DeliveryAddress string
	Phone           string
	Path            Path

	// ChatID и MessageID попадают в журнал сверки для покупок по предложению
	ChatID    models.ID
	MessageID models.ID
}

type Service struct {
	store   store.Store
	journal reconcile.Journal
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(s store.Store, journal reconcile.Journal, m *metrics.Metrics, l *zap.Logger) *Service {
	if journal == nil {
		journal = reconcile.NewMemoryJournal()
	}
	return &Service{
		store:   s,
		journal: journal,
		metrics: m,
		logger:  logger.OrNop(l),
		now:     time.Now,
	}
}

// CommitPurchase перечитывает остаток, списывает количество и создаёт заказ.
// При нехватке товара ничего не меняется. Если заказ не создался после списания,
// возвращается PartialCommitError и появляется запись в журнале сверки.
func (s *Service) CommitPurchase(ctx context.Context, req PurchaseRequest) (*models.Order, error) {
	order, err := s.commit(ctx, req)
	result := "ok"
	if err != nil {
		result = string(apperr.CodeOf(err))
	}
	s.metrics.Commit(string(req.Path), result)
	return order, err
}

func (s *Service) commit(ctx context.Context, req PurchaseRequest) (*models.Order, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	crop, err := s.store.GetCrop(ctx, req.CropID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("культура", req.CropID.String())
		}
		return nil, apperr.Store("чтение культуры", err)
	}

	if req.Quantity > crop.Quantity {
		return nil, &apperr.StockError{
			CropID:    crop.ID.String(),
			Requested: req.Quantity,
			Available: crop.Quantity,
			Unit:      crop.Unit,
		}
	}

	remaining := subtract(crop.Quantity, req.Quantity)
	cond, conditional := store.AsConditional(s.store)

	if conditional {
		err = cond.CompareAndSetCropQuantity(ctx, crop.ID, crop.Quantity, remaining)
	} else {
		err = s.store.SetCropQuantity(ctx, crop.ID, remaining)
	}
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, &apperr.StockError{
				CropID:    crop.ID.String(),
				Requested: req.Quantity,
				Available: crop.Quantity,
				Unit:      crop.Unit,
				Conflict:  true,
			}
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("культура", req.CropID.String())
		}
		return nil, apperr.Store("списание остатка", err)
	}

	unitPrice := req.UnitPrice
	if unitPrice <= 0 {
		unitPrice = crop.PricePerUnit
	}
	total := req.Total
	if total <= 0 {
		total = models.Total(unitPrice, req.Quantity)
	}

	order := &models.Order{
		CustomerID:      req.Customer.ID,
		CustomerName:    req.Customer.Name,
		FarmerID:        crop.FarmerID,
		FarmerName:      crop.FarmerName,
		CropID:          crop.ID,
		CropName:        crop.CropName,
		Quantity:        req.Quantity,
		PricePerUnit:    models.RoundMoney(unitPrice),
		TotalPrice:      models.RoundMoney(total),
		Unit:            crop.Unit,
		Status:          models.OrderSuccess,
		OrderDate:       s.now().UTC(),
		DeliveryAddress: req.DeliveryAddress,
		CustomerPhone:   req.Phone,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, s.partialCommit(ctx, req, crop, remaining, err)
	}

	logger.FromContext(ctx, s.logger).Info("Заказ оформлен",
		zap.String("order_id", order.ID.String()),
		zap.String("crop_id", crop.ID.String()),
		zap.Float64("quantity", req.Quantity),
		zap.Float64("remaining", remaining),
		zap.String("path", string(req.Path)))

	return order, nil
}

// partialCommit пытается вернуть остаток и фиксирует операцию в журнале.
// Остаток возвращается только условной записью, чтобы не затереть чужое списание.
func (s *Service) partialCommit(ctx context.Context, req PurchaseRequest, crop *models.Crop, remaining float64, orderErr error) error {
	// Запрос мог быть отменён, а сверку нужно записать в любом случае
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContext(ctx, s.logger)

	compensated := false
	if cond, ok := store.AsConditional(s.store); ok {
		if err := cond.CompareAndSetCropQuantity(ctx, crop.ID, remaining, crop.Quantity); err == nil {
			compensated = true
		} else {
			log.Warn("Не удалось вернуть остаток после сбоя заказа",
				zap.String("crop_id", crop.ID.String()),
				zap.Error(err))
		}
	}

	entry, err := s.journal.Record(ctx, reconcile.Entry{
		Kind:        reconcile.KindPartialCommit,
		CropID:      crop.ID.String(),
		ChatID:      req.ChatID.String(),
		MessageID:   req.MessageID.String(),
		Quantity:    req.Quantity,
		Compensated: compensated,
		Error:       orderErr.Error(),
	})
	journalID := entry.ID
	if err != nil {
		journalID = ""
		log.Error("Не удалось записать операцию в журнал сверки", zap.Error(err))
	}

	s.metrics.PartialCommit(compensated)
	log.Error("Остаток списан, но заказ не создан",
		zap.String("crop_id", crop.ID.String()),
		zap.Float64("quantity", req.Quantity),
		zap.Bool("compensated", compensated),
		zap.String("journal_id", journalID),
		zap.Error(orderErr))

	return &apperr.PartialCommitError{
		CropID:      crop.ID.String(),
		Quantity:    req.Quantity,
		Compensated: compensated,
		JournalID:   journalID,
		Err:         fmt.Errorf("создание заказа: %w", orderErr),
	}
}

func validate(req *PurchaseRequest) error {
	req.DeliveryAddress = strings.TrimSpace(req.DeliveryAddress)
	req.Phone = strings.TrimSpace(req.Phone)

	if req.CropID == "" {
		return apperr.Validation("cropId", "не указана культура")
	}
	if req.Quantity <= 0 {
		return apperr.Validation("quantity", "количество должно быть больше нуля")
	}
	if req.Customer.ID == "" {
		return apperr.Validation("customer", "не указан покупатель")
	}
	if req.DeliveryAddress == "" {
		return apperr.Validation("deliveryAddress", "укажите адрес доставки")
	}
	return nil
}

// subtract вычитает без накопления ошибки двоичной арифметики: 10 - 0.1 = 9.9
func subtract(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Float64()
	return f
}
