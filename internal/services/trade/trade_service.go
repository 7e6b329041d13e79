package trade

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/chatsync"
	"github.com/rajivgeraev/agrobazaar-api/internal/middleware"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/negotiation"
	"github.com/rajivgeraev/agrobazaar-api/internal/utils"
)

// TradeService ведёт торг: предложения цены и ответы на них
type TradeService struct {
	engine     *negotiation.Engine
	registry   *chatsync.Registry
	jwtService *utils.JWTService
}

// NewTradeService создает новый экземпляр TradeService
func NewTradeService(engine *negotiation.Engine, registry *chatsync.Registry, jwtService *utils.JWTService) *TradeService {
	return &TradeService{
		engine:     engine,
		registry:   registry,
		jwtService: jwtService,
	}
}

type threadRef struct {
	ChatID     models.ID `json:"chatId"`
	CustomerID models.ID `json:"customerId"`
}

// CreateProposal добавляет в ленту предложение цены
func (s *TradeService) CreateProposal(c fiber.Ctx) error {
	sess, err := middleware.RequireSession(c)
	if err != nil {
		return err
	}

	var req struct {
		threadRef
		negotiation.ProposalInput
	}
	if err := c.Bind().Body(&req); err != nil {
		return apperr.Validation("body", "неверный формат данных")
	}

	thread, err := s.engine.ResolveThread(c.Context(), sess, negotiation.ThreadRef{
		ChatID:     req.ChatID,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		return err
	}

	msg, err := s.engine.ProposePrice(c.Context(), sess, thread, req.ProposalInput)
	if err != nil {
		return err
	}
	s.notify(thread)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": msg})
}

// RespondToProposal принимает, отклоняет предложение или отвечает встречным
func (s *TradeService) RespondToProposal(c fiber.Ctx) error {
	sess, err := middleware.RequireSession(c)
	if err != nil {
		return err
	}

	var req struct {
		threadRef
		negotiation.Response
	}
	if err := c.Bind().Body(&req); err != nil {
		return apperr.Validation("body", "неверный формат данных")
	}

	thread, err := s.engine.ResolveThread(c.Context(), sess, negotiation.ThreadRef{
		ChatID:     req.ChatID,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		return err
	}

	result, err := s.engine.RespondToProposal(c.Context(), sess, thread, models.ID(c.Params("messageId")), req.Response)
	if result != nil || err == nil {
		s.notify(thread)
	}
	if err != nil {
		return err
	}

	return c.JSON(result)
}

func (s *TradeService) notify(thread negotiation.Thread) {
	if s.registry != nil {
		s.registry.PokeConversation(thread.FarmerID, thread.CustomerID)
	}
}
