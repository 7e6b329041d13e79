package chat

import (
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/chatsync"
	"github.com/rajivgeraev/agrobazaar-api/internal/logger"
	"github.com/rajivgeraev/agrobazaar-api/internal/middleware"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/negotiation"
	"github.com/rajivgeraev/agrobazaar-api/internal/utils"
)

// ChatService отдаёт ленты переписки и открытые экраны
type ChatService struct {
	engine     *negotiation.Engine
	registry   *chatsync.Registry
	jwtService *utils.JWTService
	logger     *zap.Logger
}

// NewChatService создает новый экземпляр ChatService
func NewChatService(engine *negotiation.Engine, registry *chatsync.Registry, jwtService *utils.JWTService, l *zap.Logger) *ChatService {
	return &ChatService{
		engine:     engine,
		registry:   registry,
		jwtService: jwtService,
		logger:     logger.OrNop(l),
	}
}

// threadRequest ссылается на ленту в теле запроса
type threadRequest struct {
	ChatID     models.ID `json:"chatId"`
	CustomerID models.ID `json:"customerId"`
}

func (r threadRequest) ref() negotiation.ThreadRef {
	return negotiation.ThreadRef{ChatID: r.ChatID, CustomerID: r.CustomerID}
}

func viewResponse(view *chatsync.View) fiber.Map {
	snap := view.Snapshot()
	return fiber.Map{
		"view_id":    view.ID,
		"thread":     view.Thread(),
		"messages":   snap.Entries,
		"etag":       snap.ETag(),
		"version":    snap.Version,
		"updated_at": snap.UpdatedAt,
	}
}

// OpenThread открывает ленту и регистрирует экран с фоновым опросом
func (s *ChatService) OpenThread(c fiber.Ctx) error {
	sess, err := middleware.RequireSession(c)
	if err != nil {
		return err
	}

	var req negotiation.OpenRequest
	if err := c.Bind().Body(&req); err != nil {
		return apperr.Validation("body", "неверный формат данных")
	}

	thread, err := s.engine.OpenThread(c.Context(), sess, req)
	if err != nil {
		return err
	}

	view, err := s.registry.Open(c.Context(), sess.UserID, thread)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderETag, view.Snapshot().ETag())
	return c.Status(fiber.StatusCreated).JSON(viewResponse(view))
}

// GetMessages делает разовое чтение ленты без регистрации экрана
func (s *ChatService) GetMessages(c fiber.Ctx) error {
	sess, err := middleware.RequireSession(c)
	if err != nil {
		return err
	}

	ref := negotiation.ThreadRef{
		ChatID:     models.ID(c.Query("chat_id")),
		CustomerID: models.ID(c.Query("customer_id")),
	}
	thread, err := s.engine.ResolveThread(c.Context(), sess, ref)
	if err != nil {
		return err
	}

	entries, err := s.engine.Timeline(c.Context(), thread)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"thread":   thread,
		"messages": entries,
		"count":    len(entries),
	})
}

// SendMessage отправляет текстовое сообщение
func (s *ChatService) SendMessage(c fiber.Ctx) error {
	sess, err := middleware.RequireSession(c)
	if err != nil {
		return err
	}

	var req struct {
		threadRequest
		negotiation.TextInput
	}
	if err := c.Bind().Body(&req); err != nil {
		return apperr.Validation("body", "неверный формат данных")
	}

	thread, err := s.engine.ResolveThread(c.Context(), sess, req.ref())
	if err != nil {
		return err
	}

	msg, err := s.engine.SendText(c.Context(), sess, thread, req.TextInput)
	if err != nil {
		return err
	}
	s.registry.PokeConversation(thread.FarmerID, thread.CustomerID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": msg})
}

// GetView отдаёт текущее состояние экрана. При совпадении If-None-Match отвечает 304.
func (s *ChatService) GetView(c fiber.Ctx) error {
	sess, err := middleware.RequireSession(c)
	if err != nil {
		return err
	}

	view, err := s.registry.Get(c.Params("id"), sess.UserID)
	if err != nil {
		return err
	}

	etag := view.Snapshot().ETag()
	c.Set(fiber.HeaderETag, etag)
	if c.Get(fiber.HeaderIfNoneMatch) == etag {
		return c.SendStatus(fiber.StatusNotModified)
	}
	return c.JSON(viewResponse(view))
}

// RefreshView перечитывает ленту экрана немедленно
func (s *ChatService) RefreshView(c fiber.Ctx) error {
	sess, err := middleware.RequireSession(c)
	if err != nil {
		return err
	}

	view, err := s.registry.Get(c.Params("id"), sess.UserID)
	if err != nil {
		return err
	}

	changed, err := view.Refresh(c.Context())
	if err != nil {
		return err
	}

	resp := viewResponse(view)
	resp["changed"] = changed
	c.Set(fiber.HeaderETag, view.Snapshot().ETag())
	return c.JSON(resp)
}

// CloseView закрывает экран и останавливает его опрос
func (s *ChatService) CloseView(c fiber.Ctx) error {
	sess, err := middleware.RequireSession(c)
	if err != nil {
		return err
	}

	if err := s.registry.Close(c.Params("id"), sess.UserID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetConversations возвращает входящие фермера, сгруппированные по покупателям
func (s *ChatService) GetConversations(c fiber.Ctx) error {
	sess, err := middleware.RequireSession(c)
	if err != nil {
		return err
	}

	conversations, err := s.engine.Conversations(c.Context(), sess)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"conversations": conversations,
		"count":         len(conversations),
	})
}
