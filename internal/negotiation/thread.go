package negotiation

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/session"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
)

// ThreadKind различает один чат и сводную ленту фермера по покупателю
type ThreadKind string

const (
	ThreadChat     ThreadKind = "chat"
	ThreadCustomer ThreadKind = "customer"
)

// Thread задаёт адрес ленты сообщений. Сводная лента не хранится, а собирается
// из всех чатов пары фермер-покупатель при каждом чтении.
type Thread struct {
	Kind         ThreadKind `json:"kind"`
	ChatID       models.ID  `json:"chatId,omitempty"`
	CropID       models.ID  `json:"cropId,omitempty"`
	CropName     string     `json:"cropName,omitempty"`
	CustomerID   models.ID  `json:"customerId"`
	CustomerName string     `json:"customerName,omitempty"`
	FarmerID     models.ID  `json:"farmerId"`
	FarmerName   string     `json:"farmerName,omitempty"`
}

func (t Thread) HasParticipant(userID models.ID) bool {
	return userID != "" && (t.CustomerID == userID || t.FarmerID == userID)
}

// Key возвращает стабильный ключ ленты для реестра представлений
func (t Thread) Key() string {
	if t.Kind == ThreadChat {
		return "chat:" + t.ChatID.String()
	}
	return "customer:" + t.FarmerID.String() + ":" + t.CustomerID.String()
}

func threadFromChat(c *models.Chat) Thread {
	return Thread{
		Kind:         ThreadChat,
		ChatID:       c.ID,
		CropID:       c.CropID,
		CropName:     c.CropName,
		CustomerID:   c.CustomerID,
		CustomerName: c.CustomerName,
		FarmerID:     c.FarmerID,
		FarmerName:   c.FarmerName,
	}
}

// OpenRequest: покупатель открывает чат по культуре, фермер открывает ленту покупателя
type OpenRequest struct {
	CropID     models.ID `json:"cropId"`
	CustomerID models.ID `json:"customerId"`
}

// ThreadRef ссылается на уже существующую ленту
type ThreadRef struct {
	ChatID     models.ID
	CustomerID models.ID
}

// OpenThread находит или создаёт чат покупателя по культуре либо собирает
// сводную ленту фермера по покупателю. Сводная лента ничего не создаёт.
func (e *Engine) OpenThread(ctx context.Context, sess session.Session, req OpenRequest) (thread Thread, err error) {
	defer func() { e.observe("open_thread", err) }()

	if err := sess.Validate(); err != nil {
		return Thread{}, err
	}

	switch {
	case sess.IsCustomer() && req.CropID != "":
		return e.openCustomerChat(ctx, sess, req.CropID)
	case sess.IsFarmer() && req.CustomerID != "":
		return e.customerThread(ctx, sess, req.CustomerID)
	case sess.IsCustomer():
		return Thread{}, apperr.Validation("cropId", "укажите культуру, чтобы начать чат")
	default:
		return Thread{}, apperr.Validation("customerId", "укажите покупателя, чтобы открыть переписку")
	}
}

func (e *Engine) openCustomerChat(ctx context.Context, sess session.Session, cropID models.ID) (Thread, error) {
	crop, err := e.getCrop(ctx, cropID)
	if err != nil {
		return Thread{}, err
	}

	filter := store.ChatFilter{CropID: crop.ID, CustomerID: sess.UserID, FarmerID: crop.FarmerID}
	existing, err := e.findChat(ctx, filter)
	if err != nil {
		return Thread{}, err
	}
	if existing != nil {
		return threadFromChat(existing), nil
	}

	// Блокировка сужает окно, в котором два запроса создадут один и тот же чат.
	// Если получить её не удалось, продолжаем без неё.
	lockKey := "chat:" + crop.ID.String() + "|" + sess.UserID.String() + "|" + crop.FarmerID.String()
	unlock, err := e.locker.Lock(ctx, lockKey)
	if err != nil {
		e.metrics.LockFallback()
		e.log(ctx).Warn("Открываем чат без блокировки", zap.String("key", lockKey), zap.Error(err))
	} else {
		defer unlock()

		existing, err = e.findChat(ctx, filter)
		if err != nil {
			return Thread{}, err
		}
		if existing != nil {
			return threadFromChat(existing), nil
		}
	}

	chat := &models.Chat{
		CropID:       crop.ID,
		CropName:     crop.CropName,
		CustomerID:   sess.UserID,
		CustomerName: sess.Name,
		FarmerID:     crop.FarmerID,
		FarmerName:   crop.FarmerName,
		Messages:     []models.Message{},
	}
	if err := e.store.CreateChat(ctx, chat); err != nil {
		return Thread{}, apperr.Store("создание чата", err)
	}

	e.log(ctx).Info("Создан чат",
		zap.String("chat_id", chat.ID.String()),
		zap.String("crop_id", crop.ID.String()),
		zap.String("customer_id", sess.UserID.String()))

	return threadFromChat(chat), nil
}

func (e *Engine) findChat(ctx context.Context, f store.ChatFilter) (*models.Chat, error) {
	chats, err := e.store.ListChats(ctx, f)
	if err != nil {
		return nil, apperr.Store("поиск чата", err)
	}
	if len(chats) == 0 {
		return nil, nil
	}
	return &chats[0], nil
}

// customerThread собирает сводную ленту фермера. Имя покупателя берётся из
// первого чата, а если чатов нет, из коллекции users.
func (e *Engine) customerThread(ctx context.Context, sess session.Session, customerID models.ID) (Thread, error) {
	thread := Thread{
		Kind:       ThreadCustomer,
		CustomerID: customerID,
		FarmerID:   sess.UserID,
		FarmerName: sess.Name,
	}

	chats, err := e.store.ListChats(ctx, store.ChatFilter{FarmerID: sess.UserID, CustomerID: customerID})
	if err != nil {
		return Thread{}, apperr.Store("поиск чатов", err)
	}
	if len(chats) > 0 {
		thread.CustomerName = chats[0].CustomerName
		return thread, nil
	}

	if u, err := e.store.GetUser(ctx, customerID); err == nil {
		thread.CustomerName = u.Name
	}
	return thread, nil
}

// ResolveThread восстанавливает ленту по ссылке из запроса и проверяет участие
func (e *Engine) ResolveThread(ctx context.Context, sess session.Session, ref ThreadRef) (Thread, error) {
	if err := sess.Validate(); err != nil {
		return Thread{}, err
	}

	switch {
	case ref.ChatID != "":
		chat, err := e.getChat(ctx, ref.ChatID)
		if err != nil {
			return Thread{}, err
		}
		if !chat.HasParticipant(sess.UserID) {
			return Thread{}, apperr.Forbidden("чтение чата", "вы не участвуете в этом чате")
		}
		return threadFromChat(chat), nil
	case ref.CustomerID != "" && sess.IsFarmer():
		return e.customerThread(ctx, sess, ref.CustomerID)
	case ref.CustomerID != "":
		return Thread{}, apperr.Forbidden("чтение переписки", "сводная лента доступна только фермеру")
	default:
		return Thread{}, apperr.Validation("chatId", "укажите чат или покупателя")
	}
}

// chats возвращает чаты ленты в порядке хранилища
func (e *Engine) chats(ctx context.Context, thread Thread) ([]models.Chat, error) {
	if thread.Kind == ThreadChat {
		chat, err := e.getChat(ctx, thread.ChatID)
		if err != nil {
			return nil, err
		}
		return []models.Chat{*chat}, nil
	}

	chats, err := e.store.ListChats(ctx, store.ChatFilter{FarmerID: thread.FarmerID, CustomerID: thread.CustomerID})
	if err != nil {
		return nil, apperr.Store("чтение чатов", err)
	}
	return chats, nil
}

// Timeline собирает сообщения ленты по возрастанию времени. При равном времени
// сохраняется порядок, в котором сообщения пришли из хранилища.
func (e *Engine) Timeline(ctx context.Context, thread Thread) ([]models.TimelineEntry, error) {
	chats, err := e.chats(ctx, thread)
	if err != nil {
		return nil, err
	}
	return mergeTimeline(chats), nil
}

func mergeTimeline(chats []models.Chat) []models.TimelineEntry {
	entries := []models.TimelineEntry{}
	for i := range chats {
		chat := &chats[i]
		for _, msg := range chat.Messages {
			entries = append(entries, models.TimelineEntry{
				ChatID:   chat.ID,
				CropID:   chat.CropID,
				CropName: chat.CropName,
				Message:  msg,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Message.Timestamp.Before(entries[j].Message.Timestamp)
	})
	return entries
}

// targetChat выбирает чат ленты для записи: в сводной ленте это чат указанной
// культуры, а без культуры первый чат пары
func (e *Engine) targetChat(ctx context.Context, thread Thread, cropID models.ID) (*models.Chat, error) {
	if thread.Kind == ThreadChat {
		chat, err := e.getChat(ctx, thread.ChatID)
		if err != nil {
			return nil, err
		}
		if cropID != "" && chat.CropID != cropID {
			return nil, apperr.Validation("cropId", "культура не относится к этому чату")
		}
		return chat, nil
	}

	chats, err := e.chats(ctx, thread)
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, apperr.NotFound("чат с покупателем", thread.CustomerID.String())
	}
	if cropID == "" {
		return &chats[0], nil
	}
	for i := range chats {
		if chats[i].CropID == cropID {
			return &chats[i], nil
		}
	}
	return nil, apperr.NotFound("чат по культуре", cropID.String())
}

func requireParticipant(sess session.Session, thread Thread, action string) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if !thread.HasParticipant(sess.UserID) {
		return apperr.Forbidden(action, "вы не участвуете в этой переписке")
	}
	return nil
}
