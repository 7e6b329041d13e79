// Package negotiation ведёт переписку покупателя и фермера: текстовые сообщения,
// предложения цены и их принятие с оформлением заказа.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/coord"
	"github.com/rajivgeraev/agrobazaar-api/internal/inventory"
	"github.com/rajivgeraev/agrobazaar-api/internal/logger"
	"github.com/rajivgeraev/agrobazaar-api/internal/metrics"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/reconcile"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
)

// Purchaser оформляет покупку по принятому предложению
type Purchaser interface {
	CommitPurchase(ctx context.Context, req inventory.PurchaseRequest) (*models.Order, error)
}

type Options struct {
	// AppendRetries задаёт, сколько раз повторить запись сообщений при конфликте ревизий
	AppendRetries int
	Locker        coord.Locker
	Journal       reconcile.Journal
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	Now           func() time.Time
}

type Engine struct {
	store         store.Store
	cond          store.Conditional
	purchaser     Purchaser
	locker        coord.Locker
	journal       reconcile.Journal
	metrics       *metrics.Metrics
	logger        *zap.Logger
	appendRetries int
	now           func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

func NewEngine(s store.Store, purchaser Purchaser, opts Options) *Engine {
	e := &Engine{
		store:         s,
		purchaser:     purchaser,
		locker:        opts.Locker,
		journal:       opts.Journal,
		metrics:       opts.Metrics,
		logger:        logger.OrNop(opts.Logger),
		appendRetries: opts.AppendRetries,
		now:           opts.Now,
		entropy:       ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if cond, ok := store.AsConditional(s); ok {
		e.cond = cond
	}
	if e.locker == nil {
		e.locker = coord.NewLocalLocker()
	}
	if e.journal == nil {
		e.journal = reconcile.NewMemoryJournal()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.appendRetries < 0 {
		e.appendRetries = 0
	}
	return e
}

// newMessageID выдаёт ULID: id растут вместе со временем и уникальны в процессе
func (e *Engine) newMessageID(at time.Time) models.ID {
	e.entropyMu.Lock()
	defer e.entropyMu.Unlock()
	return models.ID(ulid.MustNew(ulid.Timestamp(at), e.entropy).String())
}

// timestamp возвращает текущее время с точностью до миллисекунд, как в ISO-строках клиента
func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

func (e *Engine) log(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, e.logger)
}

// observe учитывает результат операции в метриках
func (e *Engine) observe(operation string, err error) {
	result := "ok"
	if err != nil {
		result = string(apperr.CodeOf(err))
	}
	e.metrics.NegotiationOp(operation, result)
}

// storeErr переводит ошибки хранилища в ошибки домена
func storeErr(op, entity string, id models.ID, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(entity, id.String())
	}
	return apperr.Store(op, err)
}

func (e *Engine) getCrop(ctx context.Context, id models.ID) (*models.Crop, error) {
	crop, err := e.store.GetCrop(ctx, id)
	if err != nil {
		return nil, storeErr("чтение культуры", "культура", id, err)
	}
	return crop, nil
}

func (e *Engine) getChat(ctx context.Context, id models.ID) (*models.Chat, error) {
	chat, err := e.store.GetChat(ctx, id)
	if err != nil {
		return nil, storeErr("чтение чата", "чат", id, err)
	}
	return chat, nil
}

// updateChat перечитывает чат, применяет mutate к копии и записывает сообщения.
// Если хранилище поддерживает условную запись, при конфликте ревизий цикл повторяется.
func (e *Engine) updateChat(ctx context.Context, chatID models.ID, mutate func(*models.Chat) error) (*models.Chat, error) {
	for attempt := 0; ; attempt++ {
		chat, err := e.getChat(ctx, chatID)
		if err != nil {
			return nil, err
		}
		if err := mutate(chat); err != nil {
			return nil, err
		}

		if e.cond == nil {
			// последняя запись побеждает: параллельное изменение может потеряться
			if err := e.store.SetChatMessages(ctx, chat.ID, chat.Messages, chat.Revision+1); err != nil {
				return nil, storeErr("запись сообщений", "чат", chat.ID, err)
			}
			chat.Revision++
			return chat, nil
		}

		err = e.cond.CompareAndSetChatMessages(ctx, chat.ID, chat.Revision, chat.Messages)
		if err == nil {
			chat.Revision++
			return chat, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, storeErr("запись сообщений", "чат", chat.ID, err)
		}

		e.metrics.AppendConflict()
		if attempt >= e.appendRetries {
			return nil, apperr.Store("запись сообщений", fmt.Errorf("чат %s: %w после %d попыток", chat.ID, err, attempt+1))
		}
		e.log(ctx).Debug("Конфликт ревизий чата, повторяем запись",
			zap.String("chat_id", chat.ID.String()),
			zap.Int("attempt", attempt+1))
	}
}

// appendMessage добавляет сообщение в конец ленты чата
func (e *Engine) appendMessage(ctx context.Context, chatID models.ID, msg models.Message) (*models.Chat, error) {
	return e.updateChat(ctx, chatID, func(chat *models.Chat) error {
		chat.Messages = append(chat.Messages, msg)
		return nil
	})
}
