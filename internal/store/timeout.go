package store

import (
	"context"
	"time"

	"github.com/rajivgeraev/agrobazaar-api/internal/models"
)

// WithTimeout ограничивает каждый вызов хранилища временем d.
// Условные записи остаются доступны, если их поддерживает исходное хранилище.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	t := &timeoutStore{inner: s, d: d}
	if c, ok := s.(Conditional); ok {
		return &timeoutConditional{timeoutStore: t, cond: c}
	}
	return t
}

type timeoutStore struct {
	inner Store
	d     time.Duration
}

func (t *timeoutStore) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.d)
}

func (t *timeoutStore) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.ListUsers(ctx)
}

func (t *timeoutStore) GetUser(ctx context.Context, id models.ID) (*models.User, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.GetUser(ctx, id)
}

func (t *timeoutStore) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.CreateUser(ctx, u)
}

func (t *timeoutStore) ListCrops(ctx context.Context, f CropFilter) ([]models.Crop, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.ListCrops(ctx, f)
}

func (t *timeoutStore) GetCrop(ctx context.Context, id models.ID) (*models.Crop, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.GetCrop(ctx, id)
}

func (t *timeoutStore) CreateCrop(ctx context.Context, c *models.Crop) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.CreateCrop(ctx, c)
}

func (t *timeoutStore) UpdateCrop(ctx context.Context, c *models.Crop) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.UpdateCrop(ctx, c)
}

func (t *timeoutStore) SetCropQuantity(ctx context.Context, id models.ID, quantity float64) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.SetCropQuantity(ctx, id, quantity)
}

func (t *timeoutStore) DeleteCrop(ctx context.Context, id models.ID) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.DeleteCrop(ctx, id)
}

func (t *timeoutStore) ListChats(ctx context.Context, f ChatFilter) ([]models.Chat, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.ListChats(ctx, f)
}

func (t *timeoutStore) GetChat(ctx context.Context, id models.ID) (*models.Chat, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.GetChat(ctx, id)
}

func (t *timeoutStore) CreateChat(ctx context.Context, c *models.Chat) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.CreateChat(ctx, c)
}

func (t *timeoutStore) SetChatMessages(ctx context.Context, id models.ID, msgs []models.Message, revision int64) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.SetChatMessages(ctx, id, msgs, revision)
}

func (t *timeoutStore) DeleteChat(ctx context.Context, id models.ID) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.DeleteChat(ctx, id)
}

func (t *timeoutStore) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.ListOrders(ctx, f)
}

func (t *timeoutStore) GetOrder(ctx context.Context, id models.ID) (*models.Order, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.GetOrder(ctx, id)
}

func (t *timeoutStore) CreateOrder(ctx context.Context, o *models.Order) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.inner.CreateOrder(ctx, o)
}

func (t *timeoutStore) Close(ctx context.Context) error {
	return t.inner.Close(ctx)
}

type timeoutConditional struct {
	*timeoutStore
	cond Conditional
}

func (t *timeoutConditional) CompareAndSetCropQuantity(ctx context.Context, id models.ID, expected, next float64) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.cond.CompareAndSetCropQuantity(ctx, id, expected, next)
}

func (t *timeoutConditional) CompareAndSetChatMessages(ctx context.Context, id models.ID, expectedRevision int64, msgs []models.Message) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.cond.CompareAndSetChatMessages(ctx, id, expectedRevision, msgs)
}
