// Package memory хранит записи в памяти процесса с условными записями.
// Используется в тестах и для локального запуска без внешних сервисов.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
)

// table хранит записи в порядке вставки, как json-server
type table[T any] struct {
	items map[models.ID]T
	order []models.ID
}

func newTable[T any]() *table[T] {
	return &table[T]{items: make(map[models.ID]T)}
}

func (t *table[T]) put(id models.ID, v T) {
	if _, ok := t.items[id]; !ok {
		t.order = append(t.order, id)
	}
	t.items[id] = v
}

func (t *table[T]) remove(id models.ID) bool {
	if _, ok := t.items[id]; !ok {
		return false
	}
	delete(t.items, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

func (t *table[T]) each(fn func(T)) {
	for _, id := range t.order {
		fn(t.items[id])
	}
}

// Store реализует store.Store и store.Conditional
type Store struct {
	mu     sync.RWMutex
	users  *table[models.User]
	crops  *table[models.Crop]
	chats  *table[models.Chat]
	orders *table[models.Order]

	// Hook вызывается перед каждой операцией записи и может вернуть ошибку.
	// Нужен тестам, чтобы имитировать отказ хранилища.
	Hook func(op string) error
}

func New() *Store {
	return &Store{
		users:  newTable[models.User](),
		crops:  newTable[models.Crop](),
		chats:  newTable[models.Chat](),
		orders: newTable[models.Order](),
	}
}

var (
	_ store.Store       = (*Store)(nil)
	_ store.Conditional = (*Store)(nil)
)

// hook проверяет контекст до записи: отменённая операция ничего не меняет
func (s *Store) hook(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Hook == nil {
		return nil
	}
	return s.Hook(op)
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := []models.User{}
	s.users.each(func(u models.User) { users = append(users, u) })
	return users, ctx.Err()
}

func (s *Store) GetUser(ctx context.Context, id models.ID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users.items[id]
	if !ok {
		return nil, fmt.Errorf("пользователь %s: %w", id, store.ErrNotFound)
	}
	return &u, ctx.Err()
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if err := s.hook(ctx, "create_user"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = store.NewID()
	}
	s.users.put(u.ID, *u)
	return nil
}

func (s *Store) ListCrops(ctx context.Context, f store.CropFilter) ([]models.Crop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	crops := []models.Crop{}
	s.crops.each(func(c models.Crop) {
		if f.Match(&c) {
			crops = append(crops, c)
		}
	})
	return crops, ctx.Err()
}

func (s *Store) GetCrop(ctx context.Context, id models.ID) (*models.Crop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.crops.items[id]
	if !ok {
		return nil, fmt.Errorf("культура %s: %w", id, store.ErrNotFound)
	}
	return &c, ctx.Err()
}

func (s *Store) CreateCrop(ctx context.Context, c *models.Crop) error {
	if err := s.hook(ctx, "create_crop"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = store.NewID()
	}
	s.crops.put(c.ID, *c)
	return nil
}

func (s *Store) UpdateCrop(ctx context.Context, c *models.Crop) error {
	if err := s.hook(ctx, "update_crop"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.crops.items[c.ID]; !ok {
		return fmt.Errorf("культура %s: %w", c.ID, store.ErrNotFound)
	}
	s.crops.put(c.ID, *c)
	return nil
}

func (s *Store) SetCropQuantity(ctx context.Context, id models.ID, quantity float64) error {
	if err := s.hook(ctx, "set_crop_quantity"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.crops.items[id]
	if !ok {
		return fmt.Errorf("культура %s: %w", id, store.ErrNotFound)
	}
	c.Quantity = quantity
	s.crops.put(id, c)
	return nil
}

func (s *Store) CompareAndSetCropQuantity(ctx context.Context, id models.ID, expected, next float64) error {
	if err := s.hook(ctx, "set_crop_quantity"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.crops.items[id]
	if !ok {
		return fmt.Errorf("культура %s: %w", id, store.ErrNotFound)
	}
	if c.Quantity != expected {
		return fmt.Errorf("культура %s: %w", id, store.ErrConflict)
	}
	c.Quantity = next
	s.crops.put(id, c)
	return nil
}

func (s *Store) DeleteCrop(ctx context.Context, id models.ID) error {
	if err := s.hook(ctx, "delete_crop"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.crops.remove(id) {
		return fmt.Errorf("культура %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListChats(ctx context.Context, f store.ChatFilter) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := []models.Chat{}
	s.chats.each(func(c models.Chat) {
		if f.Match(&c) {
			chats = append(chats, c.Clone())
		}
	})
	return chats, ctx.Err()
}

func (s *Store) GetChat(ctx context.Context, id models.ID) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats.items[id]
	if !ok {
		return nil, fmt.Errorf("чат %s: %w", id, store.ErrNotFound)
	}
	c = c.Clone()
	return &c, ctx.Err()
}

func (s *Store) CreateChat(ctx context.Context, c *models.Chat) error {
	if err := s.hook(ctx, "create_chat"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = store.NewID()
	}
	if c.Messages == nil {
		c.Messages = []models.Message{}
	}
	s.chats.put(c.ID, c.Clone())
	return nil
}

func (s *Store) SetChatMessages(ctx context.Context, id models.ID, msgs []models.Message, revision int64) error {
	if err := s.hook(ctx, "set_chat_messages"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats.items[id]
	if !ok {
		return fmt.Errorf("чат %s: %w", id, store.ErrNotFound)
	}
	c.Messages = msgs
	c.Revision = revision
	s.chats.put(id, c.Clone())
	return nil
}

func (s *Store) CompareAndSetChatMessages(ctx context.Context, id models.ID, expectedRevision int64, msgs []models.Message) error {
	if err := s.hook(ctx, "set_chat_messages"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats.items[id]
	if !ok {
		return fmt.Errorf("чат %s: %w", id, store.ErrNotFound)
	}
	if c.Revision != expectedRevision {
		return fmt.Errorf("чат %s: %w", id, store.ErrConflict)
	}
	c.Messages = msgs
	c.Revision = expectedRevision + 1
	s.chats.put(id, c.Clone())
	return nil
}

func (s *Store) DeleteChat(ctx context.Context, id models.ID) error {
	if err := s.hook(ctx, "delete_chat"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.chats.remove(id) {
		return fmt.Errorf("чат %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := []models.Order{}
	s.orders.each(func(o models.Order) {
		if f.Match(&o) {
			orders = append(orders, o)
		}
	})
	return orders, ctx.Err()
}

func (s *Store) GetOrder(ctx context.Context, id models.ID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders.items[id]
	if !ok {
		return nil, fmt.Errorf("заказ %s: %w", id, store.ErrNotFound)
	}
	return &o, ctx.Err()
}

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	if err := s.hook(ctx, "create_order"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" {
		o.ID = store.NewID()
	}
	s.orders.put(o.ID, *o)
	return nil
}

func (s *Store) Close(context.Context) error { return nil }
