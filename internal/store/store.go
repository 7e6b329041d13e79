// Package store описывает внешнее хранилище записей: users, crops, chats, orders.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
)

var (
	// ErrNotFound: записи с таким id нет
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict: условная запись не прошла: значение изменилось
	ErrConflict = errors.New("запись изменена параллельно")
)

// Коллекции хранилища
const (
	Users  = "users"
	Crops  = "crops"
	Chats  = "chats"
	Orders = "orders"
)

// ChatFilter: пустые поля не участвуют в отборе
type ChatFilter struct {
	CropID     models.ID
	CustomerID models.ID
	FarmerID   models.ID
}

func (f ChatFilter) Match(c *models.Chat) bool {
	return (f.CropID == "" || c.CropID == f.CropID) &&
		(f.CustomerID == "" || c.CustomerID == f.CustomerID) &&
		(f.FarmerID == "" || c.FarmerID == f.FarmerID)
}

type OrderFilter struct {
	CustomerID models.ID
	FarmerID   models.ID
	CropID     models.ID
}

func (f OrderFilter) Match(o *models.Order) bool {
	return (f.CustomerID == "" || o.CustomerID == f.CustomerID) &&
		(f.FarmerID == "" || o.FarmerID == f.FarmerID) &&
		(f.CropID == "" || o.CropID == f.CropID)
}

type CropFilter struct {
	FarmerID models.ID
	Category string
	// Search ищет подстроку в названии без учёта регистра
	Search  string
	InStock bool
}

func (f CropFilter) Match(c *models.Crop) bool {
	if f.FarmerID != "" && c.FarmerID != f.FarmerID {
		return false
	}
	if f.Category != "" && !strings.EqualFold(c.Category, f.Category) {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(c.CropName), strings.ToLower(f.Search)) {
		return false
	}
	if f.InStock && !c.InStock() {
		return false
	}
	return true
}

// Store минимальный набор операций над коллекциями.
// Create присваивает id, если он не задан. SetChatMessages заменяет список
// сообщений целиком и записывает revision как есть.
type Store interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id models.ID) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error

	ListCrops(ctx context.Context, f CropFilter) ([]models.Crop, error)
	GetCrop(ctx context.Context, id models.ID) (*models.Crop, error)
	CreateCrop(ctx context.Context, c *models.Crop) error
	UpdateCrop(ctx context.Context, c *models.Crop) error
	SetCropQuantity(ctx context.Context, id models.ID, quantity float64) error
	DeleteCrop(ctx context.Context, id models.ID) error

	ListChats(ctx context.Context, f ChatFilter) ([]models.Chat, error)
	GetChat(ctx context.Context, id models.ID) (*models.Chat, error)
	CreateChat(ctx context.Context, c *models.Chat) error
	SetChatMessages(ctx context.Context, id models.ID, msgs []models.Message, revision int64) error
	DeleteChat(ctx context.Context, id models.ID) error

	ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error)
	GetOrder(ctx context.Context, id models.ID) (*models.Order, error)
	CreateOrder(ctx context.Context, o *models.Order) error

	Close(ctx context.Context) error
}

// Conditional описывает необязательную возможность хранилища: запись при совпадении
// ожидаемого значения. При расхождении возвращается ErrConflict.
type Conditional interface {
	CompareAndSetCropQuantity(ctx context.Context, id models.ID, expected, next float64) error
	CompareAndSetChatMessages(ctx context.Context, id models.ID, expectedRevision int64, msgs []models.Message) error
}

// AsConditional возвращает условный интерфейс, если хранилище его поддерживает
func AsConditional(s Store) (Conditional, bool) {
	c, ok := s.(Conditional)
	return c, ok
}

// NewID выдаёт id для новой записи, если хранилище не назначает свои
func NewID() models.ID {
	return models.ID(uuid.NewString())
}
