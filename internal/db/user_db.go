package db

import (
	"context"

	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
)

var (
	_ store.Store       = (*Store)(nil)
	_ store.Conditional = (*Store)(nil)
)

// ListUsers возвращает всех пользователей в порядке регистрации
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	return listRecords[models.User](ctx, s, store.Users, nil)
}

// GetUser получает пользователя по ID
func (s *Store) GetUser(ctx context.Context, id models.ID) (*models.User, error) {
	return getRecord[models.User](ctx, s, store.Users, id)
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = store.NewID()
	}
	return insertRecord(ctx, s, store.Users, u.ID, u)
}
