package db

import (
	"context"

	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
)

func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	return listRecords[models.Order](ctx, s, store.Orders, where{
		"customerId": f.CustomerID,
		"farmerId":   f.FarmerID,
		"cropId":     f.CropID,
	})
}

func (s *Store) GetOrder(ctx context.Context, id models.ID) (*models.Order, error) {
	return getRecord[models.Order](ctx, s, store.Orders, id)
}

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = store.NewID()
	}
	return insertRecord(ctx, s, store.Orders, o.ID, o)
}
