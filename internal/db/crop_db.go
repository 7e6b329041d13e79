package db

import (
	"context"
	"fmt"

	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
)

func (s *Store) ListCrops(ctx context.Context, f store.CropFilter) ([]models.Crop, error) {
	all, err := listRecords[models.Crop](ctx, s, store.Crops, where{"farmerId": f.FarmerID})
	if err != nil {
		return nil, err
	}

	crops := []models.Crop{}
	for i := range all {
		if f.Match(&all[i]) {
			crops = append(crops, all[i])
		}
	}
	return crops, nil
}

func (s *Store) GetCrop(ctx context.Context, id models.ID) (*models.Crop, error) {
	return getRecord[models.Crop](ctx, s, store.Crops, id)
}

func (s *Store) CreateCrop(ctx context.Context, c *models.Crop) error {
	if c.ID == "" {
		c.ID = store.NewID()
	}
	return insertRecord(ctx, s, store.Crops, c.ID, c)
}

func (s *Store) UpdateCrop(ctx context.Context, c *models.Crop) error {
	return patchRecord(ctx, s, store.Crops, c.ID, c)
}

func (s *Store) SetCropQuantity(ctx context.Context, id models.ID, quantity float64) error {
	return patchRecord(ctx, s, store.Crops, id, map[string]float64{"quantity": quantity})
}

// CompareAndSetCropQuantity записывает остаток, только если в базе всё ещё expected
func (s *Store) CompareAndSetCropQuantity(ctx context.Context, id models.ID, expected, next float64) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE records
		SET data = jsonb_set(data, '{quantity}', to_jsonb($4::float8)), updated_at = CURRENT_TIMESTAMP
		WHERE collection = $1 AND id = $2 AND (data->>'quantity')::float8 = $3::float8
	`, store.Crops, id.String(), expected, next)
	if err != nil {
		return fmt.Errorf("ошибка при списании остатка %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return conflictOrMissing(ctx, s, store.Crops, id)
	}
	return nil
}

func (s *Store) DeleteCrop(ctx context.Context, id models.ID) error {
	return deleteRecord(ctx, s, store.Crops, id)
}
