package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
)

// where задаёт условие на поля документа: data->>'поле' = значение
type where map[string]models.ID

func getRecord[T any](ctx context.Context, s *Store, collection string, id models.ID) (*T, error) {
	var data []byte
	err := s.Pool.QueryRow(ctx, `
		SELECT data FROM records WHERE collection = $1 AND id = $2
	`, collection, id.String()).Scan(&data)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", collection, id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении записи %s %s: %w", collection, id, err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("ошибка при разборе записи %s %s: %w", collection, id, err)
	}
	return &v, nil
}

func listRecords[T any](ctx context.Context, s *Store, collection string, filter where) ([]T, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT data FROM records WHERE collection = $1`)
	args := []any{collection}

	for field, value := range filter {
		if value == "" {
			continue
		}
		args = append(args, field, value.String())
		fmt.Fprintf(&query, ` AND data->>$%d = $%d`, len(args)-1, len(args))
	}
	query.WriteString(` ORDER BY seq`)

	rows, err := s.Pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении списка %s: %w", collection, err)
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("ошибка при чтении строки %s: %w", collection, err)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("ошибка при разборе записи %s: %w", collection, err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка при обходе %s: %w", collection, err)
	}
	return items, nil
}

func insertRecord(ctx context.Context, s *Store, collection string, id models.ID, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации %s: %w", collection, err)
	}

	_, err = s.Pool.Exec(ctx, `
		INSERT INTO records (collection, id, data) VALUES ($1, $2, $3::jsonb)
	`, collection, id.String(), string(data))
	if err != nil {
		return fmt.Errorf("ошибка при создании записи %s %s: %w", collection, id, err)
	}
	return nil
}

// patchRecord сливает patch с документом: поля верхнего уровня заменяются
func patchRecord(ctx context.Context, s *Store, collection string, id models.ID, patch any) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации %s: %w", collection, err)
	}

	tag, err := s.Pool.Exec(ctx, `
		UPDATE records SET data = data || $3::jsonb, updated_at = CURRENT_TIMESTAMP
		WHERE collection = $1 AND id = $2
	`, collection, id.String(), string(data))
	if err != nil {
		return fmt.Errorf("ошибка при обновлении записи %s %s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", collection, id, store.ErrNotFound)
	}
	return nil
}

func deleteRecord(ctx context.Context, s *Store, collection string, id models.ID) error {
	tag, err := s.Pool.Exec(ctx, `
		DELETE FROM records WHERE collection = $1 AND id = $2
	`, collection, id.String())
	if err != nil {
		return fmt.Errorf("ошибка при удалении записи %s %s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", collection, id, store.ErrNotFound)
	}
	return nil
}

// conflictOrMissing различает ErrNotFound и ErrConflict после условного UPDATE без изменений
func conflictOrMissing(ctx context.Context, s *Store, collection string, id models.ID) error {
	var exists bool
	err := s.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM records WHERE collection = $1 AND id = $2)
	`, collection, id.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ошибка при проверке записи %s %s: %w", collection, id, err)
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", collection, id, store.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", collection, id, store.ErrConflict)
}
