package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
)

func (s *Store) ListChats(ctx context.Context, f store.ChatFilter) ([]models.Chat, error) {
	return listRecords[models.Chat](ctx, s, store.Chats, where{
		"cropId":     f.CropID,
		"customerId": f.CustomerID,
		"farmerId":   f.FarmerID,
	})
}

func (s *Store) GetChat(ctx context.Context, id models.ID) (*models.Chat, error) {
	return getRecord[models.Chat](ctx, s, store.Chats, id)
}

func (s *Store) CreateChat(ctx context.Context, c *models.Chat) error {
	if c.ID == "" {
		c.ID = store.NewID()
	}
	if c.Messages == nil {
		c.Messages = []models.Message{}
	}
	return insertRecord(ctx, s, store.Chats, c.ID, c)
}

func (s *Store) SetChatMessages(ctx context.Context, id models.ID, msgs []models.Message, revision int64) error {
	patch := struct {
		Messages []models.Message `json:"messages"`
		Revision int64            `json:"revision"`
	}{msgs, revision}
	return patchRecord(ctx, s, store.Chats, id, patch)
}

// CompareAndSetChatMessages заменяет сообщения, если revision в базе совпадает с ожидаемой
func (s *Store) CompareAndSetChatMessages(ctx context.Context, id models.ID, expectedRevision int64, msgs []models.Message) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации сообщений: %w", err)
	}

	tag, err := s.Pool.Exec(ctx, `
		UPDATE records
		SET data = data || jsonb_build_object('messages', $4::jsonb, 'revision', $3::bigint + 1),
			updated_at = CURRENT_TIMESTAMP
		WHERE collection = $1 AND id = $2 AND COALESCE((data->>'revision')::bigint, 0) = $3::bigint
	`, store.Chats, id.String(), expectedRevision, string(data))
	if err != nil {
		return fmt.Errorf("ошибка при записи сообщений чата %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return conflictOrMissing(ctx, s, store.Chats, id)
	}
	return nil
}

func (s *Store) DeleteChat(ctx context.Context, id models.ID) error {
	return deleteRecord(ctx, s, store.Chats, id)
}
