package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const journalKey = "agrobazaar:reconcile"

// RedisJournal хранит записи в хеше Redis, чтобы их видел marketctl
type RedisJournal struct {
	client *redis.Client
	key    string
}

func NewRedisJournal(client *redis.Client) *RedisJournal {
	return &RedisJournal{client: client, key: journalKey}
}

func (j *RedisJournal) Record(ctx context.Context, e Entry) (Entry, error) {
	e = prepare(e)

	data, err := json.Marshal(e)
	if err != nil {
		return e, fmt.Errorf("ошибка сериализации записи журнала: %w", err)
	}
	if err := j.client.HSet(ctx, j.key, e.ID, data).Err(); err != nil {
		return e, fmt.Errorf("ошибка записи в журнал сверки: %w", err)
	}
	return e, nil
}

func (j *RedisJournal) List(ctx context.Context) ([]Entry, error) {
	raw, err := j.client.HGetAll(ctx, j.key).Result()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала сверки: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for id, data := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("повреждённая запись журнала %s: %w", id, err)
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

func (j *RedisJournal) Resolve(ctx context.Context, id string) error {
	n, err := j.client.HDel(ctx, j.key, id).Result()
	if err != nil {
		return fmt.Errorf("ошибка удаления записи журнала: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
