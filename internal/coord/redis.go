package coord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript удаляет ключ, только если он всё ещё принадлежит нам
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker ставит блокировку через SET NX с TTL, общую для всех экземпляров сервиса
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{
		client: client,
		prefix: "agrobazaar:lock:",
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

// Lock ждёт освобождения ключа не дольше TTL
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("блокировка %q: %w", key, err)
		}
		if acquired {
			return func() {
				// освобождаем даже если контекст запроса уже отменён
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w %q: %v", ErrLockTimeout, key, ctx.Err())
		case <-ticker.C:
		}
	}
}
