package coord

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func lockers(t *testing.T) map[string]Locker {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Locker{
		"local": NewLocalLocker(),
		"redis": NewRedisLocker(client, time.Second),
	}
}

func TestLockIsExclusive(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			var inside, maxInside int32
			var wg sync.WaitGroup

			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := l.Lock(context.Background(), "crop:1|u1|f1")
					if err != nil {
						t.Error(err)
						return
					}
					n := atomic.AddInt32(&inside, 1)
					for {
						m := atomic.LoadInt32(&maxInside)
						if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					atomic.AddInt32(&inside, -1)
					unlock()
				}()
			}
			wg.Wait()

			if maxInside != 1 {
				t.Errorf("max holders = %d, want 1", maxInside)
			}
		})
	}
}

func TestLockTimeout(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			unlock, err := l.Lock(context.Background(), "k")
			if err != nil {
				t.Fatal(err)
			}
			defer unlock()

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			if _, err := l.Lock(ctx, "k"); !errors.Is(err, ErrLockTimeout) {
				t.Errorf("got %v, want ErrLockTimeout", err)
			}

			// другой ключ не блокируется
			other, err := l.Lock(context.Background(), "other")
			if err != nil {
				t.Fatal(err)
			}
			other()
		})
	}
}

func TestRedisUnlockKeepsForeignLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLocker(client, time.Second)
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}

	// ключ истёк и был перехвачен другим владельцем
	mr.Set(l.prefix+"k", "someone-else")
	unlock()

	if got, _ := mr.Get(l.prefix + "k"); got != "someone-else" {
		t.Errorf("foreign lock removed, value = %q", got)
	}
}
