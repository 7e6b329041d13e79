// Package coord обеспечивает взаимное исключение между запросами по строковому ключу.
// Используется при открытии чата, чтобы два запроса не создали дубликат.
package coord

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrLockTimeout: блокировку не удалось получить за отведённое время
var ErrLockTimeout = errors.New("не удалось получить блокировку")

// Locker выдаёт блокировку по ключу. Возвращённую функцию нужно вызвать для освобождения.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker держит блокировки в памяти процесса, для одного экземпляра сервиса
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lk.ch
				l.release(key, lk)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, lk)
		return nil, fmt.Errorf("%w %q: %v", ErrLockTimeout, key, ctx.Err())
	}
}

func (l *LocalLocker) release(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}
