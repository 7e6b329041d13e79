// Package chatsync держит у сервера копию ленты для каждого открытого экрана
// переписки и периодически перечитывает её из хранилища.
package chatsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rajivgeraev/agrobazaar-api/internal/logger"
	"github.com/rajivgeraev/agrobazaar-api/internal/metrics"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/negotiation"
)

// DefaultInterval задаёт период опроса, если он не задан
const DefaultInterval = 500 * time.Millisecond

// Source отдаёт актуальную ленту. Сводная лента каждый раз собирается заново.
type Source interface {
	Timeline(ctx context.Context, thread negotiation.Thread) ([]models.TimelineEntry, error)
}

// Snapshot хранит текущее состояние ленты. Version растёт только при реальных изменениях.
type Snapshot struct {
	Entries   []models.TimelineEntry
	Version   uint64
	UpdatedAt time.Time
}

// ETag для условных запросов клиента
func (s Snapshot) ETag() string {
	return fmt.Sprintf(`"v%d"`, s.Version)
}

type Synchronizer struct {
	source   Source
	thread   negotiation.Thread
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger

	// refreshMu: чтение источника и замена копии идут одной операцией
	refreshMu sync.Mutex
	mu        sync.RWMutex
	raw       []byte
	current   Snapshot

	poke      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewSynchronizer(source Source, thread negotiation.Thread, interval time.Duration, m *metrics.Metrics, l *zap.Logger) *Synchronizer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Synchronizer{
		source:   source,
		thread:   thread,
		interval: interval,
		metrics:  m,
		logger:   logger.OrNop(l).With(zap.String("thread", thread.Key())),
		poke:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		current:  Snapshot{Entries: []models.TimelineEntry{}},
	}
}

func (s *Synchronizer) Thread() negotiation.Thread {
	return s.thread
}

// Snapshot возвращает последнее прочитанное состояние
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Refresh перечитывает ленту и заменяет копию, только если сериализованное
// содержимое отличается. Одинаковый результат ничего не меняет.
func (s *Synchronizer) Refresh(ctx context.Context) (bool, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	entries, err := s.source.Timeline(ctx, s.thread)
	if err != nil {
		s.metrics.Refresh("error")
		return false, err
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		s.metrics.Refresh("error")
		return false, fmt.Errorf("сериализация ленты: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.raw != nil && bytes.Equal(raw, s.raw) {
		s.metrics.Refresh("unchanged")
		return false, nil
	}

	s.raw = raw
	s.current = Snapshot{
		Entries:   entries,
		Version:   s.current.Version + 1,
		UpdatedAt: time.Now(),
	}
	s.metrics.Refresh("changed")
	return true, nil
}

// Poke просит обновить ленту вне очереди, например когда экран снова стал видимым
func (s *Synchronizer) Poke() {
	select {
	case s.poke <- struct{}{}:
	default:
	}
}

// Start запускает опрос в отдельной горутине. Повторный вызов ничего не делает.
func (s *Synchronizer) Start(parent context.Context) {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()

		go func() {
			defer close(s.done)
			s.Run(ctx)
		}()
	})
}

// Run опрашивает источник каждые interval до отмены контекста.
// Ошибки обновления логируются, цикл продолжается.
func (s *Synchronizer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.poke:
		}

		// Close мог сработать одновременно с тиком
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("Не удалось обновить ленту", zap.Error(err))
		}
	}
}

// Close останавливает опрос и дожидается выхода из цикла.
// После возврата из Close обращений к источнику нет.
func (s *Synchronizer) Close() {
	s.closeOnce.Do(func() {
		started := true
		s.startOnce.Do(func() { started = false })

		if !started {
			return
		}
		s.mu.RLock()
		cancel := s.cancel
		s.mu.RUnlock()
		cancel()
		<-s.done
	})
}
