package chatsync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/logger"
	"github.com/rajivgeraev/agrobazaar-api/internal/metrics"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/negotiation"
)

// DefaultIdleTTL задаёт, через сколько непрочитанный экран закрывается
const DefaultIdleTTL = 2 * time.Minute

var errRegistryClosed = apperr.Store("открытие ленты", context.Canceled)

// View открытый пользователем экран переписки
type View struct {
	ID     string
	UserID models.ID
	sync   *Synchronizer

	mu       sync.Mutex
	lastRead time.Time
}

func (v *View) Thread() negotiation.Thread { return v.sync.Thread() }
func (v *View) Snapshot() Snapshot         { return v.sync.Snapshot() }

// Refresh обновляет ленту по запросу клиента
func (v *View) Refresh(ctx context.Context) (bool, error) {
	return v.sync.Refresh(ctx)
}

// Poke просит фоновый цикл обновиться немедленно
func (v *View) Poke() { v.sync.Poke() }

func (v *View) touch(at time.Time) {
	v.mu.Lock()
	v.lastRead = at
	v.mu.Unlock()
}

func (v *View) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastRead
}

type RegistryOptions struct {
	Interval time.Duration
	IdleTTL  time.Duration
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Now      func() time.Time
}

// Registry хранит открытые экраны по id и по пользователю
type Registry struct {
	source   Source
	interval time.Duration
	idleTTL  time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time

	views     map[string]*View
	userViews map[models.ID]map[string]bool
	closed    bool
	mu        sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry создаёт реестр и запускает очистку простаивающих экранов
func NewRegistry(source Source, opts RegistryOptions) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		source:    source,
		interval:  opts.Interval,
		idleTTL:   opts.IdleTTL,
		metrics:   opts.Metrics,
		logger:    logger.OrNop(opts.Logger),
		now:       opts.Now,
		views:     make(map[string]*View),
		userViews: make(map[models.ID]map[string]bool),
		ctx:       ctx,
		cancel:    cancel,
	}
	if r.idleTTL <= 0 {
		r.idleTTL = DefaultIdleTTL
	}
	if r.now == nil {
		r.now = time.Now
	}

	r.wg.Add(1)
	go r.janitor()
	return r
}

// Open читает ленту в первый раз и запускает фоновый опрос.
// Если первое чтение не удалось, экран не регистрируется.
func (r *Registry) Open(ctx context.Context, userID models.ID, thread negotiation.Thread) (*View, error) {
	if r.isClosed() {
		return nil, errRegistryClosed
	}

	s := NewSynchronizer(r.source, thread, r.interval, r.metrics, r.logger)
	if _, err := s.Refresh(ctx); err != nil {
		return nil, err
	}

	view := &View{
		ID:       uuid.NewString(),
		UserID:   userID,
		sync:     s,
		lastRead: r.now(),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errRegistryClosed
	}
	r.views[view.ID] = view
	if _, exists := r.userViews[userID]; !exists {
		r.userViews[userID] = make(map[string]bool)
	}
	r.userViews[userID][view.ID] = true

	// Запуск под замком: Shutdown не увидит экран без работающего опроса
	s.Start(r.ctx)
	r.mu.Unlock()
	r.metrics.ViewOpened()

	r.logger.Debug("Открыт экран переписки",
		zap.String("view_id", view.ID),
		zap.String("user_id", userID.String()),
		zap.String("thread", thread.Key()))
	return view, nil
}

// Get возвращает экран владельца и отмечает время чтения
func (r *Registry) Get(id string, userID models.ID) (*View, error) {
	r.mu.RLock()
	view, exists := r.views[id]
	r.mu.RUnlock()

	if !exists {
		return nil, apperr.NotFound("экран переписки", id)
	}
	if view.UserID != userID {
		return nil, apperr.Forbidden("чтение ленты", "экран открыт другим пользователем")
	}
	view.touch(r.now())
	return view, nil
}

// Close закрывает экран владельца
func (r *Registry) Close(id string, userID models.ID) error {
	if _, err := r.Get(id, userID); err != nil {
		return err
	}
	r.remove(id)
	return nil
}

// UserViews возвращает id открытых экранов пользователя
func (r *Registry) UserViews(userID models.ID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.userViews[userID]))
	for id := range r.userViews[userID] {
		ids = append(ids, id)
	}
	return ids
}

// PokeConversation просит обновиться все экраны переписки этой пары фермер-покупатель:
// запись в чат видна и в самом чате, и в сводной ленте фермера
func (r *Registry) PokeConversation(farmerID, customerID models.ID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	poked := 0
	for _, view := range r.views {
		th := view.Thread()
		if th.FarmerID == farmerID && th.CustomerID == customerID {
			view.Poke()
			poked++
		}
	}
	return poked
}

// Len возвращает количество открытых экранов
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	view, exists := r.views[id]
	if !exists {
		r.mu.Unlock()
		return
	}
	delete(r.views, id)
	if ids, ok := r.userViews[view.UserID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.userViews, view.UserID)
		}
	}
	r.mu.Unlock()

	view.sync.Close()
	r.metrics.ViewClosed()
}

// Expire закрывает экраны, которые не читали дольше idleTTL
func (r *Registry) Expire() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.RLock()
	var stale []string
	for id, view := range r.views {
		if view.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.remove(id)
	}
	if len(stale) > 0 {
		r.logger.Info("Закрыты неактивные экраны", zap.Int("count", len(stale)))
	}
	return len(stale)
}

func (r *Registry) janitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Expire()
		}
	}
}

func (r *Registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Shutdown останавливает очистку и закрывает все экраны. После него Open
// возвращает ошибку.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.views))
	for id := range r.views {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()

	for _, id := range ids {
		r.remove(id)
	}
}
