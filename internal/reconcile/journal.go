// Package reconcile ведёт журнал операций, которые требуют ручной сверки:
// остаток списан без заказа или заказ создан, а статус предложения не записан.
package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound: записи журнала с таким id нет
var ErrNotFound = errors.New("запись журнала не найдена")

type Kind string

const (
	// KindPartialCommit: остаток списан, заказ не создан
	KindPartialCommit Kind = "partial_commit"
	// KindProposalStatus: заказ создан, предложение осталось в статусе pending
	KindProposalStatus Kind = "proposal_status"
)

type Entry struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	CropID      string    `json:"cropId"`
	OrderID     string    `json:"orderId,omitempty"`
	ChatID      string    `json:"chatId,omitempty"`
	MessageID   string    `json:"messageId,omitempty"`
	Quantity    float64   `json:"quantity"`
	Compensated bool      `json:"compensated"`
	Error       string    `json:"error"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Journal interface {
	// Record сохраняет запись, назначая id и время создания
	Record(ctx context.Context, e Entry) (Entry, error)
	// List возвращает открытые записи, старые первыми
	List(ctx context.Context) ([]Entry, error)
	// Resolve закрывает запись после сверки
	Resolve(ctx context.Context, id string) error
}

func prepare(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return e
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

// MemoryJournal хранит записи в памяти процесса
type MemoryJournal struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[string]Entry)}
}

func (j *MemoryJournal) Record(_ context.Context, e Entry) (Entry, error) {
	e = prepare(e)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[e.ID] = e
	return e, nil
}

func (j *MemoryJournal) List(context.Context) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries := make([]Entry, 0, len(j.entries))
	for _, e := range j.entries {
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

func (j *MemoryJournal) Resolve(_ context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.entries[id]; !ok {
		return ErrNotFound
	}
	delete(j.entries, id)
	return nil
}
