package chatsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rajivgeraev/agrobazaar-api/internal/apperr"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/negotiation"
)

type fakeSource struct {
	mu      sync.Mutex
	entries []models.TimelineEntry
	err     error
	calls   atomic.Int64
}

func (f *fakeSource) Timeline(ctx context.Context, thread negotiation.Thread) ([]models.TimelineEntry, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.TimelineEntry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *fakeSource) add(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, models.TimelineEntry{
		ChatID: "chat-1",
		Message: models.Message{
			ID:        models.ID(text),
			Sender:    models.Sender{ID: "u1", Name: "Asha", Role: models.RoleCustomer},
			Timestamp: time.Date(2024, 5, 1, 9, 0, len(f.entries), 0, time.UTC),
			Body:      models.Text{Text: text},
		},
	})
}

var testThread = negotiation.Thread{Kind: negotiation.ThreadChat, ChatID: "chat-1", CustomerID: "u1", FarmerID: "f1"}

func TestRefreshOnlyReportsRealChanges(t *testing.T) {
	src := &fakeSource{}
	src.add("hello")
	s := NewSynchronizer(src, testThread, time.Hour, nil, nil)
	ctx := context.Background()

	changed, err := s.Refresh(ctx)
	if err != nil || !changed {
		t.Fatalf("first refresh: changed=%v err=%v", changed, err)
	}
	first := s.Snapshot()

	changed, err = s.Refresh(ctx)
	if err != nil || changed {
		t.Fatalf("identical refresh: changed=%v err=%v", changed, err)
	}
	if s.Snapshot().Version != first.Version {
		t.Error("version must not move on identical refresh")
	}

	src.add("price?")
	changed, err = s.Refresh(ctx)
	if err != nil || !changed {
		t.Fatalf("refresh after append: changed=%v err=%v", changed, err)
	}
	snap := s.Snapshot()
	if len(snap.Entries) != 2 || snap.Version != first.Version+1 || snap.ETag() == first.ETag() {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRefreshErrorKeepsView(t *testing.T) {
	src := &fakeSource{}
	src.add("hello")
	s := NewSynchronizer(src, testThread, time.Hour, nil, nil)

	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	src.mu.Lock()
	src.err = errors.New("store down")
	src.mu.Unlock()

	if _, err := s.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(s.Snapshot().Entries) != 1 {
		t.Error("view must survive a failed refresh")
	}
}

func TestRunPollsAndStopsOnClose(t *testing.T) {
	src := &fakeSource{}
	s := NewSynchronizer(src, testThread, 5*time.Millisecond, nil, nil)
	s.Start(context.Background())

	src.add("hello")
	deadline := time.Now().Add(2 * time.Second)
	for len(s.Snapshot().Entries) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("poll never picked up the message")
		}
		time.Sleep(time.Millisecond)
	}

	s.Close()
	calls := src.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if src.calls.Load() != calls {
		t.Error("poll happened after Close")
	}

	// повторный Close безопасен
	s.Close()
}

func TestPokeRefreshesImmediately(t *testing.T) {
	src := &fakeSource{}
	s := NewSynchronizer(src, testThread, time.Hour, nil, nil)
	s.Start(context.Background())
	defer s.Close()

	src.add("hello")
	s.Poke()

	deadline := time.Now().Add(2 * time.Second)
	for len(s.Snapshot().Entries) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("poke did not trigger a refresh")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCloseWithoutStart(t *testing.T) {
	s := NewSynchronizer(&fakeSource{}, testThread, time.Hour, nil, nil)
	s.Close()
	s.Start(context.Background())
	s.Close()
}

func TestRegistryLifecycle(t *testing.T) {
	src := &fakeSource{}
	src.add("hello")

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		clockMu.Lock()
		now = now.Add(d)
		clockMu.Unlock()
	}

	r := NewRegistry(src, RegistryOptions{Interval: time.Hour, IdleTTL: time.Minute, Now: clock})
	defer r.Shutdown()

	view, err := r.Open(context.Background(), "u1", testThread)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Snapshot().Entries) != 1 {
		t.Errorf("entries = %d, want 1", len(view.Snapshot().Entries))
	}

	if _, err := r.Get(view.ID, "f1"); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Errorf("foreign read: got %v, want forbidden", err)
	}
	if _, err := r.Get("missing", "u1"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("missing view: got %v, want not found", err)
	}

	advance(50 * time.Second)
	if _, err := r.Get(view.ID, "u1"); err != nil {
		t.Fatal(err)
	}
	advance(50 * time.Second)
	if n := r.Expire(); n != 0 {
		t.Errorf("expired %d views that were read recently", n)
	}

	advance(2 * time.Minute)
	if n := r.Expire(); n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}
	if r.Len() != 0 || len(r.UserViews("u1")) != 0 {
		t.Error("registry must be empty")
	}
}

func TestRegistryOpenFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("store down")}
	r := NewRegistry(src, RegistryOptions{Interval: time.Hour})
	defer r.Shutdown()

	if _, err := r.Open(context.Background(), "u1", testThread); err == nil {
		t.Fatal("expected error")
	}
	if r.Len() != 0 {
		t.Error("failed open must not register a view")
	}
}

func TestRegistryShutdownClosesViews(t *testing.T) {
	src := &fakeSource{}
	r := NewRegistry(src, RegistryOptions{Interval: time.Hour})

	for i := 0; i < 3; i++ {
		if _, err := r.Open(context.Background(), "u1", testThread); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(r.UserViews("u1")); got != 3 {
		t.Errorf("user views = %d, want 3", got)
	}

	r.Shutdown()
	if r.Len() != 0 {
		t.Errorf("views after shutdown = %d", r.Len())
	}
	if _, err := r.Open(context.Background(), "u1", testThread); err == nil {
		t.Error("open after shutdown must fail")
	}
}

func TestPokeConversation(t *testing.T) {
	src := &fakeSource{}
	r := NewRegistry(src, RegistryOptions{Interval: time.Hour})
	defer r.Shutdown()

	aggregated := negotiation.Thread{Kind: negotiation.ThreadCustomer, CustomerID: "u1", FarmerID: "f1"}
	unrelated := negotiation.Thread{Kind: negotiation.ThreadChat, ChatID: "chat-2", CustomerID: "u2", FarmerID: "f1"}
	for _, th := range []negotiation.Thread{testThread, aggregated, unrelated} {
		if _, err := r.Open(context.Background(), "u1", th); err != nil {
			t.Fatal(err)
		}
	}

	if n := r.PokeConversation("f1", "u1"); n != 2 {
		t.Errorf("poked = %d, want 2", n)
	}
	if n := r.PokeConversation("f9", "u1"); n != 0 {
		t.Errorf("poked = %d, want 0", n)
	}
}

// slowFirstSource отдаёт первое чтение с задержкой, второе сразу и уже с новым сообщением
type slowFirstSource struct {
	calls   atomic.Int64
	entered chan struct{}
	release chan struct{}
	older   []models.TimelineEntry
	newer   []models.TimelineEntry
}

func (f *slowFirstSource) Timeline(ctx context.Context, thread negotiation.Thread) ([]models.TimelineEntry, error) {
	if f.calls.Add(1) == 1 {
		close(f.entered)
		<-f.release
		return f.older, nil
	}
	return f.newer, nil
}

func TestConcurrentRefreshNeverRollsBack(t *testing.T) {
	feed := &fakeSource{}
	feed.add("m1")
	older, _ := feed.Timeline(context.Background(), testThread)
	feed.add("m2")
	newer, _ := feed.Timeline(context.Background(), testThread)

	src := &slowFirstSource{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		older:   older,
		newer:   newer,
	}
	s := NewSynchronizer(src, testThread, time.Hour, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := s.Refresh(ctx); err != nil {
			t.Errorf("фоновое обновление: %v", err)
		}
	}()
	<-src.entered

	go func() {
		defer wg.Done()
		if _, err := s.Refresh(ctx); err != nil {
			t.Errorf("обновление по запросу: %v", err)
		}
	}()
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	snap := s.Snapshot()
	if len(snap.Entries) != 2 || snap.Entries[1].Message.ID != "m2" {
		t.Fatalf("лента откатилась: %d записей, версия %d", len(snap.Entries), snap.Version)
	}
	if snap.Version != 2 {
		t.Errorf("version = %d, want 2", snap.Version)
	}
}

func TestOpenRacingShutdownLeavesNoView(t *testing.T) {
	src := &slowFirstSource{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := NewRegistry(src, RegistryOptions{Interval: time.Hour})

	opened := make(chan error, 1)
	go func() {
		_, err := r.Open(context.Background(), "u1", testThread)
		opened <- err
	}()

	// Первое чтение ленты идёт, а сервер в это время останавливается
	<-src.entered
	r.Shutdown()
	close(src.release)

	if err := <-opened; err == nil {
		t.Error("open, завершившийся после остановки, должен вернуть ошибку")
	}
	if r.Len() != 0 {
		t.Errorf("views after shutdown = %d, want 0", r.Len())
	}
}
