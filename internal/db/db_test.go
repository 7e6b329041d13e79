package db

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/agrobazaar-api/internal/config"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
)

// Тесты с настоящей базой запускаются только при заданном PG_TEST_URL
func testStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("PG_TEST_URL")
	if url == "" {
		t.Skip("PG_TEST_URL не задан")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	s := &Store{Pool: pool}
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM records`); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)
	return s
}

func TestCropCompareAndSet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	crop := &models.Crop{FarmerID: "f1", CropName: "Wheat", Quantity: 10, Unit: "kg", PricePerUnit: 12}
	if err := s.CreateCrop(ctx, crop); err != nil {
		t.Fatal(err)
	}

	if err := s.CompareAndSetCropQuantity(ctx, crop.ID, 10, 4); err != nil {
		t.Fatalf("CAS: %v", err)
	}
	if err := s.CompareAndSetCropQuantity(ctx, crop.ID, 10, 0); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("stale CAS: got %v, want ErrConflict", err)
	}
	if err := s.CompareAndSetCropQuantity(ctx, "missing", 1, 0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing CAS: got %v, want ErrNotFound", err)
	}

	got, err := s.GetCrop(ctx, crop.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Quantity != 4 {
		t.Errorf("quantity = %v, want 4", got.Quantity)
	}
}

func TestChatMessagesRevision(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	chat := &models.Chat{CropID: "c1", CustomerID: "u1", FarmerID: "f1"}
	if err := s.CreateChat(ctx, chat); err != nil {
		t.Fatal(err)
	}

	msgs := []models.Message{{ID: "m1", Body: models.Text{Text: "hi"}}}
	if err := s.CompareAndSetChatMessages(ctx, chat.ID, 0, msgs); err != nil {
		t.Fatal(err)
	}
	if err := s.CompareAndSetChatMessages(ctx, chat.ID, 0, msgs); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}

	chats, err := s.ListChats(ctx, store.ChatFilter{CustomerID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].Revision != 1 || len(chats[0].Messages) != 1 {
		t.Errorf("chats = %+v", chats)
	}
}

func TestConnectPreparesSchema(t *testing.T) {
	url := os.Getenv("PG_TEST_URL")
	if url == "" {
		t.Skip("PG_TEST_URL не задан")
	}

	ctx := context.Background()
	cfg := &config.Config{DatabaseURL: url}
	s, err := Connect(ctx, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)

	// Connect сам создаёт таблицу, отдельный Migrate не нужен
	user := &models.User{Name: "Asha", Role: models.RoleCustomer}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser сразу после Connect: %v", err)
	}
	if _, err := s.GetUser(ctx, user.ID); err != nil {
		t.Fatal(err)
	}
}
