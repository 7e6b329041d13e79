package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rajivgeraev/agrobazaar-api/internal/config"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/reconcile"
	"github.com/rajivgeraev/agrobazaar-api/internal/utils"
)

func TestTokenCommand(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret"}

	var out bytes.Buffer
	err := run(context.Background(), cfg, []string{"token", "-user", "f1", "-name", "Ravi", "-role", "farmer"}, &out)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	sess, err := utils.NewJWTService("test-secret").ExtractSession(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("выпущенный токен не проходит проверку: %v", err)
	}
	if sess.UserID != "f1" || sess.Name != "Ravi" || sess.Role != models.RoleFarmer {
		t.Errorf("сессия %+v", sess)
	}

	if err := run(context.Background(), cfg, []string{"token", "-user", "f1", "-role", "admin"}, &out); err == nil {
		t.Error("неизвестная роль должна отклоняться")
	}
}

func TestReconcileCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	journal := reconcile.NewRedisJournal(client)

	ctx := context.Background()
	entry, err := journal.Record(ctx, reconcile.Entry{
		Kind:     reconcile.KindPartialCommit,
		CropID:   "crop-1",
		Quantity: 6,
		Error:    "order insert failed",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	var out bytes.Buffer
	if err := run(ctx, cfg, []string{"reconcile", "list"}, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), entry.ID) || !strings.Contains(out.String(), "partial_commit") {
		t.Errorf("в списке нет записи:\n%s", out.String())
	}

	out.Reset()
	if err := run(ctx, cfg, []string{"reconcile", "resolve", "-id", entry.ID}, &out); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	err = run(ctx, cfg, []string{"reconcile", "resolve", "-id", entry.ID}, &out)
	if !errors.Is(err, reconcile.ErrNotFound) {
		t.Errorf("повторное закрытие: %v", err)
	}

	out.Reset()
	if err := run(ctx, cfg, []string{"reconcile", "list"}, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "Открытых записей нет") {
		t.Errorf("журнал должен быть пуст:\n%s", out.String())
	}
}

func TestReconcileNeedsRedis(t *testing.T) {
	err := run(context.Background(), &config.Config{}, []string{"reconcile", "list"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "REDIS_ADDR") {
		t.Errorf("ожидалась ошибка про REDIS_ADDR, получено %v", err)
	}
}

func TestUsage(t *testing.T) {
	for _, args := range [][]string{nil, {"unknown"}, {"reconcile"}} {
		if err := run(context.Background(), &config.Config{}, args, &bytes.Buffer{}); !errors.Is(err, errUsage) {
			t.Errorf("%v: ожидалась подсказка, получено %v", args, err)
		}
	}
}
