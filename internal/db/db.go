// Package db хранит записи в PostgreSQL. Каждая запись хранится как
// JSONB-документ в общей таблице records, условные записи выполняются одним UPDATE.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rajivgeraev/agrobazaar-api/internal/config"
)

// Store представляет пул соединений с базой данных
type Store struct {
	Pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect инициализирует соединение с базой данных
func Connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("Подключение к базе данных",
		zap.String("host", cfg.DatabaseConfig.Host),
		zap.String("database", cfg.DatabaseConfig.Name))

	// Создаем контекст с таймаутом для подключения
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Настраиваем конфигурацию пула соединений
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка при разборе URL базы данных: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка при создании пула соединений: %w", err)
	}

	// Проверяем соединение
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка при проверке соединения: %w", err)
	}

	s := &Store{Pool: pool, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Успешное подключение к базе данных")
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	seq        BIGSERIAL,
	data       JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS records_collection_seq_idx ON records (collection, seq);
`

// Migrate создаёт таблицу записей, если её ещё нет
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ошибка при создании схемы: %w", err)
	}
	return nil
}

// Ping проверяет соединение с базой
func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// Close закрывает соединение с базой данных
func (s *Store) Close(context.Context) error {
	if s.Pool != nil {
		s.Pool.Close()
	}
	return nil
}
