package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rajivgeraev/agrobazaar-api/internal/chatsync"
	"github.com/rajivgeraev/agrobazaar-api/internal/config"
	"github.com/rajivgeraev/agrobazaar-api/internal/coord"
	"github.com/rajivgeraev/agrobazaar-api/internal/db"
	"github.com/rajivgeraev/agrobazaar-api/internal/inventory"
	"github.com/rajivgeraev/agrobazaar-api/internal/logger"
	"github.com/rajivgeraev/agrobazaar-api/internal/metrics"
	"github.com/rajivgeraev/agrobazaar-api/internal/middleware"
	"github.com/rajivgeraev/agrobazaar-api/internal/negotiation"
	"github.com/rajivgeraev/agrobazaar-api/internal/reconcile"
	"github.com/rajivgeraev/agrobazaar-api/internal/services/chat"
	"github.com/rajivgeraev/agrobazaar-api/internal/services/crop"
	"github.com/rajivgeraev/agrobazaar-api/internal/services/order"
	"github.com/rajivgeraev/agrobazaar-api/internal/services/trade"
	"github.com/rajivgeraev/agrobazaar-api/internal/store"
	"github.com/rajivgeraev/agrobazaar-api/internal/store/memory"
	"github.com/rajivgeraev/agrobazaar-api/internal/store/mongostore"
	"github.com/rajivgeraev/agrobazaar-api/internal/store/rest"
	"github.com/rajivgeraev/agrobazaar-api/internal/utils"
)

const serviceName = "agrobazaar-api"

// backend описывает хранилище, которое умеет отвечать на проверку здоровья
type backend interface {
	store.Store
	Ping(ctx context.Context) error
}

type memoryBackend struct{ *memory.Store }

func (memoryBackend) Ping(context.Context) error { return nil }

func main() {
	// Загружаем конфигурацию
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Ошибка конфигурации: %v", err)
	}

	zlog, err := logger.New(logger.LogConfig{
		Level:       cfg.LogLevel,
		Environment: cfg.AppEnv,
		ServiceName: serviceName,
	})
	if err != nil {
		log.Fatalf("❌ Ошибка инициализации логгера: %v", err)
	}
	defer zlog.Sync()

	if !cfg.EnvFileLoaded {
		zlog.Info("Файл .env не найден, используются переменные окружения")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Подключаем хранилище записей
	records, err := openBackend(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("Не удалось подключить хранилище", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	s := store.WithTimeout(records, cfg.Store.Timeout)

	m := metrics.New(serviceName)

	locker, journal, closeRedis, err := openCoordination(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("Не удалось подключить Redis", zap.Error(err))
	}

	purchaser := inventory.NewService(s, journal, m, zlog)
	engine := negotiation.NewEngine(s, purchaser, negotiation.Options{
		AppendRetries: cfg.Negotiation.AppendRetries,
		Locker:        locker,
		Journal:       journal,
		Metrics:       m,
		Logger:        zlog,
	})
	registry := chatsync.NewRegistry(engine, chatsync.RegistryOptions{
		Interval: cfg.Negotiation.PollInterval,
		IdleTTL:  cfg.Negotiation.ViewIdleTTL,
		Metrics:  m,
		Logger:   zlog,
	})

	jwtService := utils.NewJWTService(cfg.JWTSecret)

	// Создаём экземпляр Fiber
	app := fiber.New(fiber.Config{
		AppName:      "AgroBazaar API",
		ErrorHandler: middleware.ErrorHandler(zlog),
	})

	// Добавляем middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(zlog))
	app.Use(middleware.Metrics(m))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))

	app.Get("/health", healthHandler(records))
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	// Регистрируем маршруты
	cropService := crop.NewCropService(s, jwtService, zlog)
	cropService.SetupPublicRoutes(app)
	cropService.SetupRoutes(app)
	chat.NewChatService(engine, registry, jwtService, zlog).SetupRoutes(app)
	trade.NewTradeService(engine, registry, jwtService).SetupRoutes(app)
	order.NewOrderService(s, purchaser, jwtService, zlog).SetupRoutes(app)

	zlog.Info("✅ AgroBazaar API запущен",
		zap.String("port", cfg.Port),
		zap.String("backend", cfg.Store.Backend),
		zap.Bool("redis", cfg.Redis.Addr != ""))

	// Listen возвращается после отмены ctx и корректной остановки сервера
	err = app.Listen(":"+cfg.Port, fiber.ListenConfig{
		DisableStartupMessage: true,
		GracefulContext:       ctx,
		ShutdownTimeout:       10 * time.Second,
	})
	if err != nil {
		zlog.Error("Сервер остановлен с ошибкой", zap.Error(err))
	}

	registry.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := closeRedis(); err != nil {
		zlog.Warn("Ошибка закрытия Redis", zap.Error(err))
	}
	if err := records.Close(shutdownCtx); err != nil {
		zlog.Warn("Ошибка закрытия хранилища", zap.Error(err))
	}
	zlog.Info("Сервер остановлен")
}

func openBackend(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (backend, error) {
	switch cfg.Store.Backend {
	case config.BackendREST:
		return rest.NewClient(cfg.Store.URL, cfg.Store.Timeout, cfg.Store.RPS, zlog), nil
	case config.BackendPostgres:
		// Connect сам создаёт схему
		pg, err := db.Connect(ctx, cfg, zlog)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case config.BackendMongo:
		return mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, zlog)
	case config.BackendMemory:
		zlog.Warn("Данные хранятся в памяти процесса и пропадут при перезапуске")
		return memoryBackend{memory.New()}, nil
	default:
		return nil, fmt.Errorf("неизвестное хранилище %q", cfg.Store.Backend)
	}
}

// openCoordination выбирает Redis или локальные блокировки и журнал
func openCoordination(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (coord.Locker, reconcile.Journal, func() error, error) {
	if cfg.Redis.Addr == "" {
		zlog.Info("REDIS_ADDR не задан, блокировки и журнал сверки работают в памяти процесса")
		return coord.NewLocalLocker(), reconcile.NewMemoryJournal(), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, nil, err
	}
	return coord.NewRedisLocker(client, cfg.Negotiation.LockTTL), reconcile.NewRedisJournal(client), client.Close, nil
}

func healthHandler(records backend) fiber.Handler {
	return func(c fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		if err := records.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
