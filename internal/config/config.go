package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config структура конфигурации
type Config struct {
	Port      string
	AppEnv    string
	LogLevel  string
	JWTSecret string

	Store          StoreConfig
	DatabaseURL    string
	DatabaseConfig DatabaseConfig
	Mongo          MongoConfig
	Redis          RedisConfig
	Negotiation    NegotiationConfig

	// EnvFileLoaded показывает, удалось ли прочитать .env
	EnvFileLoaded bool
}

// StoreConfig выбирает хранилище записей
type StoreConfig struct {
	Backend string // rest, postgres, mongo, memory
	URL     string
	Timeout time.Duration
	RPS     float64
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig нужен для блокировок открытия чатов и журнала сверки.
// Пустой Addr включает локальные реализации в памяти процесса.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NegotiationConfig содержит параметры переговоров и синхронизации
type NegotiationConfig struct {
	PollInterval  time.Duration
	ViewIdleTTL   time.Duration
	AppendRetries int
	LockTTL       time.Duration
}

const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

// LoadConfig загружает переменные из .env и окружения
func LoadConfig() (*Config, error) {
	envLoaded := godotenv.Load() == nil

	dbConfig := DatabaseConfig{
		Host:     getEnv("PGHOST", "localhost"),
		Port:     getEnv("PGPORT", "5432"),
		User:     getEnv("PGUSER", "agrobazaar_user"),
		Password: getEnv("PGPASSWORD", "agrobazaar_pass"),
		Name:     getEnv("PGDATABASE", "agrobazaar"),
		SSLMode:  getEnv("PGSSLMODE", "disable"),
	}

	// Формируем строку подключения к базе данных
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name, dbConfig.SSLMode)

	var errs []error

	storeCfg := StoreConfig{
		Backend: getEnv("STORE_BACKEND", BackendREST),
		URL:     getEnv("RECORD_STORE_URL", "http://localhost:3000"),
		Timeout: getDuration("STORE_TIMEOUT", 5*time.Second, &errs),
		RPS:     getFloat("STORE_RPS", 50, &errs),
	}

	negotiation := NegotiationConfig{
		PollInterval:  getDuration("POLL_INTERVAL", 500*time.Millisecond, &errs),
		ViewIdleTTL:   getDuration("VIEW_IDLE_TTL", 2*time.Minute, &errs),
		AppendRetries: getInt("APPEND_RETRIES", 3, &errs),
		LockTTL:       getDuration("LOCK_TTL", 5*time.Second, &errs),
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AppEnv:         getEnv("APP_ENV", "production"), // По умолчанию production
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		Store:          storeCfg,
		DatabaseURL:    dbURL,
		DatabaseConfig: dbConfig,
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DB", "agrobazaar"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0, &errs),
		},
		Negotiation:   negotiation,
		EnvFileLoaded: envLoaded,
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("не задана обязательная переменная JWT_SECRET"))
	}

	switch cfg.Store.Backend {
	case BackendREST, BackendPostgres, BackendMongo, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("неизвестное хранилище STORE_BACKEND=%q", cfg.Store.Backend))
	}

	if cfg.Negotiation.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL должен быть больше нуля"))
	}
	if cfg.Negotiation.AppendRetries < 0 {
		errs = append(errs, errors.New("APPEND_RETRIES не может быть отрицательным"))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("ошибка конфигурации: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// IsProduction сообщает, запущено ли приложение в боевом окружении
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// getEnv получает переменную окружения или использует дефолтное значение
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int, errs *[]error) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getFloat(key string, defaultValue float64, errs *[]error) float64 {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return f
}
