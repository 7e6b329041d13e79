// Package logger настраивает zap для сервиса.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string
	Environment string
	ServiceName string
}

// New создаёт логгер: JSON в production, цветной консольный вывод в остальных окружениях
func New(config LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch config.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	fields := zap.Fields(
		zap.String("service", config.ServiceName),
		zap.String("environment", config.Environment),
	)

	if config.Environment == "production" {
		prodConfig := zap.NewProductionConfig()
		prodConfig.Level = zap.NewAtomicLevelAt(level)
		prodConfig.EncoderConfig.TimeKey = "timestamp"
		prodConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return prodConfig.Build(fields)
	}

	devConfig := zap.NewDevelopmentConfig()
	devConfig.Level = zap.NewAtomicLevelAt(level)
	devConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return devConfig.Build(fields)
}

// OrNop подставляет пустой логгер вместо nil
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
