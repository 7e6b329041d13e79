package middleware

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/agrobazaar-api/internal/logger"
	"github.com/rajivgeraev/agrobazaar-api/internal/metrics"
)

// RequestLogger кладёт в контекст запроса логгер с request_id и пишет итог запроса.
// Ставится после requestid.New().
func RequestLogger(log *zap.Logger) fiber.Handler {
	log = logger.OrNop(log)

	return func(c fiber.Ctx) error {
		start := time.Now()
		reqLog := log.With(zap.String("request_id", requestid.FromContext(c)))
		c.SetContext(logger.WithContext(c.Context(), reqLog))

		err := c.Next()

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", StatusOf(c, err)),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
		}
		if sess, ok := SessionFrom(c); ok {
			fields = append(fields, zap.String("user_id", sess.UserID.String()))
		}

		switch {
		case err == nil:
			reqLog.Info("HTTP запрос выполнен", fields...)
		case StatusOf(c, err) >= fiber.StatusInternalServerError:
			reqLog.Error("HTTP запрос завершился ошибкой", append(fields, zap.Error(err))...)
		default:
			reqLog.Info("HTTP запрос отклонён", append(fields, zap.Error(err))...)
		}
		return err
	}
}

// Metrics учитывает запросы в Prometheus с путём из шаблона маршрута
func Metrics(m *metrics.Metrics) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Path()
		if route := c.Route(); route != nil && route.Path != "" {
			path = route.Path
		}
		m.ObserveRequest(c.Method(), path, StatusOf(c, err), time.Since(start))
		return err
	}
}
