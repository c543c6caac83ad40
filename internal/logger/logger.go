package logger

import (
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CorrelationIDHeader is the response header carrying the request correlation ID.
const CorrelationIDHeader = "X-Correlation-ID"

const correlationIDKey = "authgateCorrelationID"

// Init builds the process logger, honoring LOG_LEVEL, and installs it globally.
func Init() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if raw, ok := os.LookupEnv("LOG_LEVEL"); ok {
		if parsed, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(raw))); err == nil {
			level = parsed
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logg, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(logg)
	return logg, nil
}

// Middleware assigns a correlation ID to every request and logs its outcome.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(correlationIDKey, id)
		c.Writer.Header().Set(CorrelationIDHeader, id)

		start := time.Now()
		c.Next()

		zap.L().Info("request",
			zap.String("correlation_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// CorrelationID extracts the correlation ID assigned by Middleware.
func CorrelationID(c *gin.Context) string {
	value, exists := c.Get(correlationIDKey)
	if !exists {
		return ""
	}
	id, _ := value.(string)
	return id
}
