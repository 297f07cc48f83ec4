package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	loggerpkg "github.com/shivang-goliyan/CloudRadius-sub000/pkg/logger"
)

// RequestLogger emits one structured line per request once the handler
// chain has run. Request bodies are never captured: subscriber create and
// import payloads carry RADIUS credentials in clear text, and mutations
// are already recorded in the audit log.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("query", c.Request.URL.RawQuery),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", status),
			zap.Int("bytes_out", c.Writer.Size()),
			zap.Duration("took", time.Since(start)),
		}
		if tenantID := c.Param("tenant_id"); tenantID != "" {
			fields = append(fields, zap.String("tenant_id", tenantID))
		}
		if claims, ok := GetClaims(c); ok {
			fields = append(fields, zap.String("operator_id", claims.OperatorID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("handler_errors", c.Errors.String()))
		}

		fields = loggerpkg.SanitizeFields(fields)
		switch {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
