package logger

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestLoggingMiddleware tags every request with an id, reusing the
// caller's X-Request-ID when present, and logs its start and completion.
// Page sessions are logged when they end.
func RequestLoggingMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		c.Header(RequestIDHeader, requestID)

		ctx := WithRequestID(c.Request.Context(), requestID)
		ctx = WithOperation(ctx, "http_request")
		c.Request = c.Request.WithContext(ctx)

		log := logger.WithContext(ctx).WithComponent("http")
		log.Debug("request started",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("remote_addr", c.ClientIP()),
		)

		c.Next()

		log.Info("request completed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
