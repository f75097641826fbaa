package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	ctxRequestIDKey = "request_id"
)

// RequestLogger tags every request with an id and logs it once it completes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(ctxRequestIDKey, rid)
		c.Header(RequestIDHeader, rid)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"req_id", rid,
			"ip", c.ClientIP(),
		}
		switch {
		case c.Writer.Status() >= 500:
			slog.ErrorContext(c.Request.Context(), "http", attrs...)
		case c.Writer.Status() >= 400:
			slog.WarnContext(c.Request.Context(), "http", attrs...)
		default:
			slog.InfoContext(c.Request.Context(), "http", attrs...)
		}
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxRequestIDKey)
}
