package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	traceHeader = "X-Trace-ID"
	traceKey    = "trace_id"
)

// TraceID tags each request with the caller's X-Trace-ID or a fresh one.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}
		c.Set(traceKey, traceID)
		c.Header(traceHeader, traceID)
		c.Next()
	}
}

func traceIDFrom(c *gin.Context) string {
	return c.GetString(traceKey)
}

func Logging(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("trace_id", traceIDFrom(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
			return
		}
		logger.Info("request completed", fields...)
	}
}

func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.String("trace_id", traceIDFrom(c)),
					zap.Any("error", err),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":    "Internal server error",
					"trace_id": traceIDFrom(c),
				})
			}
		}()
		c.Next()
	}
}
