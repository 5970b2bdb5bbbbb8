package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/fatflowers/agentbilling/pkg/logctx"
	"github.com/fatflowers/agentbilling/pkg/tool"
)

const (
	TraceHeader = "X-Request-ID"
	// TraceIDKey is the gin.Context key holding the trace id.
	TraceIDKey = "traceID"
)

// TraceMiddleware adds a trace ID to the request context.
// It reads X-Request-ID if provided by the client; otherwise generates a UUIDv7.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = tool.GenerateUUIDV7()
		}

		c.Set(TraceIDKey, traceID)
		c.Request = c.Request.WithContext(logctx.WithTraceID(c.Request.Context(), traceID))
		c.Next()
	}
}
