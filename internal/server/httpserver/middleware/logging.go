package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/fleetzen/internal/logging"
	"github.com/dmitrijs2005/fleetzen/internal/server/httpserver/respond"
)

// Logging emits one structured log line per request. Server errors log at
// ERROR, client errors at WARN.
func Logging(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		status := c.Writer.Status()

		args := []any{
			"request_id", RequestIDFromContext(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"client_ip", c.ClientIP(),
		}
		if agentID := AgentIDFromContext(c); agentID != "" {
			args = append(args, "agent_id", agentID)
		}
		if code := c.GetString(respond.ErrorCodeKey); code != "" {
			args = append(args, "error_code", code)
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.String())
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			logger.Error(ctx, "request complete", args...)
		case status >= 400:
			logger.Warn(ctx, "request complete", args...)
		default:
			logger.Info(ctx, "request complete", args...)
		}
	}
}
