// Package middleware holds the gin middleware chain of the sync server.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/shared"
)

const requestIDKey = "requestId"

// RequestID attaches a request ID to the context and the response header.
// A well-formed incoming X-Request-Id is kept.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(common.RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = generateRequestID()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(common.RequestIDHeader, id)
		c.Next()
	}
}

func RequestIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(requestIDKey)
}

func generateRequestID() string {
	id, err := shared.MakeRandHexString(16)
	if err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return id
}
