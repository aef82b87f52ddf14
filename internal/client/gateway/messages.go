package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Control message types.
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageCacheURLs   = "CACHE_URLS"
)

// Message is the body of a POST to MessagePath.
type Message struct {
	Type string   `json:"type" binding:"required"`
	URLs []string `json:"urls,omitempty"`
}

// MessageReply is the answer to a control message.
type MessageReply struct {
	Active  string `json:"active,omitempty"`
	Waiting string `json:"waiting,omitempty"`
	Cached  int    `json:"cached,omitempty"`
}

func (g *Gateway) handleMessage(c *gin.Context) {
	var msg Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message"})
		return
	}

	ctx := c.Request.Context()
	switch msg.Type {
	case MessageSkipWaiting:
		active, err := g.Activate(ctx)
		if err != nil {
			g.logger.Error(ctx, "activation failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "activation failed"})
			return
		}
		c.JSON(http.StatusOK, MessageReply{Active: active})
	case MessageCacheURLs:
		n := g.CacheURLs(ctx, msg.URLs)
		active, waiting := g.Versions()
		c.JSON(http.StatusOK, MessageReply{Active: active, Waiting: waiting, Cached: n})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown message type"})
	}
}
