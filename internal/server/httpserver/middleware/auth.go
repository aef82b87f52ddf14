package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/server/auth"
	"github.com/dmitrijs2005/fleetzen/internal/server/httpserver/respond"
)

const agentIDKey = "agentId"

// Auth requires "Authorization: Bearer <jwt>" signed with secret and stores
// the agent id in the context.
func Auth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		header := strings.TrimSpace(c.GetHeader(common.AuthorizationHeader))
		token, ok := strings.CutPrefix(header, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		agentID, err := auth.GetAgentIDFromToken(token, secret)
		if err != nil {
			msg := "missing or invalid token"
			if err == common.ErrTokenExpired {
				msg = "token expired"
			}
			respond.Error(c, http.StatusUnauthorized, "unauthorized", msg, nil)
			return
		}

		c.Set(agentIDKey, agentID)
		c.Next()
	}
}

// AgentIDFromContext fetches the agent id set by Auth.
func AgentIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(agentIDKey)
}
