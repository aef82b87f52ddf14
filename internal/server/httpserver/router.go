// Package httpserver assembles the gin engine of the sync server.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/logging"
	"github.com/dmitrijs2005/fleetzen/internal/server/handlers"
	"github.com/dmitrijs2005/fleetzen/internal/server/httpserver/middleware"
	"github.com/dmitrijs2005/fleetzen/internal/server/httpserver/respond"
)

type Deps struct {
	Logger         logging.Logger
	SecretKey      []byte
	CORSOrigins    []string
	MaxUploadBytes int64
	Interventions  handlers.Reconciler
	Photos         handlers.PhotoUploader
	// Health reports whether the database is reachable; nil means always healthy.
	Health func(ctx context.Context) error
}

// NewRouter constructs the gin engine with middleware and routes registered.
// /healthz is public; everything under /api/v1 requires a bearer token.
// /api/v1/me echoes the token's agent and lets the agent check a token.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20

	r.Use(
		middleware.RequestID(),
		middleware.Logging(d.Logger),
		middleware.Recovery(d.Logger),
		middleware.CORS(d.CORSOrigins),
	)

	r.GET("/healthz", func(c *gin.Context) {
		if d.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.Health(ctx); err != nil {
				respond.Error(c, http.StatusServiceUnavailable, "unavailable", "database unreachable", nil)
				return
			}
		}
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})

	v1 := r.Group("/api/v1", middleware.Auth(d.SecretKey))
	v1.GET("/me", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, api.AgentResponse{Success: true, Data: api.Agent{ID: middleware.AgentIDFromContext(c)}})
	})
	handlers.NewInterventionHandler(d.Interventions).RegisterRoutes(v1)
	handlers.NewPhotoHandler(d.Photos, d.MaxUploadBytes).RegisterRoutes(v1)

	return r
}
