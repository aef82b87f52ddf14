// Package handlers exposes the intervention services over gin.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/server/httpserver/middleware"
	"github.com/dmitrijs2005/fleetzen/internal/server/httpserver/respond"
)

// MaxBatchItems bounds one reconciliation call.
const MaxBatchItems = 200

type Reconciler interface {
	Reconcile(ctx context.Context, agentID string, p *api.InterventionPayload) (*api.Intervention, bool, error)
	ReconcileBatch(ctx context.Context, agentID string, items []api.InterventionPayload) api.BatchResponse
	Get(ctx context.Context, agentID, localID string) (*api.Intervention, error)
}

type InterventionHandler struct {
	Svc Reconciler
}

func NewInterventionHandler(svc Reconciler) *InterventionHandler {
	return &InterventionHandler{Svc: svc}
}

func (h *InterventionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/interventions", h.create)
	rg.POST("/interventions/sync", h.sync)
	rg.GET("/interventions/:localId", h.get)
}

func (h *InterventionHandler) create(c *gin.Context) {
	var p api.InterventionPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_json", "request body must be an intervention object", err.Error())
		return
	}

	out, created, err := h.Svc.Reconcile(c.Request.Context(), middleware.AgentIDFromContext(c), &p)
	if err != nil {
		respond.FromError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respond.JSON(c, status, api.InterventionResponse{Success: true, Created: created, Data: *out})
}

type rawBatch struct {
	Interventions []json.RawMessage `json:"interventions"`
}

// sync decodes items one by one so a malformed item becomes a per-item
// failure instead of rejecting the batch.
func (h *InterventionHandler) sync(c *gin.Context) {
	var req rawBatch
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_json", "request body must be {\"interventions\":[...]}", err.Error())
		return
	}
	if len(req.Interventions) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "interventions must be a non-empty array", nil)
		return
	}
	if len(req.Interventions) > MaxBatchItems {
		respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large",
			fmt.Sprintf("at most %d interventions per batch", MaxBatchItems), nil)
		return
	}

	items := make([]api.InterventionPayload, 0, len(req.Interventions))
	var undecodable []api.BatchFailure
	for i, raw := range req.Interventions {
		var p api.InterventionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			undecodable = append(undecodable, api.BatchFailure{
				LocalID: peekLocalID(raw, i),
				Error:   "invalid payload: " + err.Error(),
			})
			continue
		}
		items = append(items, p)
	}

	resp := h.Svc.ReconcileBatch(c.Request.Context(), middleware.AgentIDFromContext(c), items)
	if len(undecodable) > 0 {
		resp.Data.Failed = append(resp.Data.Failed, undecodable...)
		resp.Meta.Total = len(req.Interventions)
		resp.Meta.Failed = len(resp.Data.Failed)
	}
	respond.JSON(c, http.StatusOK, resp)
}

// peekLocalID extracts localId from an item that failed to decode, falling
// back to its position in the batch.
func peekLocalID(raw json.RawMessage, index int) string {
	var probe struct {
		LocalID any `json:"localId"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil {
		if s, ok := probe.LocalID.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return fmt.Sprintf("#%d", index)
}

func (h *InterventionHandler) get(c *gin.Context) {
	out, err := h.Svc.Get(c.Request.Context(), middleware.AgentIDFromContext(c), c.Param("localId"))
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, api.InterventionResponse{Success: true, Data: *out})
}
