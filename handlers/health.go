package handlers

import (
	"albumgrab/config"
	"albumgrab/services"
	"albumgrab/websocket"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	backend services.BackendClient
	hub     websocket.Hub
	page    func() services.PageStatus
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(backend services.BackendClient, hub websocket.Hub, page func() services.PageStatus) *HealthHandler {
	return &HealthHandler{backend: backend, hub: hub, page: page}
}

// HealthCheck returns the health status of the companion itself
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "albumgrab",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
	})
}

// APIStatus reports backend reachability and what page is being followed
func (h *HealthHandler) APIStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	backendErr := h.backend.Health(ctx)
	resp := gin.H{
		"message":           "Albumgrab companion is running",
		"backend_url":       config.GetBackendURL(),
		"backend_reachable": backendErr == nil,
		"clients":           h.hub.ClientCount(),
	}
	if backendErr != nil {
		resp["backend_error"] = backendErr.Error()
	}
	if h.page != nil {
		resp["page"] = h.page()
	}
	c.JSON(http.StatusOK, resp)
}
