package handlers

import (
	"albumgrab/services"
	"albumgrab/types"
	"albumgrab/websocket"
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ControlSession is what the control endpoints need from the page session
type ControlSession interface {
	Status() services.PageStatus
	Controls() []types.ControlMessage
	Scan(ctx context.Context) (services.ScanReport, error)
	TriggerDownload(ctx context.Context) (types.ControlMessage, error)
	DownloadEntity(ctx context.Context, identity string) (types.ControlMessage, error)
}

// ControlHandler lets a host shell list, click and follow download controls
type ControlHandler struct {
	session ControlSession
	hub     websocket.Hub
}

// NewControlHandler creates a new control handler
func NewControlHandler(session ControlSession, hub websocket.Hub) *ControlHandler {
	return &ControlHandler{session: session, hub: hub}
}

type downloadControlRequest struct {
	Identity string `json:"identity" binding:"required"`
}

// ListControls returns every live control
func (h *ControlHandler) ListControls(c *gin.Context) {
	controls := h.session.Controls()
	c.JSON(http.StatusOK, gin.H{
		"page":     h.session.Status(),
		"controls": controls,
		"total":    len(controls),
	})
}

// Download activates the control for an identity, as a click would
func (h *ControlHandler) Download(c *gin.Context) {
	var req downloadControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "identity is required",
			"details": err.Error(),
		})
		return
	}

	control, err := h.session.DownloadEntity(c.Request.Context(), req.Identity)
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"error":   err.Error(),
			"control": control,
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Download started",
		"control": control,
	})
}

// Scan forces a sweep of the current listing page
func (h *ControlHandler) Scan(c *gin.Context) {
	report, err := h.session.Scan(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Trigger downloads the release the current page shows
func (h *ControlHandler) Trigger(c *gin.Context) {
	control, err := h.session.TriggerDownload(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"error":   err.Error(),
			"control": control,
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Download started",
		"control": control,
	})
}

// HandleWebSocketConnection follows a single control
func (h *ControlHandler) HandleWebSocketConnection(c *gin.Context) {
	controlID := c.Param("controlId")
	if controlID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "control ID is required"})
		return
	}

	known := false
	for _, ctl := range h.session.Controls() {
		if ctl.ControlID == controlID {
			known = true
			break
		}
	}
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "control not found"})
		return
	}

	h.upgrade(c, controlID)
}

// HandleWebSocketAllConnection follows every control
func (h *ControlHandler) HandleWebSocketAllConnection(c *gin.Context) {
	h.upgrade(c, websocket.AllControls)
}

func (h *ControlHandler) upgrade(c *gin.Context, controlID string) {
	upgrader := websocket.GetUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[handlers] WebSocket upgrade failed: %v", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, controlID)
	h.hub.RegisterClient(client)
	client.StartPumps()
}
